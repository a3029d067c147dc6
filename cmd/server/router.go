package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/lumiere-api/internal/api"
	apiMiddleware "github.com/phrazzld/lumiere-api/internal/api/middleware"
)

// setupRouter creates the router with middleware and every API route.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(apiMiddleware.RequestLogger)
	r.Use(middleware.Recoverer)

	api.RegisterRoutes(r,
		api.NewTaskHandler(app.runner, app.options, app.logger),
		api.NewStreamHandler(app.notifier, app.bridge, app.config.Stream.WriteTimeout, app.logger),
		api.NewImageHandler(app.config.Generation.OutputDir, app.logger),
	)

	return r
}
