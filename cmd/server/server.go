package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// serve starts the worker and the HTTP server and blocks until ctx is done or
// the server fails. Shutdown stops accepting requests first, then runs
// cleanup.
func (app *application) serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", net.JoinHostPort(app.config.Server.Host, strconv.Itoa(app.config.Server.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return app.serveListener(ctx, listener)
}

func (app *application) serveListener(ctx context.Context, listener net.Listener) error {
	// The worker outlives ctx so in-flight work is stopped only after the
	// HTTP server has drained.
	if err := app.runner.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	server := &http.Server{
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("starting server", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
		defer cancel()

		// Hijacked WebSocket connections are not tracked by Shutdown; the
		// notifier closes them in cleanup.
		err := server.Shutdown(shutdownCtx)
		app.cleanup(shutdownCtx)
		if err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		app.logger.Info("server shutdown completed")
		return nil
	})

	return g.Wait()
}

func (app *application) shutdownTimeout() time.Duration {
	if app.config.Server.ShutdownTimeout > 0 {
		return app.config.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
