package api

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts every API route on r.
func RegisterRoutes(r chi.Router, tasks *TaskHandler, stream *StreamHandler, images *ImageHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/generator", tasks.Generate)
		r.Get("/status/{task_id}", tasks.Status)
		r.Get("/queue", tasks.Queue)
		r.Get("/ws/{task_id}", stream.Stream)
		r.Get("/image/{filename}", images.Image)
	})
	r.Get("/health", tasks.Health)
}
