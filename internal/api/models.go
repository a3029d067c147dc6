package api

import "github.com/phrazzld/lumiere-api/internal/generation"

// GenerateRequest is the body of POST /api/generator.
type GenerateRequest struct {
	Prompt         string `json:"prompt"                    validate:"required,max=2000"`
	Quality        string `json:"quality"                   validate:"required"`
	AspectRatio    string `json:"aspect_ratio"              validate:"required"`
	EmbeddingModel string `json:"embedding_model,omitempty" validate:"omitempty,max=200"`
}

func (r GenerateRequest) toGeneration() generation.Request {
	return generation.Request{
		Prompt:         r.Prompt,
		Quality:        r.Quality,
		AspectRatio:    r.AspectRatio,
		EmbeddingModel: r.EmbeddingModel,
	}
}

// GenerateResponse acknowledges an accepted job.
type GenerateResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// QueueResponse is the body of GET /api/queue.
type QueueResponse struct {
	QueueSize   int    `json:"queue_size"`
	WorkerState string `json:"worker_state"`
}
