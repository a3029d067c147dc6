package generation

import (
	"context"
)

// Request describes one image generation job as submitted by a caller.
// The task core stores it and forwards it verbatim to the Generator.
type Request struct {
	Prompt         string `json:"prompt"`
	Quality        string `json:"quality"`
	AspectRatio    string `json:"aspect_ratio"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// Progress is emitted by a Generator after each completed step.
type Progress struct {
	Step  int
	Total int
}

// Percent converts the step counter into an integer percentage in [0, 100].
// It reports false when Total is not positive.
func (p Progress) Percent() (int, bool) {
	if p.Total <= 0 {
		return 0, false
	}
	pct := p.Step * 100 / p.Total
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// Generator defines the boundary between the task core and the heavy
// image generation backend, following the hexagonal architecture pattern.
//
// A Generator is owned by a single worker and is never called concurrently.
type Generator interface {
	// Initialize loads the model. It is called once, before the first Generate.
	Initialize(ctx context.Context) error

	// Generate runs one job, sending step progress on the provided channel, and
	// returns an opaque locator for the produced output. Implementations must not
	// close the progress channel.
	Generate(ctx context.Context, req Request, progress chan<- Progress) (string, error)
}

// RequestPreparer rewrites a request before it reaches the Generator,
// e.g. to enhance the prompt. It must not fail: on any problem the original
// request is returned.
type RequestPreparer interface {
	Prepare(ctx context.Context, req Request) Request
}
