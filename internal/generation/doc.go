// Package generation defines the boundary between the generation queue and the
// external image generation backend. It holds the request and progress types,
// the Generator interface driven by the single worker, the optional
// RequestPreparer used for prompt enhancement, and the catalogue of quality
// and aspect ratio options a request may use.
package generation
