package generation

import "errors"

// Common errors returned by the generation package and its implementations
var (
	// ErrGenerationFailed is returned when an image could not be produced
	ErrGenerationFailed = errors.New("failed to generate image")

	// ErrNotInitialized is returned when Generate is called before Initialize succeeded
	ErrNotInitialized = errors.New("generator is not initialized")

	// ErrInvalidResponse is returned when the backend reply cannot be parsed
	ErrInvalidResponse = errors.New("invalid response from generation backend")

	// ErrUnknownOption is returned when a quality or aspect ratio is not configured
	ErrUnknownOption = errors.New("unknown generation option")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
