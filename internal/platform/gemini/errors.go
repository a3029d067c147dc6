package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyPrompt is returned when there is nothing to send.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty response from Gemini")

	// ErrContentBlocked is returned when the response was stopped by safety filters.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrMissingField is returned when the JSON reply lacks the expected field.
	ErrMissingField = errors.New("response is missing the expected field")
)
