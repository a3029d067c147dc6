package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/notify"
	"github.com/phrazzld/lumiere-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrTaskExists):
		return http.StatusConflict

	case errors.Is(err, generation.ErrUnknownOption),
		errors.As(err, &verrs):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrRunnerStopped),
		errors.Is(err, notify.ErrNotifierClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, task.ErrTaskExists):
		return "Task already exists"

	case errors.Is(err, generation.ErrUnknownOption):
		return "Unsupported quality or aspect ratio"

	case errors.As(err, &verrs):
		return SanitizeValidationError(err)

	case errors.Is(err, task.ErrRunnerStopped),
		errors.Is(err, notify.ErrNotifierClosed):
		return "Service is shutting down"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a short message naming
// the offending JSON field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag())))
	}
	return strings.Join(msgs, "; ")
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
