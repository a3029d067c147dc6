package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phrazzld/lumiere-api/internal/api/shared"
	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/task"
)

// TaskService is the part of task.Runner the HTTP layer needs.
type TaskService interface {
	Submit(ctx context.Context, req generation.Request) (string, error)
	Status(ctx context.Context, id string) (task.StatusView, error)
	QueueSize() int
	WorkerState() task.WorkerState
}

// OptionValidator checks that a request names configured options.
type OptionValidator interface {
	Validate(req generation.Request) error
}

// TaskHandler serves job submission, status and queue routes.
type TaskHandler struct {
	tasks   TaskService
	options OptionValidator
	logger  *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService, options OptionValidator, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:   tasks,
		options: options,
		logger:  logger.With("component", "task_handler"),
	}
}

// Generate handles POST /api/generator.
func (h *TaskHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	genReq := req.toGeneration()
	if err := h.options.Validate(genReq); err != nil {
		// The client and the server's configuration disagree.
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err,
			shared.WithElevatedLogLevel())
		return
	}

	id, err := h.tasks.Submit(r.Context(), genReq)
	if err != nil {
		status := MapErrorToStatusCode(err)
		msg := GetSafeErrorMessage(err)
		if status == http.StatusInternalServerError {
			msg = "Failed to add task to queue"
		}
		shared.RespondWithErrorAndLog(w, r, status, msg, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, GenerateResponse{
		TaskID:  id,
		Status:  string(task.StatusQueued),
		Message: "Task added to queue successfully",
	})
}

// Status handles GET /api/status/{task_id}.
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := getPathParam(r, "task_id")
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "task_id is required")
		return
	}

	view, err := h.tasks.Status(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// Queue handles GET /api/queue.
func (h *TaskHandler) Queue(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, QueueResponse{
		QueueSize:   h.tasks.QueueSize(),
		WorkerState: h.tasks.WorkerState().String(),
	})
}

// Health handles GET /health. The worker state is reported in a header so
// the body stays a plain "OK".
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Worker-State", h.tasks.WorkerState().String())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health check response", "error", err)
	}
}
