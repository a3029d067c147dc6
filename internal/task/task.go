package task

import (
	"fmt"
	"time"

	"github.com/phrazzld/lumiere-api/internal/generation"
)

// Status represents the current state of a task
type Status string

// Possible task status values. The string values are part of the wire format.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusErrored    Status = "error"
)

// IsTerminal reports whether no further transitions can happen from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusErrored
}

// canTransition encodes queued -> processing -> {completed | error}.
// processing -> processing is allowed so progress can be updated in place.
func canTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusErrored
	default:
		return false
	}
}

// Task is the canonical record of one generation request.
// Values returned by the Store are copies and never change after being returned.
type Task struct {
	ID            string
	Request       generation.Request
	Status        Status
	Progress      int
	ResultLocator string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Update describes a write performed by the worker.
type Update struct {
	Status        Status
	Progress      *int
	ResultLocator string
	ErrorMessage  string
}

// ProgressString renders a percentage the way it appears on the wire.
func ProgressString(pct int) string {
	return fmt.Sprintf("%d%%", pct)
}

// StatusView is the rendered snapshot of a task returned by status queries and
// pushed to stream subscribers.
type StatusView struct {
	Status        Status `json:"status"`
	QueuePosition *int   `json:"queue_position,omitempty"`
	Progress      string `json:"progress,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Equal reports whether two views carry the same fields.
func (v StatusView) Equal(other StatusView) bool {
	if v.Status != other.Status ||
		v.Progress != other.Progress ||
		v.ImageURL != other.ImageURL ||
		v.ErrorMessage != other.ErrorMessage {
		return false
	}
	if (v.QueuePosition == nil) != (other.QueuePosition == nil) {
		return false
	}
	return v.QueuePosition == nil || *v.QueuePosition == *other.QueuePosition
}

// NotFoundView is pushed to a subscriber whose task never shows up.
func NotFoundView() StatusView {
	return StatusView{Status: StatusErrored, ErrorMessage: "Task not found"}
}

// view renders t; position is only included while the task is queued.
func view(t Task, position int, hasPosition bool) StatusView {
	v := StatusView{
		Status:       t.Status,
		Progress:     ProgressString(t.Progress),
		ImageURL:     t.ResultLocator,
		ErrorMessage: t.ErrorMessage,
	}
	if t.Status == StatusQueued && hasPosition {
		pos := position
		v.QueuePosition = &pos
	}
	return v
}
