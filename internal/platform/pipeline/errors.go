package pipeline

import "errors"

var (
	// ErrProcessExited is returned when the pipeline process stops while a
	// reply is expected
	ErrProcessExited = errors.New("pipeline process exited")

	// ErrAlreadyStarted is returned when Initialize is called twice
	ErrAlreadyStarted = errors.New("pipeline process already started")

	// ErrReadyTimeout is returned when the process does not report ready in time
	ErrReadyTimeout = errors.New("timed out waiting for pipeline to become ready")
)
