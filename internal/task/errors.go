package task

import "errors"

// Common errors returned by the task package
var (
	// ErrTaskNotFound is returned when no task exists for an id
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a task with an id already in use
	ErrTaskExists = errors.New("task already exists")

	// ErrInvalidTransition is returned for a status change outside
	// queued -> processing -> {completed | error}
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrWorkerFatal is returned when the generator could not be initialized;
	// the queue is not consumed after it
	ErrWorkerFatal = errors.New("worker stopped: generator initialization failed")

	// ErrRunnerStopped is returned when submitting to a stopped runner
	ErrRunnerStopped = errors.New("task runner is stopped")
)
