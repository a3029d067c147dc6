package events

import (
	"time"
)

// TaskUpdated is published every time the stored state of a task changes.
// It carries only enough to let a listener decide whether to re-read the task.
type TaskUpdated struct {
	// TaskID identifies the task and is also the topic it is published on
	TaskID string

	// Status is the task status after the change
	Status string

	// At is when the change was recorded
	At time.Time
}

// Publisher is implemented by anything that accepts task change notifications.
type Publisher interface {
	Publish(event TaskUpdated)
}
