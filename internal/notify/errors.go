package notify

import "errors"

var (
	// ErrSubscriberGone is returned when a push to a subscriber fails; the
	// subscriber has been detached by the time the error is returned
	ErrSubscriberGone = errors.New("subscriber gone")

	// ErrNotifierClosed is returned when attaching after Shutdown
	ErrNotifierClosed = errors.New("notifier is shut down")
)
