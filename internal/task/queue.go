package task

import (
	"context"
	"log/slog"
	"sync"
)

// Queue is the FIFO of pending task ids plus the "current" slot holding the
// id being processed.
//
// Dequeue moves the head into the current slot under the same lock, so an id
// is always either pending, current, or gone; never in two places at once.
type Queue struct {
	mu         sync.Mutex
	pending    []string
	current    string
	hasCurrent bool

	// ready carries at most one wake-up token; Enqueue refills it.
	ready  chan struct{}
	logger *slog.Logger
}

// NewQueue creates an empty queue.
func NewQueue(logger *slog.Logger) *Queue {
	return &Queue{
		ready:  make(chan struct{}, 1),
		logger: logger.With("component", "task_queue"),
	}
}

// Enqueue appends id to the tail of the pending sequence.
func (q *Queue) Enqueue(id string) {
	q.mu.Lock()
	q.pending = append(q.pending, id)
	pendingLen := len(q.pending)
	q.mu.Unlock()

	q.signal()

	q.logger.Debug("task enqueued",
		"task_id", id,
		"pending", pendingLen)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue removes the head of the pending sequence, makes it the current task
// and returns it. It blocks until an id is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			id := q.pending[0]
			q.pending[0] = ""
			q.pending = q.pending[1:]
			q.current = id
			q.hasCurrent = true
			remaining := len(q.pending)
			q.mu.Unlock()

			// Pass the token on so another waiter sees the remaining items.
			if remaining > 0 {
				q.signal()
			}
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.ready:
		}
	}
}

// Finish clears the current slot if it holds id.
func (q *Queue) Finish(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasCurrent && q.current == id {
		q.current = ""
		q.hasCurrent = false
	}
}

// PositionOf returns 0 for the current task and, for a pending id, its index in
// the pending sequence plus one when a task is being processed.
// It reports false when the id is neither pending nor current.
func (q *Queue) PositionOf(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasCurrent && q.current == id {
		return 0, true
	}

	offset := 0
	if q.hasCurrent {
		offset = 1
	}
	for i, pendingID := range q.pending {
		if pendingID == id {
			return i + offset, true
		}
	}
	return 0, false
}

// Size is the number of pending ids plus one if a task is being processed.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	if q.hasCurrent {
		n++
	}
	return n
}

// Pending returns the number of ids waiting to be dequeued.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
