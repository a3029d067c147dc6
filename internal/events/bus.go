package events

import (
	"log/slog"
	"sync"
)

const defaultBufferSize = 16

// Bus is an in-memory, per-task-id publish/subscribe hub.
// Publishing never blocks: a subscriber whose buffer is full misses the event,
// which is acceptable because subscribers re-read the full state anyway.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[chan TaskUpdated]struct{}
	closed bool
	logger *slog.Logger
}

// NewBus creates a new, empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]map[chan TaskUpdated]struct{}),
		logger: logger.With("component", "event_bus"),
	}
}

// Subscribe registers interest in the events of one task id.
// It returns the event channel and a function that cancels the subscription
// and closes the channel; the function is safe to call more than once.
func (b *Bus) Subscribe(taskID string, bufSize int) (<-chan TaskUpdated, func()) {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	ch := make(chan TaskUpdated, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	set, ok := b.subs[taskID]
	if !ok {
		set = make(map[chan TaskUpdated]struct{})
		b.subs[taskID] = set
	}
	set[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(taskID, ch) })
	}
}

func (b *Bus) unsubscribe(taskID string, ch chan TaskUpdated) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[taskID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(b.subs, taskID)
	}
}

// Publish delivers event to every subscriber of event.TaskID.
func (b *Bus) Publish(event TaskUpdated) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for ch := range b.subs[event.TaskID] {
		select {
		case ch <- event:
		default:
			b.logger.Debug("subscriber buffer full, dropping event",
				"task_id", event.TaskID,
				"status", event.Status)
		}
	}
}

// Subscribers returns the number of live subscriptions for a task id.
func (b *Bus) Subscribers(taskID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[taskID])
}

// Close closes every subscriber channel. Safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for taskID, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, taskID)
	}
}
