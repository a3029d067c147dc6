package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/lumiere-api/internal/task"
)

// Close codes sent to subscribers, as defined by RFC 6455.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)

// Subscriber is one live observer connection.
type Subscriber interface {
	// Accept completes the connection handshake.
	Accept(ctx context.Context) error
	// Send delivers one encoded snapshot.
	Send(ctx context.Context, payload []byte) error
	// Close ends the connection with a close code and reason.
	Close(code int, reason string) error
}

// LookupFunc returns the current snapshot of a task.
type LookupFunc func(ctx context.Context, id string) (task.StatusView, error)

// Notifier keeps the set of subscribers per task id.
// Sends happen outside the lock on a copy of the set, so a slow subscriber
// never blocks Attach or Detach.
type Notifier struct {
	mu     sync.Mutex
	subs   map[string]map[Subscriber]struct{}
	closed bool
	logger *slog.Logger
}

// NewNotifier creates an empty Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		subs:   make(map[string]map[Subscriber]struct{}),
		logger: logger.With("component", "notifier"),
	}
}

// Attach accepts sub and registers it under id.
func (n *Notifier) Attach(ctx context.Context, id string, sub Subscriber) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return ErrNotifierClosed
	}

	if err := sub.Accept(ctx); err != nil {
		return fmt.Errorf("failed to accept subscriber: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		_ = sub.Close(CloseGoingAway, "Server shutting down")
		return ErrNotifierClosed
	}

	set, ok := n.subs[id]
	if !ok {
		set = make(map[Subscriber]struct{})
		n.subs[id] = set
	}
	set[sub] = struct{}{}

	n.logger.Info("subscriber attached", "task_id", id, "subscribers", len(set))
	return nil
}

// Detach removes sub from id. Detaching an unknown subscriber is a no-op.
func (n *Notifier) Detach(id string, sub Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.detachLocked(id, sub)
}

func (n *Notifier) detachLocked(id string, sub Subscriber) {
	set, ok := n.subs[id]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(n.subs, id)
	}
	n.logger.Info("subscriber detached", "task_id", id, "subscribers", len(set))
}

// Broadcast sends view to every subscriber of id. Subscribers that fail are
// detached; the failure is not reported to the caller.
func (n *Notifier) Broadcast(ctx context.Context, id string, view task.StatusView) {
	targets := n.subscribers(id)
	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(view)
	if err != nil {
		n.logger.Error("failed to encode status view", "task_id", id, "error", err)
		return
	}

	for _, sub := range targets {
		if err := sub.Send(ctx, payload); err != nil {
			n.logger.Debug("dropping subscriber after failed send", "task_id", id, "error", err)
			n.Detach(id, sub)
		}
	}
}

// Send pushes view to a single subscriber of id. On failure the subscriber is
// detached and ErrSubscriberGone is returned.
func (n *Notifier) Send(ctx context.Context, id string, sub Subscriber, view task.StatusView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to encode status view: %w", err)
	}

	if err := sub.Send(ctx, payload); err != nil {
		n.Detach(id, sub)
		return fmt.Errorf("%w: %v", ErrSubscriberGone, err)
	}
	return nil
}

// Count returns the number of subscribers attached to id.
func (n *Notifier) Count(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[id])
}

// Shutdown refuses new subscribers, pushes a last snapshot for every watched
// task when lookup is not nil, and closes every subscriber as going away.
func (n *Notifier) Shutdown(ctx context.Context, lookup LookupFunc) {
	n.mu.Lock()
	n.closed = true
	all := n.subs
	n.subs = make(map[string]map[Subscriber]struct{})
	n.mu.Unlock()

	closedCount := 0
	for id, set := range all {
		if lookup != nil {
			if view, err := lookup(ctx, id); err == nil {
				payload, err := json.Marshal(view)
				if err == nil {
					for sub := range set {
						_ = sub.Send(ctx, payload)
					}
				}
			}
		}
		for sub := range set {
			if err := sub.Close(CloseGoingAway, "Server shutting down"); err != nil {
				n.logger.Debug("failed to close subscriber", "task_id", id, "error", err)
			}
			closedCount++
		}
	}

	n.logger.Info("notifier shut down", "subscribers_closed", closedCount)
}

func (n *Notifier) subscribers(id string) []Subscriber {
	n.mu.Lock()
	defer n.mu.Unlock()

	set := n.subs[id]
	out := make([]Subscriber, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}
