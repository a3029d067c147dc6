package task

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/lumiere-api/internal/events"
	"github.com/phrazzld/lumiere-api/internal/generation"
)

// Store holds the canonical state of every submitted task in memory.
// Records are never evicted.
//
// Readers get value copies taken under the lock, so status, progress and
// result fields always come from the same write.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates an empty Store. publisher may be nil.
func NewStore(publisher events.Publisher, logger *slog.Logger) *Store {
	return &Store{
		tasks:     make(map[string]*Task),
		publisher: publisher,
		logger:    logger.With("component", "task_store"),
		now:       time.Now,
	}
}

// Create records a new queued task. The id must not be in use.
func (s *Store) Create(id string, req generation.Request) (Task, error) {
	s.mu.Lock()
	if _, exists := s.tasks[id]; exists {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrTaskExists, id)
	}

	now := s.now()
	t := &Task{
		ID:        id,
		Request:   req,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[id] = t
	snapshot := *t
	s.mu.Unlock()

	s.logger.Debug("task created", "task_id", id)
	s.publish(snapshot)
	return snapshot, nil
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// UpdateStatus applies u to the task with the given id and returns the new state.
// Only the worker calls it. A missing id is an internal invariant violation and
// is reported as ErrTaskNotFound.
func (s *Store) UpdateStatus(id string, u Update) (Task, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !canTransition(t.Status, u.Status) {
		from := t.Status
		s.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, u.Status)
	}

	t.Status = u.Status
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.ResultLocator != "" {
		t.ResultLocator = u.ResultLocator
	}
	if u.ErrorMessage != "" {
		t.ErrorMessage = u.ErrorMessage
	}
	t.UpdatedAt = s.now()
	snapshot := *t
	s.mu.Unlock()

	s.publish(snapshot)
	return snapshot, nil
}

func (s *Store) publish(t Task) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.TaskUpdated{
		TaskID: t.ID,
		Status: string(t.Status),
		At:     t.UpdatedAt,
	})
}
