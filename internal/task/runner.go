package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/platform/logger"
)

// Runner is the handle through which the rest of the service submits tasks
// and queries their status. It owns the lifecycle of the worker goroutine.
type Runner struct {
	store  *Store
	queue  *Queue
	worker *Worker
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewRunner creates a new Runner. The worker is not started until Start is called.
func NewRunner(store *Store, queue *Queue, worker *Worker, logger *slog.Logger) *Runner {
	return &Runner{
		store:  store,
		queue:  queue,
		worker: worker,
		logger: logger.With("component", "task_runner"),
	}
}

// Submit records a new queued task and appends it to the queue.
// It succeeds even if the worker is fatal; such tasks simply stay queued.
func (r *Runner) Submit(ctx context.Context, req generation.Request) (string, error) {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return "", ErrRunnerStopped
	}

	id := uuid.New().String()

	// The record must exist before the id becomes visible to the worker.
	if _, err := r.store.Create(id, req); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	r.queue.Enqueue(id)

	logger.FromContextOrDefault(ctx, r.logger).Info("task submitted",
		"task_id", id,
		"quality", req.Quality,
		"aspect_ratio", req.AspectRatio,
		"queue_size", r.queue.Size())

	return id, nil
}

// Status returns the rendered snapshot of a task. It has no side effects.
func (r *Runner) Status(ctx context.Context, id string) (StatusView, error) {
	t, ok := r.store.Get(id)
	if !ok {
		return StatusView{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if t.Status != StatusQueued {
		return view(t, 0, false), nil
	}
	pos, inQueue := r.queue.PositionOf(id)
	return view(t, pos, inQueue), nil
}

// QueueSize is the number of waiting tasks plus the one being processed.
func (r *Runner) QueueSize() int {
	return r.queue.Size()
}

// WorkerState returns the state of the worker.
func (r *Runner) WorkerState() WorkerState {
	return r.worker.State()
}

// Start launches the worker goroutine. A fatal initialization is logged by
// the worker and leaves the service running without processing.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrRunnerStopped
	}
	if r.cancel != nil {
		return errors.New("task runner already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.worker.Run(ctx); err != nil {
			r.logger.Error("worker exited", "error", err)
		}
	}()

	r.logger.Info("task runner started")
	return nil
}

// Stop rejects further submissions, cancels the worker and waits for it to
// return. A task being generated sees its context cancelled.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info("task runner stopped", "pending", r.queue.Pending())
}
