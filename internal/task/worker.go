package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/redact"
)

// WorkerState describes where the worker is in its lifecycle.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerInitializing
	WorkerReady
	WorkerFatal
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerInitializing:
		return "initializing"
	case WorkerReady:
		return "ready"
	case WorkerFatal:
		return "fatal"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerConfig holds configuration for the worker
type WorkerConfig struct {
	// InitRetries is the number of extra Initialize attempts after a failure.
	// Zero means the first failure is fatal.
	InitRetries int

	// InitRetryDelay is the initial delay between Initialize attempts
	InitRetryDelay time.Duration

	// ProgressBuffer is the capacity of the per-task progress channel
	ProgressBuffer int
}

// DefaultWorkerConfig returns a WorkerConfig with reasonable defaults
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		InitRetries:    0,
		InitRetryDelay: 2 * time.Second,
		ProgressBuffer: 16,
	}
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithPreparer sets the RequestPreparer applied to every request before
// it is handed to the generator.
func WithPreparer(p generation.RequestPreparer) WorkerOption {
	return func(w *Worker) {
		w.preparer = p
	}
}

// Worker is the single consumer of the queue and the only caller of the
// generator. Tasks are processed one at a time, in dequeue order.
type Worker struct {
	store     *Store
	queue     *Queue
	generator generation.Generator
	preparer  generation.RequestPreparer
	config    WorkerConfig
	logger    *slog.Logger
	state     atomic.Int32
}

// NewWorker creates a Worker in the idle state.
func NewWorker(
	store *Store,
	queue *Queue,
	generator generation.Generator,
	config WorkerConfig,
	logger *slog.Logger,
	opts ...WorkerOption,
) *Worker {
	if config.ProgressBuffer <= 0 {
		config.ProgressBuffer = DefaultWorkerConfig().ProgressBuffer
	}
	if config.InitRetryDelay <= 0 {
		config.InitRetryDelay = DefaultWorkerConfig().InitRetryDelay
	}

	w := &Worker{
		store:     store,
		queue:     queue,
		generator: generator,
		config:    config,
		logger:    logger.With("component", "worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Run initializes the generator and then processes tasks until ctx is done.
//
// If initialization fails the worker becomes fatal and Run returns an error
// wrapping ErrWorkerFatal; the queue is not consumed afterwards. A cancelled
// ctx makes Run return nil.
func (w *Worker) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerInitializing)) {
		return fmt.Errorf("worker already started (state %s)", w.State())
	}

	w.logger.Info("initializing generator")
	start := time.Now()
	if err := w.initialize(ctx); err != nil {
		if ctx.Err() != nil {
			w.state.Store(int32(WorkerStopped))
			return nil
		}
		w.state.Store(int32(WorkerFatal))
		w.logger.Error("generator initialization failed, queue will not be processed",
			"error", redact.Error(err))
		return fmt.Errorf("%w: %v", ErrWorkerFatal, err)
	}
	w.state.Store(int32(WorkerReady))
	w.logger.Info("generator ready", "duration_ms", time.Since(start).Milliseconds())

	for {
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.state.Store(int32(WorkerStopped))
			w.logger.Debug("worker stopping", "reason", err)
			return nil
		}
		w.process(ctx, id)
	}
}

func (w *Worker) initialize(ctx context.Context) error {
	op := func() error {
		return w.generator.Initialize(ctx)
	}
	if w.config.InitRetries <= 0 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.config.InitRetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.config.InitRetries)), ctx)

	return backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		w.logger.Warn("generator initialization failed, retrying",
			"error", redact.Error(err),
			"retry_in", next.String())
	})
}

// process runs one dequeued task to a terminal state. The current slot is
// always released, whatever happens.
func (w *Worker) process(ctx context.Context, id string) {
	defer w.queue.Finish(id)

	logger := w.logger.With("task_id", id)

	t, ok := w.store.Get(id)
	if !ok {
		logger.Error("dequeued task is missing from the store")
		return
	}

	zero := 0
	if _, err := w.store.UpdateStatus(id, Update{Status: StatusProcessing, Progress: &zero}); err != nil {
		logger.Error("failed to mark task as processing", "error", err)
		return
	}

	logger.Info("processing task",
		"quality", t.Request.Quality,
		"aspect_ratio", t.Request.AspectRatio)
	start := time.Now()

	req := t.Request
	if w.preparer != nil {
		req = w.preparer.Prepare(ctx, req)
	}

	locator, err := w.generate(ctx, id, req)
	if err == nil && locator == "" {
		err = fmt.Errorf("%w: empty result locator", generation.ErrInvalidResponse)
	}

	if err != nil {
		logger.Error("task failed",
			"error", redact.Error(err),
			"duration_ms", time.Since(start).Milliseconds())
		msg := err.Error()
		if msg == "" {
			msg = generation.ErrGenerationFailed.Error()
		}
		if _, updateErr := w.store.UpdateStatus(id, Update{Status: StatusErrored, ErrorMessage: msg}); updateErr != nil {
			logger.Error("failed to record task failure", "error", updateErr)
		}
		return
	}

	hundred := 100
	if _, updateErr := w.store.UpdateStatus(id, Update{
		Status:        StatusCompleted,
		Progress:      &hundred,
		ResultLocator: locator,
	}); updateErr != nil {
		logger.Error("failed to record task completion", "error", updateErr)
		return
	}
	logger.Info("task completed",
		"result", locator,
		"duration_ms", time.Since(start).Milliseconds())
}

type generateResult struct {
	locator string
	err     error
}

// generate calls the generator in its own goroutine and copies every
// progress report into the store until the call returns. A panicking
// generator is turned into an error.
func (w *Worker) generate(ctx context.Context, id string, req generation.Request) (string, error) {
	progress := make(chan generation.Progress, w.config.ProgressBuffer)
	done := make(chan generateResult, 1)

	go func() {
		defer close(progress)

		var res generateResult
		defer func() {
			if r := recover(); r != nil {
				res = generateResult{err: fmt.Errorf("%w: generator panic: %v", generation.ErrGenerationFailed, r)}
			}
			done <- res
		}()

		res.locator, res.err = w.generator.Generate(ctx, req, progress)
	}()

	for p := range progress {
		pct, ok := p.Percent()
		if !ok {
			continue
		}
		if _, err := w.store.UpdateStatus(id, Update{Status: StatusProcessing, Progress: &pct}); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			w.logger.Warn("failed to record progress", "task_id", id, "error", err)
		}
	}

	res := <-done
	return res.locator, res.err
}
