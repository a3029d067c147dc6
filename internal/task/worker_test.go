package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/mocks"
	"github.com/phrazzld/lumiere-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// gatedGenerator blocks each Generate call, keyed by prompt, until the test
// releases it with a result.
type gatedGenerator struct {
	mu      sync.Mutex
	gates   map[string]chan error
	started chan string
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{
		gates:   make(map[string]chan error),
		started: make(chan string, 16),
	}
}

func (g *gatedGenerator) gate(prompt string) chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[prompt]
	if !ok {
		ch = make(chan error, 1)
		g.gates[prompt] = ch
	}
	return ch
}

func (g *gatedGenerator) mock() *mocks.MockGenerator {
	return &mocks.MockGenerator{
		GenerateFn: func(ctx context.Context, req generation.Request, progress chan<- generation.Progress) (string, error) {
			n := g.active.Add(1)
			defer g.active.Add(-1)
			for {
				seen := g.maxSeen.Load()
				if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
					break
				}
			}

			g.started <- req.Prompt
			progress <- generation.Progress{Step: 1, Total: 2}

			select {
			case err := <-g.gate(req.Prompt):
				if err != nil {
					return "", err
				}
				return "/api/image/" + req.Prompt + ".png", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
}

func (g *gatedGenerator) release(prompt string, err error) {
	g.gate(prompt) <- err
}

func (g *gatedGenerator) expectStart(t *testing.T, prompt string) {
	t.Helper()
	select {
	case got := <-g.started:
		require.Equal(t, prompt, got, "tasks must start in submission order")
	case <-time.After(waitTimeout):
		t.Fatalf("timeout waiting for %q to start", prompt)
	}
}

type testHarness struct {
	store  *Store
	queue  *Queue
	worker *Worker
	runner *Runner
}

func newHarness(t *testing.T, gen generation.Generator, cfg WorkerConfig, opts ...WorkerOption) *testHarness {
	t.Helper()

	log := logger.DiscardLogger()
	store := NewStore(nil, log)
	queue := NewQueue(log)
	worker := NewWorker(store, queue, gen, cfg, log, opts...)
	runner := NewRunner(store, queue, worker, log)
	t.Cleanup(runner.Stop)

	return &testHarness{store: store, queue: queue, worker: worker, runner: runner}
}

func (h *testHarness) waitStatus(t *testing.T, id string, want Status) Task {
	t.Helper()
	var last Task
	require.Eventually(t, func() bool {
		last, _ = h.store.Get(id)
		return last.Status == want
	}, waitTimeout, 5*time.Millisecond, "task %s never reached %s (last %s)", id, want, last.Status)
	return last
}

func TestWorker_CompletesTaskWithProgress(t *testing.T) {
	t.Parallel()

	gen := &mocks.MockGenerator{Locator: "/api/image/done.png", Steps: 4}
	h := newHarness(t, gen, DefaultWorkerConfig())
	require.NoError(t, h.runner.Start(context.Background()))

	id, err := h.runner.Submit(context.Background(), generation.Request{Prompt: "fox"})
	require.NoError(t, err)

	done := h.waitStatus(t, id, StatusCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "/api/image/done.png", done.ResultLocator)
	assert.Empty(t, done.ErrorMessage)

	assert.Eventually(t, func() bool { return h.queue.Size() == 0 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, WorkerReady, h.worker.State())
	assert.Equal(t, 1, gen.InitializeCalls())
}

func TestWorker_FIFOAndSingleTaskInFlight(t *testing.T) {
	t.Parallel()

	gg := newGatedGenerator()
	h := newHarness(t, gg.mock(), DefaultWorkerConfig())

	ctx := context.Background()
	ids := make([]string, 3)
	for i, prompt := range []string{"t1", "t2", "t3"} {
		id, err := h.runner.Submit(ctx, generation.Request{Prompt: prompt})
		require.NoError(t, err)
		ids[i] = id
	}
	require.NoError(t, h.runner.Start(ctx))

	gg.expectStart(t, "t1")
	assert.Equal(t, 1, countByStatus(h.store, StatusProcessing))
	gg.release("t1", nil)

	gg.expectStart(t, "t2")
	h.waitStatus(t, ids[0], StatusCompleted)
	assert.Equal(t, 1, countByStatus(h.store, StatusProcessing))
	gg.release("t2", nil)

	gg.expectStart(t, "t3")
	gg.release("t3", nil)

	for _, id := range ids {
		h.waitStatus(t, id, StatusCompleted)
	}
	assert.Equal(t, int32(1), gg.maxSeen.Load(), "generation must never overlap")
}

func TestWorker_FailureDoesNotStopQueue(t *testing.T) {
	t.Parallel()

	gg := newGatedGenerator()
	h := newHarness(t, gg.mock(), DefaultWorkerConfig())

	ctx := context.Background()
	require.NoError(t, h.runner.Start(ctx))

	t1, _ := h.runner.Submit(ctx, generation.Request{Prompt: "t1"})
	t2, _ := h.runner.Submit(ctx, generation.Request{Prompt: "t2"})
	t3, _ := h.runner.Submit(ctx, generation.Request{Prompt: "t3"})

	gg.expectStart(t, "t1")
	gg.release("t1", nil)
	gg.expectStart(t, "t2")
	gg.release("t2", errors.New("CUDA out of memory"))
	gg.expectStart(t, "t3")

	failed := h.waitStatus(t, t2, StatusErrored)
	assert.Equal(t, "CUDA out of memory", failed.ErrorMessage)
	assert.Empty(t, failed.ResultLocator)

	view, err := h.runner.Status(ctx, t3)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, view.Status)

	gg.release("t3", nil)
	h.waitStatus(t, t3, StatusCompleted)
	h.waitStatus(t, t1, StatusCompleted)
}

func TestWorker_RecoversFromGeneratorPanic(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gen := &mocks.MockGenerator{
		GenerateFn: func(ctx context.Context, req generation.Request, progress chan<- generation.Progress) (string, error) {
			if calls.Add(1) == 1 {
				panic("segfault in sampler")
			}
			return "/api/image/ok.png", nil
		},
	}
	h := newHarness(t, gen, DefaultWorkerConfig())
	require.NoError(t, h.runner.Start(context.Background()))

	bad, _ := h.runner.Submit(context.Background(), generation.Request{Prompt: "bad"})
	good, _ := h.runner.Submit(context.Background(), generation.Request{Prompt: "good"})

	failed := h.waitStatus(t, bad, StatusErrored)
	assert.Contains(t, failed.ErrorMessage, "segfault in sampler")
	h.waitStatus(t, good, StatusCompleted)
}

func TestWorker_EmptyLocatorIsAnError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &mocks.MockGenerator{}, DefaultWorkerConfig())
	require.NoError(t, h.runner.Start(context.Background()))

	id, _ := h.runner.Submit(context.Background(), generation.Request{})
	failed := h.waitStatus(t, id, StatusErrored)
	assert.NotEmpty(t, failed.ErrorMessage)
}

func TestWorker_AppliesPreparer(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorWithLocator("/api/image/p.png")
	preparer := &mocks.MockPreparer{
		PrepareFn: func(ctx context.Context, req generation.Request) generation.Request {
			req.Prompt = "a detailed oil painting of " + req.Prompt
			return req
		},
	}
	h := newHarness(t, gen, DefaultWorkerConfig(), WithPreparer(preparer))
	require.NoError(t, h.runner.Start(context.Background()))

	id, _ := h.runner.Submit(context.Background(), generation.Request{Prompt: "a cat"})
	done := h.waitStatus(t, id, StatusCompleted)

	// The stored request is untouched; only the generator sees the rewrite.
	assert.Equal(t, "a cat", done.Request.Prompt)
	require.Len(t, gen.Requests(), 1)
	assert.Equal(t, "a detailed oil painting of a cat", gen.Requests()[0].Prompt)
}

func TestWorker_FatalInitialization(t *testing.T) {
	t.Parallel()

	gen := mocks.MockGeneratorThatFailsInit()
	log := logger.DiscardLogger()
	store := NewStore(nil, log)
	queue := NewQueue(log)
	worker := NewWorker(store, queue, gen, DefaultWorkerConfig(), log)

	_, err := store.Create("t1", generation.Request{})
	require.NoError(t, err)
	queue.Enqueue("t1")

	err = worker.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkerFatal)
	assert.Equal(t, WorkerFatal, worker.State())
	assert.Equal(t, 1, gen.InitializeCalls())

	// The queue is left untouched.
	pos, ok := queue.PositionOf("t1")
	assert.True(t, ok)
	assert.Equal(t, 0, pos)
	got, _ := store.Get("t1")
	assert.Equal(t, StatusQueued, got.Status)

	assert.Error(t, worker.Run(context.Background()), "a worker runs only once")
}

func TestWorker_InitializationRetry(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	gen := &mocks.MockGenerator{
		InitializeFn: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("model files still downloading")
			}
			return nil
		},
		Locator: "/api/image/r.png",
	}
	cfg := WorkerConfig{InitRetries: 3, InitRetryDelay: time.Millisecond, ProgressBuffer: 4}
	h := newHarness(t, gen, cfg)
	require.NoError(t, h.runner.Start(context.Background()))

	id, _ := h.runner.Submit(context.Background(), generation.Request{})
	h.waitStatus(t, id, StatusCompleted)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWorker_StopsOnCancel(t *testing.T) {
	t.Parallel()

	log := logger.DiscardLogger()
	worker := NewWorker(NewStore(nil, log), NewQueue(log), &mocks.MockGenerator{}, DefaultWorkerConfig(), log)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return worker.State() == WorkerReady }, waitTimeout, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, WorkerStopped, worker.State())
}

func TestWorker_MissingRecordIsSkipped(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorWithLocator("/api/image/x.png")
	h := newHarness(t, gen, DefaultWorkerConfig())
	require.NoError(t, h.runner.Start(context.Background()))

	// An id that never went through the store.
	h.queue.Enqueue("ghost")
	id, _ := h.runner.Submit(context.Background(), generation.Request{})

	h.waitStatus(t, id, StatusCompleted)
	assert.Len(t, gen.Requests(), 1)
}

func TestWorkerState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", WorkerIdle.String())
	assert.Equal(t, "initializing", WorkerInitializing.String())
	assert.Equal(t, "ready", WorkerReady.String())
	assert.Equal(t, "fatal", WorkerFatal.String())
	assert.Equal(t, "stopped", WorkerStopped.String())
	assert.Equal(t, "unknown", WorkerState(42).String())
}

func TestWorker_FailureLogIsRedacted(t *testing.T) {
	t.Parallel()

	log, logBuf := logger.GetTestLogger(t)
	store := NewStore(nil, log)
	queue := NewQueue(log)
	gen := mocks.NewMockGeneratorWithError(errors.New("cannot open /models/private/base.safetensors"))
	worker := NewWorker(store, queue, gen, DefaultWorkerConfig(), log)
	runner := NewRunner(store, queue, worker, log)
	t.Cleanup(runner.Stop)
	require.NoError(t, runner.Start(context.Background()))

	id, err := runner.Submit(context.Background(), generation.Request{Prompt: "fox"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, _ := store.Get(id)
		return task.Status == StatusErrored
	}, waitTimeout, 5*time.Millisecond)

	task, _ := store.Get(id)
	assert.Equal(t, "cannot open /models/private/base.safetensors", task.ErrorMessage,
		"the record keeps the generator's message")

	logger.AssertLogContains(t, logBuf, "[REDACTED_PATH]")
	assert.NotContains(t, logBuf.String(), "base.safetensors")
}
