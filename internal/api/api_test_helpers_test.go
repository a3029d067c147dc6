package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lumiere-api/internal/api/middleware"
	"github.com/phrazzld/lumiere-api/internal/events"
	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/notify"
	"github.com/phrazzld/lumiere-api/internal/platform/logger"
	"github.com/phrazzld/lumiere-api/internal/task"
)

const (
	waitTimeout = 3 * time.Second
	tick        = 5 * time.Millisecond
)

// testStack is the full task pipeline behind a real HTTP server.
type testStack struct {
	server    *httptest.Server
	runner    *task.Runner
	notifier  *notify.Notifier
	outputDir string
}

func testOptions(t *testing.T) *generation.Options {
	t.Helper()
	opts, err := generation.NewOptions(
		map[string]int{"normal": 20, "high": 40},
		map[string][]int{"1:1": {1024, 1024}, "16:9": {1344, 768}},
	)
	require.NoError(t, err)
	return opts
}

func newTestStack(t *testing.T, gen generation.Generator) *testStack {
	t.Helper()

	log := logger.DiscardLogger()
	bus := events.NewBus(log)
	store := task.NewStore(bus, log)
	queue := task.NewQueue(log)
	worker := task.NewWorker(store, queue, gen, task.DefaultWorkerConfig(), log)
	runner := task.NewRunner(store, queue, worker, log)
	require.NoError(t, runner.Start(context.Background()))

	notifier := notify.NewNotifier(log)
	bridge := notify.NewBridge(runner, notifier, bus, notify.BridgeConfig{
		PollInterval:   10 * time.Millisecond,
		MaxMissedPolls: 2,
		MaxPollErrors:  3,
	}, log)

	outputDir := t.TempDir()

	r := chi.NewRouter()
	r.Use(middleware.Trace(log))
	RegisterRoutes(r,
		NewTaskHandler(runner, testOptions(t), log),
		NewStreamHandler(notifier, bridge, time.Second, log),
		NewImageHandler(outputDir, log),
	)
	server := httptest.NewServer(r)

	t.Cleanup(func() {
		notifier.Shutdown(context.Background(), nil)
		server.Close()
		runner.Stop()
		bus.Close()
	})

	return &testStack{server: server, runner: runner, notifier: notifier, outputDir: outputDir}
}

func (s *testStack) submit(t *testing.T, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	resp, err := http.Post(s.server.URL+"/api/generator", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (s *testStack) submitOK(t *testing.T, prompt string) string {
	t.Helper()

	resp, body := s.submit(t, `{"prompt": "`+prompt+`", "quality": "normal", "aspect_ratio": "1:1"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id, _ := body["task_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func (s *testStack) waitView(t *testing.T, id string, match func(task.StatusView) bool) task.StatusView {
	t.Helper()

	var last task.StatusView
	require.Eventually(t, func() bool {
		view, err := s.runner.Status(context.Background(), id)
		if err != nil {
			return false
		}
		last = view
		return match(view)
	}, waitTimeout, tick, "task %s never reached the expected view", id)
	return last
}

func (s *testStack) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/ws/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilClose collects pushed views until the server closes the stream.
func readUntilClose(t *testing.T, conn *websocket.Conn) ([]map[string]interface{}, *websocket.CloseError) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))

	var msgs []map[string]interface{}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeErr, ok := err.(*websocket.CloseError)
			require.True(t, ok, "expected close frame, got %v", err)
			return msgs, closeErr
		}
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		msgs = append(msgs, msg)
	}
}

// gate is a generator whose jobs report half progress and then wait to be
// released.
type gate struct {
	release chan struct{}
	locator string
}

func newGate(locator string) *gate {
	return &gate{release: make(chan struct{}), locator: locator}
}

func (g *gate) Initialize(ctx context.Context) error { return nil }

func (g *gate) Generate(ctx context.Context, req generation.Request, progress chan<- generation.Progress) (string, error) {
	select {
	case progress <- generation.Progress{Step: 1, Total: 2}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case <-g.release:
		return g.locator, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gate) open() { close(g.release) }
