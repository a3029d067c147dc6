package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lumiere-api/internal/notify"
	"github.com/phrazzld/lumiere-api/internal/task"
)

func halfway(v task.StatusView) bool {
	return v.Status == task.StatusProcessing && v.Progress == "50%"
}

func TestStream_PushesUntilCompleted(t *testing.T) {
	t.Parallel()

	g := newGate("/api/image/done.png")
	stack := newTestStack(t, g)

	id := stack.submitOK(t, "a fox")
	stack.waitView(t, id, halfway)

	conn := stack.dial(t, id)
	require.Eventually(t, func() bool { return stack.notifier.Count(id) == 1 }, waitTimeout, tick)

	var first map[string]interface{}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, map[string]interface{}{"status": "processing", "progress": "50%"}, first)

	g.open()

	msgs, closeErr := readUntilClose(t, conn)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]interface{}{
		"status":    "completed",
		"progress":  "100%",
		"image_url": "/api/image/done.png",
	}, msgs[0])
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "Task completed", closeErr.Text)

	assert.Eventually(t, func() bool { return stack.notifier.Count(id) == 0 }, waitTimeout, tick)
}

func TestStream_UnknownTask(t *testing.T) {
	t.Parallel()

	stack := newTestStack(t, newGate("/api/image/x.png"))

	conn := stack.dial(t, "does-not-exist")
	msgs, closeErr := readUntilClose(t, conn)

	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]interface{}{"status": "error", "error_message": "Task not found"}, msgs[0])
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "Task not found", closeErr.Text)
}

func TestStream_EverySubscriberSeesTheResult(t *testing.T) {
	t.Parallel()

	g := newGate("/api/image/shared.png")
	stack := newTestStack(t, g)

	id := stack.submitOK(t, "a harbor")
	stack.waitView(t, id, halfway)

	a := stack.dial(t, id)
	b := stack.dial(t, id)
	require.Eventually(t, func() bool { return stack.notifier.Count(id) == 2 }, waitTimeout, tick)

	g.open()

	for _, conn := range []*websocket.Conn{a, b} {
		msgs, closeErr := readUntilClose(t, conn)
		require.NotEmpty(t, msgs)
		last := msgs[len(msgs)-1]
		assert.Equal(t, "completed", last["status"])
		assert.Equal(t, "/api/image/shared.png", last["image_url"])
		assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	}
}

func TestStream_ClientDisconnectDetaches(t *testing.T) {
	t.Parallel()

	stack := newTestStack(t, newGate("/api/image/x.png"))
	id := stack.submitOK(t, "a bridge")
	stack.waitView(t, id, halfway)

	conn := stack.dial(t, id)
	require.Eventually(t, func() bool { return stack.notifier.Count(id) == 1 }, waitTimeout, tick)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return stack.notifier.Count(id) == 0 }, waitTimeout, tick)
}

func TestStream_ShutdownClosesGoingAway(t *testing.T) {
	t.Parallel()

	stack := newTestStack(t, newGate("/api/image/x.png"))
	id := stack.submitOK(t, "a storm")
	stack.waitView(t, id, halfway)

	conn := stack.dial(t, id)
	var first map[string]interface{}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "processing", first["status"])

	stack.notifier.Shutdown(context.Background(), stack.runner.Status)

	msgs, closeErr := readUntilClose(t, conn)
	for _, msg := range msgs {
		assert.Equal(t, "processing", msg["status"], "final snapshot reflects the live record")
	}
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Equal(t, "Server shutting down", closeErr.Text)
}

func TestStream_RejectedAfterShutdown(t *testing.T) {
	t.Parallel()

	stack := newTestStack(t, newGate("/api/image/x.png"))
	stack.notifier.Shutdown(context.Background(), nil)

	url := "ws" + strings.TrimPrefix(stack.server.URL, "http") + "/api/ws/any"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStream_PlainHTTPRequestIsRefused(t *testing.T) {
	t.Parallel()

	stack := newTestStack(t, newGate("/api/image/x.png"))

	resp, err := http.Get(stack.server.URL + "/api/ws/any")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, stack.notifier.Count("any"))
}

var _ StatusStreamer = (*notify.Bridge)(nil)
var _ SubscriberRegistry = (*notify.Notifier)(nil)
