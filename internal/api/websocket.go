package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phrazzld/lumiere-api/internal/notify"
)

var errNotUpgraded = errors.New("websocket connection not established")

// wsSubscriber adapts one WebSocket connection to notify.Subscriber.
// Writes are serialized; gorilla allows a single concurrent writer.
type wsSubscriber struct {
	w            http.ResponseWriter
	r            *http.Request
	upgrader     *websocket.Upgrader
	writeTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var _ notify.Subscriber = (*wsSubscriber)(nil)

func newWSSubscriber(
	w http.ResponseWriter,
	r *http.Request,
	upgrader *websocket.Upgrader,
	writeTimeout time.Duration,
) *wsSubscriber {
	return &wsSubscriber{w: w, r: r, upgrader: upgrader, writeTimeout: writeTimeout}
}

// Accept upgrades the HTTP request. On failure the upgrader has already
// written an HTTP error response.
func (s *wsSubscriber) Accept(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	conn, err := s.upgrader.Upgrade(s.w, s.r, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *wsSubscriber) upgraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *wsSubscriber) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.closed {
		return errNotUpgraded
	}
	if err := s.conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a close frame and releases the connection. Only the first call
// has any effect.
func (s *wsSubscriber) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.closed {
		return nil
	}
	s.closed = true

	msg := websocket.FormatCloseMessage(code, reason)
	writeErr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
	closeErr := s.conn.Close()
	if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
		return writeErr
	}
	return closeErr
}

// readPump discards client messages until the connection fails, then calls
// onGone. It must be started only after Accept succeeded.
func (s *wsSubscriber) readPump(onGone func()) {
	defer onGone()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *wsSubscriber) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
