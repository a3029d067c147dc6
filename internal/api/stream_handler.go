package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phrazzld/lumiere-api/internal/api/shared"
	"github.com/phrazzld/lumiere-api/internal/notify"
)

const defaultWriteTimeout = 10 * time.Second

// StatusStreamer pushes status snapshots of one task to one subscriber.
// *notify.Bridge satisfies it.
type StatusStreamer interface {
	Run(ctx context.Context, id string, sub notify.Subscriber) error
}

// SubscriberRegistry admits subscribers. *notify.Notifier satisfies it.
type SubscriberRegistry interface {
	Attach(ctx context.Context, id string, sub notify.Subscriber) error
}

// StreamHandler serves the WebSocket status stream.
type StreamHandler struct {
	registry     SubscriberRegistry
	streamer     StatusStreamer
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewStreamHandler creates a StreamHandler. Cross-origin upgrades are
// accepted; the stream exposes nothing beyond GET /api/status.
func NewStreamHandler(
	registry SubscriberRegistry,
	streamer StatusStreamer,
	writeTimeout time.Duration,
	logger *slog.Logger,
) *StreamHandler {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &StreamHandler{
		registry: registry,
		streamer: streamer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "stream_handler"),
	}
}

// Stream handles GET /api/ws/{task_id}.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := getPathParam(r, "task_id")
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "task_id is required")
		return
	}

	sub := newWSSubscriber(w, r, &h.upgrader, h.writeTimeout)
	if err := h.registry.Attach(r.Context(), id, sub); err != nil {
		if sub.upgraded() {
			h.logger.Debug("subscriber rejected after upgrade", "task_id", id, "error", err)
			return
		}
		if errors.Is(err, notify.ErrNotifierClosed) {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
			return
		}
		// The upgrader has already answered the request.
		h.logger.Debug("websocket upgrade failed", "task_id", id, "error", err)
		return
	}

	// Hijacked connections are not tied to r.Context, so the read pump is
	// what notices a client going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go sub.readPump(cancel)

	if err := h.streamer.Run(ctx, id, sub); err != nil {
		h.logger.Warn("status stream failed", "task_id", id, "error", err)
	}
	_ = sub.Close(notify.CloseNormal, "")
}
