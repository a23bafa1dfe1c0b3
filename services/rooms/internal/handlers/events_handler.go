package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
	"github.com/diagnosis/roomlife/services/rooms/internal/hub"
	"github.com/diagnosis/roomlife/services/rooms/internal/response"
)

var errSlowConsumer = errors.New("event stream client is not keeping up")

const heartbeatInterval = 15 * time.Second

// StreamEvents pushes hub events to the client as server-sent events. ?room_id= narrows the
// stream to one room.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}
	roomID := r.URL.Query().Get("room_id")

	queue := make(chan domain.Event, 64)
	sub, err := h.stream.Subscribe("sse:"+claims.UserID(), hub.ListenerFunc(func(_ context.Context, ev domain.Event) error {
		if roomID != "" && ev.RoomID != roomID {
			return nil
		}
		select {
		case queue <- ev:
			return nil
		default:
			return errSlowConsumer
		}
	}))
	if err != nil {
		response.WriteError(w, http.StatusServiceUnavailable, "Event stream unavailable", response.CodeInternalError)
		return
	}
	defer h.stream.Unsubscribe(sub)

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.WarnContext(r.Context(), "Event stream flush unsupported", "error", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-queue:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.ErrorContext(r.Context(), "Failed to encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
