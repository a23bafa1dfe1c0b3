package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/roomlife/services/rooms/internal/response"
)

func (h *Handlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.lifecycle.ListRooms(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.lifecycle.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// GetRoomStatus reports the derived status at ?at= (RFC 3339), defaulting to now.
func (h *Handlers) GetRoomStatus(w http.ResponseWriter, r *http.Request) {
	at := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, "Invalid at parameter, expected RFC 3339")
			return
		}
		at = parsed
	}

	view, err := h.lifecycle.RoomStatusAt(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type addRoomRequest struct {
	ID string `json:"id"`
}

func (h *Handlers) AddRoom(w http.ResponseWriter, r *http.Request) {
	var req addRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		response.BadRequest(w, "Room id is required")
		return
	}

	room, err := h.lifecycle.AddRoom(r.Context(), req.ID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}
