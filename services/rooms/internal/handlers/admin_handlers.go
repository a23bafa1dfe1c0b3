package handlers

import (
	"net/http"

	"github.com/diagnosis/roomlife/services/rooms/internal/response"
)

// ListAllBookings lists bookings across users, filtered by room_id, user_id and status.
func (h *Handlers) ListAllBookings(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	filter.UserID = r.URL.Query().Get("user_id")

	bookings, err := h.lifecycle.ListBookings(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}
