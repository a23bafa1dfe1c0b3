package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
	"github.com/diagnosis/roomlife/services/rooms/internal/response"
	"github.com/diagnosis/roomlife/services/rooms/internal/service"
)

type createBookingRequest struct {
	RoomID    string    `json:"room_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type extendBookingRequest struct {
	ExtraMinutes int `json:"extra_minutes"`
}

// CreateBooking books a room for the authenticated user and holds the deposit.
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	if req.RoomID == "" || req.StartTime.IsZero() || req.EndTime.IsZero() {
		response.BadRequest(w, "room_id, start_time and end_time are required")
		return
	}

	booking, err := h.lifecycle.CreateBooking(r.Context(), service.CreateBookingRequest{
		RoomID:    req.RoomID,
		UserID:    claims.UserID(),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handlers) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	filter.UserID = claims.UserID()

	bookings, err := h.lifecycle.ListBookings(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// GetBooking hides bookings of other users behind a 404 unless the caller is an admin.
func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	booking, err := h.lifecycle.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !claims.IsAdmin() && !booking.IsOwner(claims.UserID()) {
		response.NotFound(w, "Booking not found")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.CheckIn)
}

func (h *Handlers) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.CheckOut)
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.CancelBooking)
}

func (h *Handlers) ExtendBooking(w http.ResponseWriter, r *http.Request) {
	var req extendBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	h.transition(w, r, func(ctx context.Context, bookingID, userID string) (*domain.Booking, error) {
		return h.lifecycle.ExtendBooking(ctx, bookingID, userID, req.ExtraMinutes)
	})
}

// transition runs a caller-owned lifecycle operation on the booking named in the path.
func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, bookingID, userID string) (*domain.Booking, error)) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	booking, err := op(r.Context(), chi.URLParam(r, "id"), claims.UserID())
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func parseFilter(w http.ResponseWriter, r *http.Request) (domain.BookingFilter, bool) {
	limit, offset := parsePagination(r)
	filter := domain.BookingFilter{
		RoomID: r.URL.Query().Get("room_id"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := domain.ParseBookingStatus(raw)
		if !ok {
			response.BadRequest(w, "Invalid status parameter")
			return domain.BookingFilter{}, false
		}
		filter.Status = &st
	}
	return filter, true
}
