package domain

import "time"

type RoomStatus string

const (
	RoomAvailable RoomStatus = "AVAILABLE"
	RoomReserved  RoomStatus = "RESERVED"
	RoomInUse     RoomStatus = "IN_USE"
	RoomNoShow    RoomStatus = "NO_SHOW"
)

func ParseRoomStatus(s string) (RoomStatus, bool) {
	switch RoomStatus(s) {
	case RoomAvailable, RoomReserved, RoomInUse, RoomNoShow:
		return RoomStatus(s), true
	default:
		return "", false
	}
}

// HoldsBooking reports whether a room in this status must record a current booking.
func (s RoomStatus) HoldsBooking() bool {
	return s == RoomReserved || s == RoomInUse
}

type Room struct {
	ID               string     `json:"id"`
	Status           RoomStatus `json:"status"`
	CurrentBookingID string     `json:"current_booking_id,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Consistent checks the room invariant: a current booking is recorded iff the status holds one.
func (r Room) Consistent() bool {
	return r.Status.HoldsBooking() == (r.CurrentBookingID != "")
}
