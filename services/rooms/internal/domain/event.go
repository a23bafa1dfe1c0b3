package domain

import "time"

type EventKind string

const (
	EventRoomReserved     EventKind = "RoomReserved"
	EventRoomInUse        EventKind = "RoomInUse"
	EventNoShowDetected   EventKind = "NoShowDetected"
	EventRoomAvailable    EventKind = "RoomAvailable"
	EventBookingExtended  EventKind = "BookingExtended"
	EventBookingCompleted EventKind = "BookingCompleted"
)

// Event is a room or booking state change. BookingID is empty for RoomAvailable.
type Event struct {
	Kind       EventKind `json:"kind"`
	RoomID     string    `json:"room_id"`
	BookingID  string    `json:"booking_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
