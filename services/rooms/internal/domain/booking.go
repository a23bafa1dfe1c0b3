package domain

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingInUse     BookingStatus = "IN_USE"
	BookingNoShow    BookingStatus = "NO_SHOW"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingConfirmed, BookingInUse, BookingNoShow, BookingCancelled, BookingCompleted:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// Live bookings still occupy their window in the room's calendar.
func (s BookingStatus) Live() bool {
	return s == BookingConfirmed || s == BookingInUse
}

// RoomStatus is the room status a booking in this state implies for the room it holds.
func (s BookingStatus) RoomStatus() RoomStatus {
	switch s {
	case BookingConfirmed:
		return RoomReserved
	case BookingInUse:
		return RoomInUse
	default:
		return RoomAvailable
	}
}

type DepositStatus string

const (
	DepositApproved DepositStatus = "APPROVED"
	// DepositPending was accepted by the gateway subject to manual review.
	DepositPending DepositStatus = "PENDING"
	DepositDenied  DepositStatus = "DENIED"
)

type Deposit struct {
	Ref    string        `json:"ref"`
	Amount int64         `json:"amount"`
	Status DepositStatus `json:"status"`
	// Settled is set once the deposit was finalized, forfeited or refunded.
	Settled bool `json:"settled"`
}

type Booking struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"room_id"`
	UserID    string        `json:"user_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Status    BookingStatus `json:"status"`

	CheckedIn        bool `json:"checked_in"`
	DepositForfeited bool `json:"deposit_forfeited"`
	// ForfeitNotified flips once, when the no-show side effects were applied.
	ForfeitNotified bool `json:"forfeit_notified"`

	Deposits    []Deposit  `json:"deposits"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsOwner checks if the given user owns this booking
func (b *Booking) IsOwner(userID string) bool {
	return userID != "" && b.UserID == userID
}

// Covers reports whether at falls inside [StartTime, EndTime).
func (b *Booking) Covers(at time.Time) bool {
	return !at.Before(b.StartTime) && at.Before(b.EndTime)
}

// Overlaps reports whether [start, end) intersects the booking window.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.EndTime) && b.StartTime.Before(end)
}

// CheckInOpensAt is the instant after which check-in is accepted.
func (b *Booking) CheckInOpensAt(grace time.Duration) time.Time {
	return b.StartTime.Add(-grace)
}

// NoShowDeadline is start plus the no-show window, capped at the end of the booking.
func (b *Booking) NoShowDeadline(window time.Duration) time.Time {
	deadline := b.StartTime.Add(window)
	if b.EndTime.Before(deadline) {
		return b.EndTime
	}
	return deadline
}

// UnsettledDeposits returns the refs still awaiting finalize, forfeit or refund.
func (b *Booking) UnsettledDeposits() []string {
	var refs []string
	for _, d := range b.Deposits {
		if !d.Settled && d.Ref != "" {
			refs = append(refs, d.Ref)
		}
	}
	return refs
}

// Clone returns a copy that shares no slices or pointers with b.
func (b Booking) Clone() Booking {
	out := b
	if b.Deposits != nil {
		out.Deposits = append([]Deposit(nil), b.Deposits...)
	}
	if b.CheckedInAt != nil {
		t := *b.CheckedInAt
		out.CheckedInAt = &t
	}
	return out
}

type BookingFilter struct {
	RoomID string
	UserID string
	Status *BookingStatus
	Limit  int
	Offset int
}

// Match reports whether b passes every set field of the filter.
func (f BookingFilter) Match(b *Booking) bool {
	if f.RoomID != "" && b.RoomID != f.RoomID {
		return false
	}
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.Status != nil && b.Status != *f.Status {
		return false
	}
	return true
}
