package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; the variants below wrap exactly one or two
// of these so the HTTP layer and tests can stay coarse or go specific.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrRoomOccupied       = errors.New("room occupied")
	ErrDepositDenied      = errors.New("deposit denied")
	ErrTooEarly           = errors.New("too early")
	ErrTooLate            = errors.New("too late")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

var (
	ErrRoomNotFound        = fmt.Errorf("%w: room", ErrNotFound)
	ErrBookingNotFound     = fmt.Errorf("%w: booking", ErrNotFound)
	ErrRoomAlreadyOccupied = fmt.Errorf("%w: room already has a current booking", ErrRoomOccupied)
	ErrRoomExists          = fmt.Errorf("%w: room already exists", ErrInvalidState)
	ErrBookingExists       = fmt.Errorf("%w: booking already exists", ErrInvalidState)

	ErrAlreadyCheckedIn = fmt.Errorf("%w: booking already checked in", ErrInvalidState)
	ErrAlreadyCancelled = fmt.Errorf("%w: booking already cancelled", ErrInvalidState)
	ErrAlreadyCompleted = fmt.Errorf("%w: booking already completed", ErrInvalidState)
	ErrNotCheckedIn     = fmt.Errorf("%w: booking is not checked in", ErrInvalidState)
	// ErrAlreadyNoShow is what the loser of the check-in/timeout race sees.
	ErrAlreadyNoShow = fmt.Errorf("%w: %w: booking was marked no-show", ErrTooLate, ErrInvalidState)

	ErrInvalidWindow    = fmt.Errorf("%w: end must be after start", ErrInvalidState)
	ErrWindowInPast     = fmt.Errorf("%w: booking window already ended", ErrInvalidState)
	ErrInvalidExtension = fmt.Errorf("%w: extension must be a positive multiple of the booking unit", ErrInvalidState)
	ErrBookingEnded     = fmt.Errorf("%w: %w: booking window has closed", ErrTooLate, ErrInvalidState)
	ErrCheckInClosed    = fmt.Errorf("%w: %w: no-show deadline already passed", ErrTooLate, ErrInvalidState)
	ErrIllegalStatus    = fmt.Errorf("%w: illegal room status change", ErrInvalidState)
)

// StatusError returns the explicit error for an operation that needs a CONFIRMED booking but
// found it in status s.
func StatusError(s BookingStatus) error {
	switch s {
	case BookingInUse:
		return ErrAlreadyCheckedIn
	case BookingNoShow:
		return ErrAlreadyNoShow
	case BookingCancelled:
		return ErrAlreadyCancelled
	case BookingCompleted:
		return ErrAlreadyCompleted
	default:
		return fmt.Errorf("%w: booking is %s", ErrInvalidState, s)
	}
}
