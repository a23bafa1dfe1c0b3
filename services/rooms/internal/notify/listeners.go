// Package notify holds hub listeners that carry lifecycle events out of the process.
package notify

import (
	"context"
	"fmt"

	"github.com/diagnosis/roomlife/pkg/events"
	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
	"github.com/diagnosis/roomlife/services/rooms/internal/repository"
)

var subjects = map[domain.EventKind]string{
	domain.EventRoomReserved:     events.RoomReserved,
	domain.EventRoomInUse:        events.RoomInUse,
	domain.EventNoShowDetected:   events.RoomNoShow,
	domain.EventRoomAvailable:    events.RoomAvailable,
	domain.EventBookingExtended:  events.BookingExtended,
	domain.EventBookingCompleted: events.BookingCompleted,
}

// Subject returns the bus subject an event kind is published on.
func Subject(kind domain.EventKind) (string, bool) {
	s, ok := subjects[kind]
	return s, ok
}

// BusListener republishes hub events on the message bus.
type BusListener struct {
	pub events.Publisher
}

func NewBusListener(pub events.Publisher) *BusListener {
	return &BusListener{pub: pub}
}

func (l *BusListener) HandleEvent(ctx context.Context, ev domain.Event) error {
	subject, ok := Subject(ev.Kind)
	if !ok {
		return fmt.Errorf("no subject for event kind %q", ev.Kind)
	}
	return l.pub.Publish(ctx, subject, events.RoomEvent{
		Type:       string(ev.Kind),
		RoomID:     ev.RoomID,
		BookingID:  ev.BookingID,
		OccurredAt: ev.OccurredAt,
	})
}

type bookingGetter interface {
	Get(id string) (domain.Booking, error)
}

// NoShowMailer emails the holder of a booking once it was marked as a no-show.
type NoShowMailer struct {
	bookings bookingGetter
	contacts repository.ContactRepository
	mailer   Mailer
}

func NewNoShowMailer(bookings bookingGetter, contacts repository.ContactRepository, mailer Mailer) *NoShowMailer {
	return &NoShowMailer{bookings: bookings, contacts: contacts, mailer: mailer}
}

func (m *NoShowMailer) HandleEvent(ctx context.Context, ev domain.Event) error {
	if ev.Kind != domain.EventNoShowDetected {
		return nil
	}
	b, err := m.bookings.Get(ev.BookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}
	contact, err := m.contacts.FindByUserID(ctx, b.UserID)
	if err != nil {
		return fmt.Errorf("find contact for %s: %w", b.UserID, err)
	}

	notice := NoShowNotice{
		Email:     contact.Email,
		Name:      contact.Name,
		BookingID: b.ID,
		RoomID:    b.RoomID,
		StartTime: b.StartTime,
		Forfeited: b.DepositForfeited,
	}
	if err := m.mailer.SendNoShowNotice(ctx, notice); err != nil {
		return fmt.Errorf("send no-show notice: %w", err)
	}
	logger.InfoContext(ctx, "no-show notice sent", "booking_id", b.ID, "user_id", b.UserID)
	return nil
}
