package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/roomlife/pkg/config"
	"github.com/diagnosis/roomlife/pkg/events"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
	"github.com/diagnosis/roomlife/services/rooms/internal/notify"
	"github.com/diagnosis/roomlife/services/rooms/internal/repository"
)

// ---------- Mocks ----------

type published struct {
	subject string
	data    interface{}
}

type mockPublisher struct {
	sent []published
	err  error
}

func (m *mockPublisher) Publish(_ context.Context, subject string, data interface{}) error {
	m.sent = append(m.sent, published{subject, data})
	return m.err
}

func (m *mockPublisher) Close() error { return nil }

type mockBookings map[string]domain.Booking

func (m mockBookings) Get(id string) (domain.Booking, error) {
	b, ok := m[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return b, nil
}

type mockContacts map[string]repository.Contact

func (m mockContacts) FindByUserID(_ context.Context, userID string) (*repository.Contact, error) {
	c, ok := m[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

type mockMailer struct {
	notices []notify.NoShowNotice
	err     error
}

func (m *mockMailer) SendNoShowNotice(_ context.Context, n notify.NoShowNotice) error {
	m.notices = append(m.notices, n)
	return m.err
}

// ---------- Tests ----------

func TestBusListener_MapsEveryKind(t *testing.T) {
	tests := []struct {
		kind    domain.EventKind
		subject string
	}{
		{domain.EventRoomReserved, events.RoomReserved},
		{domain.EventRoomInUse, events.RoomInUse},
		{domain.EventNoShowDetected, events.RoomNoShow},
		{domain.EventRoomAvailable, events.RoomAvailable},
		{domain.EventBookingExtended, events.BookingExtended},
		{domain.EventBookingCompleted, events.BookingCompleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			pub := &mockPublisher{}
			l := notify.NewBusListener(pub)
			at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

			if err := l.HandleEvent(context.Background(), domain.Event{Kind: tt.kind, RoomID: "R1", BookingID: "b1", OccurredAt: at}); err != nil {
				t.Fatalf("HandleEvent: %v", err)
			}
			if len(pub.sent) != 1 || pub.sent[0].subject != tt.subject {
				t.Fatalf("published %+v, want subject %s", pub.sent, tt.subject)
			}
			ev, ok := pub.sent[0].data.(events.RoomEvent)
			if !ok || ev.Type != string(tt.kind) || ev.RoomID != "R1" || !ev.OccurredAt.Equal(at) {
				t.Errorf("payload = %+v", pub.sent[0].data)
			}
		})
	}
}

func TestBusListener_Errors(t *testing.T) {
	pub := &mockPublisher{err: errors.New("nats down")}
	l := notify.NewBusListener(pub)

	if err := l.HandleEvent(context.Background(), domain.Event{Kind: domain.EventRoomInUse, RoomID: "R1"}); err == nil {
		t.Error("expected publisher error to surface")
	}
	if err := l.HandleEvent(context.Background(), domain.Event{Kind: "Unknown"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNoShowMailer(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	bookings := mockBookings{
		"b1": {ID: "b1", RoomID: "R1", UserID: "u1", StartTime: start, Status: domain.BookingNoShow, DepositForfeited: true},
		"b2": {ID: "b2", RoomID: "R2", UserID: "ghost", StartTime: start, Status: domain.BookingNoShow},
	}
	contacts := mockContacts{"u1": {UserID: "u1", Email: "ada@example.com", Name: "Ada"}}

	t.Run("sends notice", func(t *testing.T) {
		mailer := &mockMailer{}
		m := notify.NewNoShowMailer(bookings, contacts, mailer)

		if err := m.HandleEvent(context.Background(), domain.Event{Kind: domain.EventNoShowDetected, RoomID: "R1", BookingID: "b1"}); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
		if len(mailer.notices) != 1 {
			t.Fatalf("sent %d notices", len(mailer.notices))
		}
		n := mailer.notices[0]
		if n.Email != "ada@example.com" || !n.Forfeited || n.RoomID != "R1" {
			t.Errorf("notice = %+v", n)
		}
	})

	t.Run("ignores other kinds", func(t *testing.T) {
		mailer := &mockMailer{}
		m := notify.NewNoShowMailer(bookings, contacts, mailer)
		_ = m.HandleEvent(context.Background(), domain.Event{Kind: domain.EventRoomInUse, BookingID: "b1"})
		if len(mailer.notices) != 0 {
			t.Error("mailed for a non no-show event")
		}
	})

	t.Run("missing contact", func(t *testing.T) {
		mailer := &mockMailer{}
		m := notify.NewNoShowMailer(bookings, contacts, mailer)
		err := m.HandleEvent(context.Background(), domain.Event{Kind: domain.EventNoShowDetected, BookingID: "b2"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want not found", err)
		}
	})
}

func TestNewMailer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmailConfig
		wantErr string
	}{
		{"dev", config.EmailConfig{Driver: "dev"}, ""},
		{"smtp", config.EmailConfig{Driver: "smtp", SMTPHost: "localhost", SMTPPort: 1025}, ""},
		{"mailersend without key", config.EmailConfig{Driver: "mailersend"}, "API_KEY"},
		{"mailersend", config.EmailConfig{Driver: "mailersend", MailerSendKey: "mlsn.x", From: "a@b.c"}, ""},
		{"unknown", config.EmailConfig{Driver: "pigeon"}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := notify.NewMailer(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil || m == nil {
				t.Fatalf("NewMailer = %v, %v", m, err)
			}
		})
	}
}
