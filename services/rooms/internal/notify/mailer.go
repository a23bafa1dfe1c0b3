package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/roomlife/pkg/config"
)

// NoShowNotice is what a booking holder is told after their deposit was kept.
type NoShowNotice struct {
	Email     string
	Name      string
	BookingID string
	RoomID    string
	StartTime time.Time
	Forfeited bool
}

func (n NoShowNotice) subject() string {
	return fmt.Sprintf("Your booking for room %s was marked as a no-show", n.RoomID)
}

func (n NoShowNotice) text() string {
	outcome := "Your deposit has been kept."
	if !n.Forfeited {
		outcome = "Your deposit will be settled separately."
	}
	return fmt.Sprintf("Hi %s,\n\nYou did not check in to room %s for the booking starting %s (ref %s), so the room was released.\n%s\n",
		n.Name, n.RoomID, n.StartTime.Format(time.RFC1123), n.BookingID, outcome)
}

func (n NoShowNotice) html() string {
	outcome := "Your deposit has been kept."
	if !n.Forfeited {
		outcome = "Your deposit will be settled separately."
	}
	return fmt.Sprintf(`
		<h2>Booking released</h2>
		<p>Hi %s,</p>
		<p>You did not check in to room <strong>%s</strong> for the booking starting %s, so the room was released.</p>
		<p>%s</p>
		<p>Reference: %s</p>
	`, n.Name, n.RoomID, n.StartTime.Format(time.RFC1123), outcome, n.BookingID)
}

type Mailer interface {
	SendNoShowNotice(ctx context.Context, n NoShowNotice) error
}

// NewMailer builds the mailer selected by EMAIL_DRIVER.
func NewMailer(cfg config.EmailConfig) (Mailer, error) {
	switch cfg.Driver {
	case "", "dev":
		return NewDevMailer(), nil
	case "smtp":
		return NewSMTPMailer(cfg), nil
	case "mailersend":
		if cfg.MailerSendKey == "" {
			return nil, fmt.Errorf("EMAIL_MAILERSEND_API_KEY is required for the mailersend driver")
		}
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.From), nil
	default:
		return nil, fmt.Errorf("unknown email driver %q", cfg.Driver)
	}
}
