package notify

import (
	"context"

	"github.com/diagnosis/roomlife/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendNoShowNotice(ctx context.Context, n NoShowNotice) error {
	logger.InfoContext(ctx, "[DEV MAIL] No-show notice",
		"to", n.Email,
		"name", n.Name,
		"subject", n.subject(),
		"booking_id", n.BookingID,
		"room_id", n.RoomID,
		"forfeited", n.Forfeited,
	)
	return nil
}
