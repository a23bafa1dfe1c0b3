package payments

import (
	"context"
	"errors"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"github.com/diagnosis/roomlife/pkg/config"
	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

// OmiseGateway holds deposits as uncaptured charges against a stored customer card.
type OmiseGateway struct {
	client   *omise.Client
	currency string
	customer string
}

func NewOmiseGateway(cfg config.PaymentsConfig, currency string) (*OmiseGateway, error) {
	if cfg.OmiseCustomer == "" {
		return nil, errors.New("PAYMENTS_OMISE_CUSTOMER is required for the omise provider")
	}
	c, err := omise.NewClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if err != nil {
		return nil, err
	}
	return &OmiseGateway{client: c, currency: currency, customer: cfg.OmiseCustomer}, nil
}

func (g *OmiseGateway) Authorize(ctx context.Context, userID string, amount int64) (Authorization, error) {
	ch := &omise.Charge{}
	req := &operations.CreateCharge{
		Customer:    g.customer,
		Amount:      amount,
		Currency:    g.currency,
		DontCapture: true,
		Description: "Room booking deposit",
		Metadata:    map[string]any{"user_id": userID},
	}
	if err := g.do(ctx, func() error { return g.client.Do(ch, req) }); err != nil {
		return Authorization{}, unavailable("omise authorize", err)
	}

	switch {
	case ch.Status == omise.ChargeFailed:
		var code string
		if ch.FailureCode != nil {
			code = *ch.FailureCode
		}
		logger.Warn("omise deposit declined", "user_id", userID, "charge_id", ch.ID, "code", code)
		return Authorization{Status: domain.DepositDenied, Ref: ch.ID}, nil
	case ch.Authorized:
		return Authorization{Status: domain.DepositApproved, Ref: ch.ID}, nil
	default:
		return Authorization{Status: domain.DepositPending, Ref: ch.ID}, nil
	}
}

func (g *OmiseGateway) Finalize(ctx context.Context, ref string) error {
	req := &operations.CaptureCharge{ChargeID: ref}
	if err := g.do(ctx, func() error { return g.client.Do(&omise.Charge{}, req) }); err != nil {
		return unavailable("omise finalize", err)
	}
	return nil
}

func (g *OmiseGateway) Forfeit(ctx context.Context, ref string) error {
	req := &operations.CaptureCharge{ChargeID: ref}
	if err := g.do(ctx, func() error { return g.client.Do(&omise.Charge{}, req) }); err != nil {
		return unavailable("omise forfeit", err)
	}
	return nil
}

func (g *OmiseGateway) Refund(ctx context.Context, ref string) error {
	req := &operations.ReverseCharge{ChargeID: ref}
	if err := g.do(ctx, func() error { return g.client.Do(&omise.Charge{}, req) }); err != nil {
		return unavailable("omise refund", err)
	}
	return nil
}

// do runs the blocking client call but gives up waiting when ctx ends.
func (g *OmiseGateway) do(ctx context.Context, call func() error) error {
	errc := make(chan error, 1)
	go func() { errc <- call() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
