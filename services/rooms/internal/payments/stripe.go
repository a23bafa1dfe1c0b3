package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/diagnosis/roomlife/pkg/config"
	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

// StripeGateway holds deposits as manual-capture PaymentIntents. Finalize and Forfeit capture
// the hold, Refund cancels it.
type StripeGateway struct {
	api           *client.API
	currency      string
	customer      string
	paymentMethod string
}

func NewStripeGateway(cfg config.PaymentsConfig, currency string) (*StripeGateway, error) {
	if cfg.StripeSecretKey == "" {
		return nil, errors.New("PAYMENTS_STRIPE_SECRET_KEY is required for the stripe provider")
	}
	api := &client.API{}
	api.Init(cfg.StripeSecretKey, nil)
	return &StripeGateway{
		api:           api,
		currency:      currency,
		customer:      cfg.StripeCustomer,
		paymentMethod: cfg.StripePaymentMethod,
	}, nil
}

func (g *StripeGateway) Authorize(ctx context.Context, userID string, amount int64) (Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(g.currency),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:            stripe.Bool(true),
		PaymentMethod:      stripe.String(g.paymentMethod),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Description:        stripe.String("Room booking deposit"),
	}
	if g.customer != "" {
		params.Customer = stripe.String(g.customer)
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			logger.Warn("stripe deposit declined", "user_id", userID, "code", serr.Code)
			return Authorization{Status: domain.DepositDenied}, nil
		}
		return Authorization{}, unavailable("stripe authorize", err)
	}

	return Authorization{Status: stripeStatus(pi.Status), Ref: pi.ID}, nil
}

func (g *StripeGateway) Finalize(ctx context.Context, ref string) error {
	return g.capture(ctx, ref, "checked_in")
}

func (g *StripeGateway) Forfeit(ctx context.Context, ref string) error {
	return g.capture(ctx, ref, "no_show")
}

func (g *StripeGateway) Refund(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(ref, params); err != nil {
		return unavailable("stripe refund", err)
	}
	return nil
}

func (g *StripeGateway) capture(ctx context.Context, ref, outcome string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.AddMetadata("outcome", outcome)
	if _, err := g.api.PaymentIntents.Capture(ref, params); err != nil {
		return unavailable(fmt.Sprintf("stripe capture (%s)", outcome), err)
	}
	return nil
}

func stripeStatus(s stripe.PaymentIntentStatus) domain.DepositStatus {
	switch s {
	case stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusSucceeded:
		return domain.DepositApproved
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction:
		return domain.DepositPending
	default:
		return domain.DepositDenied
	}
}
