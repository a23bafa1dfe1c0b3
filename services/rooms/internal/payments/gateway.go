// Package payments holds deposit gateways. Every gateway authorizes a hold at booking time and
// later captures it (check-in or no-show) or releases it (cancellation).
package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/diagnosis/roomlife/pkg/config"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

type Authorization struct {
	Status domain.DepositStatus
	Ref    string
}

// Gateway is the deposit collaborator. Transport failures come back wrapping
// domain.ErrGatewayUnavailable; a declined card is an Authorization with status DENIED.
type Gateway interface {
	Authorize(ctx context.Context, userID string, amount int64) (Authorization, error)
	Finalize(ctx context.Context, ref string) error
	Forfeit(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string) error
}

// New builds the gateway selected by PAYMENTS_PROVIDER.
func New(cfg config.PaymentsConfig, currency string) (Gateway, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "dev":
		return NewDevGateway(), nil
	case "stripe":
		return NewStripeGateway(cfg, currency)
	case "omise":
		return NewOmiseGateway(cfg, currency)
	default:
		return nil, fmt.Errorf("unknown payments provider %q", cfg.Provider)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrGatewayUnavailable, err)
}
