package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

type holdState string

const (
	holdAuthorized holdState = "authorized"
	holdCaptured   holdState = "captured"
	holdForfeited  holdState = "forfeited"
	holdRefunded   holdState = "refunded"
)

// DevGateway approves every deposit and keeps the holds in memory.
type DevGateway struct {
	mu    sync.Mutex
	holds map[string]holdState
}

func NewDevGateway() *DevGateway {
	return &DevGateway{holds: make(map[string]holdState)}
}

func (g *DevGateway) Authorize(_ context.Context, userID string, amount int64) (Authorization, error) {
	ref := "dev_" + uuid.NewString()
	g.mu.Lock()
	g.holds[ref] = holdAuthorized
	g.mu.Unlock()

	logger.Info("DEV deposit authorized", "ref", ref, "user_id", userID, "amount", amount)
	return Authorization{Status: domain.DepositApproved, Ref: ref}, nil
}

func (g *DevGateway) Finalize(_ context.Context, ref string) error {
	return g.settle(ref, holdCaptured)
}

func (g *DevGateway) Forfeit(_ context.Context, ref string) error {
	return g.settle(ref, holdForfeited)
}

func (g *DevGateway) Refund(_ context.Context, ref string) error {
	return g.settle(ref, holdRefunded)
}

// State returns the hold state for ref, or "" if it was never authorized here.
func (g *DevGateway) State(ref string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return string(g.holds[ref])
}

func (g *DevGateway) settle(ref string, to holdState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, ok := g.holds[ref]
	if !ok {
		return fmt.Errorf("dev gateway: unknown deposit %q", ref)
	}
	if cur != holdAuthorized {
		return fmt.Errorf("dev gateway: deposit %q already %s", ref, cur)
	}
	g.holds[ref] = to
	logger.Info("DEV deposit settled", "ref", ref, "outcome", to)
	return nil
}
