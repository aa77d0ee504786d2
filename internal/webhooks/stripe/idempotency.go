package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ClaimStore is the Redis surface the guard needs.
type ClaimStore interface {
	ClaimOnce(ctx context.Context, scope, id string, ttl time.Duration) (bool, error)
	ReleaseClaim(ctx context.Context, scope, id string) error
}

// IdempotencyGuard absorbs exact redeliveries of a Stripe event before any
// database work. It is a fast path only; admission in the ledger transaction
// is what makes replays safe.
type IdempotencyGuard struct {
	store ClaimStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store ClaimStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("claim store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark claims eventID and reports whether it had already been seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := g.store.ClaimOnce(ctx, g.scope, eventID, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim stripe event: %w", err)
	}
	return !claimed, nil
}

// Release drops the claim so Stripe's retry of a failed delivery is handled.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.ReleaseClaim(ctx, g.scope, eventID)
}
