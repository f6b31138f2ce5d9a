package mobilemoneywebhook

import (
	"context"
	"errors"
	"time"
)

// GuardScope namespaces provider event ids in Redis.
const GuardScope = "mobile-money-webhook"

type guardStore interface {
	ClaimEvent(ctx context.Context, source, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, source, eventID string) error
}

// EventGuard marks provider events as seen so redeliveries are acknowledged without work.
type EventGuard struct {
	store guardStore
	ttl   time.Duration
	scope string
}

func NewEventGuard(store guardStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("guard store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &EventGuard{store: store, ttl: ttl, scope: GuardScope}, nil
}

// CheckAndMark reports whether the event was already seen, marking it otherwise.
func (g *EventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := g.store.ClaimEvent(ctx, g.scope, eventID, g.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete releases the mark so a provider retry is processed again.
func (g *EventGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.ReleaseEvent(ctx, g.scope, eventID)
}
