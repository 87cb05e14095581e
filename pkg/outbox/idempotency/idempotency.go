// Package idempotency dedupes at-least-once deliveries per consumer.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultClaimTTL bounds how long an unfinished claim blocks redelivery.
const DefaultClaimTTL = 5 * time.Minute

const (
	markerProcessing = "processing"
	markerDone       = "done"
)

// Store is the subset of the redis client the manager writes through.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager claims an event for a consumer before it is handled and marks it
// done afterwards. Keys look like sc:idempotency:evt:processed:<consumer>:<id>.
// A claim that is never completed expires after claimTTL, so a consumer
// that dies mid-apply does not swallow the event; a completed mark lasts ttl.
type Manager struct {
	store    Store
	ttl      time.Duration
	claimTTL time.Duration
	now      func() time.Time
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	claimTTL := DefaultClaimTTL
	if ttl > 0 && ttl < claimTTL {
		claimTTL = ttl
	}
	return &Manager{store: store, ttl: ttl, claimTTL: claimTTL, now: time.Now}, nil
}

// Claim reports false when the event is already claimed or done.
func (m *Manager) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	won, err := m.store.SetNX(ctx, key, m.marker(markerProcessing), m.claimTTL)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return won, nil
}

// Complete turns a claim into a done mark that lasts the full ttl.
func (m *Manager) Complete(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, key, m.marker(markerDone), m.ttl); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

// Release drops a claim so a redelivery can try again.
func (m *Manager) Release(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) marker(state string) string {
	return state + ":" + m.now().UTC().Format(time.RFC3339)
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	switch {
	case strings.TrimSpace(consumer) == "":
		return "", errors.New("consumer name is required")
	case strings.TrimSpace(eventID) == "":
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}
