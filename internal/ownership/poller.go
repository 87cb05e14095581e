package ownership

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

type resolver interface {
	Resolve(ctx context.Context, orderID uuid.UUID, callerID string) (*Resolution, error)
}

// Poller repeats Resolve at a fixed pace until the copy appears or the
// attempt budget runs out. Running out is not an error; the last pending
// resolution is returned.
type Poller struct {
	resolver resolver
	interval time.Duration
	attempts int
	logg     *logger.Logger
}

func NewPoller(r resolver, interval time.Duration, attempts int, logg *logger.Logger) (*Poller, error) {
	if r == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if attempts <= 0 {
		attempts = 1
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Poller{resolver: r, interval: interval, attempts: attempts, logg: logg}, nil
}

// Wait polls for the buyer copy. Errors from Resolve end the wait immediately.
func (p *Poller) Wait(ctx context.Context, orderID uuid.UUID, callerID string) (*Resolution, error) {
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	var last *Resolution
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return last, err
		}
		res, err := p.resolver.Resolve(ctx, orderID, callerID)
		if err != nil {
			return nil, err
		}
		if res.Ready() {
			return res, nil
		}
		last = res
	}
	p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"attempts": p.attempts,
	}), "ownership.copy_delayed")
	return last, nil
}

// RetryAfter is the pause a client should take between polls.
func (p *Poller) RetryAfter() time.Duration {
	return p.interval
}
