package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

// StalePendingJobParams configure the pending reservation reminder.
type StalePendingJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Orders  pendingOrderReader
	Outbox  outbox.Emitter
	Events  nudgeLedger
	Metrics *metrics.MarketplaceMetrics
	After   time.Duration
}

type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

type nudgeLedger interface {
	Exists(ctx context.Context, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) (bool, error)
}

// NewStalePendingJob builds the job that reminds both parties about
// reservations stuck in pending. It never cancels: a pending order keeps
// the listing held until a party cancels or payment lands.
func NewStalePendingJob(params StalePendingJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("pending orders reader required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Events == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.After <= 0:
		return nil, fmt.Errorf("stale threshold must be positive")
	}
	return &stalePendingJob{
		logg:    params.Logger,
		db:      params.DB,
		orders:  params.Orders,
		outbox:  params.Outbox,
		events:  params.Events,
		metrics: params.Metrics,
		after:   params.After,
		now:     time.Now,
	}, nil
}

type stalePendingJob struct {
	logg    *logger.Logger
	db      txRunner
	orders  pendingOrderReader
	outbox  outbox.Emitter
	events  nudgeLedger
	metrics *metrics.MarketplaceMetrics
	after   time.Duration
	now     func() time.Time
}

func (j *stalePendingJob) Name() string { return "stale-pending-orders" }

func (j *stalePendingJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	stale, err := j.orders.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}
	j.metrics.SetStalePending(len(stale))

	var errs error
	nudged := 0
	for i := range stale {
		sent, err := j.nudge(ctx, &stale[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("nudge %s: %w", stale[i].ID, err))
			continue
		}
		if sent {
			nudged++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stale":  len(stale),
		"nudged": nudged,
	}), "orders.stale_pending")
	return errs
}

func (j *stalePendingJob) nudge(ctx context.Context, order *models.Order) (bool, error) {
	seen, err := j.events.Exists(ctx, enums.EventOrderPendingNudge, enums.AggregateOrder, order.ID)
	if err != nil || seen {
		return false, err
	}
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPendingNudge,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    j.now().UTC(),
			Data: payloads.OrderPendingNudgeEvent{
				OrderID:      order.ID,
				ListingID:    order.ListingID,
				BuyerID:      order.BuyerID,
				SellerID:     order.SellerID,
				PendingSince: order.CreatedAt,
			},
		})
	})
	return err == nil, err
}
