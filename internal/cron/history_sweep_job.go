package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/stadiumcard/stadiumcard-backend/internal/ownership"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// HistorySweepJobParams configure the background provenance reconcile.
type HistorySweepJobParams struct {
	Logger     *logger.Logger
	Orders     settledOrderReader
	Resolver   copyResolver
	Reconciler historyReconciler
	Window     time.Duration
}

type settledOrderReader interface {
	FindSettledSince(ctx context.Context, since time.Time) ([]models.Order, error)
}

type copyResolver interface {
	Resolve(ctx context.Context, orderID uuid.UUID, callerID string) (*ownership.Resolution, error)
}

type historyReconciler interface {
	Reconcile(ctx context.Context, listingID uuid.UUID, order *models.Order) (*models.Listing, int, error)
}

// NewHistorySweepJob builds the job that folds order snapshots into buyer
// copies ahead of the first read.
func NewHistorySweepJob(params HistorySweepJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Orders == nil:
		return nil, fmt.Errorf("settled orders reader required")
	case params.Resolver == nil:
		return nil, fmt.Errorf("copy resolver required")
	case params.Reconciler == nil:
		return nil, fmt.Errorf("history reconciler required")
	case params.Window <= 0:
		return nil, fmt.Errorf("sweep window must be positive")
	}
	return &historySweepJob{
		logg:       params.Logger,
		orders:     params.Orders,
		resolver:   params.Resolver,
		reconciler: params.Reconciler,
		window:     params.Window,
		now:        time.Now,
	}, nil
}

type historySweepJob struct {
	logg       *logger.Logger
	orders     settledOrderReader
	resolver   copyResolver
	reconciler historyReconciler
	window     time.Duration
	now        func() time.Time
}

func (j *historySweepJob) Name() string { return "history-sweep" }

func (j *historySweepJob) Run(ctx context.Context) error {
	settled, err := j.orders.FindSettledSince(ctx, j.now().UTC().Add(-j.window))
	if err != nil {
		return fmt.Errorf("query settled orders: %w", err)
	}

	var errs error
	pending, appended := 0, 0
	for i := range settled {
		order := &settled[i]
		res, err := j.resolver.Resolve(ctx, order.ID, order.BuyerID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("resolve %s: %w", order.ID, err))
			continue
		}
		if !res.Ready() {
			pending++
			continue
		}
		_, n, err := j.reconciler.Reconcile(ctx, res.Listing.ID, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", res.Listing.ID, err))
			continue
		}
		appended += n
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"orders":        len(settled),
		"copy_pending":  pending,
		"moments_added": appended,
		"failures":      len(multierr.Errors(errs)),
	}), "history.sweep_complete")
	return errs
}
