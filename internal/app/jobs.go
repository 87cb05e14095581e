package app

import (
	"fmt"

	"github.com/stadiumcard/stadiumcard-backend/internal/cron"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// CronJobs builds the scheduled jobs in the order the worker runs them.
func (d *Domain) CronJobs(p Params) (*cron.Registry, error) {
	if p.Config == nil || p.DB == nil {
		return nil, fmt.Errorf("config and database client required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	stale, err := cron.NewStalePendingJob(cron.StalePendingJobParams{
		Logger:  logg,
		DB:      p.DB,
		Orders:  d.OrderRepo,
		Outbox:  d.Outbox,
		Events:  d.OutboxRepo,
		Metrics: p.Metrics,
		After:   p.Config.Reservation.StalePendingAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("stale pending job: %w", err)
	}
	sweep, err := cron.NewHistorySweepJob(cron.HistorySweepJobParams{
		Logger:     logg,
		Orders:     d.OrderRepo,
		Resolver:   d.Resolver,
		Reconciler: d.Reconciler,
		Window:     p.Config.Provenance.SweepWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("history sweep job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         p.DB,
		Repository: d.OutboxRepo,
		DeadAfter:  p.Config.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(stale, sweep, retention), nil
}
