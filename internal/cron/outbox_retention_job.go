package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultOutboxDeadAfter = 10
	defaultRetentionEvery  = 24 * time.Hour
)

// OutboxRetentionJobParams configure outbox pruning. The job runs once per
// Every (default daily) rather than on every cron cycle.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	Retention  time.Duration
	// DeadAfter matches the publisher's attempt ceiling; rows parked there
	// are pruned with the published ones.
	DeadAfter int
	Every     time.Duration
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	deadAfter := params.DeadAfter
	if deadAfter <= 0 {
		deadAfter = defaultOutboxDeadAfter
	}
	every := params.Every
	if every <= 0 {
		every = defaultRetentionEvery
	}
	return &outboxRetentionJob{
		every:     every,
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		deadAfter: deadAfter,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	every     time.Duration
	logg      *logger.Logger
	db        txRunner
	repo      outboxPruner
	retention time.Duration
	deadAfter int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string         { return "outbox-retention" }
func (j *outboxRetentionJob) Every() time.Duration { return j.every }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.deadAfter)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox.pruned")
	return nil
}
