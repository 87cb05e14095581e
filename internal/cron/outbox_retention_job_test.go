package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db/dbtest"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
)

func TestOutboxRetentionPrunesPublishedAndDeadRows(t *testing.T) {
	client := dbtest.Client(t)
	repo := outbox.NewRepository(client.DB())
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	published := old.Add(time.Minute)

	rows := []models.OutboxEvent{
		{CreatedAt: old, PublishedAt: &published},
		{CreatedAt: old, AttemptCount: 10},
		{CreatedAt: old, AttemptCount: 2},
		{CreatedAt: now.Add(-time.Hour), PublishedAt: &published},
	}
	for i := range rows {
		rows[i].EventType = enums.EventOrderReserved
		rows[i].AggregateType = enums.AggregateOrder
		rows[i].AggregateID = uuid.New()
		rows[i].Payload = json.RawMessage(`{}`)
		if err := client.DB().Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         client,
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }
	if p, ok := jobIface.(Periodic); !ok || p.Every() != 24*time.Hour {
		t.Fatal("retention should run daily by default")
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var left []models.OutboxEvent
	if err := client.DB().Order("created_at").Find(&left).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("expected the retrying row and the recent row to survive, got %d", len(left))
	}
	if left[0].ID != rows[2].ID || left[1].ID != rows[3].ID {
		t.Fatalf("unexpected survivors: %v %v", left[0].ID, left[1].ID)
	}
}

type failingPruner struct{}

func (failingPruner) DeletePublishedBefore(context.Context, *gorm.DB, time.Time, int) (int64, error) {
	return 0, errors.New("boom")
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         inlineTx{},
		Repository: failingPruner{},
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type inlineTx struct{}

func (inlineTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
