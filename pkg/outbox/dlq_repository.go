package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

const maxDLQErrorLen = 1024

// ErrNotParked is returned by Replay for an event id with no DLQ entry.
var ErrNotParked = errors.New("event is not parked")

// DLQRepository keeps outbox rows the publisher gave up on, with enough of
// the original row to put it back in the queue.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateUTF8(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil when the event was never parked.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("failed_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the most recently parked entries first, optionally only those
// of one event type.
func (r *DLQRepository) List(ctx context.Context, eventType enums.OutboxEventType, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx)
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	var entries []models.OutboxDLQ
	err := q.Order("failed_at DESC").Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// Replay returns a parked event to the publish queue under its original id.
// The outbox row is reset when it still exists and recreated from the DLQ
// copy when retention already removed it. The DLQ entries are dropped.
func (r *DLQRepository) Replay(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	tx = tx.WithContext(ctx)

	var entry models.OutboxDLQ
	err := tx.Where("event_id = ?", eventID).Order("failed_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", eventID, ErrNotParked)
	}
	if err != nil {
		return nil, fmt.Errorf("load dlq entry: %w", err)
	}

	var row models.OutboxEvent
	err = tx.Where("id = ?", eventID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.OutboxEvent{
			ID:            entry.EventID,
			EventType:     entry.EventType,
			AggregateType: entry.AggregateType,
			AggregateID:   entry.AggregateID,
			Payload:       entry.Payload,
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("recreate outbox row: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load outbox row: %w", err)
	case row.PublishedAt != nil:
		return nil, fmt.Errorf("%s was published after it was parked", eventID)
	default:
		if err := tx.Model(&row).Updates(map[string]any{"attempt_count": 0, "last_error": nil}).Error; err != nil {
			return nil, fmt.Errorf("reset outbox row: %w", err)
		}
		row.AttemptCount, row.LastError = 0, nil
	}

	if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
		return nil, fmt.Errorf("drop dlq entries: %w", err)
	}
	return &row, nil
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.ToValidUTF8(s[:cut], "")
}
