package moments

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stadiumcard/stadiumcard-backend/internal/repo"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// Repository persists live moments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, moment *models.LiveMoment) (bool, error)
	FindByID(ctx context.Context, id string) (*models.LiveMoment, error)
	FindOccurredSince(ctx context.Context, since time.Time) ([]models.LiveMoment, error)
	MarkFinalized(ctx context.Context, id, resultSummary string, at time.Time) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a live moment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

// Insert stores the moment unless one with the same id exists, reporting
// whether a row was written.
func (r *repository) Insert(ctx context.Context, moment *models.LiveMoment) (bool, error) {
	res := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(moment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.LiveMoment, error) {
	return repo.First[models.LiveMoment](r.DB(ctx).Where("id = ?", id))
}

func (r *repository) FindOccurredSince(ctx context.Context, since time.Time) ([]models.LiveMoment, error) {
	var out []models.LiveMoment
	err := r.DB(ctx).
		Where("occurred_at >= ?", since.UTC()).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) MarkFinalized(ctx context.Context, id, resultSummary string, at time.Time) error {
	res := r.DB(ctx).
		Model(&models.LiveMoment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         enums.MomentStatusFinalized,
			"result_summary": resultSummary,
			"finalized_at":   at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
