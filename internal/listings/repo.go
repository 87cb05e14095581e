package listings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/internal/repo"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// ErrVersionConflict is returned when a history write loses to a concurrent writer.
var ErrVersionConflict = errors.New("listing history version conflict")

// Repository defines persistence for listings and their embedded history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ListingStatus) error
	SetDeletedAt(ctx context.Context, id uuid.UUID, at *time.Time) error
	UpdateHistory(ctx context.Context, id uuid.UUID, expectedVersion int, history dbtypes.MomentHistory) error
	FindByOriginOrder(ctx context.Context, orderID uuid.UUID, ownerID string) (*models.Listing, error)
	FindCloneCandidates(ctx context.Context, ownerID string, createdSince time.Time) ([]models.Listing, error)
	LinkOrigin(ctx context.Context, listingID, orderID uuid.UUID) (bool, error)
	FindContainingMoment(ctx context.Context, momentID string) ([]models.Listing, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a listings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, listing *models.Listing) error {
	return r.DB(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return repo.First[models.Listing](r.DB(ctx).Where("id = ?", id))
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ListingStatus) error {
	return r.update(ctx, id, map[string]any{"status": status})
}

func (r *repository) SetDeletedAt(ctx context.Context, id uuid.UUID, at *time.Time) error {
	return r.update(ctx, id, map[string]any{"deleted_at": at})
}

func (r *repository) update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.DB(ctx).Model(&models.Listing{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateHistory replaces the history only if the stored version still equals
// expectedVersion, bumping the version on success.
func (r *repository) UpdateHistory(ctx context.Context, id uuid.UUID, expectedVersion int, history dbtypes.MomentHistory) error {
	if history == nil {
		history = dbtypes.MomentHistory{}
	}
	res := r.DB(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"moment_history": history,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *repository) FindByOriginOrder(ctx context.Context, orderID uuid.UUID, ownerID string) (*models.Listing, error) {
	return repo.First[models.Listing](r.DB(ctx).
		Where("origin_order_id = ? AND owner_id = ?", orderID, ownerID).
		Order("created_at ASC"))
}

// FindCloneCandidates returns the owner's unlinked, live listings created
// since the cutoff that have never been sold, newest first.
func (r *repository) FindCloneCandidates(ctx context.Context, ownerID string, createdSince time.Time) ([]models.Listing, error) {
	var out []models.Listing
	err := r.DB(ctx).
		Where("owner_id = ?", ownerID).
		Where("deleted_at IS NULL").
		Where("origin_order_id IS NULL").
		Where("created_at >= ?", createdSince.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM orders o WHERE o.listing_id = listings.id AND o.status <> ?)", enums.OrderStatusCancelled).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LinkOrigin stamps orderID onto an unlinked listing. It reports false when
// the listing was linked by someone else first.
func (r *repository) LinkOrigin(ctx context.Context, listingID, orderID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND origin_order_id IS NULL", listingID).
		Updates(map[string]any{
			"origin_order_id": orderID,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindContainingMoment(ctx context.Context, momentID string) ([]models.Listing, error) {
	var out []models.Listing
	q := r.DB(ctx).Model(&models.Listing{})
	if r.IsSQLite() {
		q = q.Where(`EXISTS (SELECT 1 FROM json_each(listings.moment_history) je
			WHERE json_extract(je.value, '$.moment_id') = ? OR json_extract(je.value, '$.id') = ?)`, momentID, momentID)
	} else {
		canonical, _ := json.Marshal([]map[string]string{{"moment_id": momentID}})
		legacy, _ := json.Marshal([]map[string]string{{"id": momentID}})
		q = q.Where("moment_history @> ?::jsonb OR moment_history @> ?::jsonb", string(canonical), string(legacy))
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
