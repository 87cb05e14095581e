package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/internal/repo"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/pagination"
)

// OpenListingIndex is the partial unique index that admits one open order per listing.
const OpenListingIndex = "ux_orders_listing_open"

// IsOpenOrderConflict reports whether err is a violation of OpenListingIndex.
// Postgres names the index; sqlite names the indexed column instead.
func IsOpenOrderConflict(err error) bool {
	return db.IsUniqueViolation(err, OpenListingIndex) || db.IsUniqueViolation(err, "orders.listing_id")
}

// Repository defines persistence for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOpenByListing(ctx context.Context, listingID uuid.UUID) ([]models.Order, error)
	FindLatestForBuyer(ctx context.Context, listingID uuid.UUID, buyerID string) (*models.Order, error)
	RefreshReservation(ctx context.Context, id uuid.UUID, shipping dbtypes.ShippingDetails, snapshot dbtypes.MomentSnapshot) error
	Transition(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, updates map[string]any) (bool, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	FindSettledSince(ctx context.Context, since time.Time) ([]models.Order, error)
	ListForParty(ctx context.Context, column, userID string, after *pagination.Cursor, limit int) ([]models.Order, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return repo.First[models.Order](r.DB(ctx).Where("id = ?", id))
}

// FindOpenByListing returns the orders currently blocking the listing. The
// unique index keeps this to at most one row.
func (r *repository) FindOpenByListing(ctx context.Context, listingID uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	err := r.DB(ctx).
		Where("listing_id = ? AND status IN ?", listingID, enums.OpenOrderStatuses()).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindLatestForBuyer returns the buyer's most recent non-cancelled order on the listing.
func (r *repository) FindLatestForBuyer(ctx context.Context, listingID uuid.UUID, buyerID string) (*models.Order, error) {
	return repo.First[models.Order](r.DB(ctx).
		Where("listing_id = ? AND buyer_id = ? AND status <> ?", listingID, buyerID, enums.OrderStatusCancelled).
		Order("created_at DESC"))
}

func (r *repository) RefreshReservation(ctx context.Context, id uuid.UUID, shipping dbtypes.ShippingDetails, snapshot dbtypes.MomentSnapshot) error {
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"shipping_details": shipping,
			"moment_snapshot":  snapshot,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Transition moves the order to `to` only while its status is one of from.
// It reports false when the order had already moved on.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{}
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	values["updated_at"] = time.Now().UTC()

	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var out []models.Order
	err := r.DB(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindSettledSince returns paid-or-later orders created since the cutoff.
func (r *repository) FindSettledSince(ctx context.Context, since time.Time) ([]models.Order, error) {
	settled := []enums.OrderStatus{
		enums.OrderStatusPaid,
		enums.OrderStatusAwaitingShipping,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCompleted,
	}
	var out []models.Order
	err := r.DB(ctx).
		Where("status IN ? AND created_at >= ?", settled, since.UTC()).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListForParty pages through the orders where column (buyer_id or seller_id)
// equals userID, newest first.
func (r *repository) ListForParty(ctx context.Context, column, userID string, after *pagination.Cursor, limit int) ([]models.Order, error) {
	q := r.DB(ctx).Where(column+" = ?", userID)
	if after != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var out []models.Order
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
