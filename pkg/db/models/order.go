package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// Order is one purchase attempt against one listing.
type Order struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ListingID       uuid.UUID               `gorm:"column:listing_id;type:uuid;not null"`
	BuyerID         string                  `gorm:"column:buyer_id;not null"`
	SellerID        string                  `gorm:"column:seller_id;not null"`
	Status          enums.OrderStatus       `gorm:"column:status;type:text;not null"`
	TotalAmount     decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null"`
	ShippingDetails dbtypes.ShippingDetails `gorm:"column:shipping_details;type:jsonb;not null"`
	MomentSnapshot  dbtypes.MomentSnapshot  `gorm:"column:moment_snapshot;type:jsonb"`
	PaymentRef      *string                 `gorm:"column:payment_ref"`
	TrackingNumber  *string                 `gorm:"column:tracking_number"`
	Carrier         *string                 `gorm:"column:carrier"`
	ShippedAt       *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time              `gorm:"column:delivered_at"`
	CompletedAt     *time.Time              `gorm:"column:completed_at"`
	CancelledAt     *time.Time              `gorm:"column:cancelled_at"`
	CreatedAt       time.Time               `gorm:"column:created_at"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate fills the identity and creation time.
func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return nil
}
