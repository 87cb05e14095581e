package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// Listing is one ownable collectible. A non-nil OriginOrderID marks the
// buyer copy produced by a completed purchase.
type Listing struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID       string                `gorm:"column:owner_id;not null"`
	Status        enums.ListingStatus   `gorm:"column:status;type:text;not null"`
	Title         string                `gorm:"column:title;not null"`
	Price         decimal.NullDecimal   `gorm:"column:price;type:numeric(12,2)"`
	SubjectName   string                `gorm:"column:subject_name;not null"`
	Images        pq.StringArray        `gorm:"column:images;type:text[];not null"`
	OriginOrderID *uuid.UUID            `gorm:"column:origin_order_id;type:uuid"`
	MomentHistory dbtypes.MomentHistory `gorm:"column:moment_history;type:jsonb;not null"`
	Version       int                   `gorm:"column:version;not null;default:1"`
	DeletedAt     *time.Time            `gorm:"column:deleted_at"`
	CreatedAt     time.Time             `gorm:"column:created_at"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate fills the identity and timestamps the database would otherwise default.
func (l *Listing) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.Version == 0 {
		l.Version = 1
	}
	if l.Images == nil {
		l.Images = pq.StringArray{}
	}
	if l.MomentHistory == nil {
		l.MomentHistory = dbtypes.MomentHistory{}
	}
	return nil
}

// IsDeleted reports whether the listing carries a soft-delete marker.
func (l Listing) IsDeleted() bool {
	return l.DeletedAt != nil
}

// Fingerprint is the first image reference, used to tell similar copies apart.
func (l Listing) Fingerprint() string {
	if len(l.Images) == 0 {
		return ""
	}
	return l.Images[0]
}
