package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// OrderReservedEvent is emitted when a buyer creates or refreshes a reservation.
type OrderReservedEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	ListingID    uuid.UUID       `json:"listing_id"`
	BuyerID      string          `json:"buyer_id"`
	SellerID     string          `json:"seller_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	SnapshotSize int             `json:"snapshot_size"`
	Refreshed    bool            `json:"refreshed"`
}

// OrderCancelledEvent releases the listing for other buyers.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	ListingID   uuid.UUID         `json:"listing_id"`
	BuyerID     string            `json:"buyer_id"`
	FromStatus  enums.OrderStatus `json:"from_status"`
	CancelledBy string            `json:"cancelled_by"`
	CancelledAt time.Time         `json:"cancelled_at"`
}

// OrderPaidEvent records the payment pipeline's confirmation being applied.
type OrderPaidEvent struct {
	OrderID     uuid.UUID  `json:"order_id"`
	ListingID   uuid.UUID  `json:"listing_id"`
	BuyerID     string     `json:"buyer_id"`
	SellerID    string     `json:"seller_id"`
	PaymentRef  string     `json:"payment_ref"`
	BuyerCopyID *uuid.UUID `json:"buyer_copy_id,omitempty"`
}

// OrderShippedEvent carries the seller's tracking details.
type OrderShippedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	BuyerID        string    `json:"buyer_id"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Carrier        string    `json:"carrier,omitempty"`
	ShippedAt      time.Time `json:"shipped_at"`
}

// OrderCompletedEvent signals the buyer confirmed receipt.
type OrderCompletedEvent struct {
	OrderID     uuid.UUID  `json:"order_id"`
	ListingID   uuid.UUID  `json:"listing_id"`
	SellerID    string     `json:"seller_id"`
	BuyerCopyID *uuid.UUID `json:"buyer_copy_id,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}

// OrderPendingNudgeEvent reminds both parties about a reservation that has not progressed.
type OrderPendingNudgeEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	ListingID    uuid.UUID `json:"listing_id"`
	BuyerID      string    `json:"buyer_id"`
	SellerID     string    `json:"seller_id"`
	PendingSince time.Time `json:"pending_since"`
}

// BuyerCopyRelinkedEvent records a self-healed ownership link.
type BuyerCopyRelinkedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerCopyID uuid.UUID `json:"buyer_copy_id"`
	BuyerID     string    `json:"buyer_id"`
	Score       int       `json:"score"`
}

// ListingStatusChangedEvent covers status toggles, soft deletes and restores.
type ListingStatusChangedEvent struct {
	ListingID uuid.UUID           `json:"listing_id"`
	OwnerID   string              `json:"owner_id"`
	From      enums.ListingStatus `json:"from"`
	To        enums.ListingStatus `json:"to"`
	Deleted   bool                `json:"deleted"`
}

// LiveMomentFinalizedEvent reports how far a finalized result propagated.
type LiveMomentFinalizedEvent struct {
	MomentID        string `json:"moment_id"`
	ResultSummary   string `json:"result_summary"`
	ListingsUpdated int    `json:"listings_updated"`
}

// PaymentConfirmedEvent is published by the external payment pipeline.
type PaymentConfirmedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	PaymentRef  string          `json:"payment_ref"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
	// SkipLink replays historic pipeline runs that cloned without stamping the order id.
	SkipLink bool `json:"skip_link,omitempty"`
}
