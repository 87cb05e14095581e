package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

type listingResponse struct {
	ID            uuid.UUID           `json:"id"`
	OwnerID       string              `json:"owner_id"`
	Status        enums.ListingStatus `json:"status"`
	Title         string              `json:"title"`
	Price         *decimal.Decimal    `json:"price,omitempty"`
	SubjectName   string              `json:"subject_name"`
	Images        []string            `json:"images"`
	OriginOrderID *uuid.UUID          `json:"origin_order_id,omitempty"`
	Deleted       bool                `json:"deleted"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func newListingResponse(l *models.Listing) listingResponse {
	out := listingResponse{
		ID:            l.ID,
		OwnerID:       l.OwnerID,
		Status:        l.Status,
		Title:         l.Title,
		SubjectName:   l.SubjectName,
		Images:        []string(l.Images),
		OriginOrderID: l.OriginOrderID,
		Deleted:       l.DeletedAt != nil,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if l.Price.Valid {
		price := l.Price.Decimal
		out.Price = &price
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	return out
}

type orderResponse struct {
	ID              uuid.UUID               `json:"id"`
	ListingID       uuid.UUID               `json:"listing_id"`
	BuyerID         string                  `json:"buyer_id"`
	SellerID        string                  `json:"seller_id"`
	Status          enums.OrderStatus       `json:"status"`
	TotalAmount     decimal.Decimal         `json:"total_amount"`
	ShippingDetails dbtypes.ShippingDetails `json:"shipping_details"`
	MomentSnapshot  dbtypes.MomentSnapshot  `json:"moment_snapshot"`
	TrackingNumber  *string                 `json:"tracking_number,omitempty"`
	Carrier         *string                 `json:"carrier,omitempty"`
	ShippedAt       *time.Time              `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time              `json:"delivered_at,omitempty"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`
	CancelledAt     *time.Time              `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

func newOrderResponse(o *models.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		ListingID:       o.ListingID,
		BuyerID:         o.BuyerID,
		SellerID:        o.SellerID,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		ShippingDetails: o.ShippingDetails,
		MomentSnapshot:  o.MomentSnapshot,
		TrackingNumber:  o.TrackingNumber,
		Carrier:         o.Carrier,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CompletedAt:     o.CompletedAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
	}
}
