package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/ownership"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
	"github.com/stadiumcard/stadiumcard-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type copyResolver interface {
	Resolve(ctx context.Context, orderID uuid.UUID, callerID string) (*ownership.Resolution, error)
}

// ShipInput carries the seller's tracking details.
type ShipInput struct {
	TrackingNumber string `json:"tracking_number" validate:"omitempty,max=64"`
	Carrier        string `json:"carrier" validate:"omitempty,max=64"`
}

// ReceiveResult is the completed order plus the buyer copy, when it exists yet.
type ReceiveResult struct {
	Order     *models.Order
	BuyerCopy *models.Listing
}

// Service drives an order after reservation. Payment confirmation is applied
// by the fulfillment consumer, not here.
type Service interface {
	Get(ctx context.Context, id uuid.UUID, callerID string) (*models.Order, error)
	Cancel(ctx context.Context, id uuid.UUID, callerID string) (*models.Order, error)
	MarkShipped(ctx context.Context, id uuid.UUID, sellerID string, input ShipInput) (*models.Order, error)
	MarkReceived(ctx context.Context, id uuid.UUID, buyerID string) (*ReceiveResult, error)
	List(ctx context.Context, callerID string, side Side, page pagination.Params) (*pagination.Page[models.Order], error)
}

// Side selects which party's orders List returns.
type Side string

const (
	SideBuyer  Side = "buyer"
	SideSeller Side = "seller"
)

type service struct {
	repo     Repository
	listings listings.Repository
	resolver copyResolver
	tx       txRunner
	outbox   outbox.Emitter
	logg     *logger.Logger
}

// NewService wires the order lifecycle service.
func NewService(repo Repository, listingRepo listings.Repository, resolver copyResolver, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if listingRepo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("buyer copy resolver required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, listings: listingRepo, resolver: resolver, tx: tx, outbox: emitter, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, callerID string) (*models.Order, error) {
	return s.load(ctx, s.repo, id, callerID)
}

// List returns the caller's purchases or sales, newest first.
func (s *service) List(ctx context.Context, callerID string, side Side, page pagination.Params) (*pagination.Page[models.Order], error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	var column string
	switch side {
	case SideBuyer, "":
		column = "buyer_id"
	case SideSeller:
		column = "seller_id"
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "as must be buyer or seller")
	}
	after, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForParty(ctx, column, callerID, after, pagination.LimitWithBuffer(page.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := pagination.Trim(rows, page.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &out, nil
}

// load hides orders from anyone who is not a party to them.
func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID, callerID string) (*models.Order, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != callerID && order.SellerID != callerID {
		return nil, NotFound()
	}
	return order, nil
}

// Cancel releases the listing. Either party may cancel until the order
// reaches a terminal status; the record is kept.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, callerID string) (*models.Order, error) {
	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, id, callerID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			return illegalTransition(order.Status, enums.OrderStatusCancelled)
		}
		now := time.Now().UTC()
		from := order.Status
		ok, err := repo.Transition(ctx, id, enums.OpenOrderStatuses(), enums.OrderStatusCancelled, map[string]any{"cancelled_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while cancelling, reload and retry")
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		cancelled = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: callerID, Role: partyRole(order, callerID)},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				ListingID:   order.ListingID,
				BuyerID:     order.BuyerID,
				FromStatus:  from,
				CancelledBy: callerID,
				CancelledAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   id.String(),
		"listing_id": cancelled.ListingID.String(),
	}), "order.cancelled")
	return cancelled, nil
}

// MarkShipped records tracking details. Seller only, from paid or awaiting_shipping.
func (s *service) MarkShipped(ctx context.Context, id uuid.UUID, sellerID string, input ShipInput) (*models.Order, error) {
	var shipped *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, id, sellerID)
		if err != nil {
			return err
		}
		if order.SellerID != sellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can ship this order")
		}
		from := []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusAwaitingShipping}
		if order.Status != from[0] && order.Status != from[1] {
			return illegalTransition(order.Status, enums.OrderStatusShipped)
		}
		now := time.Now().UTC()
		updates := map[string]any{"shipped_at": now}
		tracking := strings.TrimSpace(input.TrackingNumber)
		carrier := strings.TrimSpace(input.Carrier)
		if tracking != "" {
			updates["tracking_number"] = tracking
			order.TrackingNumber = &tracking
		}
		if carrier != "" {
			updates["carrier"] = carrier
			order.Carrier = &carrier
		}
		ok, err := repo.Transition(ctx, id, from, enums.OrderStatusShipped, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ship order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while shipping, reload and retry")
		}
		order.Status = enums.OrderStatusShipped
		order.ShippedAt = &now
		shipped = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderShipped,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: sellerID, Role: "seller"},
			Data: payloads.OrderShippedEvent{
				OrderID:        order.ID,
				BuyerID:        order.BuyerID,
				TrackingNumber: tracking,
				Carrier:        carrier,
				ShippedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return shipped, nil
}

// MarkReceived completes the order once the buyer confirms delivery and
// unlocks the buyer copy into draft so it can be relisted. A shipped order
// is stepped through delivered first. A copy that has not synced yet is left
// for the next resolve to pick up.
func (s *service) MarkReceived(ctx context.Context, id uuid.UUID, buyerID string) (*ReceiveResult, error) {
	order, err := s.load(ctx, s.repo, id, buyerID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm receipt")
	}
	if order.Status != enums.OrderStatusShipped && order.Status != enums.OrderStatusDelivered {
		return nil, illegalTransition(order.Status, enums.OrderStatusCompleted)
	}

	// Resolve before the transaction; it may self-heal the link in its own.
	res, err := s.resolver.Resolve(ctx, id, buyerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current := order.Status
		for _, next := range receiptSteps(current) {
			if !current.CanTransitionTo(next) {
				return illegalTransition(current, next)
			}
			ok, err := repo.Transition(ctx, id, []enums.OrderStatus{current}, next, receiptStamp(next, now))
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance order to "+string(next))
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while completing, reload and retry")
			}
			current = next
		}
		var copyID *uuid.UUID
		if res.Ready() {
			if err := s.listings.WithTx(tx).UpdateStatus(ctx, res.Listing.ID, enums.ListingStatusDraft); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlock buyer copy")
			}
			res.Listing.Status = enums.ListingStatusDraft
			copyID = &res.Listing.ID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: "buyer"},
			Data: payloads.OrderCompletedEvent{
				OrderID:     order.ID,
				ListingID:   order.ListingID,
				SellerID:    order.SellerID,
				BuyerCopyID: copyID,
				CompletedAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if order.Status == enums.OrderStatusShipped {
		order.DeliveredAt = &now
	}
	order.Status = enums.OrderStatusCompleted
	order.CompletedAt = &now
	out := &ReceiveResult{Order: order}
	if res.Ready() {
		out.BuyerCopy = res.Listing
	} else {
		s.logg.Warn(s.logg.WithOrderID(ctx, id.String()), "order.completed_without_copy")
	}
	return out, nil
}

// receiptSteps is the path a buyer's receipt confirmation walks from status.
func receiptSteps(status enums.OrderStatus) []enums.OrderStatus {
	if status == enums.OrderStatusShipped {
		return []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCompleted}
	}
	return []enums.OrderStatus{enums.OrderStatusCompleted}
}

func receiptStamp(status enums.OrderStatus, at time.Time) map[string]any {
	if status == enums.OrderStatusDelivered {
		return map[string]any{"delivered_at": at}
	}
	return map[string]any{"completed_at": at}
}

// NotFound is returned for missing orders and orders the caller is not party to.
func NotFound() error {
	return pkgerrors.WithReason(pkgerrors.CodeNotFound, listings.ReasonOrder, "order not found")
}

func illegalTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", from, to))
}

func partyRole(order *models.Order, callerID string) string {
	if order.SellerID == callerID {
		return "seller"
	}
	return "buyer"
}
