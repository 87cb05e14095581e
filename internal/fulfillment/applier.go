// Package fulfillment applies payment confirmations published by the
// external payment pipeline: it settles the order and clones the listing
// into the buyer's inventory.
package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/orders"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Result describes what a confirmation changed.
type Result struct {
	OrderID     uuid.UUID
	BuyerCopyID *uuid.UUID
	// AlreadyApplied is set when the order had moved past pending before
	// this delivery arrived.
	AlreadyApplied bool
}

// Applier settles confirmed payments.
type Applier struct {
	orders   orders.Repository
	listings listings.Repository
	tx       txRunner
	outbox   outbox.Emitter
	logg     *logger.Logger
}

func NewApplier(orderRepo orders.Repository, listingRepo listings.Repository, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (*Applier, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if listingRepo == nil {
		return nil, fmt.Errorf("listings repository required")
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
	return &Applier{orders: orderRepo, listings: listingRepo, tx: tx, outbox: emitter, logg: logg}, nil
}

// Apply moves the order from pending to paid, marks the seller's listing
// completed and creates the buyer copy in one transaction. Redelivery of a
// confirmation that already landed is a no-op.
func (a *Applier) Apply(ctx context.Context, evt payloads.PaymentConfirmedEvent) (*Result, error) {
	if evt.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	paymentRef := strings.TrimSpace(evt.PaymentRef)
	if paymentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	result := &Result{OrderID: evt.OrderID}
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := a.orders.WithTx(tx)
		listingRepo := a.listings.WithTx(tx)

		order, err := orderRepo.FindByID(ctx, evt.OrderID)
		if err != nil {
			if db.IsNotFound(err) {
				return orders.NotFound()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		switch {
		case order.Status == enums.OrderStatusPending:
		case order.Status == enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment confirmed for a cancelled order")
		default:
			result.AlreadyApplied = true
			return nil
		}
		if !evt.AmountPaid.IsZero() && !evt.AmountPaid.Equal(order.TotalAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("paid %s but order total is %s", evt.AmountPaid, order.TotalAmount))
		}

		ok, err := orderRepo.Transition(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusPaid, map[string]any{"payment_ref": paymentRef})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			result.AlreadyApplied = true
			return nil
		}

		original, err := listingRepo.FindByID(ctx, order.ListingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sold listing")
		}
		if err := listingRepo.UpdateStatus(ctx, original.ID, enums.ListingStatusCompleted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete sold listing")
		}

		copyID, err := a.cloneForBuyer(ctx, listingRepo, original, order, evt.SkipLink)
		if err != nil {
			return err
		}
		result.BuyerCopyID = copyID

		return a.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: "buyer"},
			OccurredAt:    evt.ConfirmedAt,
			Data: payloads.OrderPaidEvent{
				OrderID:     order.ID,
				ListingID:   order.ListingID,
				BuyerID:     order.BuyerID,
				SellerID:    order.SellerID,
				PaymentRef:  paymentRef,
				BuyerCopyID: copyID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := a.logg.WithOrderID(ctx, evt.OrderID.String())
	if result.AlreadyApplied {
		a.logg.Info(logCtx, "fulfillment.already_applied")
	} else {
		a.logg.Info(a.logg.WithField(logCtx, "skip_link", evt.SkipLink), "fulfillment.payment_applied")
	}
	return result, nil
}

// cloneForBuyer creates the buyer copy unless a linked one already exists.
// With skipLink the copy is written without its origin order, reproducing
// historic pipeline runs; the resolver repairs those on first lookup.
func (a *Applier) cloneForBuyer(ctx context.Context, repo listings.Repository, original *models.Listing, order *models.Order, skipLink bool) (*uuid.UUID, error) {
	existing, err := repo.FindByOriginOrder(ctx, order.ID, order.BuyerID)
	if err == nil {
		return &existing.ID, nil
	}
	if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check buyer copy")
	}

	clone := &models.Listing{
		ID:            uuid.New(),
		OwnerID:       order.BuyerID,
		Status:        enums.ListingStatusCompleted,
		Title:         original.Title,
		Price:         original.Price,
		SubjectName:   original.SubjectName,
		Images:        append([]string(nil), original.Images...),
		MomentHistory: dbtypes.MomentHistory{},
		CreatedAt:     time.Now().UTC(),
	}
	if !skipLink {
		orderID := order.ID
		clone.OriginOrderID = &orderID
	}
	if err := repo.Create(ctx, clone); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create buyer copy")
	}
	return &clone.ID, nil
}
