// Package checkout serializes buyers competing for the same listing.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/orders"
	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

// Conflict reasons attached to CONFLICT errors.
const (
	ReasonSold          = "sold"
	ReasonInTransaction = "in_transaction"
	ReasonRaceLost      = "race_lost"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type snapshotter interface {
	Snapshot(ctx context.Context, subjectName string, lookback time.Duration) ([]dbtypes.Moment, error)
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Reservation is the pending order held for the buyer.
type Reservation struct {
	Order     *models.Order
	Refreshed bool
}

// Service reserves listings for buyers.
type Service interface {
	Reserve(ctx context.Context, listingID uuid.UUID, buyerID string, shipping dbtypes.ShippingDetails) (*Reservation, error)
}

// Deps groups the collaborators of the reservation service.
type Deps struct {
	Listings    listings.Repository
	Orders      orders.Repository
	Snapshotter snapshotter
	Tx          txRunner
	Outbox      outbox.Emitter
	// Limiter is optional; without it reserve attempts are not throttled.
	Limiter    rateLimiter
	Metrics    *metrics.MarketplaceMetrics
	Logger     *logger.Logger
	Lookback   time.Duration
	RateLimits config.ReservationConfig
}

type service struct {
	listings    listings.Repository
	orders      orders.Repository
	snapshotter snapshotter
	tx          txRunner
	outbox      outbox.Emitter
	limiter     rateLimiter
	metrics     *metrics.MarketplaceMetrics
	tracer      trace.Tracer
	logg        *logger.Logger
	lookback    time.Duration
	limits      config.ReservationConfig
}

// NewService builds the reservation coordinator.
func NewService(deps Deps) (Service, error) {
	if deps.Listings == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Snapshotter == nil {
		return nil, fmt.Errorf("snapshotter required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if deps.Lookback <= 0 {
		return nil, fmt.Errorf("snapshot lookback must be positive")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		listings:    deps.Listings,
		orders:      deps.Orders,
		snapshotter: deps.Snapshotter,
		tx:          deps.Tx,
		outbox:      deps.Outbox,
		limiter:     deps.Limiter,
		metrics:     deps.Metrics,
		tracer:      otel.Tracer("stadiumcard/checkout"),
		logg:        logg,
		lookback:    deps.Lookback,
		limits:      deps.RateLimits,
	}, nil
}

// Reserve creates or refreshes the buyer's pending order on the listing.
// The read of open orders only avoids pointless inserts; the partial unique
// index on open orders is what guarantees a single winner.
func (s *service) Reserve(ctx context.Context, listingID uuid.UUID, buyerID string, shipping dbtypes.ShippingDetails) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Reserve", trace.WithAttributes(attribute.String("listing_id", listingID.String())))
	defer span.End()

	res, outcome, err := s.reserve(ctx, listingID, buyerID, shipping.Normalize())
	s.metrics.Reservation(outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"listing_id": listingID.String(),
		"buyer_id":   buyerID,
		"outcome":    outcome,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.logg.Info(logCtx, "reservation.conflict")
		} else if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			s.logg.Error(logCtx, "reservation.failed", err)
		}
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(logCtx, res.Order.ID.String()), "reservation.held")
	return res, nil
}

func (s *service) reserve(ctx context.Context, listingID uuid.UUID, buyerID string, shipping dbtypes.ShippingDetails) (*Reservation, string, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, metrics.ReserveRejected, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := s.allow(ctx, buyerID); err != nil {
		return nil, metrics.ReserveRejected, err
	}

	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, metrics.ReserveRejected, listings.ItemNotFound()
		}
		return nil, metrics.ReserveRejected, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if err := checkReservable(listing, buyerID); err != nil {
		return nil, metrics.ReserveRejected, err
	}

	moments, err := s.snapshotter.Snapshot(ctx, listing.SubjectName, s.lookback)
	if err != nil {
		return nil, metrics.ReserveRejected, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot live moments")
	}
	snapshot := dbtypes.NewMomentSnapshot(moments)

	var (
		result  *Reservation
		outcome string
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		open, err := repo.FindOpenByListing(ctx, listingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open orders")
		}

		for i := range open {
			existing := &open[i]
			if existing.BuyerID != buyerID {
				outcome = metrics.ReserveConflict
				return heldByOther(existing.Status)
			}
			if existing.Status != enums.OrderStatusPending {
				outcome = metrics.ReserveConflict
				return pkgerrors.New(pkgerrors.CodeStateConflict, "you have already paid for this item")
			}
			if err := repo.RefreshReservation(ctx, existing.ID, shipping, snapshot); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh reservation")
			}
			existing.ShippingDetails = shipping
			existing.MomentSnapshot = snapshot
			result = &Reservation{Order: existing, Refreshed: true}
			outcome = metrics.ReserveRefreshed
			return s.emitReserved(ctx, tx, existing, true)
		}

		order := &models.Order{
			ID:              uuid.New(),
			ListingID:       listing.ID,
			BuyerID:         buyerID,
			SellerID:        listing.OwnerID,
			Status:          enums.OrderStatusPending,
			TotalAmount:     listing.Price.Decimal,
			ShippingDetails: shipping,
			MomentSnapshot:  snapshot,
			CreatedAt:       time.Now().UTC(),
		}
		if err := repo.Create(ctx, order); err != nil {
			if orders.IsOpenOrderConflict(err) {
				outcome = metrics.ReserveRace
				return pkgerrors.WithReason(pkgerrors.CodeConflict, ReasonRaceLost, "this item was just reserved by another user")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		result = &Reservation{Order: order}
		outcome = metrics.ReserveCreated
		return s.emitReserved(ctx, tx, order, false)
	})
	if err != nil {
		if outcome == "" {
			outcome = metrics.ReserveRejected
		}
		return nil, outcome, err
	}
	return result, outcome, nil
}

func (s *service) allow(ctx context.Context, buyerID string) error {
	if s.limiter == nil || s.limits.RateLimitPerUser <= 0 {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, "reserve:"+buyerID, int64(s.limits.RateLimitPerUser), s.limits.RateLimitWindow)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "buyer_id", buyerID), "reservation.rate_limit_unavailable")
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many reservation attempts, slow down")
	}
	return nil
}

func checkReservable(listing *models.Listing, buyerID string) error {
	if listing.IsDeleted() {
		return listings.ItemNotFound()
	}
	if listing.OwnerID == buyerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "you cannot buy your own listing")
	}
	if !listing.Status.Reservable() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "this listing is not for sale")
	}
	if !listing.Price.Valid || !listing.Price.Decimal.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "this listing has no price")
	}
	return nil
}

// heldByOther distinguishes a permanent sale from a reservation that may
// still be released.
func heldByOther(status enums.OrderStatus) error {
	if status.IsSold() {
		return pkgerrors.WithReason(pkgerrors.CodeConflict, ReasonSold, "this item has already been sold")
	}
	return pkgerrors.WithReason(pkgerrors.CodeConflict, ReasonInTransaction, "this item is currently in a transaction")
}

func (s *service) emitReserved(ctx context.Context, tx *gorm.DB, order *models.Order, refreshed bool) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderReserved,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: "buyer"},
		Data: payloads.OrderReservedEvent{
			OrderID:      order.ID,
			ListingID:    order.ListingID,
			BuyerID:      order.BuyerID,
			SellerID:     order.SellerID,
			TotalAmount:  order.TotalAmount,
			SnapshotSize: order.MomentSnapshot.Len(),
			Refreshed:    refreshed,
		},
	})
}
