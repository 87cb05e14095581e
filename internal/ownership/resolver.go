// Package ownership locates the buyer copy produced when a purchase settles,
// repairing the order link when the payment pipeline failed to stamp it.
package ownership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/matching"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

const (
	fingerprintScore = 2
	subjectScore     = 1
)

// OrderReader is the slice of the orders repository the resolver needs.
type OrderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Resolution is the outcome of a buyer copy lookup. A nil Listing means the
// copy does not exist yet and the caller should poll again.
type Resolution struct {
	Order   *models.Order
	Listing *models.Listing
	Path    string
	Score   int
}

// Ready reports whether the buyer copy was found.
func (r *Resolution) Ready() bool {
	return r != nil && r.Listing != nil
}

// Resolver finds buyer copies by their origin order, falling back to a scored
// search over the buyer's unlinked listings.
type Resolver struct {
	orders   OrderReader
	listings listings.Repository
	tx       txRunner
	outbox   outbox.Emitter
	window   time.Duration
	metrics  *metrics.MarketplaceMetrics
	tracer   trace.Tracer
	logg     *logger.Logger
}

// NewResolver builds a Resolver. window bounds how long before the order a
// fallback candidate may have been created.
func NewResolver(orders OrderReader, listingRepo listings.Repository, tx txRunner, emitter outbox.Emitter, window time.Duration, m *metrics.MarketplaceMetrics, logg *logger.Logger) (*Resolver, error) {
	if orders == nil {
		return nil, fmt.Errorf("order reader required")
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
	if window <= 0 {
		return nil, fmt.Errorf("clone search window must be positive")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{
		orders:   orders,
		listings: listingRepo,
		tx:       tx,
		outbox:   emitter,
		window:   window,
		metrics:  m,
		tracer:   otel.Tracer("stadiumcard/ownership"),
		logg:     logg,
	}, nil
}

// Resolve returns the caller's copy for orderID. Orders the caller did not
// buy are reported as not found.
func (r *Resolver) Resolve(ctx context.Context, orderID uuid.UUID, callerID string) (*Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "ownership.Resolve", trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer span.End()

	if strings.TrimSpace(callerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, orderNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != callerID {
		return nil, orderNotFound()
	}

	res, err := r.pinpoint(ctx, order)
	if err != nil {
		return nil, err
	}
	if res.Ready() {
		span.SetAttributes(attribute.String("path", res.Path))
		return res, nil
	}
	if order.Status == enums.OrderStatusCancelled {
		r.metrics.Resolution(metrics.ResolvePending)
		return res, nil
	}

	res = r.fallback(ctx, order)
	span.SetAttributes(attribute.String("path", res.Path))
	return res, nil
}

func (r *Resolver) pinpoint(ctx context.Context, order *models.Order) (*Resolution, error) {
	listing, err := r.listings.FindByOriginOrder(ctx, order.ID, order.BuyerID)
	if err != nil {
		if db.IsNotFound(err) {
			return &Resolution{Order: order, Path: metrics.ResolvePending}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer copy")
	}
	r.metrics.Resolution(metrics.ResolvePinpoint)
	return &Resolution{Order: order, Listing: listing, Path: metrics.ResolvePinpoint}, nil
}

// fallback never fails: search problems are logged and reported as not ready
// so the caller keeps polling.
func (r *Resolver) fallback(ctx context.Context, order *models.Order) *Resolution {
	notReady := &Resolution{Order: order, Path: metrics.ResolvePending}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"buyer_id": order.BuyerID,
	})

	var fingerprint, subject string
	if original, err := r.listings.FindByID(ctx, order.ListingID); err == nil {
		fingerprint = original.Fingerprint()
		subject = original.SubjectName
	} else if !db.IsNotFound(err) {
		r.logg.Warn(logCtx, "ownership.original_lookup_failed")
	}

	candidates, err := r.listings.FindCloneCandidates(ctx, order.BuyerID, order.CreatedAt.Add(-r.window))
	if err != nil {
		r.logg.Error(logCtx, "ownership.fallback_search_failed", err)
		r.metrics.Resolution(metrics.ResolvePending)
		return notReady
	}

	best, score := pickCandidate(candidates, order.ListingID, fingerprint, subject)
	if best == nil {
		r.metrics.Resolution(metrics.ResolvePending)
		return notReady
	}

	linked := false
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := r.listings.WithTx(tx).LinkOrigin(ctx, best.ID, order.ID)
		if err != nil || !ok {
			return err
		}
		linked = true
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBuyerCopyRelinked,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: "buyer"},
			Data: payloads.BuyerCopyRelinkedEvent{
				OrderID:     order.ID,
				BuyerCopyID: best.ID,
				BuyerID:     order.BuyerID,
				Score:       score,
			},
		})
	})
	if err != nil {
		r.logg.Error(logCtx, "ownership.self_heal_failed", err)
		r.metrics.Resolution(metrics.ResolvePending)
		return notReady
	}

	if !linked {
		// Another request linked the candidate first; the authoritative path decides.
		res, err := r.pinpoint(ctx, order)
		if err != nil || !res.Ready() {
			r.metrics.Resolution(metrics.ResolvePending)
			return notReady
		}
		return res
	}

	best.OriginOrderID = &order.ID
	r.metrics.Resolution(metrics.ResolveHealed)
	r.logg.Info(r.logg.WithFields(logCtx, map[string]any{
		"buyer_copy_id": best.ID.String(),
		"score":         score,
	}), "ownership.self_healed")
	return &Resolution{Order: order, Listing: best, Path: metrics.ResolveHealed, Score: score}
}

// pickCandidate returns the only eligible candidate as is. Several are
// scored against the purchased listing: a matching fingerprint outweighs a
// matching subject, ties go to the newest candidate (first in the slice) and
// a set where nothing matches is left unresolved.
func pickCandidate(candidates []models.Listing, originalID uuid.UUID, fingerprint, subject string) (*models.Listing, int) {
	var (
		best      *models.Listing
		bestScore int
		eligible  int
		lone      *models.Listing
	)
	for i := range candidates {
		c := &candidates[i]
		if c.ID == originalID {
			continue
		}
		eligible++
		lone = c
		score := 0
		if fingerprint != "" && c.Fingerprint() == fingerprint {
			score += fingerprintScore
		}
		if matching.SubjectMatches(c.SubjectName, subject) {
			score += subjectScore
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if eligible == 1 {
		return lone, bestScore
	}
	return best, bestScore
}

func orderNotFound() error {
	return pkgerrors.WithReason(pkgerrors.CodeNotFound, listings.ReasonOrder, "order not found")
}
