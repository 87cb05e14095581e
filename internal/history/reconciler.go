package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
)

// unavailableMessage is surfaced when a merge could not be persisted.
const unavailableMessage = "history temporarily unavailable"

// Reconciler merges an order's snapshot into the history of a listing.
type Reconciler struct {
	writer  *listings.HistoryWriter
	metrics *metrics.MarketplaceMetrics
	tracer  trace.Tracer
	logg    *logger.Logger
}

func NewReconciler(writer *listings.HistoryWriter, m *metrics.MarketplaceMetrics, logg *logger.Logger) (*Reconciler, error) {
	if writer == nil {
		return nil, fmt.Errorf("history writer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reconciler{writer: writer, metrics: m, tracer: otel.Tracer("stadiumcard/history"), logg: logg}, nil
}

// Reconcile appends the order's missing snapshot moments to the listing and
// returns the stored listing with the number of moments added. Nothing is
// written when the history already holds every snapshot moment.
func (r *Reconciler) Reconcile(ctx context.Context, listingID uuid.UUID, order *models.Order) (*models.Listing, int, error) {
	ctx, span := r.tracer.Start(ctx, "history.Reconcile", trace.WithAttributes(
		attribute.String("listing_id", listingID.String()),
		attribute.String("order_id", order.ID.String()),
	))
	defer span.End()

	appended := 0
	listing, _, err := r.writer.Mutate(ctx, listingID, func(l *models.Listing) (bool, error) {
		merged, n := Merge(l.MomentHistory, order.MomentSnapshot, order.ID)
		l.MomentHistory = merged
		appended = n
		return n > 0, nil
	})
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"listing_id": listingID.String(),
		"order_id":   order.ID.String(),
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, 0, err
		}
		r.logg.Error(logCtx, "history.reconcile_failed", err)
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, unavailableMessage)
	}
	span.SetAttributes(attribute.Int("appended", appended))
	if appended > 0 {
		r.metrics.MomentsAppended(appended)
		r.logg.Info(r.logg.WithField(logCtx, "appended", appended), "history.reconciled")
	}
	return listing, appended, nil
}
