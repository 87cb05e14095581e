package listings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
)

// HistoryMutation edits listing.MomentHistory in place and reports whether
// anything changed. It may run several times when writers collide, so it must
// derive its result from the listing it is given.
type HistoryMutation func(listing *models.Listing) (bool, error)

// HistoryWriter applies read-modify-write changes to a listing history under
// an optimistic version check, retrying on conflict.
type HistoryWriter struct {
	repo    Repository
	retries int
	metrics *metrics.MarketplaceMetrics
	logg    *logger.Logger
}

// NewHistoryWriter builds a writer that retries up to retries times.
func NewHistoryWriter(repo Repository, retries int, m *metrics.MarketplaceMetrics, logg *logger.Logger) (*HistoryWriter, error) {
	if repo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if retries <= 0 {
		retries = 1
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &HistoryWriter{repo: repo, retries: retries, metrics: m, logg: logg}, nil
}

// Mutate loads the listing, applies fn to a private copy of its history and
// writes the result back if fn changed it. The returned listing reflects the
// stored state.
func (w *HistoryWriter) Mutate(ctx context.Context, listingID uuid.UUID, fn HistoryMutation) (*models.Listing, bool, error) {
	for attempt := 1; attempt <= w.retries; attempt++ {
		listing, err := w.repo.FindByID(ctx, listingID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil, false, ItemNotFound()
			}
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
		}
		listing.MomentHistory = listing.MomentHistory.Clone()

		changed, err := fn(listing)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return listing, false, nil
		}

		err = w.repo.UpdateHistory(ctx, listing.ID, listing.Version, listing.MomentHistory)
		if err == nil {
			listing.Version++
			return listing, true, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write listing history")
		}
		w.metrics.VersionConflict()
		w.logg.Warn(w.logg.WithFields(ctx, map[string]any{
			"listing_id": listingID.String(),
			"attempt":    attempt,
		}), "history.version_conflict")
	}
	return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "listing history is being updated, retry shortly")
}
