package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/visibility"
)

type listingReader interface {
	Get(ctx context.Context, id uuid.UUID, viewerID string) (*models.Listing, error)
}

type orderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindLatestForBuyer(ctx context.Context, listingID uuid.UUID, buyerID string) (*models.Order, error)
}

type liveSource interface {
	Snapshot(ctx context.Context, subjectName string, lookback time.Duration) ([]dbtypes.Moment, error)
}

// Detail is a listing rendered for one viewer.
type Detail struct {
	Listing            *models.Listing         `json:"-"`
	IsOwner            bool                    `json:"is_owner"`
	Moments            []visibility.MomentView `json:"moments"`
	HistoryUnavailable bool                    `json:"history_unavailable,omitempty"`
}

// DetailView reconciles a buyer copy on read and overlays currently live
// moments on listings that are still for sale.
type DetailView struct {
	listings   listingReader
	orders     orderReader
	reconciler *Reconciler
	live       liveSource
	lookback   time.Duration
	logg       *logger.Logger
}

func NewDetailView(listings listingReader, orders orderReader, reconciler *Reconciler, live liveSource, lookback time.Duration, logg *logger.Logger) (*DetailView, error) {
	if listings == nil {
		return nil, fmt.Errorf("listing reader required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if live == nil {
		return nil, fmt.Errorf("live moment source required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &DetailView{listings: listings, orders: orders, reconciler: reconciler, live: live, lookback: lookback, logg: logg}, nil
}

// Get renders the listing for viewerID, which may be empty for anonymous
// readers. peek lists hidden memory ids the viewer chose to reveal.
func (d *DetailView) Get(ctx context.Context, listingID uuid.UUID, viewerID string, peek []string) (*Detail, error) {
	listing, err := d.listings.Get(ctx, listingID, viewerID)
	if err != nil {
		return nil, err
	}
	viewerID = strings.TrimSpace(viewerID)
	out := &Detail{Listing: listing, IsOwner: viewerID != "" && listing.OwnerID == viewerID}
	logCtx := d.logg.WithListingID(ctx, listingID.String())

	if listing.OriginOrderID != nil {
		if reconciled, ok := d.reconcile(logCtx, listing); ok {
			listing = reconciled
			out.Listing = reconciled
		} else {
			out.HistoryUnavailable = true
		}
	}

	moments := []dbtypes.Moment(listing.MomentHistory.Clone())
	if listing.Status == enums.ListingStatusActive && !listing.IsDeleted() {
		moments = append(moments, d.overlay(logCtx, listing, viewerID)...)
	}
	out.Moments = visibility.Render(visibility.NewViewer(viewerID, out.IsOwner, peek), moments)
	return out, nil
}

func (d *DetailView) reconcile(ctx context.Context, listing *models.Listing) (*models.Listing, bool) {
	order, err := d.orders.FindByID(ctx, *listing.OriginOrderID)
	if err != nil {
		if db.IsNotFound(err) {
			d.logg.Warn(ctx, "history.origin_order_missing")
			return listing, true
		}
		d.logg.Error(ctx, "history.origin_order_load_failed", err)
		return listing, false
	}
	reconciled, _, err := d.reconciler.Reconcile(ctx, listing.ID, order)
	if err != nil {
		return listing, false
	}
	return reconciled, true
}

// overlay returns the live moments not yet in the listing history. A moment
// already frozen on the viewer's own order is shown as real; anything else
// is virtual and read-only.
func (d *DetailView) overlay(ctx context.Context, listing *models.Listing, viewerID string) []dbtypes.Moment {
	live, err := d.live.Snapshot(ctx, listing.SubjectName, d.lookback)
	if err != nil {
		d.logg.Warn(ctx, "history.live_overlay_unavailable")
		return nil
	}
	if len(live) == 0 {
		return nil
	}

	var held *models.Order
	if viewerID != "" && viewerID != listing.OwnerID {
		held, err = d.orders.FindLatestForBuyer(ctx, listing.ID, viewerID)
		if err != nil && !db.IsNotFound(err) {
			d.logg.Warn(ctx, "history.viewer_order_lookup_failed")
		}
	}

	out := make([]dbtypes.Moment, 0, len(live))
	for _, m := range live {
		if listing.MomentHistory.Contains(m.ID) {
			continue
		}
		if held != nil {
			if frozen, ok := held.MomentSnapshot.Find(m.ID); ok {
				bound := frozen.Clone()
				owner := held.ID
				bound.OwnerAtTime = &owner
				out = append(out, bound)
				continue
			}
		}
		m.IsVirtual = true
		out = append(out, m)
	}
	return out
}
