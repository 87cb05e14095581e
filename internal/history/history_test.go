package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/orders"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/dbtest"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/visibility"
)

type stubLive struct {
	moments []dbtypes.Moment
	err     error
}

func (s *stubLive) Snapshot(context.Context, string, time.Duration) ([]dbtypes.Moment, error) {
	out := make([]dbtypes.Moment, len(s.moments))
	copy(out, s.moments)
	return out, s.err
}

type fixture struct {
	client     *db.Client
	listings   listings.Repository
	orders     orders.Repository
	reconciler *Reconciler
	live       *stubLive
	view       *DetailView
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	f := &fixture{
		client:   client,
		listings: listings.NewRepository(client.DB()),
		orders:   orders.NewRepository(client.DB()),
		live:     &stubLive{},
	}
	writer, err := listings.NewHistoryWriter(f.listings, 3, nil, nil)
	require.NoError(t, err)
	f.reconciler, err = NewReconciler(writer, nil, nil)
	require.NoError(t, err)
	listingSvc, err := listings.NewService(f.listings, client, outbox.NewService(outbox.NewRepository(client.DB()), nil), writer, nil)
	require.NoError(t, err)
	f.view, err = NewDetailView(listingSvc, f.orders, f.reconciler, f.live, time.Hour, nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) listing(t *testing.T, l models.Listing) *models.Listing {
	t.Helper()
	if l.Title == "" {
		l.Title = "Ohtani card"
	}
	if l.SubjectName == "" {
		l.SubjectName = "Shohei Ohtani"
	}
	if l.Status == "" {
		l.Status = enums.ListingStatusActive
	}
	l.Price = decimal.NewNullDecimal(decimal.NewFromInt(30000))
	require.NoError(t, f.listings.Create(context.Background(), &l))
	return &l
}

func (f *fixture) order(t *testing.T, listingID uuid.UUID, buyer string, status enums.OrderStatus, snapshot ...dbtypes.Moment) *models.Order {
	t.Helper()
	o := &models.Order{
		ListingID:       listingID,
		BuyerID:         buyer,
		SellerID:        "seller",
		Status:          status,
		TotalAmount:     decimal.NewFromInt(30000),
		ShippingDetails: dbtypes.ShippingDetails{RecipientName: buyer},
		MomentSnapshot:  dbtypes.NewMomentSnapshot(snapshot),
	}
	require.NoError(t, f.orders.Create(context.Background(), o))
	return o
}

// buyerCopy seeds a sold listing, its paid order and the linked buyer copy.
func (f *fixture) buyerCopy(t *testing.T, snapshot ...dbtypes.Moment) (*models.Listing, *models.Order) {
	t.Helper()
	original := f.listing(t, models.Listing{OwnerID: "seller", Status: enums.ListingStatusCompleted})
	order := f.order(t, original.ID, "buyer", enums.OrderStatusPaid, snapshot...)
	copyListing := f.listing(t, models.Listing{OwnerID: "buyer", Status: enums.ListingStatusCompleted, OriginOrderID: &order.ID})
	return copyListing, order
}

func TestReconcileRecognisesLegacyIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	copyListing, order := f.buyerCopy(t, dbtypes.Moment{ID: "m1", Title: "walk-off"})

	require.NoError(t, f.client.DB().Exec(
		"UPDATE listings SET moment_history = ? WHERE id = ?",
		`[{"id":"m1","title":"walk-off","memories":[]}]`, copyListing.ID,
	).Error)

	listing, appended, err := f.reconciler.Reconcile(ctx, copyListing.ID, order)
	require.NoError(t, err)
	assert.Zero(t, appended)
	require.Len(t, listing.MomentHistory, 1)
	assert.Equal(t, "m1", listing.MomentHistory[0].ID)
	assert.Equal(t, 1, listing.Version)
}

func TestReconcileTwiceIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	copyListing, order := f.buyerCopy(t,
		dbtypes.Moment{ID: "m1", Title: "homer"},
		dbtypes.Moment{ID: "m2", Title: "steal"},
		dbtypes.Moment{ID: "m1", Title: "homer again"},
	)

	first, appended, err := f.reconciler.Reconcile(ctx, copyListing.ID, order)
	require.NoError(t, err)
	assert.Equal(t, 2, appended)
	require.Len(t, first.MomentHistory, 2)
	assert.Equal(t, enums.MomentStatusFinalized, first.MomentHistory[0].Status)
	assert.Equal(t, order.ID, *first.MomentHistory[1].OwnerAtTime)

	second, appended, err := f.reconciler.Reconcile(ctx, copyListing.ID, order)
	require.NoError(t, err)
	assert.Zero(t, appended)
	assert.Equal(t, first.Version, second.Version)

	stored, err := f.listings.FindByID(ctx, copyListing.ID)
	require.NoError(t, err)
	assert.Len(t, stored.MomentHistory, 2)
}

func TestReconcileEmptySnapshotWritesNothing(t *testing.T) {
	f := newFixture(t)
	copyListing, order := f.buyerCopy(t)

	listing, appended, err := f.reconciler.Reconcile(context.Background(), copyListing.ID, order)
	require.NoError(t, err)
	assert.Zero(t, appended)
	assert.Equal(t, 1, listing.Version)
}

func TestDetailReconcilesBuyerCopyOnRead(t *testing.T) {
	f := newFixture(t)
	copyListing, _ := f.buyerCopy(t, dbtypes.Moment{ID: "m1", Title: "homer"})

	detail, err := f.view.Get(context.Background(), copyListing.ID, "buyer", nil)
	require.NoError(t, err)
	assert.True(t, detail.IsOwner)
	assert.False(t, detail.HistoryUnavailable)
	require.Len(t, detail.Moments, 1)
	assert.False(t, detail.Moments[0].IsVirtual)
}

func TestDetailOverlaysLiveMoments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, models.Listing{OwnerID: "seller"})
	f.live.moments = []dbtypes.Moment{
		{ID: "held", Title: "first homer", Status: enums.MomentStatusLive},
		{ID: "fresh", Title: "second homer", Status: enums.MomentStatusLive},
	}
	order := f.order(t, l.ID, "buyer", enums.OrderStatusPending, dbtypes.Moment{ID: "held", Title: "first homer"})

	seller, err := f.view.Get(ctx, l.ID, "seller", nil)
	require.NoError(t, err)
	require.Len(t, seller.Moments, 2)
	assert.True(t, seller.Moments[0].IsVirtual)
	assert.True(t, seller.Moments[1].IsVirtual)

	buyer, err := f.view.Get(ctx, l.ID, "buyer", nil)
	require.NoError(t, err)
	require.Len(t, buyer.Moments, 2)
	assert.False(t, buyer.Moments[0].IsVirtual)
	require.NotNil(t, buyer.Moments[0].OwnerAtTime)
	assert.Equal(t, order.ID, *buyer.Moments[0].OwnerAtTime)
	assert.True(t, buyer.Moments[1].IsVirtual)

	anon, err := f.view.Get(ctx, l.ID, "", nil)
	require.NoError(t, err)
	assert.Len(t, anon.Moments, 2)

	stored, err := f.listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MomentHistory)
}

func TestDetailSkipsOverlayWhenNotForSale(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, models.Listing{OwnerID: "seller", Status: enums.ListingStatusDisplay})
	f.live.moments = []dbtypes.Moment{{ID: "fresh"}}

	detail, err := f.view.Get(context.Background(), l.ID, "seller", nil)
	require.NoError(t, err)
	assert.Empty(t, detail.Moments)
}

func TestDetailSurvivesLiveFeedFailure(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, models.Listing{OwnerID: "seller"})
	f.live.err = errors.New("feed down")

	detail, err := f.view.Get(context.Background(), l.ID, "seller", nil)
	require.NoError(t, err)
	assert.Empty(t, detail.Moments)
}

func TestDetailRedactsHiddenMemories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, models.Listing{OwnerID: "owner", Status: enums.ListingStatusDisplay})
	history := dbtypes.MomentHistory{{
		ID:       "m1",
		Memories: []dbtypes.Memory{{ID: "mem", AuthorID: "fan", Text: "was there", IsHidden: true}},
	}}
	require.NoError(t, f.listings.UpdateHistory(ctx, l.ID, 1, history))

	stranger, err := f.view.Get(ctx, l.ID, "stranger", nil)
	require.NoError(t, err)
	require.Len(t, stranger.Moments[0].Memories, 1)
	assert.Equal(t, visibility.HiddenPlaceholder, stranger.Moments[0].Memories[0].Text)

	peeking, err := f.view.Get(ctx, l.ID, "stranger", []string{"mem"})
	require.NoError(t, err)
	assert.Equal(t, "was there", peeking.Moments[0].Memories[0].Text)
	assert.False(t, peeking.Moments[0].Memories[0].CanDelete)
}
