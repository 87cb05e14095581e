package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/ownership"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/dbtest"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/pagination"
)

type fixture struct {
	client   *db.Client
	repo     Repository
	listings listings.Repository
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	f := &fixture{
		client:   client,
		repo:     NewRepository(client.DB()),
		listings: listings.NewRepository(client.DB()),
	}
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	resolver, err := ownership.NewResolver(f.repo, f.listings, client, emitter, 240*time.Hour, nil, nil)
	require.NoError(t, err)
	f.svc, err = NewService(f.repo, f.listings, resolver, client, emitter, nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) order(t *testing.T, status enums.OrderStatus) *models.Order {
	t.Helper()
	listing := &models.Listing{
		OwnerID:     "seller",
		Status:      enums.ListingStatusActive,
		Title:       "Judge rookie card",
		SubjectName: "Aaron Judge",
		Images:      pq.StringArray{"judge.jpg"},
		Price:       decimal.NewNullDecimal(decimal.NewFromInt(500)),
	}
	require.NoError(t, f.listings.Create(context.Background(), listing))
	order := &models.Order{
		ListingID:       listing.ID,
		BuyerID:         "buyer",
		SellerID:        "seller",
		Status:          status,
		TotalAmount:     decimal.NewFromInt(500),
		ShippingDetails: dbtypes.ShippingDetails{RecipientName: "Buyer"},
	}
	require.NoError(t, f.repo.Create(context.Background(), order))
	return order
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestGetVisibleToPartiesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, enums.OrderStatusPending)

	for _, caller := range []string{"buyer", "seller"} {
		got, err := f.svc.Get(ctx, o.ID, caller)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
	}
	_, err := f.svc.Get(ctx, o.ID, "stranger")
	assert.Equal(t, listings.ReasonOrder, pkgerrors.As(err).Reason())
	_, err = f.svc.Get(ctx, uuid.New(), "buyer")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.Get(ctx, o.ID, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCancelKeepsTheRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, enums.OrderStatusPending)

	cancelled, err := f.svc.Cancel(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	stored, err := f.repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderCancelled))

	_, err = f.svc.Cancel(ctx, o.ID, "buyer")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	open, err := f.repo.FindOpenByListing(ctx, o.ListingID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestMarkShipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.order(t, enums.OrderStatusPending)
	_, err := f.svc.MarkShipped(ctx, pending.ID, "seller", ShipInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	paid := f.order(t, enums.OrderStatusPaid)
	_, err = f.svc.MarkShipped(ctx, paid.ID, "buyer", ShipInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	shipped, err := f.svc.MarkShipped(ctx, paid.ID, "seller", ShipInput{TrackingNumber: " 1Z999 ", Carrier: "UPS"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, shipped.Status)

	stored, err := f.repo.FindByID(ctx, paid.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TrackingNumber)
	assert.Equal(t, "1Z999", *stored.TrackingNumber)
	assert.NotNil(t, stored.ShippedAt)
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderShipped))
}

func TestMarkReceivedUnlocksBuyerCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, enums.OrderStatusShipped)
	buyerCopy := &models.Listing{
		OwnerID:       "buyer",
		Status:        enums.ListingStatusCompleted,
		Title:         "Judge rookie card",
		SubjectName:   "Aaron Judge",
		OriginOrderID: &o.ID,
	}
	require.NoError(t, f.listings.Create(ctx, buyerCopy))

	_, err := f.svc.MarkReceived(ctx, o.ID, "seller")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	res, err := f.svc.MarkReceived(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, res.Order.Status)
	require.NotNil(t, res.BuyerCopy)
	assert.Equal(t, buyerCopy.ID, res.BuyerCopy.ID)

	stored, err := f.listings.FindByID(ctx, buyerCopy.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusDraft, stored.Status)

	completed, err := f.repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	require.NotNil(t, completed.DeliveredAt, "shipped orders pass through delivered")
	assert.False(t, completed.DeliveredAt.After(*completed.CompletedAt))
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderCompleted))

	_, err = f.svc.MarkReceived(ctx, o.ID, "buyer")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestMarkReceivedWithoutCopyStillCompletes(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, enums.OrderStatusDelivered)

	res, err := f.svc.MarkReceived(context.Background(), o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, res.Order.Status)
	assert.Nil(t, res.BuyerCopy)
	assert.Nil(t, res.Order.DeliveredAt, "already delivered orders keep their own delivery record")
}

func TestReceiptStepsFollowTheStateMachine(t *testing.T) {
	for _, from := range []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		current := from
		for _, next := range receiptSteps(from) {
			if !current.CanTransitionTo(next) {
				t.Fatalf("receipt from %s takes illegal step %s -> %s", from, current, next)
			}
			current = next
		}
		if current != enums.OrderStatusCompleted {
			t.Fatalf("receipt from %s ends at %s", from, current)
		}
	}
}

func TestRepositoryQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.order(t, enums.OrderStatusPending)
	paid := f.order(t, enums.OrderStatusPaid)
	f.order(t, enums.OrderStatusCancelled)

	stale, err := f.repo.FindPendingBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, pending.ID, stale[0].ID)

	settled, err := f.repo.FindSettledSince(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, paid.ID, settled[0].ID)

	latest, err := f.repo.FindLatestForBuyer(ctx, paid.ListingID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, paid.ID, latest.ID)

	dup := &models.Order{
		ListingID:       pending.ListingID,
		BuyerID:         "other",
		SellerID:        "seller",
		Status:          enums.OrderStatusPending,
		TotalAmount:     decimal.NewFromInt(1),
		ShippingDetails: dbtypes.ShippingDetails{RecipientName: "Other"},
	}
	assert.True(t, IsOpenOrderConflict(f.repo.Create(ctx, dup)))
}

func TestListPagesNewestFirstPerSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		o := f.order(t, enums.OrderStatusPending)
		require.NoError(t, f.client.DB().Model(&models.Order{}).Where("id = ?", o.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
		ids = append(ids, o.ID)
	}

	first, err := f.svc.List(ctx, "buyer", SideBuyer, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, ids[2], first.Items[0].ID)
	assert.Equal(t, ids[1], first.Items[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.List(ctx, "buyer", SideBuyer, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, ids[0], second.Items[0].ID)
	assert.Empty(t, second.NextCursor)

	sales, err := f.svc.List(ctx, "seller", SideSeller, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, sales.Items, 3)

	none, err := f.svc.List(ctx, "seller", SideBuyer, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}

func TestListRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, "buyer", Side("broker"), pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.List(ctx, "buyer", SideBuyer, pagination.Params{Cursor: "!!"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.List(ctx, "", SideBuyer, pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
