// Package app assembles the marketplace services from infrastructure
// clients so every binary wires them the same way.
package app

import (
	"fmt"

	checkoutsvc "github.com/stadiumcard/stadiumcard-backend/internal/checkout"
	"github.com/stadiumcard/stadiumcard-backend/internal/fulfillment"
	"github.com/stadiumcard/stadiumcard-backend/internal/history"
	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/memories"
	"github.com/stadiumcard/stadiumcard-backend/internal/moments"
	ordersvc "github.com/stadiumcard/stadiumcard-backend/internal/orders"
	"github.com/stadiumcard/stadiumcard-backend/internal/ownership"
	"github.com/stadiumcard/stadiumcard-backend/internal/profiles"
	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/redis"
)

// Params are the shared clients a binary has already opened. Redis and
// Metrics are optional.
type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   *redis.Client
	Metrics *metrics.MarketplaceMetrics
}

// Domain holds the wired repositories and services.
type Domain struct {
	ListingRepo listings.Repository
	OrderRepo   ordersvc.Repository
	MomentRepo  moments.Repository
	OutboxRepo  *outbox.Repository
	DLQRepo     *outbox.DLQRepository
	Outbox      *outbox.Service

	History     *listings.HistoryWriter
	Snapshotter *moments.Snapshotter
	Resolver    *ownership.Resolver
	Poller      *ownership.Poller
	Reconciler  *history.Reconciler
	Detail      *history.DetailView
	Authors     *profiles.Directory
	Payments    *fulfillment.Applier

	Listings listings.Service
	Checkout checkoutsvc.Service
	Orders   ordersvc.Service
	Memories memories.Service
	Moments  moments.Service
}

// NewDomain builds every marketplace service over one database client.
func NewDomain(p Params) (*Domain, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if p.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	prov := p.Config.Provenance
	gdb := p.DB.DB()

	d := &Domain{
		ListingRepo: listings.NewRepository(gdb),
		OrderRepo:   ordersvc.NewRepository(gdb),
		MomentRepo:  moments.NewRepository(gdb),
		OutboxRepo:  outbox.NewRepository(gdb),
		DLQRepo:     outbox.NewDLQRepository(gdb),
	}
	d.Outbox = outbox.NewService(d.OutboxRepo, logg)

	var err error
	if d.History, err = listings.NewHistoryWriter(d.ListingRepo, prov.HistoryRetries, p.Metrics, logg); err != nil {
		return nil, fmt.Errorf("history writer: %w", err)
	}
	if d.Snapshotter, err = moments.NewSnapshotter(d.MomentRepo); err != nil {
		return nil, fmt.Errorf("snapshotter: %w", err)
	}
	if d.Authors, err = profiles.NewDirectory(profiles.NewRepository(gdb), logg); err != nil {
		return nil, fmt.Errorf("author directory: %w", err)
	}
	if d.Resolver, err = ownership.NewResolver(d.OrderRepo, d.ListingRepo, p.DB, d.Outbox, prov.CloneSearchWindow, p.Metrics, logg); err != nil {
		return nil, fmt.Errorf("ownership resolver: %w", err)
	}
	if d.Poller, err = ownership.NewPoller(d.Resolver, prov.CopyPollInterval, prov.CopyPollAttempts, logg); err != nil {
		return nil, fmt.Errorf("copy poller: %w", err)
	}
	if d.Reconciler, err = history.NewReconciler(d.History, p.Metrics, logg); err != nil {
		return nil, fmt.Errorf("history reconciler: %w", err)
	}

	if d.Listings, err = listings.NewService(d.ListingRepo, p.DB, d.Outbox, d.History, logg); err != nil {
		return nil, fmt.Errorf("listing service: %w", err)
	}
	if d.Detail, err = history.NewDetailView(d.Listings, d.OrderRepo, d.Reconciler, d.Snapshotter, prov.SnapshotLookback, logg); err != nil {
		return nil, fmt.Errorf("detail view: %w", err)
	}

	checkoutDeps := checkoutsvc.Deps{
		Listings:    d.ListingRepo,
		Orders:      d.OrderRepo,
		Snapshotter: d.Snapshotter,
		Tx:          p.DB,
		Outbox:      d.Outbox,
		Metrics:     p.Metrics,
		Logger:      logg,
		Lookback:    prov.SnapshotLookback,
		RateLimits:  p.Config.Reservation,
	}
	if p.Redis != nil {
		checkoutDeps.Limiter = p.Redis
	}
	if d.Checkout, err = checkoutsvc.NewService(checkoutDeps); err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}
	if d.Orders, err = ordersvc.NewService(d.OrderRepo, d.ListingRepo, d.Resolver, p.DB, d.Outbox, logg); err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	if d.Memories, err = memories.NewService(d.History, d.OrderRepo, d.MomentRepo, d.Authors, prov.MemoryMaxLength, logg); err != nil {
		return nil, fmt.Errorf("memory service: %w", err)
	}
	if d.Payments, err = fulfillment.NewApplier(d.OrderRepo, d.ListingRepo, p.DB, d.Outbox, logg); err != nil {
		return nil, fmt.Errorf("payment applier: %w", err)
	}
	if d.Moments, err = moments.NewService(d.MomentRepo, d.ListingRepo, d.History, p.DB, d.Outbox, logg); err != nil {
		return nil, fmt.Errorf("moment service: %w", err)
	}
	return d, nil
}
