package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stadiumcard/stadiumcard-backend/api/controllers"
	"github.com/stadiumcard/stadiumcard-backend/api/middleware"
	checkoutsvc "github.com/stadiumcard/stadiumcard-backend/internal/checkout"
	"github.com/stadiumcard/stadiumcard-backend/internal/listings"
	"github.com/stadiumcard/stadiumcard-backend/internal/memories"
	"github.com/stadiumcard/stadiumcard-backend/internal/moments"
	ordersvc "github.com/stadiumcard/stadiumcard-backend/internal/orders"
	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// Cache is the redis surface the HTTP stack needs for replay protection and
// request counting.
type Cache interface {
	middleware.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Services groups the domain services mounted under /api.
type Services struct {
	Listings listings.Service
	Detail   controllers.DetailReader
	Checkout checkoutsvc.Service
	Orders   ordersvc.Service
	Copies   controllers.CopyResolver
	Memories memories.Service
	Moments  moments.Service
}

// NewRouter builds the chi router for the API server.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	cache Cache,
	readiness map[string]controllers.Pinger,
	metricsHandler http.Handler,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	writePolicy := middleware.RateLimitPolicy{}
	readPolicy := middleware.RateLimitPolicy{}
	if cfg.RateLimit.Enabled {
		writePolicy = middleware.NewRateLimitPolicy("api-write", cfg.RateLimit.Window, cfg.RateLimit.WritesPerUser)
		readPolicy = middleware.NewRateLimitPolicy("api-read", cfg.RateLimit.Window, cfg.RateLimit.ReadsPerClient)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(
				middleware.OptionalAuth(cfg.JWT, logg),
				middleware.RateLimit(readPolicy, cache, logg),
			)
			r.Get("/listings/{listingID}", controllers.ListingDetail(svcs.Detail, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.Auth(cfg.JWT, logg),
				middleware.RateLimit(writePolicy, cache, logg),
				middleware.Idempotency(cache, logg),
			)

			r.Patch("/listings/{listingID}/status", controllers.SetListingStatus(svcs.Listings, logg))
			r.Delete("/listings/{listingID}", controllers.DeleteListing(svcs.Listings, logg))
			r.Post("/listings/{listingID}/restore", controllers.RestoreListing(svcs.Listings, logg))
			r.Post("/listings/{listingID}/moments/hide", controllers.ToggleMomentHidden(svcs.Listings, logg))
			r.Post("/listings/{listingID}/reserve", controllers.Reserve(svcs.Checkout, logg))

			r.Post("/listings/{listingID}/memories", controllers.CreateMemory(svcs.Memories, logg))
			r.Patch("/listings/{listingID}/memories/{memoryID}", controllers.EditMemory(svcs.Memories, logg))
			r.Delete("/listings/{listingID}/memories/{memoryID}", controllers.DeleteMemory(svcs.Memories, logg))
			r.Post("/listings/{listingID}/memories/{memoryID}/hide", controllers.ToggleMemoryHidden(svcs.Memories, logg))

			r.Get("/orders", controllers.ListOrders(svcs.Orders, logg))
			r.Get("/orders/{orderID}", controllers.GetOrder(svcs.Orders, logg))
			r.Get("/orders/{orderID}/copy", controllers.OrderCopy(svcs.Copies, cfg.Provenance.CopyPollInterval, logg))
			r.Post("/orders/{orderID}/cancel", controllers.CancelOrder(svcs.Orders, logg))
			r.Post("/orders/{orderID}/ship", controllers.ShipOrder(svcs.Orders, logg))
			r.Post("/orders/{orderID}/receive", controllers.ReceiveOrder(svcs.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(logg, enums.RoleAdmin),
		)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(cache, logg))
			r.Post("/moments", controllers.AdminCreateMoment(svcs.Moments, logg))
			r.Post("/moments/{momentID}/finalize", controllers.AdminFinalizeMoment(svcs.Moments, logg))
		})
	})

	return r
}
