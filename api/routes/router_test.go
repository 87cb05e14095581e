package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/stadiumcard/stadiumcard-backend/api/controllers"
	checkoutsvc "github.com/stadiumcard/stadiumcard-backend/internal/checkout"
	"github.com/stadiumcard/stadiumcard-backend/internal/history"
	"github.com/stadiumcard/stadiumcard-backend/internal/moments"
	"github.com/stadiumcard/stadiumcard-backend/internal/ownership"
	pkgAuth "github.com/stadiumcard/stadiumcard-backend/pkg/auth"
	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, counts: map[string]int64{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (c *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = value.(string)
	return true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value.(string)
	return nil
}

func (c *memoryCache) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (c *memoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

func (c *memoryCache) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

type stubDetail struct{ listing *models.Listing }

func (s stubDetail) Get(context.Context, uuid.UUID, string, []string) (*history.Detail, error) {
	return &history.Detail{Listing: s.listing, Moments: nil}, nil
}

type stubCheckout struct{ calls int }

func (s *stubCheckout) Reserve(_ context.Context, listingID uuid.UUID, buyerID string, shipping dbtypes.ShippingDetails) (*checkoutsvc.Reservation, error) {
	s.calls++
	return &checkoutsvc.Reservation{Order: &models.Order{
		ID:              uuid.New(),
		ListingID:       listingID,
		BuyerID:         buyerID,
		Status:          enums.OrderStatusPending,
		ShippingDetails: shipping,
	}}, nil
}

type stubCopies struct{}

func (stubCopies) Resolve(context.Context, uuid.UUID, string) (*ownership.Resolution, error) {
	return &ownership.Resolution{}, nil
}

type stubMoments struct{ moments.Service }

func (stubMoments) Create(_ context.Context, input moments.CreateInput) (*models.LiveMoment, bool, error) {
	return &models.LiveMoment{ID: input.ID, Title: input.Title}, true, nil
}

type routerFixture struct {
	handler  http.Handler
	checkout *stubCheckout
	cfg      *config.Config
}

func newRouterFixture(t *testing.T, readiness map[string]controllers.Pinger) routerFixture {
	t.Helper()
	cfg := &config.Config{
		App:        config.AppConfig{Env: "test"},
		JWT:        config.JWTConfig{Secret: "secret", Issuer: "stadiumcard", ExpirationMinutes: 60},
		RateLimit:  config.RateLimitConfig{Enabled: true, Window: time.Minute, WritesPerUser: 100, ReadsPerClient: 100},
		Provenance: config.ProvenanceConfig{CopyPollInterval: 2 * time.Second},
	}
	checkout := &stubCheckout{}
	svcs := Services{
		Detail:   stubDetail{listing: &models.Listing{ID: uuid.New(), OwnerID: "seller-1", Status: enums.ListingStatusActive}},
		Checkout: checkout,
		Copies:   stubCopies{},
		Moments:  stubMoments{},
	}
	metricsHandler := promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	handler := NewRouter(cfg, logger.Nop(), newMemoryCache(), readiness, metricsHandler, svcs)
	return routerFixture{handler: handler, checkout: checkout, cfg: cfg}
}

func (f routerFixture) token(t *testing.T, userID string, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(f.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	f := newRouterFixture(t, map[string]controllers.Pinger{"db": stubPinger{}})

	live := f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if live.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", live.Code)
	}
	if live.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}

	ready := f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if ready.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", ready.Code)
	}

	metrics := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if metrics.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", metrics.Code)
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	f := newRouterFixture(t, map[string]controllers.Pinger{"redis": stubPinger{err: errors.New("down")}})

	resp := f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestListingDetailAllowsAnonymousViewers(t *testing.T) {
	f := newRouterFixture(t, nil)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/listings/"+uuid.NewString(), nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"is_owner":false`) {
		t.Fatalf("expected anonymous viewer to not own the listing: %s", resp.Body.String())
	}
}

func TestOrderRoutesRequireAuth(t *testing.T) {
	f := newRouterFixture(t, nil)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/copy", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderCopyAnswersSyncing(t *testing.T) {
	f := newRouterFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/copy", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "buyer-1", enums.RoleUser))
	resp := f.do(req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"retryAfterMs":2000`) {
		t.Fatalf("expected retry hint in body: %s", resp.Body.String())
	}
}

func TestReserveReplaysWithIdempotencyKey(t *testing.T) {
	f := newRouterFixture(t, nil)
	token := f.token(t, "buyer-1", enums.RoleUser)
	path := "/api/v1/listings/" + uuid.NewString() + "/reserve"
	body := `{"shipping_details":{"recipient_name":"Sam Buyer","line1":"1 Main St","city":"Austin","state":"TX","postal_code":"78701"}}`

	missingKey := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	missingKey.Header.Set("Authorization", "Bearer "+token)
	if resp := f.do(missingKey); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", resp.Code)
	}

	var first, second *httptest.ResponseRecorder
	for i := range 2 {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "reserve-1")
		resp := f.do(req)
		if i == 0 {
			first = resp
		} else {
			second = resp
		}
	}
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatal("expected replayed body to match")
	}
	if f.checkout.calls != 1 {
		t.Fatalf("expected one reservation, got %d", f.checkout.calls)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newRouterFixture(t, nil)
	body := `{"moment_id":"walkoff-1","title":"Walk-off","subject_name":"J. Rivera","intensity":5}`

	userReq := httptest.NewRequest(http.MethodPost, "/api/admin/v1/moments", strings.NewReader(body))
	userReq.Header.Set("Authorization", "Bearer "+f.token(t, "user-1", enums.RoleUser))
	userReq.Header.Set("Idempotency-Key", "m-1")
	if resp := f.do(userReq); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", resp.Code)
	}

	adminReq := httptest.NewRequest(http.MethodPost, "/api/admin/v1/moments", strings.NewReader(body))
	adminReq.Header.Set("Authorization", "Bearer "+f.token(t, "admin-1", enums.RoleAdmin))
	adminReq.Header.Set("Idempotency-Key", "m-1")
	resp := f.do(adminReq)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d: %s", resp.Code, resp.Body.String())
	}
}
