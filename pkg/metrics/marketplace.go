package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reservation outcomes.
const (
	ReserveCreated   = "created"
	ReserveRefreshed = "refreshed"
	ReserveConflict  = "conflict"
	ReserveRace      = "race_lost"
	ReserveRejected  = "rejected"
)

// Buyer copy resolution paths.
const (
	ResolvePinpoint = "pinpoint"
	ResolveHealed   = "self_healed"
	ResolvePending  = "not_ready"
)

// MarketplaceMetrics tracks the reservation, ownership and provenance flows.
type MarketplaceMetrics struct {
	reservations      *prometheus.CounterVec
	resolutions       *prometheus.CounterVec
	momentsAppended   prometheus.Counter
	versionConflicts  prometheus.Counter
	stalePending      prometheus.Gauge
	liveMomentsIngest *prometheus.CounterVec
}

// NewMarketplaceMetrics registers the domain metrics. A nil registerer
// returns a no-op recorder.
func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	m := &MarketplaceMetrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reserve attempts by outcome.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buyer_copy_resolutions_total",
			Help:      "Buyer copy lookups by resolution path.",
		}, []string{"path"}),
		momentsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_moments_appended_total",
			Help:      "Snapshot moments folded into listing history.",
		}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_version_conflicts_total",
			Help:      "Optimistic history writes that lost to a concurrent writer.",
		}),
		stalePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_pending_orders",
			Help:      "Pending orders older than the configured threshold at the last sweep.",
		}),
		liveMomentsIngest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_moments_ingested_total",
			Help:      "Live moment feed messages by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.reservations, m.resolutions, m.momentsAppended, m.versionConflicts, m.stalePending, m.liveMomentsIngest)
	return m
}

func (m *MarketplaceMetrics) Reservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *MarketplaceMetrics) Resolution(path string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(path)).Inc()
}

func (m *MarketplaceMetrics) MomentsAppended(n int) {
	if m == nil || m.momentsAppended == nil || n <= 0 {
		return
	}
	m.momentsAppended.Add(float64(n))
}

func (m *MarketplaceMetrics) VersionConflict() {
	if m == nil || m.versionConflicts == nil {
		return
	}
	m.versionConflicts.Inc()
}

func (m *MarketplaceMetrics) SetStalePending(n int) {
	if m == nil || m.stalePending == nil {
		return
	}
	m.stalePending.Set(float64(n))
}

func (m *MarketplaceMetrics) LiveMomentIngested(result string) {
	if m == nil || m.liveMomentsIngest == nil {
		return
	}
	m.liveMomentsIngest.WithLabelValues(normalizeLabel(result)).Inc()
}
