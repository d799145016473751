package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the statistics service.
type Metrics struct {
	ObservationsTotal prometheus.Counter
	RequestsTotal     *prometheus.CounterVec // labels: endpoint, code
	StatsComputeDur   *prometheus.HistogramVec
	WindowSize        prometheus.Histogram
	StoreReadDur      prometheus.Histogram
	StoreErrorsTotal  *prometheus.CounterVec // labels: op

	// Circuit breaker
	StoreBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	StoreBreakerTrips prometheus.Counter

	// Live feed
	FeedClients prometheus.Gauge
	FeedPushes  prometheus.Counter
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ObservationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stats_observations_appended_total",
			Help: "Total observations appended to the store",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stats_http_requests_total",
			Help: "HTTP requests by endpoint and status code",
		}, []string{"endpoint", "code"}),
		StatsComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stats_compute_duration_seconds",
			Help:    "Summary computation latency by strategy",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"strategy"}),
		WindowSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stats_window_size",
			Help:    "Number of observations in each summarised window",
			Buckets: prometheus.ExponentialBuckets(1, 10, 8),
		}),
		StoreReadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stats_store_read_duration_seconds",
			Help:    "Store range-read latency",
			Buckets: prometheus.DefBuckets,
		}),
		StoreErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stats_store_errors_total",
			Help: "Store errors by operation",
		}, []string{"op"}),
		StoreBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stats_store_circuit_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		StoreBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stats_store_circuit_breaker_trips_total",
			Help: "Times the store circuit breaker tripped open",
		}),
		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stats_feed_clients",
			Help: "Connected live feed WebSocket clients",
		}),
		FeedPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stats_feed_pushes_total",
			Help: "Statistics updates pushed to live feed clients",
		}),
	}

	reg.MustRegister(
		m.ObservationsTotal,
		m.RequestsTotal,
		m.StatsComputeDur,
		m.WindowSize,
		m.StoreReadDur,
		m.StoreErrorsTotal,
		m.StoreBreakerState,
		m.StoreBreakerTrips,
		m.FeedClients,
		m.FeedPushes,
	)

	return m
}

// Pinger is satisfied by the series stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus tracks store reachability for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	Backend        string
	StoreOK        bool
	StoreLatencyMs float64
	BreakerState   string
	LastCheckAt    time.Time
	StartedAt      time.Time

	store   Pinger
	breaker func() string
}

// NewHealthStatus returns a health tracker for the named backend.
// breaker may be nil when the backend has no circuit breaker.
func NewHealthStatus(backend string, store Pinger, breaker func() string) *HealthStatus {
	return &HealthStatus{
		Backend:   backend,
		StartedAt: time.Now(),
		store:     store,
		breaker:   breaker,
	}
}

// Check pings the store and records latency and connectivity.
func (h *HealthStatus) Check(ctx context.Context) {
	start := time.Now()
	err := h.store.Ping(ctx)
	latency := time.Since(start)

	breaker := ""
	if h.breaker != nil {
		breaker = h.breaker()
	}

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.BreakerState = breaker
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic store checks until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.Check(probeCtx)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. It probes the store inline so the
// answer never depends on the checker having run.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	h.Check(ctx)
	cancel()

	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.StoreOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if h.BreakerState != "" && h.BreakerState != "closed" {
		overallStatus = "degraded"
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		Backend        string  `json:"backend"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		BreakerState   string  `json:"breaker_state,omitempty"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		Backend:        h.Backend,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		BreakerState:   h.BreakerState,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
