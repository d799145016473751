package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig lists the handlers mounted next to the Server endpoints.
type RouterConfig struct {
	Server   *Server
	Health   http.Handler        // GET /healthz
	Feed     *Feed               // GET /ws/stats, optional
	Gatherer prometheus.Gatherer // GET /metrics, optional
	Latency  *LatencyTracker     // GET /debug/latency, optional
}

// NewRouter sets up HTTP routes for the statistics service.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	s := cfg.Server

	mux.HandleFunc("/add", withCORS(s.instrument("/add", s.handleAdd)))
	mux.HandleFunc("/add_batch", withCORS(s.instrument("/add_batch", s.handleAddBatch)))
	mux.HandleFunc("/stats", withCORS(s.instrument("/stats", s.handleStats)))

	if cfg.Health != nil {
		mux.Handle("/healthz", cfg.Health)
	}
	if cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Latency != nil {
		mux.Handle("/debug/latency", cfg.Latency)
	}
	if cfg.Feed != nil {
		mux.HandleFunc("/ws/stats", cfg.Feed.ServeWS)
	}

	return withRequestLogging(mux)
}
