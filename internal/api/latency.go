package api

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent /stats latencies in a ring and
// reports percentiles over them. Safe for concurrent use.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64 // milliseconds
	next    int
	filled  int
}

// LatencySnapshot is the JSON body of /debug/latency.
type LatencySnapshot struct {
	Samples int     `json:"samples"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	P99Ms   float64 `json:"p99_ms"`
}

// NewLatencyTracker creates a tracker retaining up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 10000
	}
	return &LatencyTracker{samples: make([]float64, size)}
}

// Observe records one duration.
func (lt *LatencyTracker) Observe(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	lt.mu.Lock()
	lt.samples[lt.next] = ms
	lt.next = (lt.next + 1) % len(lt.samples)
	if lt.filled < len(lt.samples) {
		lt.filled++
	}
	lt.mu.Unlock()
}

// Snapshot returns the sample count and p50/p95/p99. All zero when empty.
func (lt *LatencyTracker) Snapshot() LatencySnapshot {
	lt.mu.Lock()
	n := lt.filled
	sorted := make([]float64, n)
	// Order is irrelevant once sorted, so the ring is copied as is.
	copy(sorted, lt.samples[:n])
	lt.mu.Unlock()

	if n == 0 {
		return LatencySnapshot{}
	}
	sort.Float64s(sorted)
	return LatencySnapshot{
		Samples: n,
		P50Ms:   percentile(sorted, 0.50),
		P95Ms:   percentile(sorted, 0.95),
		P99Ms:   percentile(sorted, 0.99),
	}
}

// ServeHTTP handles GET /debug/latency.
func (lt *LatencyTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lt.Snapshot())
}

// percentile interpolates linearly between closest ranks; p is in [0, 1].
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	if lo+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
