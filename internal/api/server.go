// Package api serves the observation and statistics HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"stockanalysis/internal/logger"
	"stockanalysis/internal/metrics"
	"stockanalysis/internal/model"
	"stockanalysis/internal/stats"
	redisstore "stockanalysis/internal/store/redis"
	"stockanalysis/internal/window"
)

const (
	maxAddBody   = 1 << 20
	maxBatchBody = 256 << 20
)

// ErrNoData is returned by Summarise when the window holds no observations.
var ErrNoData = errors.New("no data for symbol")

// Options wires a Server.
type Options struct {
	Reader   *window.Reader
	Selector *stats.Selector
	Metrics  *metrics.Metrics
	Latency  *LatencyTracker // optional

	// Timeout bounds store I/O per request.
	Timeout time.Duration

	// Notify is called with the symbol after every successful append.
	// Used for the live feed when the store cannot announce appends itself.
	Notify func(symbol string)
}

// Server implements /add, /add_batch and /stats.
type Server struct {
	reader   *window.Reader
	selector *stats.Selector
	metrics  *metrics.Metrics
	latency  *LatencyTracker
	timeout  time.Duration
	notify   func(string)
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		reader:   opts.Reader,
		selector: opts.Selector,
		metrics:  opts.Metrics,
		latency:  opts.Latency,
		timeout:  timeout,
		notify:   opts.Notify,
	}
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body addRequest
	if err := decodeJSON(w, r, &body, maxAddBody); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.toDataPoint()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.reader.Append(ctx, req.Symbol, req.Value); err != nil {
		s.writeStoreError(w, r, "append", err)
		return
	}

	s.metrics.ObservationsTotal.Inc()
	s.appended(req.Symbol)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body batchRequest
	if err := decodeJSON(w, r, &body, maxBatchBody); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.toBatchData()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.reader.AppendBatch(ctx, req.Symbol, req.Values); err != nil {
		s.writeStoreError(w, r, "append_batch", err)
		return
	}

	s.metrics.ObservationsTotal.Add(float64(len(req.Values)))
	s.appended(req.Symbol)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	symbol := q.Get("symbol")
	if err := validateSymbol(symbol); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	k, err := parseK(q.Get("k"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	resp, _, err := s.summarise(r.Context(), symbol, k, true)
	if err == nil && s.latency != nil {
		s.latency.Observe(time.Since(start))
	}
	switch {
	case errors.Is(err, ErrNoData):
		writeError(w, http.StatusNotFound, fmt.Sprintf("no data for symbol %q", symbol))
		return
	case err != nil:
		s.writeStoreError(w, r, "read", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Summarise reads the last 10^k observations of symbol and computes their
// statistics. It returns the window length alongside the statistics, and
// ErrNoData when the window is empty. Only the store read is bounded by the
// request timeout. Background callers such as the live feed use it; their
// computations are not recorded in the request metrics.
func (s *Server) Summarise(ctx context.Context, symbol string, k int) (model.StatsResponse, int, error) {
	return s.summarise(ctx, symbol, k, false)
}

// summarise implements Summarise. record selects whether compute duration and
// window size are observed; only /stats requests set it.
func (s *Server) summarise(ctx context.Context, symbol string, k int, record bool) (model.StatsResponse, int, error) {
	start := time.Now()

	readCtx, cancel := context.WithTimeout(ctx, s.timeout)
	values, err := s.reader.ReadWindow(readCtx, symbol, window.CountForExponent(k))
	cancel()
	s.metrics.StoreReadDur.Observe(time.Since(start).Seconds())
	if err != nil {
		return model.StatsResponse{}, 0, err
	}
	if len(values) == 0 {
		return model.StatsResponse{}, 0, ErrNoData
	}

	calc, strategy := s.selector.Select(len(values))
	computeStart := time.Now()
	sum := calc.Summarise(values)
	if record {
		s.metrics.StatsComputeDur.WithLabelValues(string(strategy)).Observe(time.Since(computeStart).Seconds())
		s.metrics.WindowSize.Observe(float64(len(values)))
	}
	slog.Debug("stats computed",
		append(logger.LogAttrs(ctx),
			"symbol", symbol,
			"k", k,
			"window", len(values),
			"strategy", strategy,
		)...)

	return model.StatsResponse{
		Min:      sum.Min,
		Max:      sum.Max,
		Last:     sum.Last,
		Avg:      sum.Average,
		Variance: sum.Variance,
	}, len(values), nil
}

func (s *Server) appended(symbol string) {
	if s.notify != nil {
		s.notify(symbol)
	}
}

// writeStoreError maps a store failure to a response: 503 while the circuit
// breaker is open, 500 otherwise.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.metrics.StoreErrorsTotal.WithLabelValues(op).Inc()

	status := http.StatusInternalServerError
	msg := "store error"
	if errors.Is(err, redisstore.ErrCircuitOpen) {
		status = http.StatusServiceUnavailable
		msg = "store unavailable"
	}
	slog.Error("store operation failed",
		append(logger.LogAttrs(r.Context()),
			"op", op,
			"status", status,
			"error", err,
		)...)
	writeError(w, status, msg)
}

// decodeJSON decodes exactly one JSON object from the body, rejecting
// unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// instrument counts requests by endpoint and status code.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
	}
}
