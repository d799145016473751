package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockanalysis/config"
	"stockanalysis/internal/api"
	"stockanalysis/internal/logger"
	"stockanalysis/internal/metrics"
	"stockanalysis/internal/model"
	"stockanalysis/internal/stats"
	redisstore "stockanalysis/internal/store/redis"
	sqlitestore "stockanalysis/internal/store/sqlite"
	"stockanalysis/internal/window"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Init("statsserver", logger.ParseLevel(cfg.LogLevel))
	slog.Info("starting", "addr", cfg.HTTPAddr, "backend", cfg.StoreBackend)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	store, breakerState, err := openStore(cfg, m)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := metrics.NewHealthStatus(cfg.StoreBackend, store, breakerState)
	health.StartLivenessChecker(ctx, 15*time.Second)

	latency := api.NewLatencyTracker(10000)
	selector := stats.NewSelector(stats.NewSequential(), stats.NewParallel(cfg.ParallelWorkers))

	opts := api.Options{
		Reader:   window.NewReader(store),
		Selector: selector,
		Metrics:  m,
		Latency:  latency,
		Timeout:  cfg.RequestTimeout,
	}

	// Redis announces appends itself; other stores are notified in-process.
	source, announces := store.(model.AppendNotifier)
	var feed *api.Feed
	if !announces {
		// The feed needs the server and the server needs the feed's Notify.
		opts.Notify = func(symbol string) { feed.Notify(symbol) }
	}
	srv := api.NewServer(opts)
	feed = api.NewFeed(srv.Summarise, cfg.StreamInterval, m)
	go feed.Run(ctx, source)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.RouterConfig{
			Server:   srv,
			Health:   health,
			Feed:     feed,
			Gatherer: prometheus.DefaultGatherer,
			Latency:  latency,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	slog.Info("stopped")
}

// openStore connects the configured backend. The returned function reports
// the circuit breaker state and is nil for backends without one.
func openStore(cfg *config.Config, m *metrics.Metrics) (model.SeriesStore, func() string, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		s, err := sqlitestore.New(sqlitestore.Config{
			DBPath:   cfg.SQLite.Path,
			MaxConns: cfg.SQLite.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil

	default:
		cb := redisstore.NewCircuitBreaker(cfg.Redis.BreakerMaxFailures, cfg.Redis.BreakerReset)
		cb.OnStateChange = func(from, to redisstore.State) {
			m.StoreBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				m.StoreBreakerTrips.Inc()
			}
			slog.Warn("redis circuit breaker state change", "from", from.String(), "to", to.String())
		}
		s, err := redisstore.New(redisstore.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			PoolTimeout:  cfg.Redis.PoolTimeout,
		}, cb)
		if err != nil {
			return nil, nil, err
		}
		return s, func() string { return cb.CurrentState().String() }, nil
	}
}
