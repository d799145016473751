package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the window reader and handlers from the concrete
// series stores (Redis, SQLite).

// SeriesStore is an append-only list of observations per symbol.
type SeriesStore interface {
	// Append pushes a single value onto the tail of the series.
	Append(ctx context.Context, symbol string, value float64) error

	// AppendBatch pushes values onto the tail, preserving their order.
	AppendBatch(ctx context.Context, symbol string, values []float64) error

	// RangeFromTail returns at most count of the newest values in append
	// order. A missing series yields an empty slice and a nil error.
	RangeFromTail(ctx context.Context, symbol string, count int) ([]float64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}

// AppendNotifier is implemented by stores that can announce appends to
// live subscribers (Redis Pub/Sub).
type AppendNotifier interface {
	// SubscribeAppends delivers the symbol of every append until ctx is done.
	SubscribeAppends(ctx context.Context, out chan<- string) error
}
