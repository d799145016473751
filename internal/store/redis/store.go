package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"stockanalysis/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis series store.
type Config struct {
	Addr         string // Redis address, e.g. "localhost:6379"
	Password     string
	DB           int
	PoolSize     int           // max open connections
	MinIdleConns int           // idle connections kept warm
	PoolTimeout  time.Duration // wait for a free connection before failing
}

// Store keeps each symbol's series in a Redis list (RPUSH / LRANGE).
//
// The go-redis client owns the connection pool: every command checks a
// connection out and returns it before the call completes, on success and on
// error alike, so no connection outlives a single Store method.
type Store struct {
	client *goredis.Client
	cb     *CircuitBreaker
}

// New creates a Store and pings the server.
func New(cfg Config, cb *CircuitBreaker) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr, "pool_size", cfg.PoolSize)
	return NewWithClient(client, cb), nil
}

// NewWithClient wraps an existing client. cb may be nil.
func NewWithClient(client *goredis.Client, cb *CircuitBreaker) *Store {
	return &Store{client: client, cb: cb}
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Breaker returns the circuit breaker guarding the store, or nil.
func (s *Store) Breaker() *CircuitBreaker { return s.cb }

// Append pushes one value and announces the append on the symbol's channel.
func (s *Store) Append(ctx context.Context, symbol string, value float64) error {
	return s.AppendBatch(ctx, symbol, []float64{value})
}

// AppendBatch pushes values in order with a single RPUSH inside MULTI/EXEC,
// followed by a PUBLISH of the symbol.
func (s *Store) AppendBatch(ctx context.Context, symbol string, values []float64) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = formatValue(v)
	}

	return s.execute(func() error {
		pipe := s.client.TxPipeline()
		pipe.RPush(ctx, model.ObservationKey(symbol), args...)
		pipe.Publish(ctx, model.AppendChannel(symbol), symbol)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis rpush %s: %w", symbol, err)
		}
		return nil
	})
}

// RangeFromTail runs LRANGE key -count -1. Redis clamps the start index, so a
// shorter list comes back whole and a missing key comes back empty.
func (s *Store) RangeFromTail(ctx context.Context, symbol string, count int) ([]float64, error) {
	if count <= 0 {
		return []float64{}, nil
	}

	var raw []string
	err := s.execute(func() error {
		var err error
		raw, err = s.client.LRange(ctx, model.ObservationKey(symbol), -int64(count), -1).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("redis lrange %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(raw))
	for i, r := range raw {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s[%d]=%q: %w", symbol, i, r, err)
		}
		values[i] = v
	}
	return values, nil
}

// SubscribeAppends forwards the symbol of every append to out.
// Blocks until ctx is cancelled.
func (s *Store) SubscribeAppends(ctx context.Context, out chan<- string) error {
	pubsub := s.client.PSubscribe(ctx, model.AppendChannel("*"))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			symbol := strings.TrimPrefix(msg.Channel, model.AppendChannel(""))
			select {
			case out <- symbol:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Ping checks connectivity, bypassing the breaker so health probes still
// observe recovery.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client and its pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) execute(fn func() error) error {
	if s.cb == nil {
		return fn()
	}
	return s.cb.Execute(fn)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
