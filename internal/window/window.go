// Package window selects the most recent observations of a symbol from an
// append-only series store and passes writes through to it.
package window

import (
	"context"
	"fmt"
	"math"

	"stockanalysis/internal/model"
)

const (
	MinExponent = 1
	MaxExponent = 7
)

// pow10 maps k in [MinExponent, MaxExponent] to 10^k.
var pow10 = [...]int{
	1: 10,
	2: 100,
	3: 1_000,
	4: 10_000,
	5: 100_000,
	6: 1_000_000,
	7: 10_000_000,
}

// ValidExponent reports whether k is an accepted window exponent.
func ValidExponent(k int) bool {
	return k >= MinExponent && k <= MaxExponent
}

// CountForExponent returns the window size 10^k. Callers must validate k
// first; values outside the table fall back to a float power.
func CountForExponent(k int) int {
	if ValidExponent(k) {
		return pow10[k]
	}
	return int(math.Pow10(k))
}

// Reader reads windows from a SeriesStore.
type Reader struct {
	store model.SeriesStore
}

// NewReader creates a Reader backed by store.
func NewReader(store model.SeriesStore) *Reader {
	return &Reader{store: store}
}

// ReadWindow returns the last count observations of symbol in append order.
// A series shorter than count is returned whole; an absent series yields an
// empty, non-nil slice. count must be positive.
func (r *Reader) ReadWindow(ctx context.Context, symbol string, count int) ([]float64, error) {
	values, err := r.store.RangeFromTail(ctx, symbol, count)
	if err != nil {
		return nil, fmt.Errorf("read window %s[-%d:]: %w", symbol, count, err)
	}
	if values == nil {
		values = []float64{}
	}
	return values, nil
}

// Append stores one observation.
func (r *Reader) Append(ctx context.Context, symbol string, value float64) error {
	if err := r.store.Append(ctx, symbol, value); err != nil {
		return fmt.Errorf("append %s: %w", symbol, err)
	}
	return nil
}

// AppendBatch stores values in the given order.
func (r *Reader) AppendBatch(ctx context.Context, symbol string, values []float64) error {
	if err := r.store.AppendBatch(ctx, symbol, values); err != nil {
		return fmt.Errorf("append batch %s (%d values): %w", symbol, len(values), err)
	}
	return nil
}
