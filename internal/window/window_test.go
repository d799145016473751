package window

import (
	"context"
	"errors"
	"testing"
)

// memStore is a minimal in-memory SeriesStore used to pin the reader contract.
type memStore struct {
	series map[string][]float64
	err    error
	ranges []int
}

func newMemStore() *memStore {
	return &memStore{series: map[string][]float64{}}
}

func (m *memStore) Append(ctx context.Context, symbol string, value float64) error {
	if m.err != nil {
		return m.err
	}
	m.series[symbol] = append(m.series[symbol], value)
	return nil
}

func (m *memStore) AppendBatch(ctx context.Context, symbol string, values []float64) error {
	if m.err != nil {
		return m.err
	}
	m.series[symbol] = append(m.series[symbol], values...)
	return nil
}

func (m *memStore) RangeFromTail(ctx context.Context, symbol string, count int) ([]float64, error) {
	m.ranges = append(m.ranges, count)
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.series[symbol]
	if !ok {
		return nil, nil
	}
	if count > len(s) {
		count = len(s)
	}
	out := make([]float64, count)
	copy(out, s[len(s)-count:])
	return out, nil
}

func (m *memStore) Ping(ctx context.Context) error { return m.err }
func (m *memStore) Close() error                   { return nil }

func equalValues(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCountForExponent_Table(t *testing.T) {
	want := 10
	for k := MinExponent; k <= MaxExponent; k++ {
		if got := CountForExponent(k); got != want {
			t.Errorf("CountForExponent(%d) = %d, want %d", k, got, want)
		}
		want *= 10
	}
}

func TestCountForExponent_Fallback(t *testing.T) {
	if got := CountForExponent(8); got != 100_000_000 {
		t.Errorf("CountForExponent(8) = %d, want 100000000", got)
	}
	if got := CountForExponent(0); got != 1 {
		t.Errorf("CountForExponent(0) = %d, want 1", got)
	}
}

func TestValidExponent(t *testing.T) {
	for _, k := range []int{-1, 0, 8, 100} {
		if ValidExponent(k) {
			t.Errorf("ValidExponent(%d) = true, want false", k)
		}
	}
	for k := 1; k <= 7; k++ {
		if !ValidExponent(k) {
			t.Errorf("ValidExponent(%d) = false, want true", k)
		}
	}
}

func TestReadWindow_LastN(t *testing.T) {
	store := newMemStore()
	r := NewReader(store)
	ctx := context.Background()

	if err := r.AppendBatch(ctx, "X", []float64{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("append batch: %v", err)
	}
	got, err := r.ReadWindow(ctx, "X", 3)
	if err != nil {
		t.Fatalf("read window: %v", err)
	}
	if !equalValues(got, []float64{3, 4, 5}) {
		t.Errorf("got %v, want [3 4 5]", got)
	}
}

func TestReadWindow_CountLargerThanSeries(t *testing.T) {
	store := newMemStore()
	r := NewReader(store)
	ctx := context.Background()

	r.AppendBatch(ctx, "MSFT", []float64{300.0, 305.0})
	got, err := r.ReadWindow(ctx, "MSFT", 5)
	if err != nil {
		t.Fatalf("read window: %v", err)
	}
	if !equalValues(got, []float64{300.0, 305.0}) {
		t.Errorf("got %v, want [300 305]", got)
	}
}

func TestReadWindow_AbsentSymbol(t *testing.T) {
	r := NewReader(newMemStore())

	got, err := r.ReadWindow(context.Background(), "AMZN", 5)
	if err != nil {
		t.Fatalf("read window: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestAppend_PreservesOrderAcrossCalls(t *testing.T) {
	store := newMemStore()
	r := NewReader(store)
	ctx := context.Background()

	r.AppendBatch(ctx, "FB", []float64{300.0, 305.0})
	r.Append(ctx, "FB", 307.5)
	r.AppendBatch(ctx, "FB", []float64{310.0, 315.0, 320.0})

	got, _ := r.ReadWindow(ctx, "FB", 100_000)
	want := []float64{300.0, 305.0, 307.5, 310.0, 315.0, 320.0}
	if !equalValues(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReader_PropagatesStoreErrors(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	r := NewReader(store)
	ctx := context.Background()

	if _, err := r.ReadWindow(ctx, "X", 10); !errors.Is(err, store.err) {
		t.Errorf("ReadWindow: expected wrapped store error, got %v", err)
	}
	if err := r.Append(ctx, "X", 1); !errors.Is(err, store.err) {
		t.Errorf("Append: expected wrapped store error, got %v", err)
	}
	if err := r.AppendBatch(ctx, "X", []float64{1}); !errors.Is(err, store.err) {
		t.Errorf("AppendBatch: expected wrapped store error, got %v", err)
	}
}

func TestReadWindow_PassesCountThrough(t *testing.T) {
	store := newMemStore()
	r := NewReader(store)

	r.ReadWindow(context.Background(), "X", CountForExponent(4))
	if len(store.ranges) != 1 || store.ranges[0] != 10_000 {
		t.Errorf("expected one range read of 10000, got %v", store.ranges)
	}
}
