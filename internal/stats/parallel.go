package stats

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minChunk keeps tiny inputs from being split into more goroutines than values.
const minChunk = 1024

// Parallel computes the summary with a data-parallel reduction.
// The input is split into contiguous chunks; min, max and sum are reduced per
// chunk concurrently, then the squared deviations from the combined average
// are reduced the same way. Partials are combined in chunk order.
type Parallel struct {
	workers int
}

// NewParallel returns a parallel calculator using up to workers goroutines.
// workers <= 0 means runtime.GOMAXPROCS(0).
func NewParallel(workers int) *Parallel {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Parallel{workers: workers}
}

// Workers returns the configured pool bound.
func (p *Parallel) Workers() int { return p.workers }

type partial struct {
	min, max, sum float64
}

func (p *Parallel) Summarise(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	chunks := p.chunks(n)

	parts := make([]partial, len(chunks))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, c := range chunks {
		i, seg := i, values[c[0]:c[1]]
		g.Go(func() error {
			pt := partial{min: seg[0], max: seg[0]}
			for _, v := range seg {
				if v < pt.min {
					pt.min = v
				}
				if v > pt.max {
					pt.max = v
				}
				pt.sum += v
			}
			parts[i] = pt
			return nil
		})
	}
	_ = g.Wait()

	min, max := parts[0].min, parts[0].max
	sum := 0.0
	for _, pt := range parts {
		if pt.min < min {
			min = pt.min
		}
		if pt.max > max {
			max = pt.max
		}
		sum += pt.sum
	}
	avg := sum / float64(n)

	return Summary{
		Min:      min,
		Max:      max,
		Last:     values[n-1],
		Average:  avg,
		Variance: p.variance(values, chunks, avg),
	}
}

// variance runs the second pass over the same partitioning.
func (p *Parallel) variance(values []float64, chunks [][2]int, avg float64) float64 {
	sq := make([]float64, len(chunks))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, c := range chunks {
		i, seg := i, values[c[0]:c[1]]
		g.Go(func() error {
			s := 0.0
			for _, v := range seg {
				d := v - avg
				s += d * d
			}
			sq[i] = s
			return nil
		})
	}
	_ = g.Wait()

	total := 0.0
	for _, s := range sq {
		total += s
	}
	return total / float64(len(values))
}

// chunks splits [0,n) into at most p.workers contiguous half-open ranges.
func (p *Parallel) chunks(n int) [][2]int {
	size := (n + p.workers - 1) / p.workers
	if size < minChunk {
		size = minChunk
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}
