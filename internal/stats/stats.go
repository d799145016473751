// Package stats computes summary statistics over an ordered window of
// observations.
//
// Two Calculator implementations exist: Sequential walks the slice once for
// min/max/sum and once more for the variance; Parallel splits the slice into
// contiguous chunks and reduces them on a worker pool. Both return the same
// Summary up to floating-point rounding. Selector picks one by window size.
package stats

// Summary holds the statistics of a window. The zero value is the defined
// result for an empty window.
type Summary struct {
	Min      float64
	Max      float64
	Last     float64
	Average  float64
	Variance float64 // population variance (divides by n)
}

// Calculator summarises an ordered sequence of finite values.
// Implementations have no error path; NaN and ±Inf inputs are undefined.
type Calculator interface {
	Summarise(values []float64) Summary
}

// Sequential computes the summary on the calling goroutine.
type Sequential struct{}

// NewSequential returns a single-threaded calculator.
func NewSequential() *Sequential { return &Sequential{} }

func (Sequential) Summarise(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	min, max := values[0], values[0]
	sum := 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	avg := sum / float64(len(values))

	return Summary{
		Min:      min,
		Max:      max,
		Last:     values[len(values)-1],
		Average:  avg,
		Variance: sequentialVariance(values, avg),
	}
}

// sequentialVariance is the second pass: mean of squared deviations from avg.
func sequentialVariance(values []float64, avg float64) float64 {
	sq := 0.0
	for _, v := range values {
		d := v - avg
		sq += d * d
	}
	return sq / float64(len(values))
}
