package stats

// ParallelThreshold is the window size above which the parallel reduction is
// used. Below it the partition and merge overhead outweighs the gain. Both
// calculators are correct for every size; this only tunes latency.
const ParallelThreshold = 10_000

// Strategy names a calculator for logs and metric labels.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
)

// SelectStrategy returns the strategy for a window of the given size.
func SelectStrategy(windowSize int) Strategy {
	if windowSize > ParallelThreshold {
		return StrategyParallel
	}
	return StrategySequential
}

// Selector holds one instance of each calculator and hands out the one
// matching a window size.
type Selector struct {
	sequential Calculator
	parallel   Calculator
}

// NewSelector wires the two calculators.
func NewSelector(sequential, parallel Calculator) *Selector {
	return &Selector{sequential: sequential, parallel: parallel}
}

// Select returns the calculator and its strategy name for windowSize.
func (s *Selector) Select(windowSize int) (Calculator, Strategy) {
	strategy := SelectStrategy(windowSize)
	if strategy == StrategyParallel {
		return s.parallel, strategy
	}
	return s.sequential, strategy
}
