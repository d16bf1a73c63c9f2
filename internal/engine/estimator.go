package engine

// Estimator derives simulated engagement counts from the number of
// delivered emails. There is no real open/click tracking pipeline; the
// engine only guarantees the derived counters never decrease.
type Estimator interface {
	Estimate(sentCount int) (opens, clicks int)
}

// FixedRatioEstimator reports fixed fractions of the sent count.
type FixedRatioEstimator struct {
	OpenRate  float64
	ClickRate float64
}

func (f FixedRatioEstimator) Estimate(sentCount int) (int, int) {
	return int(f.OpenRate * float64(sentCount)), int(f.ClickRate * float64(sentCount))
}

// NoopEstimator disables engagement simulation.
type NoopEstimator struct{}

func (NoopEstimator) Estimate(int) (int, int) { return 0, 0 }
