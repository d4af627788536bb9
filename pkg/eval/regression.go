package eval

// RegressionResult is the derived outcome of a regression check. It is
// never persisted.
type RegressionResult struct {
	IsRegression bool
	// RollingAvg is nil when there is insufficient history.
	RollingAvg *float64
	Delta      float64
	WindowSize int
}

// DetectRegression compares latestTotal against the mean of the last
// window totals recorded for scenario. Fewer than window historical records
// means no verdict: new scenarios must not alarm. A drop of more than
// threshold points below the rolling average flags a regression.
func DetectRegression(history []Record, scenario string, latestTotal float64, window int, threshold float64) RegressionResult {
	if window <= 0 {
		window = 5
	}
	res := RegressionResult{WindowSize: window}

	var totals []float64
	for i := range history {
		if history[i].Scenario != scenario {
			continue
		}
		if t, ok := history[i].Total(); ok {
			totals = append(totals, t)
		}
	}
	if len(totals) < window {
		return res
	}

	recent := totals[len(totals)-window:]
	var sum float64
	for _, t := range recent {
		sum += t
	}
	avg := sum / float64(window)

	res.RollingAvg = &avg
	res.Delta = latestTotal - avg
	res.IsRegression = res.Delta < -threshold
	return res
}
