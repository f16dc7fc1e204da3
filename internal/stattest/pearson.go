package stattest

import (
	"fmt"
	"math"

	"fortean/domain/stats"
)

// Pearson measures linear association between two paired series. Significance
// comes from the t-transform of r with n-2 degrees of freedom; effect size is
// |r| itself. Needs at least three pairs.
func Pearson(x, y []float64, th stats.Thresholds) stats.TestResult {
	n := len(x)
	if n != len(y) {
		return stats.Degenerate(stats.TestPearson, 0, "pearson requires paired series of equal length")
	}
	if n < 3 {
		return stats.Degenerate(stats.TestPearson, n, "pearson requires at least three pairs")
	}
	if hasNaN(x, y) {
		return stats.Degenerate(stats.TestPearson, n, "pearson input contains non-finite values")
	}

	fn := float64(n)
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
		sumYY += y[i] * y[i]
	}

	varX := sumXX - sumX*sumX/fn
	varY := sumYY - sumY*sumY/fn
	if varX <= 0 || varY <= 0 {
		return stats.Degenerate(stats.TestPearson, n, "pearson found zero variance in one series")
	}

	r := (sumXY - sumX*sumY/fn) / math.Sqrt(varX*varY)
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}

	df := fn - 2
	var pValue float64
	if 1-r*r <= 0 {
		// Perfect correlation: the t statistic diverges
		pValue = 0
	} else {
		tStat := r * math.Sqrt(df/(1-r*r))
		pValue = twoTailedT(tStat, df)
	}

	effectSize := math.Abs(r)
	passed := th.Pass(pValue, effectSize)
	return stats.TestResult{
		TestType:        stats.TestPearson,
		Statistic:       r,
		PValue:          pValue,
		EffectSize:      effectSize,
		SampleSize:      n,
		PassedThreshold: passed,
		Interpretation: fmt.Sprintf(
			"pearson r=%.3f (n=%d): p=%.4f%s",
			r, n, pValue, passVerdict(passed, th)),
	}
}
