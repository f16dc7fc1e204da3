package stattest

import (
	"fmt"
	"math"

	"fortean/domain/stats"
)

// MannWhitneyU compares two groups by rank rather than value, which keeps it
// usable on skewed report-count and duration distributions. Ties share an
// averaged rank; the U statistic is tested through its normal approximation;
// effect size is the rank-biserial correlation.
func MannWhitneyU(group1, group2 []float64, th stats.Thresholds) stats.TestResult {
	n1, n2 := len(group1), len(group2)
	sampleSize := n1 + n2
	if n1 < 2 || n2 < 2 {
		return stats.Degenerate(stats.TestMannWhitney, sampleSize,
			"mann-whitney requires at least two observations per group")
	}
	if hasNaN(group1, group2) {
		return stats.Degenerate(stats.TestMannWhitney, sampleSize, "mann-whitney input contains non-finite values")
	}

	combined := make([]float64, 0, sampleSize)
	combined = append(combined, group1...)
	combined = append(combined, group2...)
	ranks := rankAll(combined)

	rankSum1 := 0.0
	for i := 0; i < n1; i++ {
		rankSum1 += ranks[i]
	}

	f1, f2 := float64(n1), float64(n2)
	u1 := rankSum1 - f1*(f1+1)/2
	u2 := f1*f2 - u1
	u := math.Min(u1, u2)

	meanU := f1 * f2 / 2
	sdU := math.Sqrt(f1 * f2 * (f1 + f2 + 1) / 12)
	if sdU == 0 {
		return stats.Degenerate(stats.TestMannWhitney, sampleSize, "mann-whitney variance is zero")
	}

	zStat := (u - meanU) / sdU
	pValue := twoTailedZ(zStat)

	// Rank-biserial correlation: 1 - 2U/(n1*n2)
	effectSize := math.Abs(1 - 2*u/(f1*f2))

	passed := th.Pass(pValue, effectSize)
	return stats.TestResult{
		TestType:        stats.TestMannWhitney,
		Statistic:       u,
		PValue:          pValue,
		EffectSize:      effectSize,
		SampleSize:      sampleSize,
		PassedThreshold: passed,
		Interpretation: fmt.Sprintf(
			"mann-whitney U=%.1f (z=%.3f, n=%d+%d): p=%.4f, rank-biserial=%.3f%s",
			u, zStat, n1, n2, pValue, effectSize, passVerdict(passed, th)),
	}
}
