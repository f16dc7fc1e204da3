package stattest

import (
	"fmt"
	"math"

	"fortean/domain/stats"
)

// WelchT compares two group means without assuming equal variances.
// Degrees of freedom follow Welch-Satterthwaite; effect size is Cohen's d on
// the pooled standard deviation; the p-value is two-tailed Student-t.
func WelchT(group1, group2 []float64, th stats.Thresholds) stats.TestResult {
	n1, n2 := len(group1), len(group2)
	sampleSize := n1 + n2
	if n1 < 2 || n2 < 2 {
		return stats.Degenerate(stats.TestWelchT, sampleSize,
			"welch t requires at least two observations per group")
	}
	if hasNaN(group1, group2) {
		return stats.Degenerate(stats.TestWelchT, sampleSize, "welch t input contains non-finite values")
	}

	mean1, var1, _ := sampleVariance(group1)
	mean2, var2, _ := sampleVariance(group2)
	if var1 == 0 && var2 == 0 {
		if mean1 == mean2 {
			return stats.Degenerate(stats.TestWelchT, sampleSize,
				"welch t found zero variance and equal means; groups are indistinguishable")
		}
		return stats.Degenerate(stats.TestWelchT, sampleSize,
			"welch t found zero variance in both groups; no dispersion to test against")
	}

	f1, f2 := float64(n1), float64(n2)
	se := math.Sqrt(var1/f1 + var2/f2)
	if se == 0 {
		return stats.Degenerate(stats.TestWelchT, sampleSize, "welch t standard error is zero")
	}
	tStat := (mean1 - mean2) / se

	// Welch-Satterthwaite degrees of freedom
	num := math.Pow(var1/f1+var2/f2, 2)
	den := math.Pow(var1/f1, 2)/(f1-1) + math.Pow(var2/f2, 2)/(f2-1)
	df := num / den

	pValue := twoTailedT(tStat, df)

	// Cohen's d against the pooled standard deviation
	pooledSD := math.Sqrt(((f1-1)*var1 + (f2-1)*var2) / (f1 + f2 - 2))
	effectSize := 0.0
	if pooledSD > 0 {
		effectSize = math.Abs(mean1-mean2) / pooledSD
	}

	passed := th.Pass(pValue, effectSize)
	return stats.TestResult{
		TestType:        stats.TestWelchT,
		Statistic:       tStat,
		PValue:          pValue,
		EffectSize:      effectSize,
		SampleSize:      sampleSize,
		PassedThreshold: passed,
		Interpretation: fmt.Sprintf(
			"welch t=%.3f (df=%.1f, means %.3f vs %.3f): p=%.4f, Cohen's d=%.3f%s",
			tStat, df, mean1, mean2, pValue, effectSize, passVerdict(passed, th)),
	}
}
