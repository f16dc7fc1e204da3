package stattest

import (
	"fmt"
	"math"

	"fortean/domain/stats"
)

// ChiSquare compares observed category counts against expected counts.
// Statistic is the usual sum of (O-E)^2/E; effect size is Cramer's V; the
// p-value comes from the Wilson-Hilferty approximation. Categories with a
// non-positive expected count are dropped from both the statistic and the
// degrees of freedom.
func ChiSquare(observed, expected []float64, th stats.Thresholds) stats.TestResult {
	if len(observed) == 0 || len(observed) != len(expected) {
		return stats.Degenerate(stats.TestChiSquare, 0,
			"chi-square requires matching observed and expected category counts")
	}
	if hasNaN(observed, expected) {
		return stats.Degenerate(stats.TestChiSquare, 0, "chi-square input contains non-finite values")
	}

	total := 0.0
	for _, o := range observed {
		if o < 0 {
			return stats.Degenerate(stats.TestChiSquare, 0, "chi-square observed counts must be non-negative")
		}
		total += o
	}
	n := int(math.Round(total))
	if total <= 0 {
		return stats.Degenerate(stats.TestChiSquare, 0, "chi-square has no observations")
	}

	chiSq := 0.0
	categories := 0
	for i, o := range observed {
		e := expected[i]
		if e <= 0 {
			continue
		}
		d := o - e
		chiSq += d * d / e
		categories++
	}
	if categories < 2 {
		return stats.Degenerate(stats.TestChiSquare, n,
			"chi-square requires at least two categories with positive expectation")
	}

	df := float64(categories - 1)
	pValue := chiSquareUpperTail(chiSq, df)

	// Cramer's V for a one-dimensional frequency comparison
	effectSize := math.Sqrt(chiSq / (total * df))
	if math.IsNaN(effectSize) {
		effectSize = 0
	}

	passed := th.Pass(pValue, effectSize)
	return stats.TestResult{
		TestType:        stats.TestChiSquare,
		Statistic:       chiSq,
		PValue:          pValue,
		EffectSize:      effectSize,
		SampleSize:      n,
		PassedThreshold: passed,
		Interpretation: fmt.Sprintf(
			"chi-square %.3f over %d categories (n=%d): p=%.4f, Cramer's V=%.3f%s",
			chiSq, categories, n, pValue, effectSize, passVerdict(passed, th)),
	}
}

// passVerdict renders the shared-gate outcome for interpretation strings
func passVerdict(passed bool, th stats.Thresholds) string {
	if passed {
		return fmt.Sprintf("; passes p<%.2g with effect>%.2g", th.Significance, th.EffectSize)
	}
	return fmt.Sprintf("; does not pass p<%.2g with effect>%.2g", th.Significance, th.EffectSize)
}
