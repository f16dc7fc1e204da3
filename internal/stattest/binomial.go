package stattest

import (
	"fmt"
	"math"

	"fortean/domain/stats"
)

// Binomial tests an observed success proportion against an expected one via
// the normal approximation. Effect size is Cohen's h, the arcsine-transformed
// proportion difference, which stays comparable across base rates.
func Binomial(successes, trials int, expectedProp float64, th stats.Thresholds) stats.TestResult {
	if trials <= 0 {
		return stats.Degenerate(stats.TestBinomial, 0, "binomial requires at least one trial")
	}
	if successes < 0 || successes > trials {
		return stats.Degenerate(stats.TestBinomial, trials, "binomial successes outside [0, trials]")
	}
	if expectedProp <= 0 || expectedProp >= 1 {
		return stats.Degenerate(stats.TestBinomial, trials,
			"binomial expected proportion must be strictly between 0 and 1")
	}

	n := float64(trials)
	observedProp := float64(successes) / n

	se := math.Sqrt(expectedProp * (1 - expectedProp) / n)
	zStat := (observedProp - expectedProp) / se
	pValue := twoTailedZ(zStat)

	// Cohen's h
	h := 2*math.Asin(math.Sqrt(observedProp)) - 2*math.Asin(math.Sqrt(expectedProp))
	effectSize := math.Abs(h)

	passed := th.Pass(pValue, effectSize)
	return stats.TestResult{
		TestType:        stats.TestBinomial,
		Statistic:       zStat,
		PValue:          pValue,
		EffectSize:      effectSize,
		SampleSize:      trials,
		PassedThreshold: passed,
		Interpretation: fmt.Sprintf(
			"binomial %d/%d=%.3f vs expected %.3f: p=%.4f, Cohen's h=%.3f%s",
			successes, trials, observedProp, expectedProp, pValue, effectSize, passVerdict(passed, th)),
	}
}
