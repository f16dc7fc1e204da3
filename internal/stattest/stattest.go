// Package stattest implements the six-test statistical library behind
// hypothesis validation. Every test shares one contract: it takes its input
// data plus the significance/effect-size thresholds and returns a
// stats.TestResult, degrading to a non-passing result on degenerate input
// instead of raising.
package stattest

import (
	"fmt"
	"math"
	"sort"

	"fortean/domain/stats"
)

// TestData carries the inputs for one test invocation. Only the fields the
// chosen test reads need to be populated; Run dispatches on the test type.
type TestData struct {
	// Chi-square: category counts
	Observed []float64
	Expected []float64

	// Welch's t / Mann-Whitney U: two groups
	Group1 []float64
	Group2 []float64

	// Pearson: paired series
	X []float64
	Y []float64

	// Binomial: proportion vs expectation
	Successes    int
	Trials       int
	ExpectedProp float64

	// Monte Carlo: observed statistic plus a null-distribution generator
	ObservedStat float64
	NullDraw     func() float64
	Iterations   int
}

// Run dispatches one test invocation by type
func Run(tt stats.TestType, data TestData, th stats.Thresholds) stats.TestResult {
	switch tt {
	case stats.TestChiSquare:
		return ChiSquare(data.Observed, data.Expected, th)
	case stats.TestWelchT:
		return WelchT(data.Group1, data.Group2, th)
	case stats.TestMannWhitney:
		return MannWhitneyU(data.Group1, data.Group2, th)
	case stats.TestPearson:
		return Pearson(data.X, data.Y, th)
	case stats.TestBinomial:
		return Binomial(data.Successes, data.Trials, data.ExpectedProp, th)
	case stats.TestMonteCarlo:
		return MonteCarlo(data.ObservedStat, data.NullDraw, data.Iterations, th)
	default:
		return stats.Degenerate(tt, 0, fmt.Sprintf("unknown test type %q", tt))
	}
}

// rankAll converts values to ranks, averaging ties. Shared by the rank-based
// tests.
func rankAll(data []float64) []float64 {
	n := len(data)
	if n == 0 {
		return []float64{}
	}

	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	for i, val := range data {
		pairs[i] = pair{value: val, index: i}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		// Average rank across the tie group
		groupSize := j - i
		avgRank := float64(i+1) + float64(groupSize-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avgRank
		}
		i = j
	}
	return ranks
}

// sampleVariance returns the n-1 variance; ok=false below two samples
func sampleVariance(data []float64) (mean, variance float64, ok bool) {
	n := float64(len(data))
	if n < 2 {
		return 0, 0, false
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean = sum / n
	ss := 0.0
	for _, v := range data {
		d := v - mean
		ss += d * d
	}
	return mean, ss / (n - 1), true
}

// hasNaN rejects inputs carrying NaN or Inf before any test math runs
func hasNaN(series ...[]float64) bool {
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
