package stattest

import (
	"fmt"
	"math"

	mstats "github.com/montanaflynn/stats"

	"fortean/domain/stats"
)

// DefaultMonteCarloIterations is the draw count used when the caller passes
// a non-positive iteration budget.
const DefaultMonteCarloIterations = 10000

// MonteCarlo tests an observed statistic against a caller-supplied null
// generator. The empirical two-tailed p-value uses add-one smoothing,
// (count+1)/(N+1), so it can never reach exactly zero; effect size is the
// observed statistic standardized against the null distribution's own
// mean and standard deviation. Draws run sequentially so a seeded generator
// reproduces exactly.
func MonteCarlo(observed float64, nullDraw func() float64, iterations int, th stats.Thresholds) stats.TestResult {
	if nullDraw == nil {
		return stats.Degenerate(stats.TestMonteCarlo, 0, "monte carlo requires a null-distribution generator")
	}
	if math.IsNaN(observed) || math.IsInf(observed, 0) {
		return stats.Degenerate(stats.TestMonteCarlo, 0, "monte carlo observed statistic is not finite")
	}
	if iterations <= 0 {
		iterations = DefaultMonteCarloIterations
	}

	nullValues := make([]float64, 0, iterations)
	extreme := 0
	absObserved := math.Abs(observed)
	for i := 0; i < iterations; i++ {
		v := nullDraw()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		nullValues = append(nullValues, v)
		if math.Abs(v) >= absObserved {
			extreme++
		}
	}
	if len(nullValues) == 0 {
		return stats.Degenerate(stats.TestMonteCarlo, 0, "monte carlo generator produced no finite draws")
	}

	pValue := float64(extreme+1) / float64(len(nullValues)+1)

	nullMean, _ := mstats.Mean(nullValues)
	nullSD, _ := mstats.StandardDeviation(nullValues)
	effectSize := 0.0
	if nullSD > 0 {
		effectSize = math.Abs(observed-nullMean) / nullSD
	}

	passed := th.Pass(pValue, effectSize)
	return stats.TestResult{
		TestType:        stats.TestMonteCarlo,
		Statistic:       observed,
		PValue:          pValue,
		EffectSize:      effectSize,
		SampleSize:      len(nullValues),
		PassedThreshold: passed,
		Interpretation: fmt.Sprintf(
			"monte carlo observed=%.3f vs null mean=%.3f sd=%.3f over %d draws: p=%.4f%s",
			observed, nullMean, nullSD, len(nullValues), pValue, passVerdict(passed, th)),
	}
}

// SummarizeNull condenses a null distribution for audit trails
func SummarizeNull(nullValues []float64) stats.NullDistributionSummary {
	if len(nullValues) == 0 {
		return stats.NullDistributionSummary{}
	}
	mean, _ := mstats.Mean(nullValues)
	sd, _ := mstats.StandardDeviation(nullValues)
	min, _ := mstats.Min(nullValues)
	max, _ := mstats.Max(nullValues)
	p95, _ := mstats.Percentile(nullValues, 95)
	p99, _ := mstats.Percentile(nullValues, 99)
	return stats.NullDistributionSummary{
		Mean:         mean,
		StdDev:       sd,
		Min:          min,
		Max:          max,
		Percentile95: p95,
		Percentile99: p99,
	}
}
