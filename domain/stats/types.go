package stats

import (
	"fmt"
	"strings"
)

// ============================================================================
// SHARED TEST CONTRACT (Canonical, never change)
// ============================================================================

// TestType identifies one of the six tests in the library
type TestType string

const (
	TestChiSquare   TestType = "chi_square"
	TestWelchT      TestType = "welch_t"
	TestMannWhitney TestType = "mann_whitney_u"
	TestPearson     TestType = "pearson"
	TestBinomial    TestType = "binomial"
	TestMonteCarlo  TestType = "monte_carlo"
)

// AllTestTypes returns the fixed test set in stable order
func AllTestTypes() []TestType {
	return []TestType{
		TestChiSquare,
		TestWelchT,
		TestMannWhitney,
		TestPearson,
		TestBinomial,
		TestMonteCarlo,
	}
}

// ParseTestType parses a string into a TestType
func ParseTestType(s string) (TestType, error) {
	candidate := TestType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range AllTestTypes() {
		if candidate == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown test type: %q", s)
}

// String returns the string representation
func (t TestType) String() string { return string(t) }

// Thresholds carries the shared significance/effect-size gate every test
// applies. Defaults are deliberately stricter than the conventional
// 0.05/small-effect pairing: the system is designed to under-claim.
type Thresholds struct {
	Significance float64 `json:"significance"`
	EffectSize   float64 `json:"effect_size"`
}

// DefaultThresholds returns the standard gate (p < 0.01, effect > 0.3)
func DefaultThresholds() Thresholds {
	return Thresholds{Significance: 0.01, EffectSize: 0.3}
}

// Pass applies the shared gate: pValue strictly below significance AND
// effect size strictly above the effect threshold.
func (t Thresholds) Pass(pValue, effectSize float64) bool {
	return pValue < t.Significance && effectSize > t.EffectSize
}

// TestResult is the uniform outcome of every test invocation.
// INVARIANTS:
// - PValue always present (0.0 to 1.0)
// - EffectSize always standardized (unitless)
// - Produced fresh per invocation, never mutated
type TestResult struct {
	TestType        TestType `json:"test_type"`
	Statistic       float64  `json:"statistic"`
	PValue          float64  `json:"p_value"`
	EffectSize      float64  `json:"effect_size"`
	SampleSize      int      `json:"sample_size"`
	PassedThreshold bool     `json:"passed_threshold"`
	Interpretation  string   `json:"interpretation"`
}

// Degenerate builds the non-passing result every test returns on unusable
// input (empty groups, zero variance, n too small). Tests never raise on
// degenerate data; they explain it here instead.
func Degenerate(tt TestType, sampleSize int, why string) TestResult {
	return TestResult{
		TestType:        tt,
		Statistic:       0,
		PValue:          1.0,
		EffectSize:      0,
		SampleSize:      sampleSize,
		PassedThreshold: false,
		Interpretation:  why,
	}
}

// ============================================================================
// NULL DISTRIBUTION SUMMARY (Monte Carlo outputs)
// ============================================================================

// NullDistributionSummary provides key statistics about a permutation-built
// null distribution
type NullDistributionSummary struct {
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Percentile95 float64 `json:"percentile_95"`
	Percentile99 float64 `json:"percentile_99"`
}
