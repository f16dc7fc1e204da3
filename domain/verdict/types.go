package verdict

import (
	"fmt"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/stats"
)

// ConfidenceCap is the epistemic-humility ceiling: no finding ever reports
// confidence above it, regardless of how strong the inputs are.
const ConfidenceCap = 0.85

// ConfoundDimension names a known nuisance variable the checker stratifies by
type ConfoundDimension string

const (
	ConfoundPopulationDensity  ConfoundDimension = "population_density"
	ConfoundReportingBias      ConfoundDimension = "reporting_bias"
	ConfoundTemporalClustering ConfoundDimension = "temporal_clustering"
	ConfoundSelectionEffect    ConfoundDimension = "selection_effect"
)

// AllConfoundDimensions returns the checked dimensions in stable order
func AllConfoundDimensions() []ConfoundDimension {
	return []ConfoundDimension{
		ConfoundPopulationDensity,
		ConfoundReportingBias,
		ConfoundTemporalClustering,
		ConfoundSelectionEffect,
	}
}

// String returns the string representation
func (c ConfoundDimension) String() string { return string(c) }

// ConfoundCheckResult is the verdict for one confound dimension.
// Controlled=false means the data lacked the stratifying variable; that is
// reported, never treated as failure.
type ConfoundCheckResult struct {
	ConfoundType   ConfoundDimension `json:"confound_type"`
	Controlled     bool              `json:"controlled"`
	EffectSurvived bool              `json:"effect_survived"`
	Notes          string            `json:"notes"`
	StrataTested   int               `json:"strata_tested"`
	StrataRetained int               `json:"strata_retained"`
}

// Failed reports whether this dimension alone rejects the hypothesis
func (c ConfoundCheckResult) Failed() bool {
	return c.Controlled && !c.EffectSurvived
}

// HoldoutValidation documents the train/holdout replication gate
type HoldoutValidation struct {
	Validated       bool    `json:"validated"`
	HoldoutFraction float64 `json:"holdout_fraction"`
	TrainSize       int     `json:"train_size"`
	HoldoutSize     int     `json:"holdout_size"`
	SplitRule       string  `json:"split_rule"`
}

// Finding is the terminal artifact crossing into the external review
// collaborator. It must never exist without a passing training result, a
// passing holdout result, and every applicable confound surviving.
type Finding struct {
	ID                core.FindingID           `json:"id"`
	HypothesisID      core.HypothesisID        `json:"hypothesis_id"`
	DisplayTitle      string                   `json:"display_title"`
	HypothesisText    string                   `json:"hypothesis_text"`
	Domains           []anomaly.PhenomenonType `json:"domains"`
	Confidence        float64                  `json:"confidence"`
	TestResults       []stats.TestResult       `json:"test_results"` // training first, holdout second
	ConfoundChecks    []ConfoundCheckResult    `json:"confound_checks"`
	HoldoutValidation HoldoutValidation        `json:"holdout_validation"`
	AssembledAt       core.Timestamp           `json:"assembled_at"`
}

// TrainingResult returns the training-split test result
func (f Finding) TrainingResult() (stats.TestResult, bool) {
	if len(f.TestResults) < 1 {
		return stats.TestResult{}, false
	}
	return f.TestResults[0], true
}

// HoldoutResult returns the holdout-split test result
func (f Finding) HoldoutResult() (stats.TestResult, bool) {
	if len(f.TestResults) < 2 {
		return stats.TestResult{}, false
	}
	return f.TestResults[1], true
}

// Validate enforces the finding invariant
func (f Finding) Validate() error {
	train, ok := f.TrainingResult()
	if !ok || !train.PassedThreshold {
		return fmt.Errorf("finding requires a passing training result")
	}
	holdout, ok := f.HoldoutResult()
	if !ok || !holdout.PassedThreshold {
		return fmt.Errorf("finding requires a passing holdout result")
	}
	if !f.HoldoutValidation.Validated {
		return fmt.Errorf("finding requires holdout validation")
	}
	for _, check := range f.ConfoundChecks {
		if check.Failed() {
			return fmt.Errorf("finding carries a failed confound check: %s", check.ConfoundType)
		}
	}
	if f.Confidence > ConfidenceCap {
		return fmt.Errorf("confidence %.3f exceeds cap %.2f", f.Confidence, ConfidenceCap)
	}
	return nil
}
