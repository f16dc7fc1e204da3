package research

import (
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/domain/stats"
	"fortean/domain/verdict"
	"fortean/internal/analysis"
)

// assembleFinding builds the terminal artifact for a confirmed hypothesis.
// Only validate calls this, and only after both splits passed and no
// confound check failed, so the finding invariant holds by construction.
func assembleFinding(h *discovery.Hypothesis, train, holdout stats.TestResult, checks []verdict.ConfoundCheckResult, split *analysis.SplitResult, th stats.Thresholds) verdict.Finding {
	return verdict.Finding{
		ID:             core.NewFindingID(),
		HypothesisID:   h.ID,
		DisplayTitle:   h.DisplayTitle,
		HypothesisText: h.Text,
		Domains:        h.Domains,
		Confidence:     confidenceScore(train, holdout, checks, th),
		TestResults:    []stats.TestResult{train, holdout},
		ConfoundChecks: checks,
		HoldoutValidation: verdict.HoldoutValidation{
			Validated:       true,
			HoldoutFraction: split.HoldoutFraction,
			TrainSize:       split.TrainSize(),
			HoldoutSize:     split.HoldoutSize(),
			SplitRule:       split.Rule,
		},
		AssembledAt: core.Now(),
	}
}

// confidenceScore blends three signals: the average effect size across the
// two splits (45%), how far the worse p-value sits below the significance
// threshold (35%), and the share of confound dimensions that were both
// controlled and survived (15%). The blend tops out at 0.95 before the cap,
// so even a perfect finding reports at most ConfidenceCap.
func confidenceScore(train, holdout stats.TestResult, checks []verdict.ConfoundCheckResult, th stats.Thresholds) float64 {
	avgEffect := (train.EffectSize + holdout.EffectSize) / 2
	if avgEffect > 1 {
		avgEffect = 1
	}

	maxP := train.PValue
	if holdout.PValue > maxP {
		maxP = holdout.PValue
	}
	margin := 0.0
	if th.Significance > 0 {
		margin = 1 - maxP/th.Significance
	}
	if margin < 0 {
		margin = 0
	}

	coverage := 0.0
	if len(checks) > 0 {
		survived := 0
		for _, check := range checks {
			if check.Controlled && check.EffectSurvived {
				survived++
			}
		}
		coverage = float64(survived) / float64(len(checks))
	}

	confidence := 0.45*avgEffect + 0.35*margin + 0.15*coverage
	if confidence > verdict.ConfidenceCap {
		confidence = verdict.ConfidenceCap
	}
	return confidence
}
