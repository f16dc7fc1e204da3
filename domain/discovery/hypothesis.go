package discovery

import (
	"fmt"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/stats"
)

// ============================================================================
// HYPOTHESIS - Pipeline State Machine
// ============================================================================

// HypothesisStatus is the pipeline state of one hypothesis
type HypothesisStatus string

const (
	StatusPending        HypothesisStatus = "pending"
	StatusTestingTrain   HypothesisStatus = "testing_train"
	StatusTestingHoldout HypothesisStatus = "testing_holdout"
	StatusConfoundCheck  HypothesisStatus = "confound_check"
	StatusConfirmed      HypothesisStatus = "confirmed"
	StatusRejected       HypothesisStatus = "rejected"
	StatusDiscarded      HypothesisStatus = "discarded"
)

// validTransitions pins the only legal state walk:
// pending -> testing_train -> testing_holdout -> confound_check -> confirmed,
// any testing state may fall to rejected, and only pending may be discarded
// (untestable means no test was ever attempted).
var validTransitions = map[HypothesisStatus][]HypothesisStatus{
	StatusPending:        {StatusTestingTrain, StatusDiscarded},
	StatusTestingTrain:   {StatusTestingHoldout, StatusRejected},
	StatusTestingHoldout: {StatusConfoundCheck, StatusRejected},
	StatusConfoundCheck:  {StatusConfirmed, StatusRejected},
}

// Terminal reports whether no further transition is allowed
func (s HypothesisStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected || s == StatusDiscarded
}

// Rejection reasons surfaced to the session log and findings audit trail
const (
	ReasonBelowSignificance = "below significance threshold"
	ReasonFailedHoldout     = "failed holdout validation: did not replicate"
	ReasonConfounded        = "effect did not survive confound stratification"
)

// PhrasingOrigin records which branch produced the hypothesis text
type PhrasingOrigin string

const (
	OriginService  PhrasingOrigin = "service"
	OriginFallback PhrasingOrigin = "fallback"
)

// Hypothesis is a falsifiable claim derived from one pattern candidate
type Hypothesis struct {
	ID                 core.HypothesisID        `json:"id"`
	Text               string                   `json:"text"`
	DisplayTitle       string                   `json:"display_title"`
	Testable           bool                     `json:"testable"`
	SuggestedTest      stats.TestType           `json:"suggested_test"`
	RequiredSampleSize int                      `json:"required_sample_size"`
	Domains            []anomaly.PhenomenonType `json:"domains"`
	SourcePattern      PatternCandidate         `json:"source_pattern"`
	Origin             PhrasingOrigin           `json:"origin"`
	Status             HypothesisStatus         `json:"status"`
	RejectionReason    string                   `json:"rejection_reason,omitempty"`
	GeneratedAt        core.Timestamp           `json:"generated_at"`
}

// NewHypothesis builds a pending hypothesis from a pattern and its phrasing
func NewHypothesis(pattern PatternCandidate, text, title string, testable bool, test stats.TestType, requiredN int, origin PhrasingOrigin) *Hypothesis {
	return &Hypothesis{
		ID:                 core.NewHypothesisID(),
		Text:               text,
		DisplayTitle:       title,
		Testable:           testable,
		SuggestedTest:      test,
		RequiredSampleSize: requiredN,
		Domains:            pattern.Domains,
		SourcePattern:      pattern,
		Origin:             origin,
		Status:             StatusPending,
		GeneratedAt:        core.Now(),
	}
}

// Transition moves the hypothesis to a new state, enforcing the legal walk
func (h *Hypothesis) Transition(to HypothesisStatus) error {
	for _, allowed := range validTransitions[h.Status] {
		if allowed == to {
			h.Status = to
			return nil
		}
	}
	return fmt.Errorf("illegal hypothesis transition %s -> %s", h.Status, to)
}

// Reject moves the hypothesis to rejected with a reason, from any
// non-terminal testing state
func (h *Hypothesis) Reject(reason string) error {
	if err := h.Transition(StatusRejected); err != nil {
		return err
	}
	h.RejectionReason = reason
	return nil
}

// Discard marks a never-tested hypothesis as discarded
func (h *Hypothesis) Discard() error {
	return h.Transition(StatusDiscarded)
}
