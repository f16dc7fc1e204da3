package discovery

import (
	"testing"

	"fortean/domain/anomaly"
	"fortean/domain/stats"
)

func samplePattern() PatternCandidate {
	return PatternCandidate{
		ID:          "pat-1",
		Type:        PatternTemporal,
		Description: "monthly clustering in ufo reports",
		Domains:     []anomaly.PhenomenonType{anomaly.TypeUFO},
		Evidence: Evidence{
			Kind:     PatternTemporal,
			Temporal: &TemporalEvidence{Domain: anomaly.TypeUFO, MonthsObserved: 24, TopZ: 3.1},
		},
		PreliminaryStrength: 0.62,
	}
}

func TestEvidenceValidate(t *testing.T) {
	good := samplePattern().Evidence
	if err := good.Validate(); err != nil {
		t.Errorf("Valid evidence rejected: %v", err)
	}

	mismatched := Evidence{Kind: PatternGeographic, Temporal: &TemporalEvidence{}}
	if err := mismatched.Validate(); err == nil {
		t.Error("Kind/variant mismatch should fail validation")
	}

	empty := Evidence{Kind: PatternTemporal}
	if err := empty.Validate(); err == nil {
		t.Error("Evidence with no variant should fail validation")
	}

	double := Evidence{Kind: PatternTemporal, Temporal: &TemporalEvidence{}, Attribute: &AttributeEvidence{}}
	if err := double.Validate(); err == nil {
		t.Error("Evidence with two variants should fail validation")
	}
}

func TestHypothesisHappyPath(t *testing.T) {
	h := NewHypothesis(samplePattern(), "reports cluster in summer months", "Summer clustering", true, stats.TestChiSquare, 120, OriginFallback)

	if h.Status != StatusPending {
		t.Fatalf("New hypothesis should be pending, got %s", h.Status)
	}

	walk := []HypothesisStatus{StatusTestingTrain, StatusTestingHoldout, StatusConfoundCheck, StatusConfirmed}
	for _, next := range walk {
		if err := h.Transition(next); err != nil {
			t.Fatalf("Transition to %s failed: %v", next, err)
		}
	}
	if !h.Status.Terminal() {
		t.Error("Confirmed should be terminal")
	}
}

func TestHypothesisIllegalTransitions(t *testing.T) {
	h := NewHypothesis(samplePattern(), "t", "T", true, stats.TestWelchT, 60, OriginService)

	if err := h.Transition(StatusConfirmed); err == nil {
		t.Error("pending -> confirmed should be illegal")
	}
	if err := h.Transition(StatusConfoundCheck); err == nil {
		t.Error("pending -> confound_check should be illegal")
	}

	if err := h.Transition(StatusTestingTrain); err != nil {
		t.Fatalf("pending -> testing_train should be legal: %v", err)
	}
	if err := h.Discard(); err == nil {
		t.Error("testing_train -> discarded should be illegal; discard is only for untested hypotheses")
	}
}

func TestHypothesisRejectCarriesReason(t *testing.T) {
	h := NewHypothesis(samplePattern(), "t", "T", true, stats.TestMannWhitney, 60, OriginService)
	if err := h.Transition(StatusTestingTrain); err != nil {
		t.Fatal(err)
	}
	if err := h.Reject(ReasonBelowSignificance); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if h.Status != StatusRejected || h.RejectionReason != ReasonBelowSignificance {
		t.Errorf("Got status=%s reason=%q", h.Status, h.RejectionReason)
	}

	// Terminal: nothing further is legal
	if err := h.Transition(StatusConfirmed); err == nil {
		t.Error("rejected -> confirmed should be illegal")
	}
}
