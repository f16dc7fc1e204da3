// Package research runs the discovery-and-validation pipeline: pattern
// candidates are phrased into falsifiable hypotheses, tested on a training
// split, replicated on a holdout split, stress-tested under confound
// stratification, and the survivors are assembled into findings for human
// review.
package research

import (
	"sync"

	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/internal/errors"
	"fortean/ports"
)

// State is the lifecycle phase of a running session
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateScanning   State = "scanning"
	StatePhrasing   State = "phrasing"
	StateValidating State = "validating"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Session tracks one research run. All mutation goes through the methods;
// the pipeline drives it from a single goroutine but the status API may
// snapshot it concurrently.
type Session struct {
	id          core.SessionID
	state       State
	corpusHash  core.CorpusHash
	recordCount int
	candidates  []discovery.PatternCandidate
	hypotheses  []*discovery.Hypothesis
	findingIDs  []core.FindingID
	failure     *errors.SessionError
	startedAt   core.Timestamp
	completedAt *core.Timestamp
	seq         int
	mu          sync.RWMutex
}

// NewSession creates an idle session with a fresh id
func NewSession() *Session {
	return &Session{
		id:        core.NewSessionID(),
		state:     StateIdle,
		startedAt: core.Now(),
	}
}

// ID returns the session id
func (s *Session) ID() core.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// State returns the current lifecycle phase
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState advances the lifecycle phase
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// SetCorpus records the corpus fingerprint and size
func (s *Session) SetCorpus(hash core.CorpusHash, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpusHash = hash
	s.recordCount = count
}

// RecordCount returns the corpus size
func (s *Session) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordCount
}

// SetCandidates records the scanner output
func (s *Session) SetCandidates(candidates []discovery.PatternCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = candidates
}

// AddHypothesis appends a phrased hypothesis
func (s *Session) AddHypothesis(h *discovery.Hypothesis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hypotheses = append(s.hypotheses, h)
}

// AddFinding records a queued finding id
func (s *Session) AddFinding(id core.FindingID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findingIDs = append(s.findingIDs, id)
}

// Complete marks the session finished
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateComplete
	now := core.Now()
	s.completedAt = &now
}

// Fail marks the session aborted with a structured reason
func (s *Session) Fail(failure *errors.SessionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.failure = failure
	now := core.Now()
	s.completedAt = &now
}

// Failure returns the structured abort reason, if the session failed
func (s *Session) Failure() *errors.SessionError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

// NextSeq hands out the next sink sequence number
func (s *Session) NextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Candidates returns the scanner output
func (s *Session) Candidates() []discovery.PatternCandidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discovery.PatternCandidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Hypotheses returns the phrased hypotheses in pipeline order
func (s *Session) Hypotheses() []*discovery.Hypothesis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*discovery.Hypothesis, len(s.hypotheses))
	copy(out, s.hypotheses)
	return out
}

// FindingIDs returns the queued finding ids in confirmation order
func (s *Session) FindingIDs() []core.FindingID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.FindingID, len(s.findingIDs))
	copy(out, s.findingIDs)
	return out
}

// Counts tallies hypotheses by terminal status
func (s *Session) Counts() (confirmed, rejected, discarded int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.hypotheses {
		switch h.Status {
		case discovery.StatusConfirmed:
			confirmed++
		case discovery.StatusRejected:
			rejected++
		case discovery.StatusDiscarded:
			discarded++
		}
	}
	return confirmed, rejected, discarded
}

// Summary snapshots the session for persistence and the status API
func (s *Session) Summary() ports.SessionSummary {
	confirmed, rejected, discarded := s.Counts()

	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := ports.SessionSummary{
		ID:              s.id,
		Status:          ports.SessionRunning,
		CorpusHash:      core.Hash(s.corpusHash),
		RecordCount:     s.recordCount,
		CandidateCount:  len(s.candidates),
		HypothesisCount: len(s.hypotheses),
		ConfirmedCount:  confirmed,
		RejectedCount:   rejected,
		DiscardedCount:  discarded,
		StartedAt:       s.startedAt,
		CompletedAt:     s.completedAt,
	}
	switch s.state {
	case StateComplete:
		summary.Status = ports.SessionCompleted
	case StateFailed:
		summary.Status = ports.SessionFailed
		if s.failure != nil {
			summary.FailureCode = s.failure.Code
			summary.FailureMessage = s.failure.Message
		}
	}
	return summary
}
