package ports

import (
	"context"

	"fortean/domain/core"
	"fortean/domain/verdict"
)

// SessionStatus is the persisted lifecycle state of a research session
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// SessionSummary is the read model for a persisted session
type SessionSummary struct {
	ID              core.SessionID  `json:"id"`
	Status          SessionStatus   `json:"status"`
	CorpusHash      core.Hash       `json:"corpus_hash"`
	RecordCount     int             `json:"record_count"`
	CandidateCount  int             `json:"candidate_count"`
	HypothesisCount int             `json:"hypothesis_count"`
	ConfirmedCount  int             `json:"confirmed_count"`
	RejectedCount   int             `json:"rejected_count"`
	DiscardedCount  int             `json:"discarded_count"`
	FailureCode     string          `json:"failure_code,omitempty"`
	FailureMessage  string          `json:"failure_message,omitempty"`
	StartedAt       core.Timestamp  `json:"started_at"`
	CompletedAt     *core.Timestamp `json:"completed_at,omitempty"`
}

// SessionRepository persists session lifecycle state
type SessionRepository interface {
	// CreateSession records a new running session
	CreateSession(ctx context.Context, summary SessionSummary) error

	// UpdateSession overwrites the stored summary for the session
	UpdateSession(ctx context.Context, summary SessionSummary) error

	// GetSession returns one session or core.ErrNotFound
	GetSession(ctx context.Context, id core.SessionID) (*SessionSummary, error)

	// ListSessions returns recent sessions, newest first
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)
}

// FindingRepository persists assembled findings
type FindingRepository interface {
	// SaveFinding stores a finding
	SaveFinding(ctx context.Context, sessionID core.SessionID, finding verdict.Finding) error

	// GetFinding returns one finding or core.ErrNotFound
	GetFinding(ctx context.Context, id core.FindingID) (*verdict.Finding, error)

	// ListFindings returns findings for a session, newest first
	ListFindings(ctx context.Context, sessionID core.SessionID) ([]verdict.Finding, error)

	// ListRecentFindings returns the latest findings across sessions
	ListRecentFindings(ctx context.Context, limit int) ([]verdict.Finding, error)
}
