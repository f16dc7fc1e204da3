package ports

import (
	"context"

	"fortean/domain/core"
)

// SessionPhase marks which pipeline stage a status line belongs to
type SessionPhase string

const (
	PhaseFetch    SessionPhase = "fetch"
	PhaseScan     SessionPhase = "scan"
	PhasePhrase   SessionPhase = "phrase"
	PhaseValidate SessionPhase = "validate"
	PhaseAssemble SessionPhase = "assemble"
	PhaseSummary  SessionPhase = "summary"
)

// SessionEntry is one ordered, timestamped status line. Seq is assigned by
// the session and strictly increases within it.
type SessionEntry struct {
	SessionID core.SessionID `json:"session_id"`
	Seq       int            `json:"seq"`
	Phase     SessionPhase   `json:"phase"`
	Message   string         `json:"message"`
	At        core.Timestamp `json:"at"`
}

// SessionSink receives the human-ordered narration of a research session.
// Append-only; implementations must preserve submission order per session.
type SessionSink interface {
	Emit(ctx context.Context, entry SessionEntry) error
}
