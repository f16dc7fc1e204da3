package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"fortean/domain/core"
	"fortean/ports"
)

// SessionRepository persists session lifecycle summaries
type SessionRepository struct {
	db *DB
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a session repository on the shared handle
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type sessionRow struct {
	ID              string       `db:"id"`
	Status          string       `db:"status"`
	CorpusHash      string       `db:"corpus_hash"`
	RecordCount     int          `db:"record_count"`
	CandidateCount  int          `db:"candidate_count"`
	HypothesisCount int          `db:"hypothesis_count"`
	ConfirmedCount  int          `db:"confirmed_count"`
	RejectedCount   int          `db:"rejected_count"`
	DiscardedCount  int          `db:"discarded_count"`
	FailureCode     string       `db:"failure_code"`
	FailureMessage  string       `db:"failure_message"`
	StartedAt       time.Time    `db:"started_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
}

const sessionColumns = `id, status, corpus_hash, record_count, candidate_count,
	hypothesis_count, confirmed_count, rejected_count, discarded_count,
	failure_code, failure_message, started_at, completed_at`

// CreateSession records a new running session
func (r *SessionRepository) CreateSession(ctx context.Context, summary ports.SessionSummary) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO research_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		summaryArgs(summary)...)
	if err != nil {
		return eris.Wrapf(err, "store: create session %s", summary.ID)
	}
	return nil
}

// UpdateSession overwrites the stored summary for the session
func (r *SessionRepository) UpdateSession(ctx context.Context, summary ports.SessionSummary) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE research_sessions SET
			status = ?, corpus_hash = ?, record_count = ?, candidate_count = ?,
			hypothesis_count = ?, confirmed_count = ?, rejected_count = ?,
			discarded_count = ?, failure_code = ?, failure_message = ?,
			started_at = ?, completed_at = ?
		WHERE id = ?`),
		append(summaryArgs(summary)[1:], summary.ID.String())...)
	if err != nil {
		return eris.Wrapf(err, "store: update session %s", summary.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: update session rows affected")
	}
	if n == 0 {
		return core.NewNotFoundError("session", summary.ID.String())
	}
	return nil
}

// GetSession returns one session or core.ErrNotFound
func (r *SessionRepository) GetSession(ctx context.Context, id core.SessionID) (*ports.SessionSummary, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		r.db.Rebind(`SELECT `+sessionColumns+` FROM research_sessions WHERE id = ?`), id.String())
	if err == sql.ErrNoRows {
		return nil, core.NewNotFoundError("session", id.String())
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get session %s", id)
	}
	summary := rowToSummary(row)
	return &summary, nil
}

// ListSessions returns recent sessions, newest first
func (r *SessionRepository) ListSessions(ctx context.Context, limit int) ([]ports.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows,
		r.db.Rebind(`SELECT `+sessionColumns+` FROM research_sessions ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list sessions")
	}
	summaries := make([]ports.SessionSummary, len(rows))
	for i, row := range rows {
		summaries[i] = rowToSummary(row)
	}
	return summaries, nil
}

func summaryArgs(summary ports.SessionSummary) []interface{} {
	var completedAt interface{}
	if summary.CompletedAt != nil {
		completedAt = summary.CompletedAt.Time().UTC()
	}
	return []interface{}{
		summary.ID.String(), string(summary.Status), string(summary.CorpusHash),
		summary.RecordCount, summary.CandidateCount, summary.HypothesisCount,
		summary.ConfirmedCount, summary.RejectedCount, summary.DiscardedCount,
		summary.FailureCode, summary.FailureMessage,
		summary.StartedAt.Time().UTC(), completedAt,
	}
}

func rowToSummary(row sessionRow) ports.SessionSummary {
	summary := ports.SessionSummary{
		ID:              core.SessionID(row.ID),
		Status:          ports.SessionStatus(row.Status),
		CorpusHash:      core.Hash(row.CorpusHash),
		RecordCount:     row.RecordCount,
		CandidateCount:  row.CandidateCount,
		HypothesisCount: row.HypothesisCount,
		ConfirmedCount:  row.ConfirmedCount,
		RejectedCount:   row.RejectedCount,
		DiscardedCount:  row.DiscardedCount,
		FailureCode:     row.FailureCode,
		FailureMessage:  row.FailureMessage,
		StartedAt:       core.NewTimestamp(row.StartedAt.UTC()),
	}
	if row.CompletedAt.Valid {
		at := core.NewTimestamp(row.CompletedAt.Time.UTC())
		summary.CompletedAt = &at
	}
	return summary
}
