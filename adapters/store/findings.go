package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"fortean/domain/core"
	"fortean/domain/verdict"
	"fortean/ports"
)

// FindingRepository persists assembled findings. The full finding is stored
// as one JSON payload; session, confidence, and assembly time are broken out
// into columns for listing without unmarshalling.
type FindingRepository struct {
	db *DB
}

var _ ports.FindingRepository = (*FindingRepository)(nil)

// NewFindingRepository creates a finding repository on the shared handle
func NewFindingRepository(db *DB) *FindingRepository {
	return &FindingRepository{db: db}
}

type findingRow struct {
	ID      string `db:"id"`
	Payload string `db:"payload"`
}

// SaveFinding stores a finding
func (r *FindingRepository) SaveFinding(ctx context.Context, sessionID core.SessionID, finding verdict.Finding) error {
	payload, err := json.Marshal(finding)
	if err != nil {
		return eris.Wrapf(err, "store: marshal finding %s", finding.ID)
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO findings (id, session_id, hypothesis_id, confidence, payload, assembled_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			confidence = EXCLUDED.confidence,
			payload = EXCLUDED.payload`),
		finding.ID.String(), sessionID.String(), finding.HypothesisID.String(),
		finding.Confidence, string(payload), finding.AssembledAt.Time().UTC())
	if err != nil {
		return eris.Wrapf(err, "store: save finding %s", finding.ID)
	}
	return nil
}

// GetFinding returns one finding or core.ErrNotFound
func (r *FindingRepository) GetFinding(ctx context.Context, id core.FindingID) (*verdict.Finding, error) {
	var row findingRow
	err := r.db.GetContext(ctx, &row,
		r.db.Rebind(`SELECT id, payload FROM findings WHERE id = ?`), id.String())
	if err == sql.ErrNoRows {
		return nil, core.NewNotFoundError("finding", id.String())
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get finding %s", id)
	}
	return unmarshalFinding(row)
}

// ListFindings returns findings for a session, newest first
func (r *FindingRepository) ListFindings(ctx context.Context, sessionID core.SessionID) ([]verdict.Finding, error) {
	var rows []findingRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, payload FROM findings
		WHERE session_id = ?
		ORDER BY assembled_at DESC, id DESC`), sessionID.String())
	if err != nil {
		return nil, eris.Wrapf(err, "store: list findings for session %s", sessionID)
	}
	return unmarshalFindings(rows)
}

// ListRecentFindings returns the latest findings across sessions
func (r *FindingRepository) ListRecentFindings(ctx context.Context, limit int) ([]verdict.Finding, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []findingRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, payload FROM findings
		ORDER BY assembled_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list recent findings")
	}
	return unmarshalFindings(rows)
}

func unmarshalFindings(rows []findingRow) ([]verdict.Finding, error) {
	findings := make([]verdict.Finding, 0, len(rows))
	for _, row := range rows {
		f, err := unmarshalFinding(row)
		if err != nil {
			return nil, err
		}
		findings = append(findings, *f)
	}
	return findings, nil
}

func unmarshalFinding(row findingRow) (*verdict.Finding, error) {
	var finding verdict.Finding
	if err := json.Unmarshal([]byte(row.Payload), &finding); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal finding %s", row.ID)
	}
	return &finding, nil
}

// ReviewQueue is the database-backed review inbox. Submissions are
// idempotent per finding; resubmitting an already-queued finding is a no-op.
type ReviewQueue struct {
	db *DB
}

var _ ports.ReviewQueue = (*ReviewQueue)(nil)

// NewReviewQueue creates a review queue on the shared handle
func NewReviewQueue(db *DB) *ReviewQueue {
	return &ReviewQueue{db: db}
}

// Submit implements ports.ReviewQueue. A finding that fails its own
// invariant is refused before it touches the queue.
func (q *ReviewQueue) Submit(ctx context.Context, finding verdict.Finding) (core.FindingID, error) {
	if err := finding.Validate(); err != nil {
		return "", eris.Wrapf(err, "store: refuse finding %s", finding.ID)
	}
	_, err := q.db.ExecContext(ctx, q.db.Rebind(`
		INSERT INTO review_queue (finding_id, status, submitted_at)
		VALUES (?, 'queued', ?)
		ON CONFLICT (finding_id) DO NOTHING`),
		finding.ID.String(), time.Now().UTC())
	if err != nil {
		return "", eris.Wrapf(err, "store: submit finding %s for review", finding.ID)
	}
	return finding.ID, nil
}
