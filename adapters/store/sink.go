package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"fortean/domain/core"
	"fortean/ports"
)

// SessionSink appends session narration to the session_log table. The
// (session_id, seq) primary key preserves the session's emission order and
// rejects duplicate sequence numbers.
type SessionSink struct {
	db *DB
}

var _ ports.SessionSink = (*SessionSink)(nil)

// NewSessionSink creates a sink on the shared handle
func NewSessionSink(db *DB) *SessionSink {
	return &SessionSink{db: db}
}

type logRow struct {
	SessionID string    `db:"session_id"`
	Seq       int       `db:"seq"`
	Phase     string    `db:"phase"`
	Message   string    `db:"message"`
	At        time.Time `db:"at"`
}

// Emit implements ports.SessionSink
func (s *SessionSink) Emit(ctx context.Context, entry ports.SessionEntry) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO session_log (session_id, seq, phase, message, at)
		VALUES (?, ?, ?, ?, ?)`),
		entry.SessionID.String(), entry.Seq, string(entry.Phase),
		entry.Message, entry.At.Time().UTC())
	if err != nil {
		return eris.Wrapf(err, "store: append session log %s seq %d", entry.SessionID, entry.Seq)
	}
	return nil
}

// Log returns the stored narration for a session in emission order
func (s *SessionSink) Log(ctx context.Context, sessionID core.SessionID) ([]ports.SessionEntry, error) {
	var rows []logRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT session_id, seq, phase, message, at FROM session_log
		WHERE session_id = ? ORDER BY seq`), sessionID.String())
	if err != nil {
		return nil, eris.Wrapf(err, "store: read session log %s", sessionID)
	}
	entries := make([]ports.SessionEntry, len(rows))
	for i, row := range rows {
		entries[i] = ports.SessionEntry{
			SessionID: core.SessionID(row.SessionID),
			Seq:       row.Seq,
			Phase:     ports.SessionPhase(row.Phase),
			Message:   row.Message,
			At:        core.NewTimestamp(row.At.UTC()),
		}
	}
	return entries, nil
}
