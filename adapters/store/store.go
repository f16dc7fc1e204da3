package store

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Supported driver names, matching the store.driver config values
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps the shared sqlx handle. All repositories in this package write
// queries with ? placeholders and rebind them, so one query text serves both
// drivers.
type DB struct {
	*sqlx.DB
	driver string
}

// Open connects to the configured backend. SQLite gets WAL mode and a busy
// timeout so concurrent readers do not trip over the session writer; Postgres
// is pinged so a bad DSN fails at startup, not mid-session.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		// modernc registers as "sqlite", which sqlx does not know; it keeps
		// ? placeholders.
		sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
		db, err := sqlx.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, eris.Wrap(err, "store: open sqlite")
		}
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, eris.Wrapf(err, "store: exec %s", pragma)
			}
		}
		return &DB{DB: db, driver: driver}, nil

	case DriverPostgres:
		db, err := sqlx.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, eris.Wrap(err, "store: open postgres")
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "store: ping postgres")
		}
		return &DB{DB: db, driver: driver}, nil

	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}

// Driver returns the backend driver name
func (db *DB) Driver() string {
	return db.driver
}

// Migrate applies the schema for the active driver. Both schemas are
// idempotent; Migrate runs on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS event_records (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	latitude    REAL,
	longitude   REAL,
	observed_at DATETIME,
	attributes  TEXT NOT NULL DEFAULT '{}',
	ingested_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_records_type ON event_records(type);
CREATE INDEX IF NOT EXISTS idx_event_records_observed_at ON event_records(observed_at);

CREATE TABLE IF NOT EXISTS research_sessions (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	corpus_hash      TEXT NOT NULL DEFAULT '',
	record_count     INTEGER NOT NULL DEFAULT 0,
	candidate_count  INTEGER NOT NULL DEFAULT 0,
	hypothesis_count INTEGER NOT NULL DEFAULT 0,
	confirmed_count  INTEGER NOT NULL DEFAULT 0,
	rejected_count   INTEGER NOT NULL DEFAULT 0,
	discarded_count  INTEGER NOT NULL DEFAULT 0,
	failure_code     TEXT NOT NULL DEFAULT '',
	failure_message  TEXT NOT NULL DEFAULT '',
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME
);

CREATE TABLE IF NOT EXISTS session_log (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	phase      TEXT NOT NULL,
	message    TEXT NOT NULL,
	at         DATETIME NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS findings (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	hypothesis_id TEXT NOT NULL,
	confidence    REAL NOT NULL,
	payload       TEXT NOT NULL,
	assembled_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_findings_session ON findings(session_id);
CREATE INDEX IF NOT EXISTS idx_findings_assembled ON findings(assembled_at);

CREATE TABLE IF NOT EXISTS review_queue (
	finding_id   TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'queued',
	submitted_at DATETIME NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS event_records (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	observed_at TIMESTAMPTZ,
	attributes  JSONB NOT NULL DEFAULT '{}',
	ingested_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_records_type ON event_records(type);
CREATE INDEX IF NOT EXISTS idx_event_records_observed_at ON event_records(observed_at);

CREATE TABLE IF NOT EXISTS research_sessions (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	corpus_hash      TEXT NOT NULL DEFAULT '',
	record_count     INTEGER NOT NULL DEFAULT 0,
	candidate_count  INTEGER NOT NULL DEFAULT 0,
	hypothesis_count INTEGER NOT NULL DEFAULT 0,
	confirmed_count  INTEGER NOT NULL DEFAULT 0,
	rejected_count   INTEGER NOT NULL DEFAULT 0,
	discarded_count  INTEGER NOT NULL DEFAULT 0,
	failure_code     TEXT NOT NULL DEFAULT '',
	failure_message  TEXT NOT NULL DEFAULT '',
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_log (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	phase      TEXT NOT NULL,
	message    TEXT NOT NULL,
	at         TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS findings (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	hypothesis_id TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	payload       JSONB NOT NULL,
	assembled_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_findings_session ON findings(session_id);
CREATE INDEX IF NOT EXISTS idx_findings_assembled ON findings(assembled_at);

CREATE TABLE IF NOT EXISTS review_queue (
	finding_id   TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'queued',
	submitted_at TIMESTAMPTZ NOT NULL
);
`
