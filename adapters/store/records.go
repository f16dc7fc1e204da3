package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/ports"
)

// RecordRepository persists event records
type RecordRepository struct {
	db *DB
}

var (
	_ ports.RecordStore  = (*RecordRepository)(nil)
	_ ports.RecordWriter = (*RecordRepository)(nil)
)

// NewRecordRepository creates a record repository on the shared handle
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

type recordRow struct {
	ID         string          `db:"id"`
	Type       string          `db:"type"`
	Latitude   sql.NullFloat64 `db:"latitude"`
	Longitude  sql.NullFloat64 `db:"longitude"`
	ObservedAt sql.NullTime    `db:"observed_at"`
	Attributes string          `db:"attributes"`
	IngestedAt time.Time       `db:"ingested_at"`
}

const recordColumns = `id, type, latitude, longitude, observed_at, attributes, ingested_at`

// SaveBatch upserts records inside one transaction and reports how many
// rows were written
func (r *RecordRepository) SaveBatch(ctx context.Context, records []anomaly.EventRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "store: begin record batch")
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO event_records (id, type, latitude, longitude, observed_at, attributes, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			observed_at = EXCLUDED.observed_at,
			attributes = EXCLUDED.attributes`)

	written := 0
	now := time.Now().UTC()
	for _, rec := range records {
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return 0, eris.Wrapf(err, "store: marshal attributes for %s", rec.ID)
		}
		var observedAt interface{}
		if rec.HasTimestamp() {
			observedAt = rec.ObservedAt.Time().UTC()
		}
		if _, err := tx.ExecContext(ctx, query,
			rec.ID.String(), rec.Type.String(), rec.Latitude, rec.Longitude,
			observedAt, string(attrs), now,
		); err != nil {
			return 0, eris.Wrapf(err, "store: upsert record %s", rec.ID)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "store: commit record batch")
	}
	return written, nil
}

// Fetch returns records matching the filter, paginated, ordered by id so
// pages are stable across calls
func (r *RecordRepository) Fetch(ctx context.Context, filter anomaly.RecordFilter, limit, offset int) ([]anomaly.EventRecord, error) {
	query, args := buildRecordQuery(filter)
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, eris.Wrap(err, "store: fetch records")
	}
	return rowsToRecords(rows)
}

// fetchPageSize bounds one page of the FetchAll drain
const fetchPageSize = 1000

// FetchAll drains every record matching the filter, one page at a time
func (r *RecordRepository) FetchAll(ctx context.Context, filter anomaly.RecordFilter) ([]anomaly.EventRecord, error) {
	var all []anomaly.EventRecord
	for offset := 0; ; offset += fetchPageSize {
		page, err := r.Fetch(ctx, filter, fetchPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < fetchPageSize {
			return all, nil
		}
	}
}

// Count returns how many records match the filter
func (r *RecordRepository) Count(ctx context.Context, filter anomaly.RecordFilter) (int, error) {
	query, args := buildRecordCountQuery(filter)
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, eris.Wrap(err, "store: count records")
	}
	return count, nil
}

// GetByID returns one record or core.ErrNotFound
func (r *RecordRepository) GetByID(ctx context.Context, id core.RecordID) (*anomaly.EventRecord, error) {
	var row recordRow
	err := r.db.GetContext(ctx, &row,
		r.db.Rebind(`SELECT `+recordColumns+` FROM event_records WHERE id = ?`), id.String())
	if err == sql.ErrNoRows {
		return nil, core.NewNotFoundError("record", id.String())
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get record %s", id)
	}
	rec, err := rowToRecord(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func buildRecordQuery(filter anomaly.RecordFilter) (string, []interface{}) {
	query := `SELECT ` + recordColumns + ` FROM event_records WHERE 1=1`
	return appendFilterClauses(query, filter)
}

func buildRecordCountQuery(filter anomaly.RecordFilter) (string, []interface{}) {
	query := `SELECT COUNT(*) FROM event_records WHERE 1=1`
	return appendFilterClauses(query, filter)
}

func appendFilterClauses(query string, filter anomaly.RecordFilter) (string, []interface{}) {
	var args []interface{}
	if filter.Type != nil {
		query += ` AND type = ?`
		args = append(args, filter.Type.String())
	}
	if filter.DateRange != nil {
		query += ` AND observed_at IS NOT NULL AND observed_at >= ? AND observed_at <= ?`
		args = append(args, filter.DateRange.From.UTC(), filter.DateRange.To.UTC())
	}
	if filter.GeoBounds != nil {
		query += ` AND latitude IS NOT NULL AND longitude IS NOT NULL` +
			` AND latitude >= ? AND latitude <= ? AND longitude >= ? AND longitude <= ?`
		args = append(args,
			filter.GeoBounds.MinLat, filter.GeoBounds.MaxLat,
			filter.GeoBounds.MinLng, filter.GeoBounds.MaxLng)
	}
	return query, args
}

func rowsToRecords(rows []recordRow) ([]anomaly.EventRecord, error) {
	records := make([]anomaly.EventRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func rowToRecord(row recordRow) (anomaly.EventRecord, error) {
	rec := anomaly.EventRecord{
		ID:   core.RecordID(row.ID),
		Type: anomaly.PhenomenonType(row.Type),
	}
	if row.Latitude.Valid {
		lat := row.Latitude.Float64
		rec.Latitude = &lat
	}
	if row.Longitude.Valid {
		lng := row.Longitude.Float64
		rec.Longitude = &lng
	}
	if row.ObservedAt.Valid {
		rec.ObservedAt = core.NewTimestamp(row.ObservedAt.Time.UTC())
	}
	if row.Attributes != "" {
		if err := json.Unmarshal([]byte(row.Attributes), &rec.Attributes); err != nil {
			return anomaly.EventRecord{}, eris.Wrapf(err, "store: unmarshal attributes for %s", row.ID)
		}
	}
	return rec, nil
}
