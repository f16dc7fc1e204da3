package ports

import (
	"context"

	"fortean/domain/anomaly"
	"fortean/domain/core"
)

// RecordStore provides read-only, paginated access to ingested event
// records. The discovery core never writes records; ingest goes through
// RecordWriter so the two capabilities stay separable.
type RecordStore interface {
	// Fetch returns records matching the filter, paginated
	Fetch(ctx context.Context, filter anomaly.RecordFilter, limit, offset int) ([]anomaly.EventRecord, error)

	// FetchAll drains every record matching the filter
	FetchAll(ctx context.Context, filter anomaly.RecordFilter) ([]anomaly.EventRecord, error)

	// Count returns how many records match the filter
	Count(ctx context.Context, filter anomaly.RecordFilter) (int, error)

	// GetByID returns one record or core.ErrNotFound
	GetByID(ctx context.Context, id core.RecordID) (*anomaly.EventRecord, error)
}

// RecordWriter persists records at ingest time
type RecordWriter interface {
	// SaveBatch upserts a batch of records, returning how many were written
	SaveBatch(ctx context.Context, records []anomaly.EventRecord) (int, error)
}
