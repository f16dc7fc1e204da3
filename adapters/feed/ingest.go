package feed

import (
	"context"
	"sort"

	mstats "github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/ports"
)

// Summary reports what one ingest run did.
type Summary struct {
	SourcePath string         `json:"source_path"`
	Read       int            `json:"read"`
	Skipped    int            `json:"skipped"`
	Selected   int            `json:"selected"`
	Written    int            `json:"written"`
	ByStatus   map[string]int `json:"by_status"`
	ByBucket   map[string]int `json:"population_buckets"`
}

// Ingestor loads record files, enriches them, and writes them to the store
// in batches. When a file holds more records than the cap, the highest
// quality records win.
type Ingestor struct {
	writer     ports.RecordWriter
	batchSize  int
	maxRecords int
	logger     *zap.Logger
}

func NewIngestor(writer ports.RecordWriter, batchSize, maxRecords int) *Ingestor {
	if batchSize < 1 {
		batchSize = 500
	}
	if maxRecords < batchSize {
		maxRecords = batchSize
	}
	return &Ingestor{
		writer:     writer,
		batchSize:  batchSize,
		maxRecords: maxRecords,
		logger:     zap.L().With(zap.String("component", "feed")),
	}
}

// IngestFile runs the whole pipeline for one file: parse, normalize, enrich,
// cap by quality, write in batches.
func (ig *Ingestor) IngestFile(ctx context.Context, path string) (*Summary, error) {
	rows, err := readFile(path)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		SourcePath: path,
		Read:       len(rows),
		ByStatus:   map[string]int{},
	}

	records := make([]anomaly.EventRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := normalize(row)
		if err != nil {
			summary.Skipped++
			ig.logger.Warn("skipping row", zap.Int("row", row.n), zap.Error(err))
			continue
		}
		records = append(records, Enrich(rec))
	}
	if len(records) == 0 {
		return nil, eris.Wrapf(core.ErrInsufficientData, "feed: no usable records in %s", path)
	}

	if len(records) > ig.maxRecords {
		rankByQuality(records)
		records = records[:ig.maxRecords]
	}
	summary.Selected = len(records)
	summary.ByBucket = populationBuckets(records)
	for _, rec := range records {
		if status, ok := rec.Attributes.String(anomaly.AttrReportStatus); ok {
			summary.ByStatus[status]++
		}
	}

	for start := 0; start < len(records); start += ig.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "feed: ingest cancelled")
		}
		end := min(start+ig.batchSize, len(records))
		written, err := ig.writer.SaveBatch(ctx, records[start:end])
		if err != nil {
			return nil, eris.Wrapf(err, "feed: batch at offset %d", start)
		}
		summary.Written += written
		ig.logger.Info("batch written",
			zap.Int("offset", start),
			zap.Int("size", end-start))
	}

	ig.logger.Info("ingest complete",
		zap.String("path", path),
		zap.Int("read", summary.Read),
		zap.Int("skipped", summary.Skipped),
		zap.Int("written", summary.Written))
	return summary, nil
}

// rankByQuality sorts highest quality first, id ascending on ties so the
// cap cut is deterministic.
func rankByQuality(records []anomaly.EventRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		qi, _ := records[i].Attributes.Number(anomaly.AttrQualityScore)
		qj, _ := records[j].Attributes.Number(anomaly.AttrQualityScore)
		if qi != qj {
			return qi > qj
		}
		return records[i].ID.String() < records[j].ID.String()
	})
}

// populationBuckets counts records per population-density quartile of the
// selected set. Records without the attribute land in "unknown".
func populationBuckets(records []anomaly.EventRecord) map[string]int {
	out := map[string]int{}
	densities := make([]float64, 0, len(records))
	for _, rec := range records {
		if d, ok := rec.Attributes.Number(anomaly.AttrPopulationDensity); ok {
			densities = append(densities, d)
		} else {
			out["unknown"]++
		}
	}
	if len(densities) == 0 {
		return out
	}

	quartiles, err := mstats.Quartile(densities)
	if err != nil {
		out["unbucketed"] = len(densities)
		return out
	}
	for _, d := range densities {
		switch {
		case d <= quartiles.Q1:
			out["q1"]++
		case d <= quartiles.Q2:
			out["q2"]++
		case d <= quartiles.Q3:
			out["q3"]++
		default:
			out["q4"]++
		}
	}
	return out
}
