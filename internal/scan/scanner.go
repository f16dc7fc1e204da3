// Package scan discovers preliminary pattern candidates in a record corpus.
// Four strategies (co-location, temporal, geographic, attribute) run
// concurrently over one immutable snapshot of the data; their output is
// merged, ranked by preliminary strength, and truncated. Candidates are
// leads for the hypothesis pipeline, not claims.
package scan

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fortean/domain/anomaly"
	"fortean/domain/discovery"
	"fortean/internal/analysis"
)

const (
	// MaxCandidates caps the merged candidate list
	MaxCandidates = 50

	// minQualifyingRecords is the per-strategy floor: below it a strategy
	// yields zero patterns for the affected domain, silently.
	minQualifyingRecords = 10
)

// Scanner runs the four discovery strategies over one corpus snapshot.
type Scanner struct {
	resolution float64
	expected   map[string]float64
	logger     *zap.Logger
}

// NewScanner creates a scanner at the given grid resolution
func NewScanner(resolution float64) *Scanner {
	if resolution <= 0 {
		resolution = analysis.DefaultResolution
	}
	return &Scanner{
		resolution: resolution,
		logger:     zap.L().With(zap.String("component", "scanner")),
	}
}

// SetExpectedCounts supplies per-cell expected counts for excess-ratio
// scoring. Without it every cell scores an excess ratio of 1.
func (s *Scanner) SetExpectedCounts(expected map[string]float64) {
	s.expected = expected
}

// Scan aggregates, scores, and runs all strategies concurrently, returning
// the merged candidates strongest-first, truncated to MaxCandidates.
func (s *Scanner) Scan(ctx context.Context, records []anomaly.EventRecord) ([]discovery.PatternCandidate, error) {
	grid, err := analysis.Aggregate(records, s.resolution)
	if err != nil {
		return nil, eris.Wrap(err, "scan: aggregate grid")
	}
	ranking := analysis.ScoreWindows(grid, s.expected)
	profile := analysis.Profile(records)

	var buckets [4][]discovery.PatternCandidate
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		buckets[0] = scanCoLocation(grid, ranking)
		return nil
	})
	g.Go(func() error {
		buckets[1] = scanTemporal(records)
		return nil
	})
	g.Go(func() error {
		buckets[2] = scanGeographic(grid, ranking)
		return nil
	})
	g.Go(func() error {
		buckets[3] = scanAttribute(records, profile)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := make([]discovery.PatternCandidate, 0,
		len(buckets[0])+len(buckets[1])+len(buckets[2])+len(buckets[3]))
	for _, bucket := range buckets {
		merged = append(merged, bucket...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].PreliminaryStrength != merged[j].PreliminaryStrength {
			return merged[i].PreliminaryStrength > merged[j].PreliminaryStrength
		}
		if merged[i].Type != merged[j].Type {
			return merged[i].Type < merged[j].Type
		}
		return merged[i].Description < merged[j].Description
	})
	if len(merged) > MaxCandidates {
		merged = merged[:MaxCandidates]
	}

	s.logger.Info("scan complete",
		zap.Int("records", len(records)),
		zap.Int("cells", len(grid.Cells)),
		zap.Int("co_location", len(buckets[0])),
		zap.Int("temporal", len(buckets[1])),
		zap.Int("geographic", len(buckets[2])),
		zap.Int("attribute", len(buckets[3])),
		zap.Int("kept", len(merged)),
	)
	return merged, nil
}

// indexByKey flattens a ranking into a key -> window index lookup
func indexByKey(ranking *analysis.WindowRanking) map[string]float64 {
	byKey := make(map[string]float64, len(ranking.Results))
	for _, res := range ranking.Results {
		byKey[res.CellKey] = res.WindowIndex
	}
	return byKey
}

func clampStrength(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
