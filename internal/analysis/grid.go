// Package analysis implements the spatial preparation stages that run ahead
// of pattern scanning: grid aggregation, window-index scoring, deterministic
// train/holdout splitting, and per-domain attribute profiling. Everything
// here is a pure function over record slices; no stage mutates its input.
package analysis

import (
	"fmt"
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"

	"fortean/domain/anomaly"
	"fortean/domain/core"
)

// DefaultResolution is the grid cell size in degrees used when the caller
// does not choose one.
const DefaultResolution = 0.25

// Resolutions is the fixed ladder the multi-resolution pass walks.
var Resolutions = []float64{0.25, 0.5, 1.0, 2.0}

// GridCell is one occupied cell of the spatial grid at a single resolution.
// Cells are derived wholesale by Aggregate and never mutated afterwards.
type GridCell struct {
	Key        string
	CenterLat  float64
	CenterLng  float64
	Resolution float64

	TotalCount int
	TypeCounts map[anomaly.PhenomenonType]int
	RecordIDs  []core.RecordID

	// PopulationQuartile buckets the cell 1..4 by its total count against
	// the 25/50/75th percentiles of the current cell set.
	PopulationQuartile int
}

// TypesPresent returns the phenomenon types observed in the cell, in the
// canonical type order.
func (c *GridCell) TypesPresent() []anomaly.PhenomenonType {
	present := make([]anomaly.PhenomenonType, 0, len(c.TypeCounts))
	for _, pt := range anomaly.AllTypes() {
		if c.TypeCounts[pt] > 0 {
			present = append(present, pt)
		}
	}
	return present
}

// TypeCount returns how many distinct phenomenon types the cell holds
func (c *GridCell) TypeCount() int {
	return len(c.TypesPresent())
}

// Grid is the output of one aggregation pass at one resolution.
type Grid struct {
	Resolution     float64
	Cells          map[string]*GridCell
	RecordsBinned  int
	RecordsSkipped int
}

// CellKeys returns the occupied cell keys in sorted order
func (g *Grid) CellKeys() []string {
	keys := make([]string, 0, len(g.Cells))
	for k := range g.Cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CellKey snaps a coordinate pair to its cell center at the given resolution
// and renders it at fixed precision, so identical inputs always produce
// identical keys.
func CellKey(lat, lng, size float64) string {
	latC := math.Floor(lat/size)*size + size/2
	lngC := math.Floor(lng/size)*size + size/2
	return fmt.Sprintf("%.3f,%.3f", latC, lngC)
}

// Aggregate bins records into grid cells at one resolution. Records without
// coordinates are skipped, not fatal. Population quartiles are assigned in a
// post-hoc pass over the finished cell set.
func Aggregate(records []anomaly.EventRecord, size float64) (*Grid, error) {
	if size <= 0 {
		return nil, fmt.Errorf("analysis: grid resolution must be positive, got %g", size)
	}

	grid := &Grid{
		Resolution: size,
		Cells:      make(map[string]*GridCell),
	}

	for _, rec := range records {
		lat, lng, ok := rec.Coords()
		if !ok {
			grid.RecordsSkipped++
			continue
		}

		key := CellKey(lat, lng, size)
		cell, exists := grid.Cells[key]
		if !exists {
			cell = &GridCell{
				Key:        key,
				CenterLat:  math.Floor(lat/size)*size + size/2,
				CenterLng:  math.Floor(lng/size)*size + size/2,
				Resolution: size,
				TypeCounts: make(map[anomaly.PhenomenonType]int),
			}
			grid.Cells[key] = cell
		}

		cell.TotalCount++
		cell.TypeCounts[rec.Type]++
		cell.RecordIDs = append(cell.RecordIDs, rec.ID)
		grid.RecordsBinned++
	}

	assignPopulationQuartiles(grid.Cells)
	return grid, nil
}

// AggregateAll repeats the aggregation for every resolution on the ladder.
func AggregateAll(records []anomaly.EventRecord) (map[float64]*Grid, error) {
	grids := make(map[float64]*Grid, len(Resolutions))
	for _, size := range Resolutions {
		grid, err := Aggregate(records, size)
		if err != nil {
			return nil, err
		}
		grids[size] = grid
	}
	return grids, nil
}

// assignPopulationQuartiles buckets each cell 1..4 against the 25/50/75th
// percentiles of per-cell totals. Below four cells the cuts degenerate and
// the buckets become lumpy, which downstream stratification tolerates.
func assignPopulationQuartiles(cells map[string]*GridCell) {
	if len(cells) == 0 {
		return
	}

	totals := make([]float64, 0, len(cells))
	for _, cell := range cells {
		totals = append(totals, float64(cell.TotalCount))
	}

	q1 := percentileOrMin(totals, 25)
	q2 := percentileOrMin(totals, 50)
	q3 := percentileOrMin(totals, 75)

	for _, cell := range cells {
		total := float64(cell.TotalCount)
		switch {
		case total <= q1:
			cell.PopulationQuartile = 1
		case total <= q2:
			cell.PopulationQuartile = 2
		case total <= q3:
			cell.PopulationQuartile = 3
		default:
			cell.PopulationQuartile = 4
		}
	}
}

// percentileOrMin falls back to the minimum when the sample is too small for
// the percentile cut to be defined.
func percentileOrMin(values []float64, percent float64) float64 {
	p, err := mstats.Percentile(values, percent)
	if err != nil {
		m, merr := mstats.Min(values)
		if merr != nil {
			return 0
		}
		return m
	}
	return p
}
