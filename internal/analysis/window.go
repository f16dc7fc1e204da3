package analysis

import (
	"sort"

	mstats "github.com/montanaflynn/stats"

	"fortean/domain/anomaly"
)

// TopWindowCap bounds how many high-index cells a ranking reports
const TopWindowCap = 50

// WindowIndexResult scores one occupied cell. The index is the product of
// three factors: type diversity (types present over the three known types),
// excess ratio (observed over expected count, capped at 10, 1.0 when no
// expectation exists for the cell), and a rarity bonus that rewards
// co-occurrence (1.0 / 1.2 / 1.5 for one / two / three types).
type WindowIndexResult struct {
	CellKey       string
	WindowIndex   float64
	TypeDiversity float64
	ExcessRatio   float64
	RarityBonus   float64
	TotalCount    int
	Rank          int
}

// WindowRanking is the scored cell set in descending index order.
type WindowRanking struct {
	Resolution     float64
	Results        []WindowIndexResult
	MeanIndex      float64
	MedianIndex    float64
	StdDevIndex    float64
	TopWindowAreas []WindowIndexResult
}

// ByKey returns the scored result for a cell key
func (r *WindowRanking) ByKey(key string) (WindowIndexResult, bool) {
	for _, res := range r.Results {
		if res.CellKey == key {
			return res, true
		}
	}
	return WindowIndexResult{}, false
}

// ScoreWindows ranks every occupied cell of a grid. Cells with no
// observations are excluded before ranking. The expected map may be nil;
// cells without an expectation score an excess ratio of 1.0.
func ScoreWindows(grid *Grid, expected map[string]float64) *WindowRanking {
	ranking := &WindowRanking{Resolution: grid.Resolution}

	for _, key := range grid.CellKeys() {
		cell := grid.Cells[key]
		if cell.TotalCount <= 0 {
			continue
		}

		diversity := float64(cell.TypeCount()) / float64(anomaly.TypeCount)
		excess := excessRatio(cell, expected)
		bonus := rarityBonus(cell.TypeCount())

		ranking.Results = append(ranking.Results, WindowIndexResult{
			CellKey:       key,
			WindowIndex:   diversity * excess * bonus,
			TypeDiversity: diversity,
			ExcessRatio:   excess,
			RarityBonus:   bonus,
			TotalCount:    cell.TotalCount,
		})
	}

	if len(ranking.Results) == 0 {
		return ranking
	}

	// Descending by index, cell key breaks ties so ranks stay stable
	sort.Slice(ranking.Results, func(i, j int) bool {
		if ranking.Results[i].WindowIndex != ranking.Results[j].WindowIndex {
			return ranking.Results[i].WindowIndex > ranking.Results[j].WindowIndex
		}
		return ranking.Results[i].CellKey < ranking.Results[j].CellKey
	})
	for i := range ranking.Results {
		ranking.Results[i].Rank = i + 1
	}

	indexes := make([]float64, len(ranking.Results))
	for i, res := range ranking.Results {
		indexes[i] = res.WindowIndex
	}
	ranking.MeanIndex, _ = mstats.Mean(indexes)
	ranking.MedianIndex, _ = mstats.Median(indexes)
	ranking.StdDevIndex, _ = mstats.StandardDeviation(indexes)

	cutoff := ranking.MeanIndex + 2*ranking.StdDevIndex
	for _, res := range ranking.Results {
		if res.WindowIndex <= cutoff {
			break
		}
		ranking.TopWindowAreas = append(ranking.TopWindowAreas, res)
		if len(ranking.TopWindowAreas) == TopWindowCap {
			break
		}
	}

	return ranking
}

// excessRatio compares observed to expected counts, capped at 10 so one
// sparse expectation cannot dominate the index.
func excessRatio(cell *GridCell, expected map[string]float64) float64 {
	if expected == nil {
		return 1.0
	}
	exp, ok := expected[cell.Key]
	if !ok || exp <= 0 {
		return 1.0
	}
	ratio := float64(cell.TotalCount) / exp
	if ratio > 10 {
		return 10
	}
	return ratio
}

// rarityBonus rewards multi-type cells
func rarityBonus(typeCount int) float64 {
	switch {
	case typeCount >= 3:
		return 1.5
	case typeCount == 2:
		return 1.2
	default:
		return 1.0
	}
}
