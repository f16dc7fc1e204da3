package scan

import (
	"fmt"
	"sort"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/internal/analysis"
)

const (
	cellZThreshold      = 2.0
	excessThreshold     = 1.5
	minGeographicCells  = 4
	maxFlaggedCells     = 50
	flaggedCellsHorizon = 10.0
)

// scanGeographic flags spatial outliers in the window-index ranking: cells
// whose index stands more than two standard deviations above the mean, and
// separately cells observed at more than 1.5 times their expected count.
// Each signal class becomes its own candidate; strength grows with the
// number of flagged cells.
func scanGeographic(grid *analysis.Grid, ranking *analysis.WindowRanking) []discovery.PatternCandidate {
	if grid.RecordsBinned < minQualifyingRecords {
		return nil
	}
	if len(ranking.Results) < minGeographicCells {
		return nil
	}

	highIndex := make([]discovery.CellSignal, 0)
	if ranking.StdDevIndex > 0 {
		for _, res := range ranking.Results {
			z := (res.WindowIndex - ranking.MeanIndex) / ranking.StdDevIndex
			if z <= cellZThreshold {
				// Results are sorted descending, nothing further qualifies
				break
			}
			highIndex = append(highIndex, discovery.CellSignal{
				CellKey:     res.CellKey,
				WindowIndex: res.WindowIndex,
				ZScore:      z,
			})
			if len(highIndex) == maxFlaggedCells {
				break
			}
		}
	}

	highExcess := make([]discovery.CellSignal, 0)
	for _, res := range ranking.Results {
		if res.ExcessRatio <= excessThreshold {
			continue
		}
		highExcess = append(highExcess, discovery.CellSignal{
			CellKey:     res.CellKey,
			WindowIndex: res.WindowIndex,
			ExcessRatio: res.ExcessRatio,
		})
	}
	sort.Slice(highExcess, func(i, j int) bool {
		if highExcess[i].ExcessRatio != highExcess[j].ExcessRatio {
			return highExcess[i].ExcessRatio > highExcess[j].ExcessRatio
		}
		return highExcess[i].CellKey < highExcess[j].CellKey
	})
	if len(highExcess) > maxFlaggedCells {
		highExcess = highExcess[:maxFlaggedCells]
	}

	candidates := make([]discovery.PatternCandidate, 0, 2)
	if len(highIndex) > 0 {
		candidates = append(candidates, geographicCandidate(
			grid, ranking, highIndex, nil,
			fmt.Sprintf("window index outliers: %d cells above 2 sigma at %.2f degrees",
				len(highIndex), grid.Resolution),
			len(highIndex),
		))
	}
	if len(highExcess) > 0 {
		candidates = append(candidates, geographicCandidate(
			grid, ranking, nil, highExcess,
			fmt.Sprintf("excess concentrations: %d cells above %.1fx expected count",
				len(highExcess), excessThreshold),
			len(highExcess),
		))
	}
	return candidates
}

func geographicCandidate(grid *analysis.Grid, ranking *analysis.WindowRanking, highIndex, highExcess []discovery.CellSignal, description string, flagged int) discovery.PatternCandidate {
	return discovery.PatternCandidate{
		ID:          core.NewPatternID(),
		Type:        discovery.PatternGeographic,
		Description: description,
		Domains:     flaggedDomains(grid, highIndex, highExcess),
		Evidence: discovery.Evidence{
			Kind: discovery.PatternGeographic,
			Geographic: &discovery.GeographicEvidence{
				Resolution:    grid.Resolution,
				MeanIndex:     ranking.MeanIndex,
				StdDevIndex:   ranking.StdDevIndex,
				HighIndex:     highIndex,
				HighExcess:    highExcess,
				CellsExamined: len(ranking.Results),
			},
		},
		PreliminaryStrength: clampStrength(float64(flagged) / flaggedCellsHorizon),
		DiscoveredAt:        core.Now(),
	}
}

// flaggedDomains returns the phenomenon types observed in the flagged cells
func flaggedDomains(grid *analysis.Grid, signalSets ...[]discovery.CellSignal) []anomaly.PhenomenonType {
	seen := make(map[anomaly.PhenomenonType]bool)
	for _, signals := range signalSets {
		for _, signal := range signals {
			cell, ok := grid.Cells[signal.CellKey]
			if !ok {
				continue
			}
			for _, pt := range cell.TypesPresent() {
				seen[pt] = true
			}
		}
	}

	domains := make([]anomaly.PhenomenonType, 0, len(seen))
	for _, pt := range anomaly.AllTypes() {
		if seen[pt] {
			domains = append(domains, pt)
		}
	}
	return domains
}
