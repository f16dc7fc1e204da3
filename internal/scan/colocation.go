package scan

import (
	"fmt"
	"sort"
	"strings"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/internal/analysis"
)

const (
	minComboCells  = 3
	minComboEvents = 5
	maxComboKeys   = 50
)

// scanCoLocation groups multi-type cells by their exact type combination and
// emits one candidate per combination that recurs across enough cells.
// Strength rewards both spread (cell count against a 20-cell horizon) and the
// quality of the cells involved (average window index).
func scanCoLocation(grid *analysis.Grid, ranking *analysis.WindowRanking) []discovery.PatternCandidate {
	if grid.RecordsBinned < minQualifyingRecords {
		return nil
	}

	type comboGroup struct {
		types []anomaly.PhenomenonType
		cells []*analysis.GridCell
	}
	groups := make(map[string]*comboGroup)

	for _, key := range grid.CellKeys() {
		cell := grid.Cells[key]
		present := cell.TypesPresent()
		if len(present) < 2 {
			continue
		}
		comboKey := anomaly.TypeSetKey(present)
		group, ok := groups[comboKey]
		if !ok {
			group = &comboGroup{types: present}
			groups[comboKey] = group
		}
		group.cells = append(group.cells, cell)
	}

	comboKeys := make([]string, 0, len(groups))
	for key := range groups {
		comboKeys = append(comboKeys, key)
	}
	sort.Strings(comboKeys)

	indexes := indexByKey(ranking)
	candidates := make([]discovery.PatternCandidate, 0, len(comboKeys))

	for _, comboKey := range comboKeys {
		group := groups[comboKey]
		if len(group.cells) < minComboCells {
			continue
		}

		totalEvents := 0
		indexSum := 0.0
		cellKeys := make([]string, 0, len(group.cells))
		for _, cell := range group.cells {
			totalEvents += cell.TotalCount
			indexSum += indexes[cell.Key]
			cellKeys = append(cellKeys, cell.Key)
		}
		if totalEvents < minComboEvents {
			continue
		}

		sort.Strings(cellKeys)
		if len(cellKeys) > maxComboKeys {
			cellKeys = cellKeys[:maxComboKeys]
		}

		avgIndex := indexSum / float64(len(group.cells))
		strength := clampStrength(float64(len(group.cells)) / 20.0 * (avgIndex/2.0 + 0.5))

		candidates = append(candidates, discovery.PatternCandidate{
			ID:   core.NewPatternID(),
			Type: discovery.PatternCoLocation,
			Description: fmt.Sprintf("%s reports co-locate in %d grid cells (%d events)",
				humanizeCombination(group.types), len(group.cells), totalEvents),
			Domains: group.types,
			Evidence: discovery.Evidence{
				Kind: discovery.PatternCoLocation,
				CoLocation: &discovery.CoLocationEvidence{
					TypeCombination: group.types,
					CellCount:       len(group.cells),
					TotalEvents:     totalEvents,
					AvgWindowIndex:  avgIndex,
					CellKeys:        cellKeys,
					Resolution:      grid.Resolution,
				},
			},
			PreliminaryStrength: strength,
			DiscoveredAt:        core.Now(),
		})
	}
	return candidates
}

// humanizeCombination renders a type set as "ufo and cryptid"
func humanizeCombination(types []anomaly.PhenomenonType) string {
	names := make([]string, len(types))
	for i, pt := range types {
		names[i] = string(pt)
	}
	if len(names) <= 1 {
		return strings.Join(names, "")
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
