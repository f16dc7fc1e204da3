// Package battery implements permutation testing for spatial co-occurrence.
// It answers one question: do multiple phenomenon types share grid cells more
// often than chance would produce if type labels were assigned at random?
// The null model holds every report's location fixed and shuffles only the
// type labels, optionally within confound strata so known nuisance structure
// survives the shuffle.
package battery

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/stats"
	"fortean/internal/analysis"
	"fortean/internal/stattest"
)

const (
	minIterations = 1000
	maxIterations = 100000

	// minLocatedRecords is the floor below which a permutation test carries
	// no information and degrades instead of running.
	minLocatedRecords = 10
)

// CoOccurrenceReferee runs the permutation battery. Draws are generated by a
// fixed worker pool with per-worker seeded streams and a static index
// partition, so the same input always produces the same null distribution
// regardless of scheduling.
type CoOccurrenceReferee struct {
	iterations int
	workers    int
	seed       int64
}

// NewCoOccurrenceReferee creates a referee with the default draw budget
func NewCoOccurrenceReferee() *CoOccurrenceReferee {
	return &CoOccurrenceReferee{
		iterations: stattest.DefaultMonteCarloIterations,
		workers:    4,
		seed:       42,
	}
}

// SetIterations configures the permutation budget, clamped to a sane range
func (r *CoOccurrenceReferee) SetIterations(n int) {
	if n < minIterations {
		n = minIterations
	}
	if n > maxIterations {
		n = maxIterations
	}
	r.iterations = n
}

// SetSeed repoints the deterministic shuffle streams
func (r *CoOccurrenceReferee) SetSeed(seed int64) {
	r.seed = seed
}

// CoOccurrenceInput describes one permutation test.
type CoOccurrenceInput struct {
	Records    []anomaly.EventRecord
	Resolution float64

	// Combination restricts the statistic to cells containing every listed
	// type. Empty means any cell holding two or more distinct types counts.
	Combination []anomaly.PhenomenonType

	// Strata maps record ids to stratum labels. When present, labels are
	// shuffled only within their stratum.
	Strata map[core.RecordID]string
}

// CoOccurrenceOutcome carries the test result plus the audit trail of the
// null distribution it was judged against.
type CoOccurrenceOutcome struct {
	Result        stats.TestResult
	Null          stats.NullDistributionSummary
	ObservedCells int
	TotalCells    int
	Resolution    float64
	Iterations    int
	Stratified    bool
}

// Test runs the permutation battery over one input. Degenerate inputs (too
// few located records, a single type, no occupied cells) come back as a
// non-passing result, not an error; the only error path is cancellation.
func (r *CoOccurrenceReferee) Test(ctx context.Context, input CoOccurrenceInput, th stats.Thresholds) (*CoOccurrenceOutcome, error) {
	resolution := input.Resolution
	if resolution <= 0 {
		resolution = analysis.DefaultResolution
	}

	labels, cellIdx, strata, cellCount := indexRecords(input, resolution)

	outcome := &CoOccurrenceOutcome{
		Resolution: resolution,
		TotalCells: cellCount,
		Stratified: input.Strata != nil,
	}

	if len(labels) < minLocatedRecords {
		outcome.Result = stats.Degenerate(stats.TestMonteCarlo, len(labels),
			"co-occurrence test requires at least 10 located records")
		return outcome, nil
	}
	if distinctLabels(labels) < 2 {
		outcome.Result = stats.Degenerate(stats.TestMonteCarlo, len(labels),
			"co-occurrence test requires at least two phenomenon types")
		return outcome, nil
	}

	wantMask := combinationMask(input.Combination)
	observed := coOccurrenceStatistic(labels, cellIdx, cellCount, wantMask)
	outcome.ObservedCells = int(observed)

	draws, err := r.generateNull(ctx, labels, cellIdx, strata, cellCount, wantMask)
	if err != nil {
		return nil, err
	}

	cursor := 0
	replay := func() float64 {
		v := draws[cursor]
		cursor++
		return v
	}
	outcome.Result = stattest.MonteCarlo(observed, replay, len(draws), th)
	outcome.Null = stattest.SummarizeNull(draws)
	outcome.Iterations = len(draws)
	return outcome, nil
}

// indexRecords flattens located records into parallel label/cell/stratum
// slices and returns the occupied cell count.
func indexRecords(input CoOccurrenceInput, resolution float64) ([]anomaly.PhenomenonType, []int, []int, int) {
	labels := make([]anomaly.PhenomenonType, 0, len(input.Records))
	cellIdx := make([]int, 0, len(input.Records))
	strata := make([]int, 0, len(input.Records))

	cellIndexByKey := make(map[string]int)
	stratumIndexByLabel := make(map[string]int)

	for _, rec := range input.Records {
		lat, lng, ok := rec.Coords()
		if !ok {
			continue
		}

		key := analysis.CellKey(lat, lng, resolution)
		ci, seen := cellIndexByKey[key]
		if !seen {
			ci = len(cellIndexByKey)
			cellIndexByKey[key] = ci
		}

		stratum := 0
		if input.Strata != nil {
			label := input.Strata[rec.ID]
			si, known := stratumIndexByLabel[label]
			if !known {
				si = len(stratumIndexByLabel)
				stratumIndexByLabel[label] = si
			}
			stratum = si
		}

		labels = append(labels, rec.Type)
		cellIdx = append(cellIdx, ci)
		strata = append(strata, stratum)
	}

	return labels, cellIdx, strata, len(cellIndexByKey)
}

func distinctLabels(labels []anomaly.PhenomenonType) int {
	seen := make(map[anomaly.PhenomenonType]bool, anomaly.TypeCount)
	for _, l := range labels {
		seen[l] = true
	}
	return len(seen)
}

// typeMask maps each phenomenon type to one bit
func typeMask(pt anomaly.PhenomenonType) uint8 {
	for i, known := range anomaly.AllTypes() {
		if known == pt {
			return 1 << uint(i)
		}
	}
	return 0
}

// combinationMask folds a required combination into a bitmask; zero means
// "any two or more types".
func combinationMask(combination []anomaly.PhenomenonType) uint8 {
	var mask uint8
	for _, pt := range combination {
		mask |= typeMask(pt)
	}
	return mask
}

// coOccurrenceStatistic counts qualifying cells under one label assignment.
// With a combination mask, a cell qualifies when it holds every required
// type; otherwise any cell holding two or more distinct types qualifies.
func coOccurrenceStatistic(labels []anomaly.PhenomenonType, cellIdx []int, cellCount int, wantMask uint8) float64 {
	masks := make([]uint8, cellCount)
	for i, label := range labels {
		masks[cellIdx[i]] |= typeMask(label)
	}

	count := 0
	for _, mask := range masks {
		if wantMask != 0 {
			if mask&wantMask == wantMask {
				count++
			}
			continue
		}
		if popCount(mask) >= 2 {
			count++
		}
	}
	return float64(count)
}

func popCount(mask uint8) int {
	count := 0
	for mask != 0 {
		count += int(mask & 1)
		mask >>= 1
	}
	return count
}

// generateNull produces the permutation null distribution. Iterations are
// partitioned statically across workers; worker w draws its shuffles from a
// stream seeded with seed+w, so results do not depend on goroutine timing.
func (r *CoOccurrenceReferee) generateNull(ctx context.Context, labels []anomaly.PhenomenonType, cellIdx, strata []int, cellCount int, wantMask uint8) ([]float64, error) {
	iterations := r.iterations
	workers := r.workers
	if workers < 1 || iterations < workers {
		workers = 1
	}

	groups := stratumGroups(strata)
	draws := make([]float64, iterations)

	chunk := (iterations + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > iterations {
			end = iterations
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(r.seed + int64(worker)))
			shuffled := make([]anomaly.PhenomenonType, len(labels))

			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				copy(shuffled, labels)
				for _, group := range groups {
					shuffleWithin(rng, shuffled, group)
				}
				draws[i] = coOccurrenceStatistic(shuffled, cellIdx, cellCount, wantMask)
			}
		}(w, start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return draws, nil
}

// stratumGroups collects record indices per stratum, ordered by stratum index
// so the shuffle sequence is reproducible.
func stratumGroups(strata []int) [][]int {
	byStratum := make(map[int][]int)
	for i, s := range strata {
		byStratum[s] = append(byStratum[s], i)
	}

	order := make([]int, 0, len(byStratum))
	for s := range byStratum {
		order = append(order, s)
	}
	sort.Ints(order)

	groups := make([][]int, 0, len(order))
	for _, s := range order {
		groups = append(groups, byStratum[s])
	}
	return groups
}

// shuffleWithin runs a Fisher-Yates shuffle over the label positions of one
// stratum group.
func shuffleWithin(rng *rand.Rand, labels []anomaly.PhenomenonType, group []int) {
	for i := len(group) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		labels[group[i]], labels[group[j]] = labels[group[j]], labels[group[i]]
	}
}
