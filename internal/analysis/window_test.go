package analysis

import (
	"fmt"
	"math"
	"testing"

	"fortean/domain/anomaly"
)

// TestScoreWindows_FullDiversityWithExcess verifies the index product for a
// three-type cell observed at twice its expectation
func TestScoreWindows_FullDiversityWithExcess(t *testing.T) {
	records := []anomaly.EventRecord{
		locatedRecord("u1", anomaly.TypeUFO, 33.1, -97.1),
		locatedRecord("u2", anomaly.TypeUFO, 33.1, -97.1),
		locatedRecord("c1", anomaly.TypeCryptid, 33.1, -97.1),
		locatedRecord("c2", anomaly.TypeCryptid, 33.1, -97.1),
		locatedRecord("h1", anomaly.TypeHaunting, 33.1, -97.1),
		locatedRecord("h2", anomaly.TypeHaunting, 33.1, -97.1),
	}
	grid, err := Aggregate(records, 0.25)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	key := CellKey(33.1, -97.1, 0.25)
	ranking := ScoreWindows(grid, map[string]float64{key: 3.0})

	result, ok := ranking.ByKey(key)
	if !ok {
		t.Fatal("Expected the cell to be ranked")
	}
	if result.TypeDiversity != 1.0 {
		t.Errorf("Expected type diversity 1.0 for all three types, got %f", result.TypeDiversity)
	}
	if result.ExcessRatio != 2.0 {
		t.Errorf("Expected excess ratio 2.0 for 6 observed vs 3 expected, got %f", result.ExcessRatio)
	}
	if result.RarityBonus != 1.5 {
		t.Errorf("Expected rarity bonus 1.5 for three types, got %f", result.RarityBonus)
	}
	if math.Abs(result.WindowIndex-3.0) > 1e-9 {
		t.Errorf("Expected window index 3.0, got %f", result.WindowIndex)
	}
}

// TestScoreWindows_NoExpectationDefaults verifies a missing expectation
// scores an excess ratio of exactly 1
func TestScoreWindows_NoExpectationDefaults(t *testing.T) {
	records := []anomaly.EventRecord{
		locatedRecord("u1", anomaly.TypeUFO, 10.1, 10.1),
	}
	grid, _ := Aggregate(records, 0.25)

	for _, expected := range []map[string]float64{nil, {}, {"other": 5}} {
		ranking := ScoreWindows(grid, expected)
		if len(ranking.Results) != 1 {
			t.Fatalf("Expected one ranked cell, got %d", len(ranking.Results))
		}
		result := ranking.Results[0]
		if result.ExcessRatio != 1.0 {
			t.Errorf("Expected excess ratio 1.0 without expectation, got %f", result.ExcessRatio)
		}
		// One type: diversity 1/3, bonus 1.0
		want := 1.0 / 3.0
		if math.Abs(result.WindowIndex-want) > 1e-9 {
			t.Errorf("Expected window index %f, got %f", want, result.WindowIndex)
		}
	}
}

// TestScoreWindows_ExcessRatioCap verifies observed far above expectation
// saturates at 10
func TestScoreWindows_ExcessRatioCap(t *testing.T) {
	records := make([]anomaly.EventRecord, 0, 50)
	for i := 0; i < 50; i++ {
		records = append(records, locatedRecord(fmt.Sprintf("r%d", i), anomaly.TypeUFO, 10.1, 10.1))
	}
	grid, _ := Aggregate(records, 0.25)

	key := CellKey(10.1, 10.1, 0.25)
	ranking := ScoreWindows(grid, map[string]float64{key: 0.5})

	result, _ := ranking.ByKey(key)
	if result.ExcessRatio != 10.0 {
		t.Errorf("Expected excess ratio capped at 10, got %f", result.ExcessRatio)
	}
}

// TestScoreWindows_RankOrderAndStats verifies descending order, dense ranks,
// and the summary statistics
func TestScoreWindows_RankOrderAndStats(t *testing.T) {
	records := []anomaly.EventRecord{
		// Cell A: two types
		locatedRecord("a1", anomaly.TypeUFO, 10.1, 10.1),
		locatedRecord("a2", anomaly.TypeCryptid, 10.1, 10.1),
		// Cell B: one type
		locatedRecord("b1", anomaly.TypeUFO, 20.1, 20.1),
		// Cell C: three types
		locatedRecord("c1", anomaly.TypeUFO, 30.1, 30.1),
		locatedRecord("c2", anomaly.TypeCryptid, 30.1, 30.1),
		locatedRecord("c3", anomaly.TypeHaunting, 30.1, 30.1),
	}
	grid, _ := Aggregate(records, 0.25)
	ranking := ScoreWindows(grid, nil)

	if len(ranking.Results) != 3 {
		t.Fatalf("Expected 3 ranked cells, got %d", len(ranking.Results))
	}
	for i := 1; i < len(ranking.Results); i++ {
		if ranking.Results[i].WindowIndex > ranking.Results[i-1].WindowIndex {
			t.Error("Results are not in descending index order")
		}
	}
	for i, result := range ranking.Results {
		if result.Rank != i+1 {
			t.Errorf("Expected rank %d, got %d", i+1, result.Rank)
		}
	}

	top := ranking.Results[0]
	if top.CellKey != CellKey(30.1, 30.1, 0.25) {
		t.Errorf("Expected the three-type cell on top, got %s", top.CellKey)
	}
	// Indexes: C = 1.5, A = (2/3)*1.2 = 0.8, B = 1/3
	wantMean := (1.5 + 0.8 + 1.0/3.0) / 3.0
	if math.Abs(ranking.MeanIndex-wantMean) > 1e-9 {
		t.Errorf("Expected mean index %f, got %f", wantMean, ranking.MeanIndex)
	}
	if math.Abs(ranking.MedianIndex-0.8) > 1e-9 {
		t.Errorf("Expected median index 0.8, got %f", ranking.MedianIndex)
	}
	if ranking.StdDevIndex <= 0 {
		t.Errorf("Expected positive index spread, got %f", ranking.StdDevIndex)
	}
}

// TestScoreWindows_TopWindowSelection verifies only cells beyond two standard
// deviations of the mean qualify, and the cap holds
func TestScoreWindows_TopWindowSelection(t *testing.T) {
	// Many quiet single-type cells plus one saturated three-type cell
	records := make([]anomaly.EventRecord, 0)
	for i := 0; i < 40; i++ {
		lat := 10.0 + float64(i)*0.25 + 0.1
		records = append(records, locatedRecord(fmt.Sprintf("q%d", i), anomaly.TypeUFO, lat, 10.1))
	}
	records = append(records,
		locatedRecord("hot1", anomaly.TypeUFO, -10.1, -10.1),
		locatedRecord("hot2", anomaly.TypeCryptid, -10.1, -10.1),
		locatedRecord("hot3", anomaly.TypeHaunting, -10.1, -10.1),
	)
	grid, _ := Aggregate(records, 0.25)
	ranking := ScoreWindows(grid, nil)

	if len(ranking.TopWindowAreas) != 1 {
		t.Fatalf("Expected exactly one top window, got %d", len(ranking.TopWindowAreas))
	}
	if ranking.TopWindowAreas[0].CellKey != CellKey(-10.1, -10.1, 0.25) {
		t.Errorf("Expected the hot cell as the top window, got %s", ranking.TopWindowAreas[0].CellKey)
	}
	if len(ranking.TopWindowAreas) > TopWindowCap {
		t.Errorf("Top windows exceed the cap: %d", len(ranking.TopWindowAreas))
	}
}

// TestScoreWindows_EmptyGrid verifies an empty grid ranks nothing without
// errors
func TestScoreWindows_EmptyGrid(t *testing.T) {
	grid, _ := Aggregate(nil, 0.25)
	ranking := ScoreWindows(grid, nil)

	if len(ranking.Results) != 0 {
		t.Errorf("Expected no results for an empty grid, got %d", len(ranking.Results))
	}
	if len(ranking.TopWindowAreas) != 0 {
		t.Errorf("Expected no top windows for an empty grid, got %d", len(ranking.TopWindowAreas))
	}
	if ranking.MeanIndex != 0 || ranking.StdDevIndex != 0 {
		t.Errorf("Expected zero summary stats, got mean=%f sd=%f", ranking.MeanIndex, ranking.StdDevIndex)
	}
}
