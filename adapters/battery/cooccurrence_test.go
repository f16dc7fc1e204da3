package battery

import (
	"context"
	"fmt"
	"testing"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/stats"
)

// cellRecord places a record near the center of grid cell (row, col) at the
// default 0.25 degree resolution.
func cellRecord(id string, pt anomaly.PhenomenonType, row, col int) anomaly.EventRecord {
	lat := float64(row)*0.25 + 0.1
	lng := float64(col)*0.25 + 0.1
	return anomaly.EventRecord{
		ID:        core.RecordID(id),
		Type:      pt,
		Latitude:  &lat,
		Longitude: &lng,
	}
}

func TestCoOccurrence_ClusteredTypesDetected(t *testing.T) {
	// Thirty cells, each holding one ufo and one cryptid report: perfect
	// co-occurrence that label shuffling should almost never reproduce.
	records := make([]anomaly.EventRecord, 0, 60)
	for i := 0; i < 30; i++ {
		records = append(records,
			cellRecord(fmt.Sprintf("u%d", i), anomaly.TypeUFO, i, 0),
			cellRecord(fmt.Sprintf("c%d", i), anomaly.TypeCryptid, i, 0),
		)
	}

	referee := NewCoOccurrenceReferee()
	referee.SetIterations(1000)

	outcome, err := referee.Test(context.Background(), CoOccurrenceInput{Records: records}, stats.DefaultThresholds())
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	if outcome.ObservedCells != 30 {
		t.Errorf("Expected 30 co-occurring cells observed, got %d", outcome.ObservedCells)
	}
	if outcome.Result.PValue <= 0 {
		t.Errorf("Empirical p-value must never reach zero, got %f", outcome.Result.PValue)
	}
	if outcome.Result.PValue >= 0.01 {
		t.Errorf("Expected p below 0.01 for perfect co-occurrence, got %f", outcome.Result.PValue)
	}
	if outcome.Result.EffectSize < 1.0 {
		t.Errorf("Expected a large standardized effect, got %f", outcome.Result.EffectSize)
	}
	if !outcome.Result.PassedThreshold {
		t.Error("Perfect co-occurrence should pass the threshold gate")
	}
	if outcome.Null.StdDev <= 0 {
		t.Errorf("Expected a spread-out null distribution, got sd=%f", outcome.Null.StdDev)
	}

	t.Logf("Clustered outcome: observed=%d, null mean=%.1f, p=%.4f",
		outcome.ObservedCells, outcome.Null.Mean, outcome.Result.PValue)
}

func TestCoOccurrence_ChanceMixNotSignificant(t *testing.T) {
	// Forty cells with two reports each, exactly half of them mixed: the
	// observed statistic sits at the center of the shuffle null.
	records := make([]anomaly.EventRecord, 0, 80)
	for i := 0; i < 20; i++ {
		records = append(records,
			cellRecord(fmt.Sprintf("mixed-u%d", i), anomaly.TypeUFO, i, 0),
			cellRecord(fmt.Sprintf("mixed-c%d", i), anomaly.TypeCryptid, i, 0),
		)
	}
	for i := 0; i < 10; i++ {
		records = append(records,
			cellRecord(fmt.Sprintf("pure-u%da", i), anomaly.TypeUFO, i, 5),
			cellRecord(fmt.Sprintf("pure-u%db", i), anomaly.TypeUFO, i, 5),
			cellRecord(fmt.Sprintf("pure-c%da", i), anomaly.TypeCryptid, i, 10),
			cellRecord(fmt.Sprintf("pure-c%db", i), anomaly.TypeCryptid, i, 10),
		)
	}

	referee := NewCoOccurrenceReferee()
	referee.SetIterations(1000)

	outcome, err := referee.Test(context.Background(), CoOccurrenceInput{Records: records}, stats.DefaultThresholds())
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	if outcome.ObservedCells != 20 {
		t.Errorf("Expected 20 mixed cells observed, got %d", outcome.ObservedCells)
	}
	if outcome.Result.PValue < 0.1 {
		t.Errorf("A chance-level mix should not look significant, got p=%f", outcome.Result.PValue)
	}
	if outcome.Result.PassedThreshold {
		t.Error("A chance-level mix should not pass the threshold gate")
	}
}

func TestCoOccurrence_Deterministic(t *testing.T) {
	records := make([]anomaly.EventRecord, 0, 40)
	for i := 0; i < 20; i++ {
		pt := anomaly.TypeUFO
		if i%2 == 0 {
			pt = anomaly.TypeHaunting
		}
		records = append(records,
			cellRecord(fmt.Sprintf("a%d", i), pt, i/2, 0),
			cellRecord(fmt.Sprintf("b%d", i), anomaly.TypeCryptid, i/2, 1),
		)
	}

	run := func() *CoOccurrenceOutcome {
		referee := NewCoOccurrenceReferee()
		referee.SetIterations(1000)
		outcome, err := referee.Test(context.Background(), CoOccurrenceInput{Records: records}, stats.DefaultThresholds())
		if err != nil {
			t.Fatalf("Test failed: %v", err)
		}
		return outcome
	}

	first := run()
	second := run()

	if first.Result.PValue != second.Result.PValue {
		t.Errorf("P-value changed between identical runs: %f vs %f", first.Result.PValue, second.Result.PValue)
	}
	if first.Result.EffectSize != second.Result.EffectSize {
		t.Errorf("Effect size changed between identical runs: %f vs %f", first.Result.EffectSize, second.Result.EffectSize)
	}
	if first.Null.Mean != second.Null.Mean {
		t.Errorf("Null mean changed between identical runs: %f vs %f", first.Null.Mean, second.Null.Mean)
	}
}

func TestCoOccurrence_StrataConfineShuffle(t *testing.T) {
	// Each stratum holds exactly the two reports of one cell, so shuffling
	// within strata can never change which cells are mixed: the null
	// collapses onto the observed value and nothing is significant.
	records := make([]anomaly.EventRecord, 0, 40)
	strata := make(map[core.RecordID]string)
	for i := 0; i < 20; i++ {
		u := cellRecord(fmt.Sprintf("u%d", i), anomaly.TypeUFO, i, 0)
		c := cellRecord(fmt.Sprintf("c%d", i), anomaly.TypeCryptid, i, 0)
		records = append(records, u, c)
		strata[u.ID] = fmt.Sprintf("stratum-%d", i)
		strata[c.ID] = fmt.Sprintf("stratum-%d", i)
	}

	referee := NewCoOccurrenceReferee()
	referee.SetIterations(1000)

	outcome, err := referee.Test(context.Background(), CoOccurrenceInput{
		Records: records,
		Strata:  strata,
	}, stats.DefaultThresholds())
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	if !outcome.Stratified {
		t.Error("Expected the outcome to be marked stratified")
	}
	if outcome.Result.PValue != 1.0 {
		t.Errorf("Expected p = 1 when strata pin the statistic, got %f", outcome.Result.PValue)
	}
	if outcome.Result.EffectSize != 0 {
		t.Errorf("Expected zero effect against a constant null, got %f", outcome.Result.EffectSize)
	}
	if outcome.Result.PassedThreshold {
		t.Error("A stratum-pinned statistic should never pass")
	}
}

func TestCoOccurrence_CombinationRestriction(t *testing.T) {
	records := make([]anomaly.EventRecord, 0)
	// Ten cells with ufo+cryptid, five cells with ufo+haunting
	for i := 0; i < 10; i++ {
		records = append(records,
			cellRecord(fmt.Sprintf("uc-u%d", i), anomaly.TypeUFO, i, 0),
			cellRecord(fmt.Sprintf("uc-c%d", i), anomaly.TypeCryptid, i, 0),
		)
	}
	for i := 0; i < 5; i++ {
		records = append(records,
			cellRecord(fmt.Sprintf("uh-u%d", i), anomaly.TypeUFO, i, 7),
			cellRecord(fmt.Sprintf("uh-h%d", i), anomaly.TypeHaunting, i, 7),
		)
	}

	referee := NewCoOccurrenceReferee()
	referee.SetIterations(1000)

	outcome, err := referee.Test(context.Background(), CoOccurrenceInput{
		Records:     records,
		Combination: []anomaly.PhenomenonType{anomaly.TypeUFO, anomaly.TypeCryptid},
	}, stats.DefaultThresholds())
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	if outcome.ObservedCells != 10 {
		t.Errorf("Expected 10 cells matching the ufo+cryptid combination, got %d", outcome.ObservedCells)
	}

	any, err := referee.Test(context.Background(), CoOccurrenceInput{Records: records}, stats.DefaultThresholds())
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if any.ObservedCells != 15 {
		t.Errorf("Expected 15 cells with any co-occurrence, got %d", any.ObservedCells)
	}
}

func TestCoOccurrence_DegeneratesSafely(t *testing.T) {
	referee := NewCoOccurrenceReferee()
	referee.SetIterations(1000)
	th := stats.DefaultThresholds()

	// Too few located records
	few := []anomaly.EventRecord{
		cellRecord("a", anomaly.TypeUFO, 0, 0),
		cellRecord("b", anomaly.TypeCryptid, 0, 0),
	}
	outcome, err := referee.Test(context.Background(), CoOccurrenceInput{Records: few}, th)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if outcome.Result.PassedThreshold || outcome.Result.PValue != 1.0 {
		t.Errorf("Expected a non-passing degenerate result for tiny input, got p=%f", outcome.Result.PValue)
	}

	// Only one phenomenon type
	single := make([]anomaly.EventRecord, 0, 20)
	for i := 0; i < 20; i++ {
		single = append(single, cellRecord(fmt.Sprintf("s%d", i), anomaly.TypeUFO, i, 0))
	}
	outcome, err = referee.Test(context.Background(), CoOccurrenceInput{Records: single}, th)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if outcome.Result.PassedThreshold || outcome.Result.PValue != 1.0 {
		t.Errorf("Expected a non-passing degenerate result for one type, got p=%f", outcome.Result.PValue)
	}

	// No coordinates at all
	bare := []anomaly.EventRecord{
		{ID: "x1", Type: anomaly.TypeUFO},
		{ID: "x2", Type: anomaly.TypeCryptid},
	}
	outcome, err = referee.Test(context.Background(), CoOccurrenceInput{Records: bare}, th)
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if outcome.Result.PassedThreshold {
		t.Error("Records without coordinates should degrade, not pass")
	}
}

func TestCoOccurrence_Cancellation(t *testing.T) {
	records := make([]anomaly.EventRecord, 0, 60)
	for i := 0; i < 30; i++ {
		records = append(records,
			cellRecord(fmt.Sprintf("u%d", i), anomaly.TypeUFO, i, 0),
			cellRecord(fmt.Sprintf("c%d", i), anomaly.TypeCryptid, i, 0),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	referee := NewCoOccurrenceReferee()
	referee.SetIterations(1000)

	if _, err := referee.Test(ctx, CoOccurrenceInput{Records: records}, stats.DefaultThresholds()); err == nil {
		t.Error("Expected an error from a cancelled context")
	}
}
