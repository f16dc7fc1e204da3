package research

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/domain/stats"
	"fortean/internal/analysis"
)

func TestBuildTestData_TemporalChiSquare(t *testing.T) {
	records := monthlyRecords(t, map[string]int{
		"2023-01": 5,
		"2023-02": 3,
		"2023-03": 2,
	})
	h := builderHypothesis(discovery.PatternTemporal, stats.TestChiSquare)

	data, ok := buildTestData(h, records)
	if !ok {
		t.Fatal("Expected a chi-square construction for a temporal pattern")
	}
	if len(data.Observed) != 3 || len(data.Expected) != 3 {
		t.Fatalf("Expected 3 monthly buckets, got %d observed, %d expected",
			len(data.Observed), len(data.Expected))
	}
	// Months sort ascending, so January leads
	if data.Observed[0] != 5 || data.Observed[1] != 3 || data.Observed[2] != 2 {
		t.Errorf("Expected observed [5 3 2], got %v", data.Observed)
	}
	uniform := 10.0 / 3.0
	for i, e := range data.Expected {
		if math.Abs(e-uniform) > 1e-9 {
			t.Errorf("Expected uniform expectation %.4f at %d, got %.4f", uniform, i, e)
		}
	}
}

func TestBuildTestData_TemporalPearson(t *testing.T) {
	records := monthlyRecords(t, map[string]int{
		"2023-01": 2,
		"2023-02": 4,
		"2023-03": 6,
		"2023-04": 8,
	})
	h := builderHypothesis(discovery.PatternTemporal, stats.TestPearson)

	data, ok := buildTestData(h, records)
	if !ok {
		t.Fatal("Expected a pearson construction for a temporal pattern")
	}
	if len(data.X) != 4 || len(data.Y) != 4 {
		t.Fatalf("Expected 4 points, got %d/%d", len(data.X), len(data.Y))
	}
	for i := range data.X {
		if data.X[i] != float64(i) {
			t.Errorf("Expected month ordinal %d, got %.1f", i, data.X[i])
		}
	}
	if data.Y[0] != 2 || data.Y[3] != 8 {
		t.Errorf("Expected counts rising 2..8, got %v", data.Y)
	}
}

func TestBuildTestData_GeographicSplitsFlaggedCells(t *testing.T) {
	var records []anomaly.EventRecord
	// Three occupied cells: the hot one gets flagged, the others are background
	records = append(records, cellRecords(t, "hot", 10.1, 10.1, 8)...)
	records = append(records, cellRecords(t, "bg1", 11.1, 11.1, 4)...)
	records = append(records, cellRecords(t, "bg2", 12.1, 12.1, 3)...)

	flagged := analysis.CellKey(10.1, 10.1, 0.25)
	h := builderHypothesis(discovery.PatternGeographic, stats.TestMannWhitney)
	h.SourcePattern.Evidence.Geographic = &discovery.GeographicEvidence{
		Resolution: 0.25,
		HighIndex:  []discovery.CellSignal{{CellKey: flagged, WindowIndex: 2.0}},
	}

	data, ok := buildTestData(h, records)
	if !ok {
		t.Fatal("Expected a group construction for a geographic pattern")
	}
	if len(data.Group1) != 1 {
		t.Fatalf("Expected 1 flagged cell index, got %d", len(data.Group1))
	}
	if len(data.Group2) != 2 {
		t.Fatalf("Expected 2 background cell indexes, got %d", len(data.Group2))
	}
	if data.Group1[0] <= 0 {
		t.Errorf("Expected a positive window index for the flagged cell, got %.3f", data.Group1[0])
	}
}

func TestBuildTestData_GeographicNeedsEvidence(t *testing.T) {
	records := cellRecords(t, "r", 10.1, 10.1, 5)
	h := builderHypothesis(discovery.PatternGeographic, stats.TestWelchT)
	h.SourcePattern.Evidence.Geographic = nil

	if _, ok := buildTestData(h, records); ok {
		t.Fatal("Expected no construction without geographic evidence")
	}
}

func TestBuildTestData_CovariateTopTwoCategories(t *testing.T) {
	var records []anomaly.EventRecord
	records = append(records, shapeRecords(t, "disk", 100, 30)...)
	records = append(records, shapeRecords(t, "orb", 300, 20)...)
	records = append(records, shapeRecords(t, "triangle", 200, 10)...)

	h := builderHypothesis(discovery.PatternAttribute, stats.TestWelchT)
	h.SourcePattern.Evidence.Attribute = &discovery.AttributeEvidence{
		Kind:          discovery.AttributeCategoryCovariate,
		CategoryAttr:  anomaly.AttrShape,
		CovariateAttr: anomaly.AttrDurationSeconds,
	}

	data, ok := buildTestData(h, records)
	if !ok {
		t.Fatal("Expected a group construction for a covariate pattern")
	}
	if len(data.Group1) != 30 || len(data.Group2) != 20 {
		t.Fatalf("Expected groups of 30 and 20, got %d and %d", len(data.Group1), len(data.Group2))
	}
	if data.Group1[0] != 100 || data.Group2[0] != 300 {
		t.Errorf("Expected disk durations in group1 and orb in group2, got %.0f and %.0f",
			data.Group1[0], data.Group2[0])
	}
}

func TestBuildTestData_CovariateTieBreaksOnName(t *testing.T) {
	var records []anomaly.EventRecord
	records = append(records, shapeRecords(t, "orb", 300, 15)...)
	records = append(records, shapeRecords(t, "disk", 100, 15)...)

	h := builderHypothesis(discovery.PatternAttribute, stats.TestMannWhitney)
	h.SourcePattern.Evidence.Attribute = &discovery.AttributeEvidence{
		Kind:          discovery.AttributeCategoryCovariate,
		CategoryAttr:  anomaly.AttrShape,
		CovariateAttr: anomaly.AttrDurationSeconds,
	}

	data, ok := buildTestData(h, records)
	if !ok {
		t.Fatal("Expected a group construction")
	}
	// Equal counts: "disk" sorts before "orb"
	if data.Group1[0] != 100 {
		t.Errorf("Expected disk group first on name tie, got leading value %.0f", data.Group1[0])
	}
}

func TestBuildTestData_HourSkewBinomial(t *testing.T) {
	var records []anomaly.EventRecord
	for i := 0; i < 40; i++ {
		records = append(records, hourRecord(t, fmt.Sprintf("a%d", i), 23))
	}
	for i := 0; i < 20; i++ {
		records = append(records, hourRecord(t, fmt.Sprintf("b%d", i), 2))
	}

	h := builderHypothesis(discovery.PatternAttribute, stats.TestBinomial)
	h.SourcePattern.Evidence.Attribute = &discovery.AttributeEvidence{Kind: discovery.AttributeHourSkew}

	data, ok := buildTestData(h, records)
	if !ok {
		t.Fatal("Expected a binomial construction for an hour-skew pattern")
	}
	// The wrapping block 22..03 holds every record
	if data.Successes != 60 {
		t.Errorf("Expected peak block of 60, got %d", data.Successes)
	}
	if data.Trials != 60 {
		t.Errorf("Expected 60 trials, got %d", data.Trials)
	}
	if data.ExpectedProp != 0.25 {
		t.Errorf("Expected null proportion 0.25, got %.3f", data.ExpectedProp)
	}
}

func TestBuildTestData_HourSkewChiSquare(t *testing.T) {
	var records []anomaly.EventRecord
	for i := 0; i < 48; i++ {
		records = append(records, hourRecord(t, fmt.Sprintf("c%d", i), i%2*12))
	}

	h := builderHypothesis(discovery.PatternAttribute, stats.TestChiSquare)
	h.SourcePattern.Evidence.Attribute = &discovery.AttributeEvidence{Kind: discovery.AttributeHourSkew}

	data, ok := buildTestData(h, records)
	if !ok {
		t.Fatal("Expected a chi-square construction for an hour-skew pattern")
	}
	if len(data.Observed) != 24 || len(data.Expected) != 24 {
		t.Fatalf("Expected 24 hour buckets, got %d/%d", len(data.Observed), len(data.Expected))
	}
	if data.Observed[0] != 24 || data.Observed[12] != 24 {
		t.Errorf("Expected 24 records at hours 0 and 12, got %.0f and %.0f",
			data.Observed[0], data.Observed[12])
	}
	if data.Expected[5] != 2 {
		t.Errorf("Expected uniform expectation 2 per hour, got %.2f", data.Expected[5])
	}
}

func TestBuildTestData_UnsupportedCombos(t *testing.T) {
	records := monthlyRecords(t, map[string]int{"2023-01": 5})

	cases := []struct {
		ptype discovery.PatternType
		tt    stats.TestType
	}{
		{discovery.PatternTemporal, stats.TestWelchT},
		{discovery.PatternTemporal, stats.TestBinomial},
		{discovery.PatternGeographic, stats.TestChiSquare},
		{discovery.PatternAttribute, stats.TestPearson},
		{discovery.PatternCoLocation, stats.TestMonteCarlo},
	}
	for _, tc := range cases {
		h := builderHypothesis(tc.ptype, tc.tt)
		if tc.ptype == discovery.PatternGeographic {
			h.SourcePattern.Evidence.Geographic = &discovery.GeographicEvidence{Resolution: 0.25}
		}
		if tc.ptype == discovery.PatternAttribute {
			h.SourcePattern.Evidence.Attribute = &discovery.AttributeEvidence{
				Kind: discovery.AttributeCategoryCovariate,
			}
		}
		if _, ok := buildTestData(h, records); ok {
			t.Errorf("Expected no construction for %s pattern with %s", tc.ptype, tc.tt)
		}
	}
}

func TestRunBuiltTest_UnsupportedComboDegenerates(t *testing.T) {
	records := monthlyRecords(t, map[string]int{"2023-01": 5})
	h := builderHypothesis(discovery.PatternTemporal, stats.TestWelchT)

	result := runBuiltTest(h, records, stats.DefaultThresholds())
	if result.PassedThreshold {
		t.Fatal("Expected a degenerate result to fail the gate")
	}
	if result.PValue != 1.0 {
		t.Errorf("Expected degenerate p-value 1.0, got %.4f", result.PValue)
	}
	if !strings.Contains(result.Interpretation, "no input construction") {
		t.Errorf("Expected interpretation to explain the missing construction, got %q", result.Interpretation)
	}
}

func TestPeakBlockCount_WrapsMidnight(t *testing.T) {
	var hours [24]int
	hours[22] = 10
	hours[23] = 12
	hours[0] = 8
	hours[1] = 5
	hours[6] = 2

	if got := peakBlockCount(hours); got != 35 {
		t.Fatalf("Expected wrapping peak block of 35, got %d", got)
	}
}

// monthlyRecords builds dated records with the given per-month counts
func monthlyRecords(t *testing.T, counts map[string]int) []anomaly.EventRecord {
	t.Helper()
	var records []anomaly.EventRecord
	i := 0
	for month, n := range counts {
		day, err := time.Parse("2006-01", month)
		if err != nil {
			t.Fatalf("bad month %q: %v", month, err)
		}
		for k := 0; k < n; k++ {
			records = append(records, anomaly.EventRecord{
				ID:         core.RecordID(fmt.Sprintf("m%d", i)),
				Type:       anomaly.TypeUFO,
				ObservedAt: core.NewTimestamp(day.Add(time.Duration(k) * time.Hour)),
			})
			i++
		}
	}
	return records
}

// cellRecords builds located records jittered inside one grid cell
func cellRecords(t *testing.T, prefix string, lat, lng float64, n int) []anomaly.EventRecord {
	t.Helper()
	records := make([]anomaly.EventRecord, 0, n)
	for i := 0; i < n; i++ {
		la := lat + float64(i)*0.001
		ln := lng + float64(i)*0.001
		records = append(records, anomaly.EventRecord{
			ID:        core.RecordID(fmt.Sprintf("%s%d", prefix, i)),
			Type:      anomaly.TypeUFO,
			Latitude:  &la,
			Longitude: &ln,
		})
	}
	return records
}

// shapeRecords builds records sharing one shape and duration
func shapeRecords(t *testing.T, shape string, duration float64, n int) []anomaly.EventRecord {
	t.Helper()
	records := make([]anomaly.EventRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, anomaly.EventRecord{
			ID:   core.RecordID(fmt.Sprintf("%s%d", shape, i)),
			Type: anomaly.TypeUFO,
			Attributes: anomaly.Attributes{
				anomaly.AttrShape:           shape,
				anomaly.AttrDurationSeconds: duration,
			},
		})
	}
	return records
}

// hourRecord builds one record observed at the given hour
func hourRecord(t *testing.T, id string, hour int) anomaly.EventRecord {
	t.Helper()
	return anomaly.EventRecord{
		ID:         core.RecordID(id),
		Type:       anomaly.TypeHaunting,
		ObservedAt: core.NewTimestamp(time.Date(2023, 6, 15, hour, 0, 0, 0, time.UTC)),
	}
}

// builderHypothesis wraps a minimal candidate of the given pattern type
func builderHypothesis(ptype discovery.PatternType, tt stats.TestType) *discovery.Hypothesis {
	pattern := discovery.PatternCandidate{
		ID:          core.NewPatternID(),
		Type:        ptype,
		Description: "test pattern",
		Domains:     []anomaly.PhenomenonType{anomaly.TypeUFO},
		Evidence:    discovery.Evidence{Kind: ptype},
	}
	return discovery.NewHypothesis(pattern, "text", "title", true, tt, 10, discovery.OriginFallback)
}
