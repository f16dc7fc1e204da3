package research

import (
	"fmt"
	"sort"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/domain/stats"
	"fortean/internal/analysis"
	"fortean/internal/stattest"
)

// buildTestData derives the concrete inputs for a hypothesis's suggested
// test from a record split. Each pattern type supports the tests that have
// a natural construction on its evidence; any other pairing comes back as
// degenerate data the train gate will reject.
func buildTestData(h *discovery.Hypothesis, records []anomaly.EventRecord) (stattest.TestData, bool) {
	switch h.SourcePattern.Type {
	case discovery.PatternTemporal:
		return temporalTestData(h.SuggestedTest, records)
	case discovery.PatternGeographic:
		return geographicTestData(h.SuggestedTest, h.SourcePattern.Evidence.Geographic, records)
	case discovery.PatternAttribute:
		return attributeTestData(h.SuggestedTest, h.SourcePattern.Evidence.Attribute, records)
	default:
		return stattest.TestData{}, false
	}
}

// runBuiltTest builds inputs and runs the suggested test in one step
func runBuiltTest(h *discovery.Hypothesis, records []anomaly.EventRecord, th stats.Thresholds) stats.TestResult {
	data, ok := buildTestData(h, records)
	if !ok {
		return stats.Degenerate(h.SuggestedTest, len(records),
			fmt.Sprintf("no input construction for %s on a %s pattern", h.SuggestedTest, h.SourcePattern.Type))
	}
	return stattest.Run(h.SuggestedTest, data, th)
}

// temporalTestData buckets dated records into monthly counts. Chi-square
// compares the months against a uniform expectation; Pearson tests for a
// monotone drift across the observed months.
func temporalTestData(tt stats.TestType, records []anomaly.EventRecord) (stattest.TestData, bool) {
	counts := make(map[core.MonthKey]int)
	for _, rec := range records {
		if !rec.HasTimestamp() {
			continue
		}
		counts[core.NewMonthKey(rec.ObservedAt.Time())]++
	}
	months := make([]core.MonthKey, 0, len(counts))
	for month := range counts {
		months = append(months, month)
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })

	values := make([]float64, 0, len(months))
	total := 0.0
	for _, month := range months {
		values = append(values, float64(counts[month]))
		total += float64(counts[month])
	}

	switch tt {
	case stats.TestChiSquare:
		expected := make([]float64, len(values))
		if len(values) > 0 {
			uniform := total / float64(len(values))
			for i := range expected {
				expected[i] = uniform
			}
		}
		return stattest.TestData{Observed: values, Expected: expected}, true
	case stats.TestPearson:
		x := make([]float64, len(values))
		for i := range x {
			x[i] = float64(i)
		}
		return stattest.TestData{X: x, Y: values}, true
	default:
		return stattest.TestData{}, false
	}
}

// geographicTestData re-aggregates the split at the evidence resolution and
// compares window indexes of the flagged cells against the rest.
func geographicTestData(tt stats.TestType, evidence *discovery.GeographicEvidence, records []anomaly.EventRecord) (stattest.TestData, bool) {
	if evidence == nil {
		return stattest.TestData{}, false
	}
	if tt != stats.TestWelchT && tt != stats.TestMannWhitney {
		return stattest.TestData{}, false
	}

	grid, err := analysis.Aggregate(records, evidence.Resolution)
	if err != nil {
		return stattest.TestData{}, false
	}
	ranking := analysis.ScoreWindows(grid, nil)

	flagged := make(map[string]bool, len(evidence.HighIndex)+len(evidence.HighExcess))
	for _, signal := range evidence.HighIndex {
		flagged[signal.CellKey] = true
	}
	for _, signal := range evidence.HighExcess {
		flagged[signal.CellKey] = true
	}

	var group1, group2 []float64
	for _, result := range ranking.Results {
		if flagged[result.CellKey] {
			group1 = append(group1, result.WindowIndex)
		} else {
			group2 = append(group2, result.WindowIndex)
		}
	}
	return stattest.TestData{Group1: group1, Group2: group2}, true
}

// attributeTestData reconstructs the attribute comparison on the split.
// Category-covariate patterns compare the covariate across the two largest
// categories; hour-skew patterns test the hour histogram against uniform.
func attributeTestData(tt stats.TestType, evidence *discovery.AttributeEvidence, records []anomaly.EventRecord) (stattest.TestData, bool) {
	if evidence == nil {
		return stattest.TestData{}, false
	}
	switch evidence.Kind {
	case discovery.AttributeCategoryCovariate:
		if tt != stats.TestWelchT && tt != stats.TestMannWhitney {
			return stattest.TestData{}, false
		}
		group1, group2, ok := topTwoCategoryGroups(evidence.CategoryAttr, evidence.CovariateAttr, records)
		if !ok {
			return stattest.TestData{}, false
		}
		return stattest.TestData{Group1: group1, Group2: group2}, true

	case discovery.AttributeHourSkew:
		var hours [24]int
		total := 0
		for _, rec := range records {
			if !rec.HasTimestamp() {
				continue
			}
			hours[rec.ObservedAt.Time().Hour()]++
			total++
		}
		switch tt {
		case stats.TestBinomial:
			successes := peakBlockCount(hours)
			// A quarter of the day holds a quarter of the reports under
			// the uniform null
			return stattest.TestData{Successes: successes, Trials: total, ExpectedProp: 0.25}, true
		case stats.TestChiSquare:
			observed := make([]float64, 24)
			expected := make([]float64, 24)
			for i, count := range hours {
				observed[i] = float64(count)
				expected[i] = float64(total) / 24.0
			}
			return stattest.TestData{Observed: observed, Expected: expected}, true
		default:
			return stattest.TestData{}, false
		}

	default:
		return stattest.TestData{}, false
	}
}

// topTwoCategoryGroups pulls the covariate values of the two best-covered
// categories. Ties break on category name so splits stay deterministic.
func topTwoCategoryGroups(categoryAttr, covariateAttr string, records []anomaly.EventRecord) ([]float64, []float64, bool) {
	grouped := make(map[string][]float64)
	for _, rec := range records {
		category, ok := rec.Attributes.String(categoryAttr)
		if !ok {
			continue
		}
		value, ok := rec.Attributes.Number(covariateAttr)
		if !ok {
			continue
		}
		grouped[category] = append(grouped[category], value)
	}
	if len(grouped) < 2 {
		return nil, nil, false
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(grouped[names[i]]) != len(grouped[names[j]]) {
			return len(grouped[names[i]]) > len(grouped[names[j]])
		}
		return names[i] < names[j]
	})
	return grouped[names[0]], grouped[names[1]], true
}

// peakBlockCount finds the heaviest 6-hour block, wrapping past midnight
func peakBlockCount(hours [24]int) int {
	best := 0
	for start := 0; start < 24; start++ {
		sum := 0
		for offset := 0; offset < 6; offset++ {
			sum += hours[(start+offset)%24]
		}
		if sum > best {
			best = sum
		}
	}
	return best
}
