package scan

import (
	"fmt"
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/internal/analysis"
)

const (
	minCategorySample = 30
	minHourSample     = 50
	maxCardinality    = 12

	// Emission floors keep weak cross-tabulations from flooding the merge
	minCovariateCV = 0.2
	minHourSkew    = 0.2
)

// scanAttribute looks for two kinds of structure inside each domain: a
// categorical attribute whose categories pull a numeric covariate apart
// (coefficient of variation across category means), and an hour-of-day
// distribution that departs from uniform (total variation distance). Both
// require the per-category sample floors before they count.
func scanAttribute(records []anomaly.EventRecord, profile *analysis.CorpusProfile) []discovery.PatternCandidate {
	byDomain := anomaly.ByType(records)

	candidates := make([]discovery.PatternCandidate, 0)
	for _, domain := range anomaly.AllTypes() {
		domainRecords := byDomain[domain]
		if len(domainRecords) < minQualifyingRecords {
			continue
		}
		domainProfile := profile.Domain(domain)

		if candidate, ok := covariateCandidate(domain, domainRecords, domainProfile); ok {
			candidates = append(candidates, candidate)
		}
		if candidate, ok := hourSkewCandidate(domain, domainProfile); ok {
			candidates = append(candidates, candidate)
		}
	}
	return candidates
}

// covariateCandidate crosses the best-covered categorical attribute with the
// preferred numeric covariate and measures how far the category means spread
// relative to their grand mean.
func covariateCandidate(domain anomaly.PhenomenonType, records []anomaly.EventRecord, profile *analysis.DomainProfile) (discovery.PatternCandidate, bool) {
	categoricals := profile.CategoricalKeys(minCategorySample, maxCardinality)
	numerics := profile.NumericKeys(minCategorySample)
	if len(categoricals) == 0 || len(numerics) == 0 {
		return discovery.PatternCandidate{}, false
	}

	categoryAttr := categoricals[0]
	covariateAttr := pickCovariate(categoryAttr, numerics, profile)
	if covariateAttr == "" {
		return discovery.PatternCandidate{}, false
	}

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

	values := make([]string, 0, len(grouped))
	for value, samples := range grouped {
		if len(samples) >= minCategorySample {
			values = append(values, value)
		}
	}
	if len(values) < 2 {
		return discovery.PatternCandidate{}, false
	}
	sort.Strings(values)

	summaries := make([]discovery.CategorySummary, 0, len(values))
	means := make([]float64, 0, len(values))
	sampleSize := 0
	for _, value := range values {
		samples := grouped[value]
		mean, _ := mstats.Mean(samples)
		sd, _ := mstats.StandardDeviation(samples)
		summaries = append(summaries, discovery.CategorySummary{
			Value:  value,
			Count:  len(samples),
			Mean:   mean,
			StdDev: sd,
		})
		means = append(means, mean)
		sampleSize += len(samples)
	}

	grandMean, _ := mstats.Mean(means)
	meanSpread, _ := mstats.StandardDeviation(means)
	if math.Abs(grandMean) < 1e-9 {
		return discovery.PatternCandidate{}, false
	}
	cv := meanSpread / math.Abs(grandMean)
	if cv < minCovariateCV {
		return discovery.PatternCandidate{}, false
	}

	return discovery.PatternCandidate{
		ID:   core.NewPatternID(),
		Type: discovery.PatternAttribute,
		Description: fmt.Sprintf("%s varies with %s in %s reports (%d categories, cv=%.2f)",
			covariateAttr, categoryAttr, domain, len(summaries), cv),
		Domains: []anomaly.PhenomenonType{domain},
		Evidence: discovery.Evidence{
			Kind: discovery.PatternAttribute,
			Attribute: &discovery.AttributeEvidence{
				Domain:        domain,
				Kind:          discovery.AttributeCategoryCovariate,
				CategoryAttr:  categoryAttr,
				CovariateAttr: covariateAttr,
				Categories:    summaries,
				Deviation:     cv,
				SampleSize:    sampleSize,
			},
		},
		PreliminaryStrength: clampStrength(cv),
		DiscoveredAt:        core.Now(),
	}, true
}

// pickCovariate takes the best-covered covariate that flunked the profiler's
// normality screen; a covariate profiling as one normal blob carries no
// category separation. Falls back to the best-covered numeric when every
// candidate profiles normal.
func pickCovariate(categoryAttr string, numerics []string, profile *analysis.DomainProfile) string {
	fallback := ""
	for _, key := range numerics {
		if key == categoryAttr {
			continue
		}
		if fallback == "" {
			fallback = key
		}
		summary := profile.Attributes[key]
		if summary.StdDev > 0 && !summary.ApproxNormal {
			return key
		}
	}
	return fallback
}

// hourSkewCandidate compares the hour-of-day histogram against a uniform
// null using total variation distance.
func hourSkewCandidate(domain anomaly.PhenomenonType, profile *analysis.DomainProfile) (discovery.PatternCandidate, bool) {
	n := profile.TimestampedCount
	if n < minHourSample {
		return discovery.PatternCandidate{}, false
	}

	expected := float64(n) / 24.0
	displaced := 0.0
	for _, count := range profile.HourCounts {
		displaced += math.Abs(float64(count) - expected)
	}
	tvd := displaced / (2.0 * float64(n))
	if tvd < minHourSkew {
		return discovery.PatternCandidate{}, false
	}

	hours := make([]int, len(profile.HourCounts))
	copy(hours, profile.HourCounts[:])

	return discovery.PatternCandidate{
		ID:   core.NewPatternID(),
		Type: discovery.PatternAttribute,
		Description: fmt.Sprintf("%s reports skew by hour of day (tvd=%.2f over %d reports)",
			domain, tvd, n),
		Domains: []anomaly.PhenomenonType{domain},
		Evidence: discovery.Evidence{
			Kind: discovery.PatternAttribute,
			Attribute: &discovery.AttributeEvidence{
				Domain:     domain,
				Kind:       discovery.AttributeHourSkew,
				HourCounts: hours,
				Deviation:  tvd,
				SampleSize: n,
			},
		},
		PreliminaryStrength: clampStrength(2.0 * tvd),
		DiscoveredAt:        core.Now(),
	}, true
}
