package analysis

import (
	"sort"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"fortean/domain/anomaly"
)

// maxTrackedCategories bounds how many distinct values a categorical summary
// follows before it stops admitting new ones.
const maxTrackedCategories = 64

// AttributeSummary profiles one attribute key within one domain.
type AttributeSummary struct {
	Key          string
	Present      int
	NumericCount int

	Mean   float64
	StdDev float64
	Min    float64
	Max    float64

	// NormalityP is the Jarque-Bera p-value of the numeric values; high
	// values mean the distribution is consistent with normal.
	NormalityP   float64
	ApproxNormal bool

	Categories          map[string]int
	TruncatedCategories bool
}

// Cardinality returns how many distinct categorical values were tracked
func (a *AttributeSummary) Cardinality() int {
	return len(a.Categories)
}

// DomainProfile summarizes the records of one phenomenon type.
type DomainProfile struct {
	Domain           anomaly.PhenomenonType
	RecordCount      int
	TimestampedCount int
	HourCounts       [24]int
	Attributes       map[string]*AttributeSummary
}

// Coverage returns the share of records carrying the attribute
func (d *DomainProfile) Coverage(key string) float64 {
	if d.RecordCount == 0 {
		return 0
	}
	summary, ok := d.Attributes[key]
	if !ok {
		return 0
	}
	return float64(summary.Present) / float64(d.RecordCount)
}

// NumericKeys returns attribute keys with at least minCount numeric values,
// ordered by numeric coverage descending then key ascending.
func (d *DomainProfile) NumericKeys(minCount int) []string {
	keys := make([]string, 0)
	for key, summary := range d.Attributes {
		if summary.NumericCount >= minCount {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ci := d.Attributes[keys[i]].NumericCount
		cj := d.Attributes[keys[j]].NumericCount
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// CategoricalKeys returns attribute keys with at least minCount present
// values and a tracked cardinality between 2 and maxCardinality, ordered by
// coverage descending then key ascending.
func (d *DomainProfile) CategoricalKeys(minCount, maxCardinality int) []string {
	keys := make([]string, 0)
	for key, summary := range d.Attributes {
		if summary.Present < minCount || summary.TruncatedCategories {
			continue
		}
		if summary.Cardinality() < 2 || summary.Cardinality() > maxCardinality {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci := d.Attributes[keys[i]].Present
		cj := d.Attributes[keys[j]].Present
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// CorpusProfile is the per-domain attribute profile of one record set.
type CorpusProfile struct {
	RecordCount int
	PerDomain   map[anomaly.PhenomenonType]*DomainProfile
}

// Domain returns the profile for one phenomenon type, which may be empty
func (c *CorpusProfile) Domain(pt anomaly.PhenomenonType) *DomainProfile {
	if profile, ok := c.PerDomain[pt]; ok {
		return profile
	}
	return &DomainProfile{Domain: pt, Attributes: make(map[string]*AttributeSummary)}
}

// Profile walks the records once and builds per-domain attribute summaries,
// hour-of-day histograms, and coverage counts. The scanner and the confound
// referee both key off this instead of re-walking raw attributes.
func Profile(records []anomaly.EventRecord) *CorpusProfile {
	corpus := &CorpusProfile{
		RecordCount: len(records),
		PerDomain:   make(map[anomaly.PhenomenonType]*DomainProfile),
	}

	numeric := make(map[anomaly.PhenomenonType]map[string][]float64)

	for _, rec := range records {
		profile, ok := corpus.PerDomain[rec.Type]
		if !ok {
			profile = &DomainProfile{
				Domain:     rec.Type,
				Attributes: make(map[string]*AttributeSummary),
			}
			corpus.PerDomain[rec.Type] = profile
			numeric[rec.Type] = make(map[string][]float64)
		}

		profile.RecordCount++
		if rec.HasTimestamp() {
			profile.TimestampedCount++
			profile.HourCounts[rec.ObservedAt.Time().Hour()]++
		}

		for key := range rec.Attributes {
			summary, exists := profile.Attributes[key]
			if !exists {
				summary = &AttributeSummary{Key: key, Categories: make(map[string]int)}
				profile.Attributes[key] = summary
			}
			summary.Present++

			if value, isNum := rec.Attributes.Number(key); isNum {
				summary.NumericCount++
				numeric[rec.Type][key] = append(numeric[rec.Type][key], value)
				continue
			}
			if text, isStr := rec.Attributes.String(key); isStr {
				if _, tracked := summary.Categories[text]; tracked {
					summary.Categories[text]++
				} else if len(summary.Categories) < maxTrackedCategories {
					summary.Categories[text] = 1
				} else {
					summary.TruncatedCategories = true
				}
			}
		}
	}

	for pt, attrs := range numeric {
		profile := corpus.PerDomain[pt]
		for key, values := range attrs {
			summarizeNumeric(profile.Attributes[key], values)
		}
	}

	return corpus
}

// summarizeNumeric fills the numeric digest of one attribute, including the
// Jarque-Bera normality check (statistic ~ chi-square with 2 df under
// normality).
func summarizeNumeric(summary *AttributeSummary, values []float64) {
	if len(values) == 0 {
		return
	}

	summary.Mean, _ = mstats.Mean(values)
	summary.StdDev, _ = mstats.StandardDeviation(values)
	summary.Min, _ = mstats.Min(values)
	summary.Max, _ = mstats.Max(values)

	if len(values) < 8 || summary.StdDev == 0 {
		return
	}

	skew := stat.Skew(values, nil)
	exKurt := stat.ExKurtosis(values, nil)
	jb := float64(len(values)) / 6.0 * (skew*skew + exKurt*exKurt/4.0)

	chi2 := distuv.ChiSquared{K: 2}
	summary.NormalityP = chi2.Survival(jb)
	summary.ApproxNormal = summary.NormalityP > 0.05
}
