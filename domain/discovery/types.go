package discovery

import (
	"fmt"

	"fortean/domain/anomaly"
	"fortean/domain/core"
)

// ============================================================================
// PATTERN CANDIDATES - Scanner Output
// ============================================================================

// PatternType identifies which scan strategy produced a candidate
type PatternType string

const (
	PatternCoLocation PatternType = "co-location"
	PatternTemporal   PatternType = "temporal"
	PatternGeographic PatternType = "geographic"
	PatternAttribute  PatternType = "attribute"
)

// String returns the string representation
func (p PatternType) String() string { return string(p) }

// PatternCandidate is one ranked product of a scan strategy. Candidates are
// consumed once by the hypothesis pipeline and are not persisted by the core.
type PatternCandidate struct {
	ID                  core.PatternID           `json:"id"`
	Type                PatternType              `json:"type"`
	Description         string                   `json:"description"`
	Domains             []anomaly.PhenomenonType `json:"domains"`
	Evidence            Evidence                 `json:"evidence"`
	PreliminaryStrength float64                  `json:"preliminary_strength"` // 0.0-1.0
	DiscoveredAt        core.Timestamp           `json:"discovered_at"`
}

// ============================================================================
// EVIDENCE - Tagged Variants Per Pattern Type
// ============================================================================

// Evidence is a tagged union: Kind names the populated variant, the other
// variants stay nil. One explicit schema per pattern type instead of a
// free-form payload.
type Evidence struct {
	Kind       PatternType         `json:"kind"`
	CoLocation *CoLocationEvidence `json:"co_location,omitempty"`
	Temporal   *TemporalEvidence   `json:"temporal,omitempty"`
	Geographic *GeographicEvidence `json:"geographic,omitempty"`
	Attribute  *AttributeEvidence  `json:"attribute,omitempty"`
}

// Validate checks that exactly the variant named by Kind is populated
func (e Evidence) Validate() error {
	populated := 0
	if e.CoLocation != nil {
		populated++
	}
	if e.Temporal != nil {
		populated++
	}
	if e.Geographic != nil {
		populated++
	}
	if e.Attribute != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("evidence must carry exactly one variant, has %d", populated)
	}
	ok := false
	switch e.Kind {
	case PatternCoLocation:
		ok = e.CoLocation != nil
	case PatternTemporal:
		ok = e.Temporal != nil
	case PatternGeographic:
		ok = e.Geographic != nil
	case PatternAttribute:
		ok = e.Attribute != nil
	}
	if !ok {
		return fmt.Errorf("evidence kind %q does not match populated variant", e.Kind)
	}
	return nil
}

// CoLocationEvidence describes a recurring multi-type cell combination
type CoLocationEvidence struct {
	TypeCombination []anomaly.PhenomenonType `json:"type_combination"`
	CellCount       int                      `json:"cell_count"`
	TotalEvents     int                      `json:"total_events"`
	AvgWindowIndex  float64                  `json:"avg_window_index"`
	CellKeys        []string                 `json:"cell_keys"`
	Resolution      float64                  `json:"resolution"`
}

// MonthSpike is one flagged month in a temporal cluster
type MonthSpike struct {
	Month   core.MonthKey `json:"month"`
	Count   int           `json:"count"`
	ZScore  float64       `json:"z_score"`
	ApproxP float64       `json:"approx_p"` // normal-tail approximation, descriptive only
}

// TemporalEvidence describes month-level clustering within one domain
type TemporalEvidence struct {
	Domain         anomaly.PhenomenonType `json:"domain"`
	MonthsObserved int                    `json:"months_observed"`
	MonthlyMean    float64                `json:"monthly_mean"`
	MonthlyStdDev  float64                `json:"monthly_std_dev"`
	Spikes         []MonthSpike           `json:"spikes"`
	TopZ           float64                `json:"top_z"`
}

// CellSignal is one flagged cell in a geographic anomaly
type CellSignal struct {
	CellKey     string  `json:"cell_key"`
	WindowIndex float64 `json:"window_index"`
	ZScore      float64 `json:"z_score,omitempty"`
	ExcessRatio float64 `json:"excess_ratio,omitempty"`
}

// GeographicEvidence describes window-index outliers at one resolution
type GeographicEvidence struct {
	Resolution    float64      `json:"resolution"`
	MeanIndex     float64      `json:"mean_index"`
	StdDevIndex   float64      `json:"std_dev_index"`
	HighIndex     []CellSignal `json:"high_index"`     // window index z > 2
	HighExcess    []CellSignal `json:"high_excess"`    // excess ratio > 1.5
	CellsExamined int          `json:"cells_examined"`
}

// CategorySummary is one category's covariate distribution in an
// attribute cross-tabulation
type CategorySummary struct {
	Value  string  `json:"value"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// AttributeEvidence describes a categorical/covariate association or an
// hour-of-day skew within one domain
type AttributeEvidence struct {
	Domain        anomaly.PhenomenonType `json:"domain"`
	Kind          AttributePatternKind   `json:"kind"`
	CategoryAttr  string                 `json:"category_attr,omitempty"`
	CovariateAttr string                 `json:"covariate_attr,omitempty"`
	Categories    []CategorySummary      `json:"categories,omitempty"`
	HourCounts    []int                  `json:"hour_counts,omitempty"` // 24 buckets
	Deviation     float64                `json:"deviation"`             // CV across categories, or max deviation from uniform
	SampleSize    int                    `json:"sample_size"`
}

// AttributePatternKind distinguishes the two realized cross-tabulations
type AttributePatternKind string

const (
	AttributeCategoryCovariate AttributePatternKind = "category_covariate"
	AttributeHourSkew          AttributePatternKind = "hour_skew"
)
