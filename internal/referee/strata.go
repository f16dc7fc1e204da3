package referee

import (
	"math"

	mstats "github.com/montanaflynn/stats"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/verdict"
)

// Proximity band edges in kilometers
const (
	airportNearKM  = 10.0
	airportMidKM   = 50.0
	militaryNearKM = 50.0
)

// stratumsFor partitions records into the named strata of one confound
// dimension. Records missing the stratifying variable are left out; the
// second return is how many records were assignable at all.
func stratumsFor(dim verdict.ConfoundDimension, records []anomaly.EventRecord) (map[string][]anomaly.EventRecord, int) {
	switch dim {
	case verdict.ConfoundPopulationDensity:
		return densityStrata(records)
	case verdict.ConfoundReportingBias:
		return witnessStrata(records)
	case verdict.ConfoundTemporalClustering:
		return seasonStrata(records)
	case verdict.ConfoundSelectionEffect:
		return proximityStrata(records)
	default:
		return nil, 0
	}
}

// stratifierLabel names the attribute a dimension stratifies by, for notes
func stratifierLabel(dim verdict.ConfoundDimension) string {
	switch dim {
	case verdict.ConfoundPopulationDensity:
		return anomaly.AttrPopulationDensity
	case verdict.ConfoundReportingBias:
		return anomaly.AttrWitnessCount
	case verdict.ConfoundTemporalClustering:
		return "timestamp"
	case verdict.ConfoundSelectionEffect:
		return "proximity"
	default:
		return string(dim)
	}
}

// densityStrata buckets records by the quartile of their population density
// within the given record set. Cut points come from the set itself, so the
// strata adapt to whatever region the hypothesis covers.
func densityStrata(records []anomaly.EventRecord) (map[string][]anomaly.EventRecord, int) {
	values := make([]float64, 0, len(records))
	for _, rec := range records {
		if v, ok := rec.Attributes.Number(anomaly.AttrPopulationDensity); ok && !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, 0
	}

	q1 := percentileOrMin(values, 25)
	q2 := percentileOrMin(values, 50)
	q3 := percentileOrMin(values, 75)

	strata := make(map[string][]anomaly.EventRecord)
	covered := 0
	for _, rec := range records {
		v, ok := rec.Attributes.Number(anomaly.AttrPopulationDensity)
		if !ok || math.IsNaN(v) {
			continue
		}
		covered++
		switch {
		case v <= q1:
			strata["density_q1"] = append(strata["density_q1"], rec)
		case v <= q2:
			strata["density_q2"] = append(strata["density_q2"], rec)
		case v <= q3:
			strata["density_q3"] = append(strata["density_q3"], rec)
		default:
			strata["density_q4"] = append(strata["density_q4"], rec)
		}
	}
	return strata, covered
}

// witnessStrata buckets by witness-count band: lone witness, small group,
// crowd. Reporting pressure differs sharply across those bands.
func witnessStrata(records []anomaly.EventRecord) (map[string][]anomaly.EventRecord, int) {
	strata := make(map[string][]anomaly.EventRecord)
	covered := 0
	for _, rec := range records {
		wc, ok := rec.Attributes.Number(anomaly.AttrWitnessCount)
		if !ok || wc < 1 {
			continue
		}
		covered++
		switch {
		case wc < 2:
			strata["witnesses_1"] = append(strata["witnesses_1"], rec)
		case wc < 4:
			strata["witnesses_2-3"] = append(strata["witnesses_2-3"], rec)
		default:
			strata["witnesses_4+"] = append(strata["witnesses_4+"], rec)
		}
	}
	return strata, covered
}

// seasonStrata buckets dated records by calendar quarter
func seasonStrata(records []anomaly.EventRecord) (map[string][]anomaly.EventRecord, int) {
	strata := make(map[string][]anomaly.EventRecord)
	covered := 0
	for _, rec := range records {
		if !rec.HasTimestamp() {
			continue
		}
		covered++
		season := string(core.SeasonOf(rec.ObservedAt.Time()))
		strata[season] = append(strata[season], rec)
	}
	return strata, covered
}

// proximityStrata buckets by the selection-effect proxy. A military base
// within 50 km dominates the selection story and claims the record; records
// without a base that close fall into airport-distance bands. Records
// carrying neither variable are unassignable.
func proximityStrata(records []anomaly.EventRecord) (map[string][]anomaly.EventRecord, int) {
	strata := make(map[string][]anomaly.EventRecord)
	covered := 0
	for _, rec := range records {
		name, ok := proximityStratum(rec.Attributes)
		if !ok {
			continue
		}
		covered++
		strata[name] = append(strata[name], rec)
	}
	return strata, covered
}

func proximityStratum(attrs anomaly.Attributes) (string, bool) {
	if km, ok := attrs.Number(anomaly.AttrMilitaryBaseKM); ok && km >= 0 && km < militaryNearKM {
		return "military_lt50km", true
	}
	km, ok := attrs.Number(anomaly.AttrAirportKM)
	if !ok || km < 0 {
		return "", false
	}
	switch {
	case km < airportNearKM:
		return "airport_lt10km", true
	case km < airportMidKM:
		return "airport_10-50km", true
	default:
		return "airport_gt50km", true
	}
}

func percentileOrMin(values []float64, p float64) float64 {
	v, err := mstats.Percentile(values, p)
	if err != nil {
		min, minErr := mstats.Min(values)
		if minErr != nil {
			return 0
		}
		return min
	}
	return v
}
