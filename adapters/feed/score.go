package feed

import (
	"strings"

	"fortean/domain/anomaly"
)

// earthquake_nearby arrives in some enriched feeds; it is read
// opportunistically and never written back.
const attrEarthquakeNearby = "earthquake_nearby"

// QualityScore ranks a record's evidentiary weight. Used to pick which
// records survive the ingest cap; higher is better.
func QualityScore(r anomaly.EventRecord) int {
	score := 0
	if b, ok := r.Attributes.Bool(anomaly.AttrPhysioEffects); ok && b {
		score += 3
	}
	if b, ok := r.Attributes.Bool(anomaly.AttrEMInterference); ok && b {
		score += 3
	}
	if b, ok := r.Attributes.Bool(attrEarthquakeNearby); ok && b {
		score += 2
	}
	if b, ok := r.Attributes.Bool(anomaly.AttrGeomagneticStorm); ok && b {
		score += 2
	}
	if wc, ok := r.Attributes.Number(anomaly.AttrWitnessCount); ok && wc > 1 {
		score += min(3, int(wc))
	}
	if d, ok := r.Attributes.Number(anomaly.AttrDurationSeconds); ok && d > 60 {
		score++
	}
	if shape, ok := r.Attributes.String(anomaly.AttrShape); ok {
		switch strings.ToLower(shape) {
		case "unknown", "other", "light":
		default:
			score++
		}
	}
	return score
}

// TriageScore grades investigability on a 0-10 scale.
func TriageScore(r anomaly.EventRecord) int {
	score := 0
	if r.HasCoordinates() {
		score += 3
	}
	if wc, ok := r.Attributes.Number(anomaly.AttrWitnessCount); ok && wc > 1 {
		score += min(2, int(wc)-1)
	}
	if d, ok := r.Attributes.Number(anomaly.AttrDurationSeconds); ok && d > 0 {
		score++
	}
	physical, okPhysical := r.Attributes.Bool(anomaly.AttrPhysicalEffects)
	physio, okPhysio := r.Attributes.Bool(anomaly.AttrPhysioEffects)
	if (okPhysical && physical) || (okPhysio && physio) {
		score += 2
	}
	if b, ok := r.Attributes.Bool(anomaly.AttrEMInterference); ok && b {
		score++
	}
	if _, ok := r.Attributes.String(anomaly.AttrSource); ok {
		score++
	}
	return min(10, score)
}

// ConfoundRisk estimates on a 0-100 scale how likely the report has a
// conventional explanation. Airport and military proximity raise it;
// instrumented effects lower it.
func ConfoundRisk(r anomaly.EventRecord) int {
	score := 0
	if km, ok := r.Attributes.Number(anomaly.AttrAirportKM); ok {
		switch {
		case km < 10:
			score += 40
		case km < 30:
			score += 25
		case km < 50:
			score += 10
		}
	}
	if km, ok := r.Attributes.Number(anomaly.AttrMilitaryBaseKM); ok {
		switch {
		case km < 30:
			score += 30
		case km < 50:
			score += 15
		}
	}
	if b, ok := r.Attributes.Bool(anomaly.AttrPhysioEffects); ok && b {
		score -= 20
	}
	if b, ok := r.Attributes.Bool(anomaly.AttrEMInterference); ok && b {
		score -= 15
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// StatusFor maps triage and confound scores onto a report status.
func StatusFor(triage, confoundRisk int) string {
	switch {
	case triage >= 7 && confoundRisk < 30:
		return anomaly.StatusVerified
	case triage >= 4 || confoundRisk < 50:
		return anomaly.StatusProvisional
	default:
		return anomaly.StatusPending
	}
}

// Enrich stamps the ingest-derived attributes onto a copy of the record.
func Enrich(r anomaly.EventRecord) anomaly.EventRecord {
	attrs := r.Attributes.Clone()
	if attrs == nil {
		attrs = anomaly.Attributes{}
	}
	attrs[anomaly.AttrQualityScore] = QualityScore(r)
	attrs[anomaly.AttrReportStatus] = StatusFor(TriageScore(r), ConfoundRisk(r))
	r.Attributes = attrs
	return r
}
