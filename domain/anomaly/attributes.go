package anomaly

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Documented attribute keys, version 1 of the field-report vocabulary.
// The bag is open: unknown keys pass through untouched, but analysis code
// only ever reaches for the keys named here.
const (
	AttrShape             = "shape"
	AttrDurationSeconds   = "duration_seconds"
	AttrWitnessCount      = "witness_count"
	AttrCity              = "city"
	AttrState             = "state"
	AttrCountry           = "country"
	AttrPopulationDensity = "population_density"
	AttrAirportKM         = "airport_nearby_km"
	AttrMilitaryBaseKM    = "military_base_nearby_km"
	AttrFaultLineKM       = "nearest_fault_line_km"
	AttrBedrockType       = "bedrock_type"
	AttrKpIndex           = "kp_index"
	AttrGeomagneticStorm  = "geomagnetic_storm"
	AttrWeatherConditions = "weather_conditions"
	AttrPhysicalEffects   = "physical_effects"
	AttrPhysioEffects     = "physiological_effects"
	AttrEMInterference    = "em_interference"
	AttrQualityScore      = "quality_score"
	AttrReportStatus      = "report_status"
	AttrSource            = "source"
)

// Report status values assigned at ingest triage
const (
	StatusVerified    = "verified"
	StatusProvisional = "provisional"
	StatusPending     = "pending"
)

// Attributes is the open key-value bag attached to every record. Values
// arrive from JSON, spreadsheets, or SQL and may be numbers, strings, or
// booleans; the typed accessors below do the coercion in one place.
type Attributes map[string]interface{}

// Number returns a numeric attribute, coercing strings and json.Number
func (a Attributes) Number(key string) (float64, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// String returns a string attribute, trimmed; empty counts as absent
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Bool returns a boolean attribute, coercing common string spellings
func (a Attributes) Bool(key string) (bool, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
		return false, false
	case float64:
		return b != 0, true
	default:
		return false, false
	}
}

// Clone returns a shallow copy of the bag
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
