package anomaly

import (
	"time"
)

// DateRange bounds a query by observation time, inclusive on both ends
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range
func (d DateRange) Contains(t time.Time) bool {
	if t.Before(d.From) {
		return false
	}
	return !t.After(d.To)
}

// GeoBounds is a latitude/longitude bounding box
type GeoBounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether a point falls inside the box
func (g GeoBounds) Contains(lat, lng float64) bool {
	return lat >= g.MinLat && lat <= g.MaxLat && lng >= g.MinLng && lng <= g.MaxLng
}

// RecordFilter narrows a record fetch. Nil members mean "no constraint".
type RecordFilter struct {
	Type      *PhenomenonType `json:"type,omitempty"`
	DateRange *DateRange      `json:"date_range,omitempty"`
	GeoBounds *GeoBounds      `json:"geo_bounds,omitempty"`
}

// Matches applies the filter to one record. Records without coordinates
// fail a geo-bounded filter; records without timestamps fail a date-bounded
// filter.
func (f RecordFilter) Matches(r EventRecord) bool {
	if f.Type != nil && r.Type != *f.Type {
		return false
	}
	if f.DateRange != nil {
		if !r.HasTimestamp() || !f.DateRange.Contains(r.ObservedAt.Time()) {
			return false
		}
	}
	if f.GeoBounds != nil {
		lat, lng, ok := r.Coords()
		if !ok || !f.GeoBounds.Contains(lat, lng) {
			return false
		}
	}
	return true
}

// Describe renders the filter for corpus fingerprinting and logging
func (f RecordFilter) Describe() map[string]interface{} {
	out := make(map[string]interface{})
	if f.Type != nil {
		out["type"] = f.Type.String()
	}
	if f.DateRange != nil {
		out["from"] = f.DateRange.From.Format(time.RFC3339)
		out["to"] = f.DateRange.To.Format(time.RFC3339)
	}
	if f.GeoBounds != nil {
		out["bounds"] = *f.GeoBounds
	}
	return out
}
