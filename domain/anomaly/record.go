package anomaly

import (
	"fmt"
	"sort"
	"strings"

	"fortean/domain/core"
)

// PhenomenonType classifies an event record into one of the fixed
// investigation categories.
type PhenomenonType string

const (
	TypeUFO      PhenomenonType = "ufo"
	TypeCryptid  PhenomenonType = "cryptid"
	TypeHaunting PhenomenonType = "haunting"
)

// TypeCount is the size of the fixed phenomenon set. Type diversity scores
// are normalized against it.
const TypeCount = 3

// AllTypes returns the fixed phenomenon set in stable order
func AllTypes() []PhenomenonType {
	return []PhenomenonType{TypeUFO, TypeCryptid, TypeHaunting}
}

// ParsePhenomenonType parses a string into a PhenomenonType
func ParsePhenomenonType(s string) (PhenomenonType, error) {
	switch PhenomenonType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeUFO:
		return TypeUFO, nil
	case TypeCryptid:
		return TypeCryptid, nil
	case TypeHaunting:
		return TypeHaunting, nil
	default:
		return "", fmt.Errorf("unknown phenomenon type: %q", s)
	}
}

// String returns the string representation
func (p PhenomenonType) String() string { return string(p) }

// TypeSetKey builds a deterministic key for a set of phenomenon types
// (sorted, "+"-joined). Used to group grid cells by their type combination.
func TypeSetKey(types []PhenomenonType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}

// EventRecord is one geotagged, typed anomaly report. Records are owned by
// the external store and immutable once ingested; the core only reads them.
type EventRecord struct {
	ID         core.RecordID  `json:"id"`
	Type       PhenomenonType `json:"type"`
	Latitude   *float64       `json:"latitude,omitempty"`
	Longitude  *float64       `json:"longitude,omitempty"`
	ObservedAt core.Timestamp `json:"observed_at"`
	Attributes Attributes     `json:"attributes,omitempty"`
}

// HasCoordinates reports whether the record carries a usable location
func (r EventRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Coords returns the record's coordinates, ok=false when missing
func (r EventRecord) Coords() (lat, lng float64, ok bool) {
	if !r.HasCoordinates() {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// HasTimestamp reports whether the record carries a usable observation time
func (r EventRecord) HasTimestamp() bool {
	return !r.ObservedAt.IsZero()
}

// Dated returns only the records with usable timestamps
func Dated(records []EventRecord) []EventRecord {
	out := make([]EventRecord, 0, len(records))
	for _, r := range records {
		if r.HasTimestamp() {
			out = append(out, r)
		}
	}
	return out
}

// ByType partitions records by phenomenon type
func ByType(records []EventRecord) map[PhenomenonType][]EventRecord {
	out := make(map[PhenomenonType][]EventRecord, TypeCount)
	for _, r := range records {
		out[r.Type] = append(out[r.Type], r)
	}
	return out
}

// IDs extracts the record identifiers as plain strings
func IDs(records []EventRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID.String()
	}
	return out
}
