package feed

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"fortean/domain/anomaly"
	"fortean/domain/core"
)

// Top-level fields that feed EventRecord directly instead of the bag.
var coreFields = map[string]bool{
	"id":          true,
	"type":        true,
	"latitude":    true,
	"longitude":   true,
	"observed_at": true,
	"date_time":   true,
	"timestamp":   true,
	"attributes":  true,
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// normalize turns a raw row into an event record. The only hard requirement
// is a parseable phenomenon type; coordinates and timestamps are optional,
// and a missing id is derived from the record content so re-ingesting the
// same file upserts instead of duplicating.
func normalize(row rawRow) (anomaly.EventRecord, error) {
	typeStr, _ := stringValue(row.values, "type")
	if typeStr == "" {
		typeStr, _ = stringValue(row.values, "phenomenon_type")
	}
	ptype, err := anomaly.ParsePhenomenonType(typeStr)
	if err != nil {
		return anomaly.EventRecord{}, eris.Wrapf(err, "row %d", row.n)
	}

	rec := anomaly.EventRecord{Type: ptype, Attributes: anomaly.Attributes{}}

	if lat, okLat := numberValue(row.values, "latitude"); okLat {
		if lng, okLng := numberValue(row.values, "longitude"); okLng {
			if lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 {
				rec.Latitude = &lat
				rec.Longitude = &lng
			}
		}
	}

	for _, key := range []string{"observed_at", "date_time", "timestamp"} {
		s, ok := stringValue(row.values, key)
		if !ok {
			continue
		}
		if t, ok := parseTime(s); ok {
			rec.ObservedAt = core.NewTimestamp(t)
			break
		}
	}

	for k, v := range row.values {
		if coreFields[k] || v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		rec.Attributes[k] = v
	}
	if nested, ok := row.values["attributes"].(map[string]interface{}); ok {
		for k, v := range nested {
			if v != nil {
				rec.Attributes[k] = v
			}
		}
	}

	if id, ok := stringValue(row.values, "id"); ok {
		rec.ID = core.RecordID(id)
	} else {
		rec.ID = deriveID(rec)
	}
	return rec, nil
}

// deriveID fingerprints the record content. Stable across runs: the same
// row always maps to the same id.
func deriveID(rec anomaly.EventRecord) core.RecordID {
	var b strings.Builder
	b.WriteString(rec.Type.String())
	if lat, lng, ok := rec.Coords(); ok {
		fmt.Fprintf(&b, "|%.6f,%.6f", lat, lng)
	}
	if rec.HasTimestamp() {
		b.WriteString("|" + rec.ObservedAt.Time().UTC().Format(time.RFC3339))
	}
	keys := make([]string, 0, len(rec.Attributes))
	for k := range rec.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, rec.Attributes[k])
	}
	hash := core.NewHash([]byte(b.String()))
	return core.RecordID("rec_" + hash.String()[:16])
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func stringValue(values map[string]interface{}, key string) (string, bool) {
	v, ok := values[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func numberValue(values map[string]interface{}, key string) (float64, bool) {
	return anomaly.Attributes(values).Number(key)
}
