package core

import (
	"time"
)

// Timestamp represents a point in time with timezone awareness
type Timestamp time.Time

// NewTimestamp creates a new timestamp from time.Time
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t)
}

// Now returns the current timestamp
func Now() Timestamp {
	return Timestamp(time.Now())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero checks if the timestamp is zero
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// Before returns true if t is before u
func (t Timestamp) Before(u Timestamp) bool {
	return time.Time(t).Before(time.Time(u))
}

// After returns true if t is after u
func (t Timestamp) After(u Timestamp) bool {
	return time.Time(t).After(time.Time(u))
}

// MonthKey identifies a calendar month ("2006-01"), the bucket unit of
// temporal clustering analysis.
type MonthKey string

// NewMonthKey buckets a time into its calendar month
func NewMonthKey(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

// String returns the string representation
func (m MonthKey) String() string { return string(m) }

// Season identifies a calendar quarter, the stratum unit of the
// temporal-clustering confound dimension.
type Season string

const (
	SeasonQ1 Season = "Q1"
	SeasonQ2 Season = "Q2"
	SeasonQ3 Season = "Q3"
	SeasonQ4 Season = "Q4"
)

// SeasonOf returns the quarter a time falls in
func SeasonOf(t time.Time) Season {
	switch {
	case t.Month() <= 3:
		return SeasonQ1
	case t.Month() <= 6:
		return SeasonQ2
	case t.Month() <= 9:
		return SeasonQ3
	default:
		return SeasonQ4
	}
}

// JSON marshaling for Timestamp
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(tm)
	return nil
}

// String representation
func (t Timestamp) String() string { return t.Time().Format(time.RFC3339) }
