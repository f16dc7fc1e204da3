package core

import (
	"math"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	// Generate many IDs
	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDString tests ID string conversion
func TestIDString(t *testing.T) {
	id := ID("test-123")
	if id.String() != "test-123" {
		t.Errorf("Expected String() to return 'test-123', got '%s'", id.String())
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	emptyID := ID("")
	if !emptyID.IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}

	nonEmptyID := ID("not-empty")
	if nonEmptyID.IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestParseSessionID tests session ID parsing
func TestParseSessionID(t *testing.T) {
	tests := []struct {
		input    string
		expected SessionID
		hasError bool
	}{
		{"session-123", SessionID("session-123"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, test := range tests {
		result, err := ParseSessionID(test.input)
		if test.hasError && err == nil {
			t.Errorf("Expected error for input '%s', but got none", test.input)
		}
		if !test.hasError && err != nil {
			t.Errorf("Unexpected error for input '%s': %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

// TestSplitFractionStability tests that split fractions are deterministic
func TestSplitFractionStability(t *testing.T) {
	ids := []string{"rec-001", "rec-002", "a", "", "ufo-sighting-42"}
	for _, id := range ids {
		first := SplitFraction(id)
		for i := 0; i < 5; i++ {
			if got := SplitFraction(id); got != first {
				t.Errorf("SplitFraction(%q) not stable: %v vs %v", id, got, first)
			}
		}
		if first < 0 || first >= 1 {
			t.Errorf("SplitFraction(%q) = %v, want value in [0,1)", id, first)
		}
	}
}

// TestSplitFractionSpread tests that fractions spread roughly uniformly
func TestSplitFractionSpread(t *testing.T) {
	const n = 5000
	below := 0
	for i := 0; i < n; i++ {
		id := NewID()
		if SplitFraction(id.String()) < 0.3 {
			below++
		}
	}
	got := float64(below) / float64(n)
	if math.Abs(got-0.3) > 0.05 {
		t.Errorf("Fraction below 0.3 = %v, want approximately 0.3", got)
	}
}

// TestComputeCorpusHashOrderIndependence tests hash stability under reordering
func TestComputeCorpusHashOrderIndependence(t *testing.T) {
	a := ComputeCorpusHash([]string{"r1", "r2", "r3"}, map[string]interface{}{"type": "ufo"})
	b := ComputeCorpusHash([]string{"r3", "r1", "r2"}, map[string]interface{}{"type": "ufo"})
	if a != b {
		t.Errorf("Corpus hash should not depend on id order: %s vs %s", a, b)
	}

	c := ComputeCorpusHash([]string{"r1", "r2"}, map[string]interface{}{"type": "ufo"})
	if a == c {
		t.Error("Corpus hash should change when the id set changes")
	}
}
