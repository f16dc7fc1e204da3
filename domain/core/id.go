package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RecordID     ID
	SessionID    ID
	PatternID    ID
	HypothesisID ID
	FindingID    ID
)

// String conversions for domain IDs
func (id RecordID) String() string     { return ID(id).String() }
func (id SessionID) String() string    { return ID(id).String() }
func (id PatternID) String() string    { return ID(id).String() }
func (id HypothesisID) String() string { return ID(id).String() }
func (id FindingID) String() string    { return ID(id).String() }

// Typed ID constructors
func NewSessionID() SessionID       { return SessionID(NewID()) }
func NewPatternID() PatternID       { return PatternID(NewID()) }
func NewHypothesisID() HypothesisID { return HypothesisID(NewID()) }
func NewFindingID() FindingID       { return FindingID(NewID()) }

// ParseSessionID parses a string into SessionID
func ParseSessionID(s string) (SessionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	return SessionID(s), nil
}
