package ports

import (
	"context"

	"fortean/domain/discovery"
	"fortean/domain/stats"
)

// Phraser turns a pattern candidate into a falsifiable hypothesis phrasing.
// Implementations must return either a schema-complete PhrasedHypothesis or
// an error; the pipeline degrades to the deterministic fallback on error,
// never on a partially-filled response.
type Phraser interface {
	Phrase(ctx context.Context, pattern discovery.PatternCandidate) (*PhrasedHypothesis, error)
}

// PhrasedHypothesis is the strict response schema for a phrasing call
type PhrasedHypothesis struct {
	Text               string         `json:"text"`
	DisplayTitle       string         `json:"display_title"`
	Testable           bool           `json:"testable"`
	SuggestedTest      stats.TestType `json:"suggested_test"`
	RequiredSampleSize int            `json:"required_sample_size"`
}
