package analysis

import (
	"fmt"

	"fortean/domain/anomaly"
	"fortean/domain/core"
)

// DefaultHoldoutFraction reserves this share of records for holdout
// validation when the caller does not choose one.
const DefaultHoldoutFraction = 0.3

// SplitResult is a deterministic train/holdout partition. The same record
// always lands on the same side because membership is decided by hashing the
// record id, never by ordering or randomness.
type SplitResult struct {
	Train   []anomaly.EventRecord
	Holdout []anomaly.EventRecord

	HoldoutFraction float64
	Rule            string
}

// TrainSize returns the training partition size
func (s *SplitResult) TrainSize() int { return len(s.Train) }

// HoldoutSize returns the holdout partition size
func (s *SplitResult) HoldoutSize() int { return len(s.Holdout) }

// Split partitions records into train and holdout sets. A record goes to
// holdout when the hash fraction of its id falls below the holdout fraction,
// so the realized split converges on the requested share as the corpus
// grows. Fractions outside (0,1) fall back to the default.
func Split(records []anomaly.EventRecord, holdoutFraction float64) *SplitResult {
	if holdoutFraction <= 0 || holdoutFraction >= 1 {
		holdoutFraction = DefaultHoldoutFraction
	}

	result := &SplitResult{
		HoldoutFraction: holdoutFraction,
		Rule:            fmt.Sprintf("sha256(record id) uint64 fraction < %.2f", holdoutFraction),
	}

	for _, rec := range records {
		if core.SplitFraction(string(rec.ID)) < holdoutFraction {
			result.Holdout = append(result.Holdout, rec)
		} else {
			result.Train = append(result.Train, rec)
		}
	}
	return result
}
