package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// CorpusHash fingerprints the record set a session researched
type CorpusHash Hash

// String returns the string representation
func (h CorpusHash) String() string { return Hash(h).String() }

// SplitFraction maps a record identifier to a stable point in [0,1).
// The first 8 bytes of the SHA-256 digest are read as a big-endian uint64
// and divided by 2^64. Identical ids map to the identical fraction on every
// run and every process, which is what makes holdout assignment reproducible.
func SplitFraction(id string) float64 {
	sum := sha256.Sum256([]byte(id))
	n := binary.BigEndian.Uint64(sum[:8])
	return float64(n) / float64(1<<63) / 2.0
}

// ComputeCorpusHash fingerprints the set of record ids plus the filters that
// selected them. Order-independent: ids and filter keys are sorted first.
func ComputeCorpusHash(recordIDs []string, filters map[string]interface{}) CorpusHash {
	ids := make([]string, len(recordIDs))
	copy(ids, recordIDs)
	sort.Strings(ids)

	var data strings.Builder
	for _, id := range ids {
		data.WriteString(id)
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("%v", filters[key]))
	}

	return CorpusHash(NewHash([]byte(data.String())))
}
