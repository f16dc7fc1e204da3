// Package testkit provides in-memory fakes for every port plus a
// deterministic corpus generator, so pipeline behavior can be exercised
// without a database or a phrasing service.
package testkit

import (
	"context"
	"fmt"
	"sync"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/domain/verdict"
	"fortean/ports"
)

// Kit bundles one of every fake, pre-wired for a pipeline run
type Kit struct {
	Store    *MemoryRecordStore
	Sink     *CaptureSink
	Sessions *MemorySessionRepository
	Findings *MemoryFindingRepository
	Review   *MemoryReviewQueue
}

// NewKit creates a fresh kit with empty stores
func NewKit() *Kit {
	return &Kit{
		Store:    NewMemoryRecordStore(),
		Sink:     &CaptureSink{},
		Sessions: NewMemorySessionRepository(),
		Findings: NewMemoryFindingRepository(),
		Review:   &MemoryReviewQueue{},
	}
}

// MemoryRecordStore implements ports.RecordStore and ports.RecordWriter over
// a slice. Set FetchErr to force the store-unavailable path.
type MemoryRecordStore struct {
	mu       sync.RWMutex
	records  []anomaly.EventRecord
	FetchErr error
}

// NewMemoryRecordStore creates a store pre-loaded with records
func NewMemoryRecordStore(records ...anomaly.EventRecord) *MemoryRecordStore {
	return &MemoryRecordStore{records: records}
}

// SaveBatch appends records, implementing ports.RecordWriter
func (s *MemoryRecordStore) SaveBatch(ctx context.Context, records []anomaly.EventRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return len(records), nil
}

// Fetch returns one filtered page
func (s *MemoryRecordStore) Fetch(ctx context.Context, filter anomaly.RecordFilter, limit, offset int) ([]anomaly.EventRecord, error) {
	matched, err := s.FetchAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// FetchAll returns every record the filter admits
func (s *MemoryRecordStore) FetchAll(ctx context.Context, filter anomaly.RecordFilter) ([]anomaly.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	matched := make([]anomaly.EventRecord, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Matches(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Count returns the filtered record count
func (s *MemoryRecordStore) Count(ctx context.Context, filter anomaly.RecordFilter) (int, error) {
	matched, err := s.FetchAll(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// GetByID returns one record or a not-found error
func (s *MemoryRecordStore) GetByID(ctx context.Context, id core.RecordID) (*anomaly.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			out := rec
			return &out, nil
		}
	}
	return nil, core.NewNotFoundError("record", string(id))
}

// CaptureSink implements ports.SessionSink, recording entries in emit order.
// Set EmitErr to force sink failures.
type CaptureSink struct {
	mu      sync.Mutex
	entries []ports.SessionEntry
	EmitErr error
}

// Emit records one entry
func (c *CaptureSink) Emit(ctx context.Context, entry ports.SessionEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EmitErr != nil {
		return c.EmitErr
	}
	c.entries = append(c.entries, entry)
	return nil
}

// Entries returns a copy of everything emitted so far
func (c *CaptureSink) Entries() []ports.SessionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ports.SessionEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// PhaseEntries returns the emitted entries for one phase
func (c *CaptureSink) PhaseEntries(phase ports.SessionPhase) []ports.SessionEntry {
	var out []ports.SessionEntry
	for _, entry := range c.Entries() {
		if entry.Phase == phase {
			out = append(out, entry)
		}
	}
	return out
}

// MemorySessionRepository implements ports.SessionRepository over a map
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]ports.SessionSummary
	order    []core.SessionID
}

// NewMemorySessionRepository creates an empty repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[core.SessionID]ports.SessionSummary)}
}

// CreateSession stores a new session summary
func (r *MemorySessionRepository) CreateSession(ctx context.Context, summary ports.SessionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[summary.ID]; exists {
		return fmt.Errorf("session %s already exists", summary.ID)
	}
	r.sessions[summary.ID] = summary
	r.order = append(r.order, summary.ID)
	return nil
}

// UpdateSession replaces an existing session summary
func (r *MemorySessionRepository) UpdateSession(ctx context.Context, summary ports.SessionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[summary.ID]; !exists {
		return core.NewNotFoundError("session", string(summary.ID))
	}
	r.sessions[summary.ID] = summary
	return nil
}

// GetSession returns one session summary or a not-found error
func (r *MemorySessionRepository) GetSession(ctx context.Context, id core.SessionID) (*ports.SessionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summary, exists := r.sessions[id]
	if !exists {
		return nil, core.NewNotFoundError("session", string(id))
	}
	out := summary
	return &out, nil
}

// ListSessions returns summaries newest-first
func (r *MemorySessionRepository) ListSessions(ctx context.Context, limit int) ([]ports.SessionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.SessionSummary, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.sessions[r.order[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MemoryFindingRepository implements ports.FindingRepository over maps
type MemoryFindingRepository struct {
	mu        sync.RWMutex
	findings  map[core.FindingID]verdict.Finding
	bySession map[core.SessionID][]core.FindingID
	order     []core.FindingID
}

// NewMemoryFindingRepository creates an empty repository
func NewMemoryFindingRepository() *MemoryFindingRepository {
	return &MemoryFindingRepository{
		findings:  make(map[core.FindingID]verdict.Finding),
		bySession: make(map[core.SessionID][]core.FindingID),
	}
}

// SaveFinding stores one finding under its session
func (r *MemoryFindingRepository) SaveFinding(ctx context.Context, sessionID core.SessionID, finding verdict.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.findings[finding.ID]; !exists {
		r.order = append(r.order, finding.ID)
		r.bySession[sessionID] = append(r.bySession[sessionID], finding.ID)
	}
	r.findings[finding.ID] = finding
	return nil
}

// GetFinding returns one finding or a not-found error
func (r *MemoryFindingRepository) GetFinding(ctx context.Context, id core.FindingID) (*verdict.Finding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	finding, exists := r.findings[id]
	if !exists {
		return nil, core.NewNotFoundError("finding", string(id))
	}
	out := finding
	return &out, nil
}

// ListFindings returns a session's findings in save order
func (r *MemoryFindingRepository) ListFindings(ctx context.Context, sessionID core.SessionID) ([]verdict.Finding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.bySession[sessionID]
	out := make([]verdict.Finding, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.findings[id])
	}
	return out, nil
}

// ListRecentFindings returns findings newest-first across sessions
func (r *MemoryFindingRepository) ListRecentFindings(ctx context.Context, limit int) ([]verdict.Finding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]verdict.Finding, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.findings[r.order[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MemoryReviewQueue implements ports.ReviewQueue, capturing submissions.
// Set SubmitErr to force queue failures.
type MemoryReviewQueue struct {
	mu        sync.Mutex
	submitted []verdict.Finding
	SubmitErr error
}

// Submit captures one finding
func (q *MemoryReviewQueue) Submit(ctx context.Context, finding verdict.Finding) (core.FindingID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.SubmitErr != nil {
		return "", q.SubmitErr
	}
	q.submitted = append(q.submitted, finding)
	return finding.ID, nil
}

// Submitted returns a copy of every captured finding
func (q *MemoryReviewQueue) Submitted() []verdict.Finding {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]verdict.Finding, len(q.submitted))
	copy(out, q.submitted)
	return out
}

// ScriptedPhraser implements ports.Phraser from a canned response table
// keyed by pattern type. Pattern types without a script return an error,
// which the pipeline treats as a phrasing failure.
type ScriptedPhraser struct {
	Responses map[discovery.PatternType]ports.PhrasedHypothesis
	Err       error

	mu    sync.Mutex
	calls int
}

// Phrase returns the scripted response for the candidate's pattern type
func (p *ScriptedPhraser) Phrase(ctx context.Context, pattern discovery.PatternCandidate) (*ports.PhrasedHypothesis, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	resp, ok := p.Responses[pattern.Type]
	if !ok {
		return nil, fmt.Errorf("no scripted phrasing for %s pattern", pattern.Type)
	}
	out := resp
	return &out, nil
}

// Calls returns how many times Phrase was invoked
func (p *ScriptedPhraser) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
