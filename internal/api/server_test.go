package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/stats"
	"fortean/domain/verdict"
	"fortean/internal/testkit"
	"fortean/ports"
)

func TestHealth(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListSessions(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []ports.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "sess_001", body.Sessions[0].ID.String())
}

func TestGetSession(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/sess_001", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Session ports.SessionSummary `json:"session"`
		Log     []ports.SessionEntry `json:"log"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ports.SessionCompleted, body.Session.Status)
	require.Len(t, body.Log, 2)
	assert.Equal(t, "fetched 250 records", body.Log[0].Message)
}

func TestGetSession_NotFound(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/sess_missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestSessionFindings(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/sess_001/findings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Findings []verdict.Finding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Findings, 2)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/sess_missing/findings", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionReport(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/sess_001/report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "# Anomaly Research Findings")
	assert.Contains(t, rec.Body.String(), "**Session**: sess_001")

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/sess_001/report?format=html", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<html")
}

func TestRecentFindings(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/findings?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Findings []verdict.Finding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Findings, 1)
}

func TestGetFinding(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/findings/find_001", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var finding verdict.Finding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &finding))
	assert.Equal(t, "find_001", finding.ID.String())

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/findings/find_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionEvents_ReplayThenLive(t *testing.T) {
	s, _, hub := newServerFixture(t)

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/sess_001/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)

	// the persisted log replays first
	replayed := readDataFrames(t, scanner, 2)
	var first ports.SessionEntry
	require.NoError(t, json.Unmarshal([]byte(replayed[0]), &first))
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, "fetched 250 records", first.Message)

	// then live entries stream through the hub
	require.Eventually(t, func() bool {
		return hub.ClientCount(core.SessionID("sess_001")) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Emit(context.Background(), ports.SessionEntry{
		SessionID: core.SessionID("sess_001"),
		Seq:       3,
		Phase:     ports.PhaseSummary,
		Message:   "1 confirmed",
		At:        core.Now(),
	}))

	live := readDataFrames(t, scanner, 1)
	var third ports.SessionEntry
	require.NoError(t, json.Unmarshal([]byte(live[0]), &third))
	assert.Equal(t, 3, third.Seq)
}

func TestSessionEvents_UnknownSession(t *testing.T) {
	s, _, _ := newServerFixture(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/sess_missing/events", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHub_EmitReachesEverySubscriber(t *testing.T) {
	hub := NewHub()
	id := core.SessionID("sess_001")

	a := hub.Subscribe(id)
	b := hub.Subscribe(id)
	assert.Equal(t, 2, hub.ClientCount(id))

	entry := ports.SessionEntry{SessionID: id, Seq: 1, Phase: ports.PhaseFetch, Message: "fetched", At: core.Now()}
	require.NoError(t, hub.Emit(context.Background(), entry))

	assert.Equal(t, "fetched", (<-a).Message)
	assert.Equal(t, "fetched", (<-b).Message)

	hub.Unsubscribe(id, a)
	hub.Unsubscribe(id, b)
	assert.Equal(t, 0, hub.ClientCount(id))

	_, open := <-a
	assert.False(t, open)
}

func TestHub_NeverBlocksOnFullSubscriber(t *testing.T) {
	hub := NewHub()
	id := core.SessionID("sess_001")
	ch := hub.Subscribe(id)
	defer hub.Unsubscribe(id, ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < clientBuffer+5; i++ {
			_ = hub.Emit(context.Background(), ports.SessionEntry{SessionID: id, Seq: i + 1})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}
	assert.Len(t, ch, clientBuffer)
}

// helpers

type fakeLog struct {
	entries map[core.SessionID][]ports.SessionEntry
}

func (f *fakeLog) Log(ctx context.Context, sessionID core.SessionID) ([]ports.SessionEntry, error) {
	return f.entries[sessionID], nil
}

func newServerFixture(t *testing.T) (*Server, *testkit.Kit, *Hub) {
	t.Helper()
	kit := testkit.NewKit()
	ctx := context.Background()
	sessionID := core.SessionID("sess_001")

	require.NoError(t, kit.Sessions.CreateSession(ctx, ports.SessionSummary{
		ID:          sessionID,
		Status:      ports.SessionCompleted,
		RecordCount: 250,
		StartedAt:   core.NewTimestamp(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
	}))
	require.NoError(t, kit.Findings.SaveFinding(ctx, sessionID, apiFinding("find_001", 0.82)))
	require.NoError(t, kit.Findings.SaveFinding(ctx, sessionID, apiFinding("find_002", 0.61)))

	logs := &fakeLog{entries: map[core.SessionID][]ports.SessionEntry{
		sessionID: {
			{SessionID: sessionID, Seq: 1, Phase: ports.PhaseFetch, Message: "fetched 250 records", At: core.Now()},
			{SessionID: sessionID, Seq: 2, Phase: ports.PhaseScan, Message: "12 candidates", At: core.Now()},
		},
	}}

	hub := NewHub()
	return NewServer(kit.Sessions, kit.Findings, logs, hub), kit, hub
}

func apiFinding(id string, confidence float64) verdict.Finding {
	return verdict.Finding{
		ID:             core.FindingID(id),
		HypothesisID:   core.HypothesisID("hyp_001"),
		DisplayTitle:   "Hour-of-day concentration in haunting reports",
		HypothesisText: "haunting reports concentrate in a narrow nightly window",
		Domains:        []anomaly.PhenomenonType{anomaly.TypeHaunting},
		Confidence:     confidence,
		TestResults: []stats.TestResult{
			{TestType: stats.TestBinomial, PValue: 0.0001, EffectSize: 1.4, SampleSize: 140, PassedThreshold: true},
			{TestType: stats.TestBinomial, PValue: 0.0004, EffectSize: 1.1, SampleSize: 60, PassedThreshold: true},
		},
		ConfoundChecks: []verdict.ConfoundCheckResult{
			{ConfoundType: verdict.ConfoundPopulationDensity, Controlled: true, EffectSurvived: true, StrataTested: 4, StrataRetained: 4},
		},
		HoldoutValidation: verdict.HoldoutValidation{Validated: true, HoldoutFraction: 0.3, TrainSize: 140, HoldoutSize: 60},
		AssembledAt:       core.Now(),
	}
}

func readDataFrames(t *testing.T, scanner *bufio.Scanner, n int) []string {
	t.Helper()
	frames := make([]string, 0, n)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
			if len(frames) == n {
				return frames
			}
		}
	}
	t.Fatalf("stream ended after %d of %d data frames: %v", len(frames), n, scanner.Err())
	return nil
}
