package phrasing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/domain/stats"
)

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestClient_PhraseSuccess(t *testing.T) {
	var got phraseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, map[string]any{
			"text":                 "ufo and haunting reports share grid cells beyond chance",
			"display_title":        "UFO and haunting co-location",
			"testable":             true,
			"suggested_test":       "monte_carlo",
			"required_sample_size": 30,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	phrased, err := client.Phrase(context.Background(), colocationCandidate())
	require.NoError(t, err)

	assert.Equal(t, "co-location", got.PatternType)
	assert.Equal(t, []string{"ufo", "haunting"}, got.Domains)
	assert.Equal(t, discovery.PatternCoLocation, got.Evidence.Kind)

	assert.True(t, phrased.Testable)
	assert.Equal(t, stats.TestMonteCarlo, phrased.SuggestedTest)
	assert.Equal(t, 30, phrased.RequiredSampleSize)
	assert.Equal(t, "UFO and haunting co-location", phrased.DisplayTitle)
}

func TestClient_PhraseUntestableSkipsTestFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"text":                 "the pattern reflects reporting volume, not a relationship",
			"display_title":        "Not testable",
			"testable":             false,
			"suggested_test":       "",
			"required_sample_size": 0,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	phrased, err := client.Phrase(context.Background(), colocationCandidate())
	require.NoError(t, err)
	assert.False(t, phrased.Testable)
	assert.Empty(t, string(phrased.SuggestedTest))
}

func TestClient_PhraseRejectsMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// required_sample_size absent
		writeJSON(t, w, map[string]any{
			"text":           "something",
			"display_title":  "Something",
			"testable":       true,
			"suggested_test": "chi_square",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Phrase(context.Background(), colocationCandidate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields")
}

func TestClient_PhraseRejectsUnknownField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"text":                 "something",
			"display_title":        "Something",
			"testable":             true,
			"suggested_test":       "chi_square",
			"required_sample_size": 30,
			"confidence":           0.9,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Phrase(context.Background(), colocationCandidate())
	require.Error(t, err)
}

func TestClient_PhraseRejectsUnknownTestType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"text":                 "something",
			"display_title":        "Something",
			"testable":             true,
			"suggested_test":       "anova",
			"required_sample_size": 30,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Phrase(context.Background(), colocationCandidate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suggested_test")
}

func TestClient_PhraseRejectsBlankText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"text":                 "   ",
			"display_title":        "Something",
			"testable":             true,
			"suggested_test":       "chi_square",
			"required_sample_size": 30,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Phrase(context.Background(), colocationCandidate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-empty")
}

func TestClient_PhraseSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "phrasing backend overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Phrase(context.Background(), colocationCandidate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 503")
	assert.Contains(t, err.Error(), "overloaded")
}

func TestClient_BoundsInFlightRequests(t *testing.T) {
	var inFlight, maxSeen int64
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if n > maxSeen {
			maxSeen = n
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		writeJSON(t, w, map[string]any{
			"text":                 "something",
			"display_title":        "Something",
			"testable":             true,
			"suggested_test":       "chi_square",
			"required_sample_size": 30,
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, MaxConcurrent: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Phrase(context.Background(), colocationCandidate())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(1), maxSeen, "semaphore must keep requests serialized")
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"text":                 "something",
			"display_title":        "Something",
			"testable":             false,
			"suggested_test":       "",
			"required_sample_size": 0,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Phrase(ctx, colocationCandidate())
	require.Error(t, err)
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	client, err := NewClient(Config{Endpoint: endpoint, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, body map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func colocationCandidate() discovery.PatternCandidate {
	return discovery.PatternCandidate{
		ID:          core.NewPatternID(),
		Type:        discovery.PatternCoLocation,
		Description: "ufo+haunting cells recur beyond chance",
		Domains:     []anomaly.PhenomenonType{anomaly.TypeUFO, anomaly.TypeHaunting},
		Evidence: discovery.Evidence{
			Kind: discovery.PatternCoLocation,
			CoLocation: &discovery.CoLocationEvidence{
				TypeCombination: []anomaly.PhenomenonType{anomaly.TypeHaunting, anomaly.TypeUFO},
				CellCount:       4,
				TotalEvents:     48,
				AvgWindowIndex:  1.8,
				CellKeys:        []string{"34.125,-118.375"},
				Resolution:      0.25,
			},
		},
		PreliminaryStrength: 0.7,
		DiscoveredAt:        core.Now(),
	}
}
