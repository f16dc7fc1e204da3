package phrasing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"fortean/domain/discovery"
	"fortean/domain/stats"
	"fortean/ports"
)

// Config holds phrasing client configuration
type Config struct {
	Endpoint      string        // phrasing service URL
	Timeout       time.Duration // per-request timeout
	MaxConcurrent int64         // in-flight request bound
	PerMinute     int           // sustained request rate, 0 disables throttling
}

// Client implements ports.Phraser against the HTTP phrasing collaborator.
// Requests are throttled twice: a weighted semaphore bounds in-flight calls
// and a rate limiter spaces them out, so a burst of candidates from one
// session cannot flood the collaborator. Any malformed response is an error;
// the caller owns the fallback.
type Client struct {
	config  Config
	http    *http.Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewClient creates a phrasing client
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, eris.New("phrasing: endpoint is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 2
	}

	limit := rate.Inf
	if config.PerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.PerMinute))
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		sem:     semaphore.NewWeighted(config.MaxConcurrent),
		limiter: rate.NewLimiter(limit, int(config.MaxConcurrent)),
	}, nil
}

// phraseRequest is the wire format sent to the collaborator
type phraseRequest struct {
	PatternType         string             `json:"pattern_type"`
	Description         string             `json:"description"`
	Domains             []string           `json:"domains"`
	PreliminaryStrength float64            `json:"preliminary_strength"`
	Evidence            discovery.Evidence `json:"evidence"`
}

// phraseResponse is the strict response schema. Pointer fields distinguish
// absent keys from zero values so a partial response is rejected, not
// silently defaulted.
type phraseResponse struct {
	Text               *string `json:"text"`
	DisplayTitle       *string `json:"display_title"`
	Testable           *bool   `json:"testable"`
	SuggestedTest      *string `json:"suggested_test"`
	RequiredSampleSize *int    `json:"required_sample_size"`
}

// Phrase implements ports.Phraser
func (c *Client) Phrase(ctx context.Context, pattern discovery.PatternCandidate) (*ports.PhrasedHypothesis, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "phrasing: rate limit wait")
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "phrasing: acquire slot")
	}
	defer c.sem.Release(1)

	domains := make([]string, len(pattern.Domains))
	for i, d := range pattern.Domains {
		domains[i] = d.String()
	}
	body := phraseRequest{
		PatternType:         pattern.Type.String(),
		Description:         pattern.Description,
		Domains:             domains,
		PreliminaryStrength: pattern.PreliminaryStrength,
		Evidence:            pattern.Evidence,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "phrasing: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "phrasing: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "phrasing: request failed")
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "phrasing: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.New(fmt.Sprintf("phrasing: http %d: %s", resp.StatusCode, excerpt(respRaw)))
	}

	dec := json.NewDecoder(bytes.NewReader(respRaw))
	dec.DisallowUnknownFields()
	var decoded phraseResponse
	if err := dec.Decode(&decoded); err != nil {
		return nil, eris.Wrap(err, "phrasing: decode response")
	}

	return validateResponse(decoded)
}

// validateResponse enforces the full schema before the response is trusted
func validateResponse(r phraseResponse) (*ports.PhrasedHypothesis, error) {
	if r.Text == nil || r.DisplayTitle == nil || r.Testable == nil ||
		r.SuggestedTest == nil || r.RequiredSampleSize == nil {
		return nil, eris.New("phrasing: response missing required fields")
	}
	text := strings.TrimSpace(*r.Text)
	title := strings.TrimSpace(*r.DisplayTitle)
	if text == "" || title == "" {
		return nil, eris.New("phrasing: response text and display_title must be non-empty")
	}

	phrased := &ports.PhrasedHypothesis{
		Text:               text,
		DisplayTitle:       title,
		Testable:           *r.Testable,
		RequiredSampleSize: *r.RequiredSampleSize,
	}
	if *r.Testable {
		tt, err := stats.ParseTestType(*r.SuggestedTest)
		if err != nil {
			return nil, eris.Wrap(err, "phrasing: response suggested_test")
		}
		if *r.RequiredSampleSize < 1 {
			return nil, eris.New("phrasing: testable response requires required_sample_size >= 1")
		}
		phrased.SuggestedTest = tt
	}
	return phrased, nil
}

func excerpt(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
