package research

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fortean/adapters/battery"
	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
	"fortean/domain/stats"
	"fortean/internal/analysis"
	"fortean/internal/errors"
	"fortean/internal/referee"
	"fortean/internal/scan"
	"fortean/ports"
)

const (
	// DefaultMinSampleSize is the floor below which a hypothesis is never
	// tested, regardless of what the phrasing suggested
	DefaultMinSampleSize = 30

	// DefaultMaxHypotheses bounds how many candidates one session phrases
	DefaultMaxHypotheses = 10
)

// Deps wires the pipeline's collaborators. Store and Fallback are required;
// everything else degrades to a no-op when absent. A nil Phraser means every
// hypothesis is phrased by the deterministic fallback.
type Deps struct {
	Store    ports.RecordStore
	Phraser  ports.Phraser
	Fallback ports.Phraser
	Review   ports.ReviewQueue
	Sink     ports.SessionSink
	Sessions ports.SessionRepository
	Findings ports.FindingRepository
}

// Options tunes one pipeline. Zero values fall back to the defaults.
type Options struct {
	Thresholds      stats.Thresholds
	MinSampleSize   int
	MaxHypotheses   int
	HoldoutFraction float64
	Iterations      int
	Resolution      float64
	Seed            int64
}

// Pipeline runs discovery sessions: fetch, scan, phrase, validate, assemble.
// Scanning fans out internally and phrasing runs concurrently, but hypothesis
// validation is strictly sequential so session logs read as a narrative.
type Pipeline struct {
	deps    Deps
	opts    Options
	scanner *scan.Scanner
	battery *battery.CoOccurrenceReferee
	checker *referee.Checker
	logger  *zap.Logger
}

// NewPipeline validates deps and normalizes options
func NewPipeline(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.ConfigInvalid("record store is required")
	}
	if deps.Fallback == nil {
		return nil, errors.ConfigInvalid("fallback phraser is required")
	}
	if opts.Thresholds == (stats.Thresholds{}) {
		opts.Thresholds = stats.DefaultThresholds()
	}
	if opts.MinSampleSize <= 0 {
		opts.MinSampleSize = DefaultMinSampleSize
	}
	if opts.MaxHypotheses <= 0 {
		opts.MaxHypotheses = DefaultMaxHypotheses
	}
	if opts.HoldoutFraction <= 0 || opts.HoldoutFraction >= 1 {
		opts.HoldoutFraction = analysis.DefaultHoldoutFraction
	}
	if opts.Resolution <= 0 {
		opts.Resolution = analysis.DefaultResolution
	}

	ref := battery.NewCoOccurrenceReferee()
	if opts.Iterations > 0 {
		ref.SetIterations(opts.Iterations)
	}
	if opts.Seed != 0 {
		ref.SetSeed(opts.Seed)
	}

	return &Pipeline{
		deps:    deps,
		opts:    opts,
		scanner: scan.NewScanner(opts.Resolution),
		battery: ref,
		checker: referee.NewChecker(opts.Thresholds),
		logger:  zap.L().With(zap.String("component", "pipeline")),
	}, nil
}

// Run executes one full discovery session over the filtered corpus. The
// returned session is always usable, even on failure; the error, when
// non-nil, is a *errors.SessionError carrying the failure code.
func (p *Pipeline) Run(ctx context.Context, filter anomaly.RecordFilter) (*Session, error) {
	session := NewSession()
	p.logger.Info("session started", zap.String("session", string(session.ID())))
	p.persistSession(ctx, session, true)

	session.SetState(StateFetching)
	p.emit(ctx, session, ports.PhaseFetch, "fetching qualifying records")
	records, err := p.deps.Store.FetchAll(ctx, filter)
	if err != nil {
		return p.fail(ctx, session, errors.StoreUnavailable(err))
	}
	if len(records) == 0 {
		return p.fail(ctx, session, errors.NoQualifyingRecords(0))
	}
	hash := core.ComputeCorpusHash(anomaly.IDs(records), filter.Describe())
	session.SetCorpus(hash, len(records))
	p.emit(ctx, session, ports.PhaseFetch, "fetched %d records, corpus %s", len(records), hash)

	session.SetState(StateScanning)
	p.emit(ctx, session, ports.PhaseScan, "scanning at %.2f degree resolution", p.opts.Resolution)
	candidates, err := p.scanner.Scan(ctx, records)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(ctx, session, errors.Cancelled(err))
		}
		return p.fail(ctx, session, errors.ScanFailed(err))
	}
	session.SetCandidates(candidates)
	p.emit(ctx, session, ports.PhaseScan, "scan surfaced %d pattern candidates", len(candidates))
	if len(candidates) == 0 {
		return p.complete(ctx, session)
	}

	session.SetState(StatePhrasing)
	limit := p.opts.MaxHypotheses
	if limit > len(candidates) {
		limit = len(candidates)
	}
	hypotheses := p.phraseAll(ctx, candidates[:limit])
	service := 0
	for _, h := range hypotheses {
		if h.Origin == discovery.OriginService {
			service++
		}
		session.AddHypothesis(h)
	}
	p.emit(ctx, session, ports.PhasePhrase, "phrased %d hypotheses (%d service, %d fallback)",
		len(hypotheses), service, len(hypotheses)-service)

	session.SetState(StateValidating)
	for _, h := range hypotheses {
		if ctx.Err() != nil {
			return p.fail(ctx, session, errors.Cancelled(ctx.Err()))
		}
		if err := p.validate(ctx, session, h, records); err != nil {
			return p.fail(ctx, session, errors.Cancelled(err))
		}
	}

	return p.complete(ctx, session)
}

// phraseAll turns candidates into hypotheses concurrently. The phrasing
// client throttles itself, so fan-out here costs nothing extra; results keep
// candidate order so sessions replay identically.
func (p *Pipeline) phraseAll(ctx context.Context, candidates []discovery.PatternCandidate) []*discovery.Hypothesis {
	results := make([]*discovery.Hypothesis, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		g.Go(func() error {
			results[i] = p.phraseOne(gctx, candidate)
			return nil
		})
	}
	_ = g.Wait()

	hypotheses := make([]*discovery.Hypothesis, 0, len(results))
	for _, h := range results {
		if h != nil {
			hypotheses = append(hypotheses, h)
		}
	}
	return hypotheses
}

// phraseOne tries the phrasing service first and falls back to the
// deterministic phraser on any failure. Phrasing problems never abort a
// session; a candidate that cannot be phrased at all becomes untestable.
func (p *Pipeline) phraseOne(ctx context.Context, candidate discovery.PatternCandidate) *discovery.Hypothesis {
	if p.deps.Phraser != nil {
		phrased, err := p.deps.Phraser.Phrase(ctx, candidate)
		if err == nil {
			return discovery.NewHypothesis(candidate, phrased.Text, phrased.DisplayTitle,
				phrased.Testable, phrased.SuggestedTest, phrased.RequiredSampleSize, discovery.OriginService)
		}
		p.logger.Warn("phrasing service failed, using fallback",
			zap.String("pattern", string(candidate.Type)), zap.Error(err))
	}

	phrased, err := p.deps.Fallback.Phrase(ctx, candidate)
	if err != nil {
		p.logger.Warn("fallback phrasing failed",
			zap.String("pattern", string(candidate.Type)), zap.Error(err))
		return discovery.NewHypothesis(candidate, candidate.Description, candidate.Description,
			false, "", 0, discovery.OriginFallback)
	}
	return discovery.NewHypothesis(candidate, phrased.Text, phrased.DisplayTitle,
		phrased.Testable, phrased.SuggestedTest, phrased.RequiredSampleSize, discovery.OriginFallback)
}

// validate walks one hypothesis through the full state machine. The only
// error it returns is cancellation; every analytic outcome lands as a
// terminal hypothesis status instead.
func (p *Pipeline) validate(ctx context.Context, session *Session, h *discovery.Hypothesis, records []anomaly.EventRecord) error {
	if !h.Testable {
		_ = h.Discard()
		p.emit(ctx, session, ports.PhaseValidate, "hypothesis %s discarded: not testable", h.ID)
		return nil
	}

	domainRecords := recordsForDomains(records, h.Domains)
	required := p.opts.MinSampleSize
	if h.RequiredSampleSize > required {
		required = h.RequiredSampleSize
	}
	if len(domainRecords) < required {
		_ = h.Discard()
		p.emit(ctx, session, ports.PhaseValidate, "hypothesis %s discarded: %d records in scope, %d required",
			h.ID, len(domainRecords), required)
		return nil
	}

	split := analysis.Split(domainRecords, p.opts.HoldoutFraction)

	_ = h.Transition(discovery.StatusTestingTrain)
	train, err := p.runTest(ctx, h, split.Train)
	if err != nil {
		return err
	}
	if !train.PassedThreshold {
		_ = h.Reject(discovery.ReasonBelowSignificance)
		p.emit(ctx, session, ports.PhaseValidate, "hypothesis %s rejected on training split: p=%.4f effect=%.3f",
			h.ID, train.PValue, train.EffectSize)
		return nil
	}

	_ = h.Transition(discovery.StatusTestingHoldout)
	holdout, err := p.runTest(ctx, h, split.Holdout)
	if err != nil {
		return err
	}
	if !holdout.PassedThreshold {
		_ = h.Reject(discovery.ReasonFailedHoldout)
		p.emit(ctx, session, ports.PhaseValidate, "hypothesis %s rejected on holdout split: p=%.4f effect=%.3f",
			h.ID, holdout.PValue, holdout.EffectSize)
		return nil
	}

	_ = h.Transition(discovery.StatusConfoundCheck)
	checks, err := p.checker.CheckAll(ctx, domainRecords, func(ctx context.Context, subset []anomaly.EventRecord) (stats.TestResult, error) {
		return p.runTest(ctx, h, subset)
	})
	if err != nil {
		return err
	}
	for _, check := range checks {
		if check.Failed() {
			_ = h.Reject(discovery.ReasonConfounded)
			p.emit(ctx, session, ports.PhaseValidate, "hypothesis %s rejected: effect vanished under %s stratification",
				h.ID, check.ConfoundType)
			return nil
		}
	}

	_ = h.Transition(discovery.StatusConfirmed)
	finding := assembleFinding(h, train, holdout, checks, split, p.opts.Thresholds)
	p.emit(ctx, session, ports.PhaseAssemble, "hypothesis %s confirmed: finding %s at confidence %.2f",
		h.ID, finding.ID, finding.Confidence)

	if p.deps.Review != nil {
		if _, err := p.deps.Review.Submit(ctx, finding); err != nil {
			p.logger.Warn("review queue submission failed",
				zap.String("finding", string(finding.ID)), zap.Error(err))
		}
	}
	if p.deps.Findings != nil {
		if err := p.deps.Findings.SaveFinding(ctx, session.ID(), finding); err != nil {
			p.logger.Warn("finding persistence failed",
				zap.String("finding", string(finding.ID)), zap.Error(err))
		}
	}
	session.AddFinding(finding.ID)
	return nil
}

// runTest executes the hypothesis's suggested test on a record subset.
// Co-location hypotheses route to the permutation battery; everything else
// builds inputs analytically. The only error is cancellation.
func (p *Pipeline) runTest(ctx context.Context, h *discovery.Hypothesis, records []anomaly.EventRecord) (stats.TestResult, error) {
	if h.SourcePattern.Type == discovery.PatternCoLocation {
		if h.SuggestedTest != stats.TestMonteCarlo {
			return stats.Degenerate(h.SuggestedTest, len(records),
				fmt.Sprintf("no input construction for %s on a co-location pattern", h.SuggestedTest)), nil
		}
		input := battery.CoOccurrenceInput{Records: records}
		if evidence := h.SourcePattern.Evidence.CoLocation; evidence != nil {
			input.Combination = evidence.TypeCombination
			input.Resolution = evidence.Resolution
		}
		outcome, err := p.battery.Test(ctx, input, p.opts.Thresholds)
		if err != nil {
			return stats.TestResult{}, err
		}
		return outcome.Result, nil
	}
	return runBuiltTest(h, records, p.opts.Thresholds), nil
}

// complete finishes a session normally and persists the final summary
func (p *Pipeline) complete(ctx context.Context, session *Session) (*Session, error) {
	confirmed, rejected, discarded := session.Counts()
	p.emit(ctx, session, ports.PhaseSummary, "session complete: %d records, %d candidates, %d hypotheses (%d confirmed, %d rejected, %d discarded)",
		session.RecordCount(), len(session.Candidates()), len(session.Hypotheses()), confirmed, rejected, discarded)
	session.Complete()
	p.persistSession(ctx, session, false)
	p.logger.Info("session complete",
		zap.String("session", string(session.ID())),
		zap.Int("confirmed", confirmed),
		zap.Int("rejected", rejected),
		zap.Int("discarded", discarded))
	return session, nil
}

// fail finishes a session with a stable failure code
func (p *Pipeline) fail(ctx context.Context, session *Session, failure *errors.SessionError) (*Session, error) {
	session.Fail(failure)
	p.emit(ctx, session, ports.PhaseSummary, "session failed: %s", failure.Message)
	p.persistSession(ctx, session, false)
	p.logger.Error("session failed",
		zap.String("session", string(session.ID())),
		zap.String("code", failure.Code),
		zap.Error(failure))
	return session, failure
}

// persistSession writes the session summary through the repository. Summary
// persistence is best-effort: only the record store is load-bearing.
func (p *Pipeline) persistSession(ctx context.Context, session *Session, create bool) {
	if p.deps.Sessions == nil {
		return
	}
	var err error
	if create {
		err = p.deps.Sessions.CreateSession(ctx, session.Summary())
	} else {
		err = p.deps.Sessions.UpdateSession(ctx, session.Summary())
	}
	if err != nil {
		p.logger.Warn("session persistence failed",
			zap.String("session", string(session.ID())), zap.Error(err))
	}
}

// emit appends one line to the session sink
func (p *Pipeline) emit(ctx context.Context, session *Session, phase ports.SessionPhase, format string, args ...interface{}) {
	if p.deps.Sink == nil {
		return
	}
	entry := ports.SessionEntry{
		SessionID: session.ID(),
		Seq:       session.NextSeq(),
		Phase:     phase,
		Message:   fmt.Sprintf(format, args...),
		At:        core.Now(),
	}
	if err := p.deps.Sink.Emit(ctx, entry); err != nil {
		p.logger.Warn("session sink emit failed", zap.Error(err))
	}
}

// recordsForDomains keeps records whose phenomenon type appears in the
// hypothesis scope. An empty scope keeps everything.
func recordsForDomains(records []anomaly.EventRecord, domains []anomaly.PhenomenonType) []anomaly.EventRecord {
	if len(domains) == 0 {
		return records
	}
	wanted := make(map[anomaly.PhenomenonType]bool, len(domains))
	for _, d := range domains {
		wanted[d] = true
	}
	scoped := make([]anomaly.EventRecord, 0, len(records))
	for _, rec := range records {
		if wanted[rec.Type] {
			scoped = append(scoped, rec)
		}
	}
	return scoped
}
