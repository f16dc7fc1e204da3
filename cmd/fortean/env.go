package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"fortean/adapters/phrasing"
	"fortean/adapters/phrasing/heuristic"
	"fortean/adapters/store"
	"fortean/domain/anomaly"
	"fortean/internal/research"
	"fortean/ports"
)

// researchEnv holds the opened store and the repositories shared by the
// commands.
type researchEnv struct {
	DB       *store.DB
	Records  *store.RecordRepository
	Sessions *store.SessionRepository
	Findings *store.FindingRepository
	Review   *store.ReviewQueue
	Log      *store.SessionSink
}

// Close releases the store connection.
func (e *researchEnv) Close() {
	if e.DB != nil {
		_ = e.DB.Close()
	}
}

// initEnv opens the configured store, applies migrations, and builds the
// repositories. Callers should defer env.Close().
func initEnv(ctx context.Context) (*researchEnv, error) {
	db, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return &researchEnv{
		DB:       db,
		Records:  store.NewRecordRepository(db),
		Sessions: store.NewSessionRepository(db),
		Findings: store.NewFindingRepository(db),
		Review:   store.NewReviewQueue(db),
		Log:      store.NewSessionSink(db),
	}, nil
}

// initPipeline wires the discovery pipeline from the shared environment. With
// no phrasing endpoint configured every hypothesis comes from the heuristic
// phraser. A nil sink means session narration goes to the store log only.
func initPipeline(env *researchEnv, sink ports.SessionSink) (*research.Pipeline, error) {
	var phraser ports.Phraser
	if cfg.Phrasing.Endpoint != "" {
		client, err := phrasing.NewClient(phrasing.Config{
			Endpoint:      cfg.Phrasing.Endpoint,
			Timeout:       time.Duration(cfg.Phrasing.TimeoutSecs) * time.Second,
			MaxConcurrent: int64(cfg.Phrasing.MaxConcurrent),
			PerMinute:     cfg.Phrasing.PerMinute,
		})
		if err != nil {
			return nil, err
		}
		phraser = client
		zap.L().Info("phrasing service enabled", zap.String("endpoint", cfg.Phrasing.Endpoint))
	} else {
		zap.L().Info("phrasing service not configured, using heuristic phrasing only")
	}

	if sink == nil {
		sink = env.Log
	}

	return research.NewPipeline(research.Deps{
		Store:    env.Records,
		Phraser:  phraser,
		Fallback: heuristic.NewPhraser(),
		Review:   env.Review,
		Sink:     sink,
		Sessions: env.Sessions,
		Findings: env.Findings,
	}, research.Options{
		Thresholds:      cfg.Research.Thresholds(),
		MinSampleSize:   cfg.Research.MinSampleSize,
		MaxHypotheses:   cfg.Research.MaxHypothesesPerSession,
		HoldoutFraction: cfg.Research.HoldoutFraction,
		Iterations:      cfg.Research.MonteCarloIterations,
		Resolution:      cfg.Research.GridResolution,
		Seed:            cfg.Research.Seed,
	})
}

// recordFilter builds the corpus filter shared by the scan and run commands.
// Dates use the form 2006-01-02; --to covers the whole day.
func recordFilter(typeName, from, to string) (anomaly.RecordFilter, error) {
	var filter anomaly.RecordFilter

	if typeName != "" {
		pt, err := anomaly.ParsePhenomenonType(typeName)
		if err != nil {
			return filter, err
		}
		filter.Type = &pt
	}

	if from == "" && to == "" {
		return filter, nil
	}

	dr := anomaly.DateRange{}
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, eris.Wrapf(err, "parse --from %q", from)
		}
		dr.From = t.UTC()
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, eris.Wrapf(err, "parse --to %q", to)
		}
		dr.To = t.UTC().Add(24*time.Hour - time.Second)
	} else {
		dr.To = time.Now().UTC()
	}
	filter.DateRange = &dr

	return filter, nil
}
