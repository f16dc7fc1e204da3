// Package referee re-examines validated effects under stratification by
// known nuisance variables. A hypothesis that passed both the training and
// holdout gates is only confirmed once its effect survives within the
// strata of every applicable confound dimension.
package referee

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"fortean/domain/anomaly"
	"fortean/domain/stats"
	"fortean/domain/verdict"
)

// MinStratumSize is the smallest stratum worth retesting; thinner strata
// are reported but never counted for or against the effect.
const MinStratumSize = 10

// Retest re-runs the hypothesis's own test on a record subset. The checker
// never knows which of the six tests it is running; the pipeline closes
// over the test-input builder and hands the closure in.
type Retest func(ctx context.Context, records []anomaly.EventRecord) (stats.TestResult, error)

// Checker stratifies records by each confound dimension and re-runs the
// effect within each stratum.
type Checker struct {
	thresholds stats.Thresholds
	minStratum int
	logger     *zap.Logger
}

// NewChecker builds a checker with the session thresholds
func NewChecker(thresholds stats.Thresholds) *Checker {
	return &Checker{
		thresholds: thresholds,
		minStratum: MinStratumSize,
		logger:     zap.L().With(zap.String("component", "referee")),
	}
}

// CheckAll runs every confound dimension in stable order. The only error it
// returns is context cancellation; a dimension that cannot be checked is
// reported as uncontrolled, never as a failure.
func (c *Checker) CheckAll(ctx context.Context, records []anomaly.EventRecord, retest Retest) ([]verdict.ConfoundCheckResult, error) {
	results := make([]verdict.ConfoundCheckResult, 0, len(verdict.AllConfoundDimensions()))
	for _, dim := range verdict.AllConfoundDimensions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results = append(results, c.check(ctx, dim, records, retest))
	}
	return results, nil
}

func (c *Checker) check(ctx context.Context, dim verdict.ConfoundDimension, records []anomaly.EventRecord, retest Retest) verdict.ConfoundCheckResult {
	strata, covered := stratumsFor(dim, records)
	if covered == 0 {
		return verdict.ConfoundCheckResult{
			ConfoundType: dim,
			Controlled:   false,
			Notes:        fmt.Sprintf("records lack %s; dimension not controlled", stratifierLabel(dim)),
		}
	}

	names := make([]string, 0, len(strata))
	for name, members := range strata {
		if len(members) >= c.minStratum {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return verdict.ConfoundCheckResult{
			ConfoundType: dim,
			Controlled:   false,
			Notes:        fmt.Sprintf("no %s stratum reaches %d records", stratifierLabel(dim), c.minStratum),
		}
	}
	sort.Strings(names)

	tested := 0
	retained := 0
	for _, name := range names {
		result, err := retest(ctx, strata[name])
		if err != nil {
			c.logger.Warn("stratum retest failed",
				zap.String("dimension", string(dim)),
				zap.String("stratum", name),
				zap.Error(err))
			continue
		}
		tested++
		if result.EffectSize > c.thresholds.EffectSize {
			retained++
		}
	}
	if tested == 0 {
		return verdict.ConfoundCheckResult{
			ConfoundType: dim,
			Controlled:   false,
			Notes:        fmt.Sprintf("every %s stratum retest failed", stratifierLabel(dim)),
		}
	}

	// More than half of the tested strata must keep the effect above
	// threshold for it to count as surviving this dimension
	survived := retained*2 > tested
	return verdict.ConfoundCheckResult{
		ConfoundType:   dim,
		Controlled:     true,
		EffectSurvived: survived,
		Notes: fmt.Sprintf("%d/%d strata retained effect size above %.2f",
			retained, tested, c.thresholds.EffectSize),
		StrataTested:   tested,
		StrataRetained: retained,
	}
}
