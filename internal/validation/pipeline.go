package validation

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/internal/metrics"
	"github.com/davidahmann/partnergate/internal/reference"
	"github.com/davidahmann/partnergate/pkg/types"
)

const defaultMaxConcurrency = 8

type Options struct {
	UnavailableMode UnavailableMode
	// MaxConcurrency bounds parallel reference lookups and batch items.
	MaxConcurrency int
}

// Pipeline runs the three validation layers against one contract.
type Pipeline struct {
	ref  reference.Store
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewPipeline(ref reference.Store, opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.UnavailableMode == "" {
		opts.UnavailableMode = UnavailableFailClosed
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Pipeline{ref: ref, opts: opts, log: log, now: time.Now}
}

func (p *Pipeline) Mode() UnavailableMode {
	return p.opts.UnavailableMode
}

// Validate returns a structured result for any data-quality outcome. The only
// error is ErrReferenceUnavailable under UnavailableAbort, or ctx cancellation.
func (p *Pipeline) Validate(ctx context.Context, data types.SubmissionData, contract types.DataContract) (types.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return types.ValidationResult{}, err
	}
	start := p.now()

	schema := CheckSchema(data, contract)
	continuity := CheckContinuity(data.Records, contract.Frequency)
	contra, err := CheckContradictions(ctx, p.ref, data.Records, p.opts.UnavailableMode, p.opts.MaxConcurrency)
	if err != nil {
		metrics.ValidationsTotal.WithLabelValues("aborted").Inc()
		p.log.Error("reference store unavailable, validation aborted",
			zap.String("contract_id", contract.ContractID),
			zap.Error(err),
		)
		return types.ValidationResult{}, err
	}
	if contra.Inconclusive {
		p.log.Warn("reference check inconclusive",
			zap.String("contract_id", contract.ContractID),
			zap.String("mode", string(p.opts.UnavailableMode)),
			zap.String("error", contra.Error),
		)
	}

	tally := TallyOf(schema, continuity, contra)
	result := types.ValidationResult{
		ContractID:    contract.ContractID,
		Schema:        schema,
		Continuity:    continuity,
		Contradiction: contra,
		Overall: types.OverallResult{
			Passed: schema.Passed && continuity.Passed && contra.Passed,
			Score:  Score(tally),
		},
		ValidatedAt: ledger.FormatTime(p.now()),
	}

	observe(result, tally, p.now().Sub(start))
	p.log.Debug("validation complete",
		zap.String("contract_id", contract.ContractID),
		zap.Int("records", len(data.Records)),
		zap.Bool("passed", result.Overall.Passed),
		zap.Int("score", result.Overall.Score),
	)
	return result, nil
}

type BatchItem struct {
	Data     types.SubmissionData
	Contract types.DataContract
}

type BatchResult struct {
	Result types.ValidationResult
	Err    error
}

// ValidateBatch validates independent submissions in parallel. Results
// line up with items; one item's error does not cancel the others.
func (p *Pipeline) ValidateBatch(ctx context.Context, items []BatchItem) []BatchResult {
	out := make([]BatchResult, len(items))
	g := new(errgroup.Group)
	g.SetLimit(p.opts.MaxConcurrency)
	for i, item := range items {
		g.Go(func() error {
			res, err := p.Validate(ctx, item.Data, item.Contract)
			out[i] = BatchResult{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func observe(result types.ValidationResult, t Tally, elapsed time.Duration) {
	outcome := "failed"
	switch {
	case result.Contradiction.Inconclusive:
		outcome = "inconclusive"
	case result.Overall.Passed:
		outcome = "passed"
	}
	metrics.ValidationsTotal.WithLabelValues(outcome).Inc()
	metrics.ValidationDuration.Observe(elapsed.Seconds())

	add := func(layer, kind string, n int) {
		if n > 0 {
			metrics.ValidationIssues.WithLabelValues(layer, kind).Add(float64(n))
		}
	}
	add("schema", "error", t.Errors)
	add("schema", "warning", t.Warnings)
	add("continuity", "duplicate", t.Duplicates)
	add("continuity", "gap", t.Gaps)
	add("continuity", "outlier", t.Outliers)
	add("contradiction", "contradiction", t.Contradictions)
}
