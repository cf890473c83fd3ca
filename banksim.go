package banksim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/banksim/batch"
	"github.com/hupe1980/banksim/cache"
	"github.com/hupe1980/banksim/match"
	"github.com/hupe1980/banksim/model"
	"github.com/hupe1980/banksim/prune"
	"github.com/hupe1980/banksim/psd"
	"github.com/hupe1980/banksim/resource"
	"github.com/hupe1980/banksim/sink"
	"github.com/hupe1980/banksim/tag"
	"github.com/hupe1980/banksim/waveform"
)

// Runner drives one match run: it owns the batch loops, the waveform
// cache, the evaluator and the failure-tolerance policy, and emits exactly
// one record per template/proposal pair to the injected sink.
type Runner struct {
	cfg       Config
	templates []*model.Entity
	proposals []*model.Entity
	out       sink.Sink

	logger    *Logger
	synth     waveform.Synthesizer
	rc        *resource.Controller
	spectrum  *model.Spectrum
	collector StatsCollector

	templateSpec waveform.GenSpec
	proposalSpec waveform.GenSpec
}

// New validates the configuration and builds a runner. Entities must
// already be tagged (see the tag package); tags are verified unique across
// the union of both collections here, before any batch work.
func New(cfg Config, templates, proposals []*model.Entity, out sink.Sink, opts ...Option) (*Runner, error) {
	if out == nil {
		return nil, ErrNilSink
	}

	// Windows are checked on the raw config: withDefaults zeroes the mass
	// window when it is disabled, which would mask a negative value.
	if cfg.MassWindow < 0 || cfg.DurationWindow < 0 {
		return nil, configErrorf("windows", "negative pruning window")
	}

	cfg = cfg.withDefaults()
	if cfg.Duration <= 0 || cfg.SampleRate <= 0 {
		return nil, configErrorf("duration", "non-positive signal duration or sample rate")
	}
	if cfg.FLow <= 0 {
		return nil, configErrorf("f-low", "non-positive low-frequency cutoff %g", cfg.FLow)
	}

	o := options{
		logger:    NoopLogger(),
		synth:     waveform.NewRegistry(),
		collector: NoopStatsCollector{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := tag.VerifyUnique(templates, proposals); err != nil {
		return nil, err
	}

	n := int(cfg.Duration * cfg.SampleRate)
	r := &Runner{
		cfg:       cfg,
		templates: templates,
		proposals: proposals,
		out:       out,
		logger:    o.logger,
		synth:     o.synth,
		rc:        o.rc,
		spectrum:  o.spectrum,
		collector: o.collector,
		templateSpec: waveform.GenSpec{
			Method: cfg.TemplateMethod, FLow: cfg.FLow, DeltaT: 1 / cfg.SampleRate, SampleCount: n,
		},
		proposalSpec: waveform.GenSpec{
			Method: cfg.ProposalMethod, FLow: cfg.FLow, DeltaT: 1 / cfg.SampleRate, SampleCount: n,
		},
	}
	if err := r.templateSpec.Validate(); err != nil {
		return nil, &ConfigError{Field: "template-method", cause: err}
	}
	if err := r.proposalSpec.Validate(); err != nil {
		return nil, &ConfigError{Field: "proposal-method", cause: err}
	}
	return r, nil
}

// Run executes the match loop to completion and returns the run's
// statistics. The execution context is acquired for the lifetime of the
// run and released on every exit path, including the empty-collection
// early exit and propagated synthesis errors.
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	stats := NewRunStats()

	if r.rc != nil {
		release, err := r.rc.AcquireRun(ctx)
		if err != nil {
			return stats, err
		}
		defer release()
	}

	r.logger.Info("run starting",
		"templates", len(r.templates),
		"proposals", len(r.proposals),
		"template_batch_size", r.cfg.TemplateBatchSize,
		"proposal_batch_size", r.cfg.ProposalBatchSize,
		"f_low", r.cfg.FLow,
		"tolerate_failures", r.cfg.TolerateFailures,
	)

	// Empty collections terminate before the loops; the sink still
	// flushes so the output artifact exists.
	if len(r.templates) == 0 || len(r.proposals) == 0 {
		r.logger.Info("empty collection, writing empty output")
		if err := r.out.Flush(); err != nil {
			return stats, err
		}
		return stats, nil
	}

	ev, err := r.buildEvaluator()
	if err != nil {
		return stats, err
	}

	wc := cache.New(r.synth, r.templateSpec, r.proposalSpec, r.rc)
	filters := prune.Chain{
		MassWindow:     r.cfg.MassWindow,
		DurationWindow: r.cfg.DurationWindow,
		FLow:           r.cfg.FLow,
	}

	templateSpans := batch.Partition(len(r.templates), r.cfg.TemplateBatchSize)
	proposalSpans := batch.Partition(len(r.proposals), r.cfg.ProposalBatchSize)

	for ti, ts := range templateSpans {
		for pi, ps := range proposalSpans {
			start := time.Now()
			pairs, err := r.runBlock(ctx, ev, wc, filters, ts, ps, stats)
			if err != nil {
				return stats, err
			}

			d := time.Since(start)
			stats.RecordBatch(ti, pi, pairs, d)
			r.collector.RecordBatch(ti, pi, pairs, d)
			r.logger.WithBatch(ti, pi).Debug("batch done",
				"pairs", pairs,
				"cached", wc.Len(),
				"elapsed", d,
			)
		}

		// Dropping the cache between outer batches is what bounds the
		// resident set; correctness does not depend on it.
		stats.CacheHits.Store(wc.Hits())
		stats.Synthesized.Store(wc.Synthesized())
		wc.Clear()
	}

	if err := r.out.Flush(); err != nil {
		return stats, err
	}

	r.logger.Info("run done",
		"pairs", stats.PairsTotal.Load(),
		"pruned", stats.PairsPruned.Load(),
		"evaluated", stats.PairsEvaluated.Load(),
		"failed", stats.PairsFailed.Load(),
		"synthesized", stats.Synthesized.Load(),
	)
	return stats, nil
}

// runBlock evaluates one template-batch × proposal-batch block in fixed
// traversal order, emitting one record per pair.
func (r *Runner) runBlock(
	ctx context.Context,
	ev *match.Evaluator,
	wc *cache.Cache,
	filters prune.Chain,
	ts, ps batch.Span,
	stats *RunStats,
) (int, error) {
	pairs := 0
	for i := ts.Start; i < ts.End; i++ {
		tpl := r.templates[i]
		for j := ps.Start; j < ps.End; j++ {
			if err := ctx.Err(); err != nil {
				return pairs, err
			}

			prop := r.proposals[j]
			outcome, err := r.evaluatePair(ctx, ev, wc, filters, i, tpl, j, prop, stats)
			if err != nil {
				return pairs, err
			}

			rec := model.PairRecord{TemplateTag: tpl.Tag, ProposalTag: prop.Tag, Outcome: outcome}
			if err := r.out.Write(rec); err != nil {
				return pairs, err
			}
			pairs++
			stats.RecordPair(outcome.Kind)
			r.collector.RecordPair(outcome.Kind)
		}
	}
	return pairs, nil
}

func (r *Runner) evaluatePair(
	ctx context.Context,
	ev *match.Evaluator,
	wc *cache.Cache,
	filters prune.Chain,
	ti int, tpl *model.Entity,
	pi int, prop *model.Entity,
	stats *RunStats,
) (model.Outcome, error) {
	if outcome, done := filters.Apply(tpl, prop); done {
		return outcome, nil
	}

	tplSig, err := r.resolve(ctx, wc, tpl, model.RoleTemplate, ti, stats)
	if err != nil {
		return model.Outcome{}, err
	}
	propSig, err := r.resolve(ctx, wc, prop, model.RoleProposal, pi, stats)
	if err != nil {
		return model.Outcome{}, err
	}

	tplSigma, err := ev.Sigma(tplSig)
	if err != nil {
		return model.Outcome{}, err
	}
	propSigma, err := ev.Sigma(propSig)
	if err != nil {
		return model.Outcome{}, err
	}

	if tplSig.Absent || propSig.Absent {
		return model.FailedOutcome(tplSigma, propSigma), nil
	}

	m, err := ev.Match(tplSig, propSig)
	if err != nil {
		return model.Outcome{}, err
	}
	return model.EvaluatedOutcome(m, tplSigma, propSigma), nil
}

// resolve fetches one side's signal through the cache, applying the
// tolerate-vs-abort policy to synthesis failures.
func (r *Runner) resolve(
	ctx context.Context,
	wc *cache.Cache,
	e *model.Entity,
	role model.Role,
	index int,
	stats *RunStats,
) (model.Signal, error) {
	sig, err := wc.GetOrSynthesize(ctx, e, role)
	if err == nil {
		return sig, nil
	}

	var synthErr *waveform.SynthesisError
	if !errors.As(err, &synthErr) {
		// Cancellation, memory budget and other infrastructure errors
		// are never tolerated.
		return model.Signal{}, err
	}

	// The cache re-returns a memoized failure on every pair touching the
	// entity; external collectors are only told the first time.
	if stats.noteSynthesisFailure(role, index) {
		r.collector.RecordSynthesisFailure(role, index)
	}

	if !r.cfg.TolerateFailures {
		return model.Signal{}, fmt.Errorf("banksim: %s %q: %w", role, e.Tag, err)
	}

	r.logger.Warn("synthesis failed, tolerating",
		"role", role.String(),
		"tag", string(e.Tag),
		"err", err,
	)
	return sig, nil
}

// buildEvaluator constructs the shared spectrum (unless one was injected)
// and the evaluator sized to the run's fixed geometry.
func (r *Runner) buildEvaluator() (*match.Evaluator, error) {
	bins := r.templateSpec.Bins()
	df := r.templateSpec.DeltaF()

	spectrum := model.Spectrum{}
	if r.spectrum != nil {
		spectrum = *r.spectrum
	} else {
		var err error
		spectrum, err = psd.FromModel(r.cfg.PSDModel, bins, df, r.cfg.FLow)
		if err != nil {
			return nil, &ConfigError{Field: "psd", cause: err}
		}
	}

	ev, err := match.NewEvaluator(spectrum, bins, r.cfg.FLow)
	if err != nil {
		return nil, &ConfigError{Field: "spectrum", cause: err}
	}
	return ev, nil
}
