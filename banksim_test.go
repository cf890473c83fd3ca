package banksim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/banksim/blobstore"
	"github.com/hupe1980/banksim/model"
	"github.com/hupe1980/banksim/psd"
	"github.com/hupe1980/banksim/sink"
	"github.com/hupe1980/banksim/waveform"
)

// Small fixed geometry so driver tests stay fast: 64 samples at 64 Hz,
// 33 bins at 1 Hz resolution, band starting at 15 Hz.
var testCfg = Config{
	TemplateBatchSize: 100,
	ProposalBatchSize: 100,
	DisableMassWindow: true,
	FLow:              15,
	Duration:          1,
	SampleRate:        64,
	PSDModel:          psd.ModelFlat,
}

// fakeSynth deterministically fills the band from an entity's Mass1 and
// fails (once per tag, via the cache) when Mass1 is negative.
type fakeSynth struct {
	calls atomic.Int64
}

var errUnphysical = errors.New("unphysical parameters")

func (s *fakeSynth) Synthesize(_ context.Context, p model.Params, spec waveform.GenSpec) (model.Signal, error) {
	s.calls.Add(1)
	if p.Mass1 < 0 {
		return model.Signal{}, waveform.NewSynthesisError(spec.Method, p, errUnphysical)
	}

	data := make([]complex128, spec.Bins())
	for k := 15; k < spec.Bins(); k++ {
		phase := p.Mass1 * float64(k) / 10
		data[k] = complex(p.Mass1, phase)
	}
	return model.Signal{Data: data, Df: spec.DeltaF()}, nil
}

func entity(tagName string, m1 float64) *model.Entity {
	return &model.Entity{Tag: model.Tag(tagName), Params: model.Params{Mass1: m1, Mass2: m1, Distance: 1}}
}

// runToBuffer runs a configured runner into a buffered memory sink and
// returns the stats, the artifact lines and the run error.
func runToBuffer(t *testing.T, cfg Config, templates, proposals []*model.Entity, opts ...Option) (*RunStats, []string, error) {
	t.Helper()

	store := blobstore.NewMemStore()
	out := sink.NewBuffered(store, "results.dat")
	defer out.Close()

	runner, err := New(cfg, templates, proposals, out, opts...)
	require.NoError(t, err)

	stats, runErr := runner.Run(context.Background())

	data, _ := store.Get("results.dat")
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(data) == 0 {
		lines = nil
	}
	return stats, lines, runErr
}

func TestRunEmitsOneRecordPerPair(t *testing.T) {
	templates := []*model.Entity{entity("bank:0", 10), entity("bank:1", 20), entity("bank:2", 30)}
	proposals := []*model.Entity{entity("sim:0", 11), entity("sim:1", 21)}

	synth := &fakeSynth{}
	stats, lines, err := runToBuffer(t, testCfg, templates, proposals, WithSynthesizer(synth))
	require.NoError(t, err)

	require.Len(t, lines, 6, "exactly |templates| x |proposals| records")
	assert.Equal(t, int64(6), stats.PairsTotal.Load())

	// Traversal order is fixed: template-major within the single batch.
	assert.True(t, strings.HasPrefix(lines[0], "bank:0\tsim:0\t"))
	assert.True(t, strings.HasPrefix(lines[1], "bank:0\tsim:1\t"))
	assert.True(t, strings.HasPrefix(lines[5], "bank:2\tsim:1\t"))
}

func TestRunAliasedEntityScenario(t *testing.T) {
	// Two templates and one proposal that aliases the first template's
	// tag, with both windows disabled: the self pair must be (1,1,1)
	// and the cross pair a true evaluation.
	t1 := entity("shared", 10)
	t2 := entity("bank:1", 12)
	p1 := &model.Entity{Tag: "shared", Params: t1.Params}

	stats, lines, err := runToBuffer(t, testCfg, []*model.Entity{t1, t2}, []*model.Entity{p1},
		WithSynthesizer(&fakeSynth{}))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "shared\tshared\t1\t1\t1", lines[0])
	assert.Equal(t, int64(1), stats.PairsSelf.Load())

	fields := strings.Split(lines[1], "\t")
	require.Len(t, fields, 5)
	assert.Equal(t, "bank:1", fields[0])
	var m float64
	_, scanErr := fmt.Sscanf(fields[2], "%g", &m)
	require.NoError(t, scanErr)
	assert.GreaterOrEqual(t, m, -1.0)
	assert.LessOrEqual(t, m, 1.0)
}

func TestRunPruningSkipsSynthesis(t *testing.T) {
	cfg := testCfg
	cfg.DisableMassWindow = false
	cfg.MassWindow = 0.5

	// Chirp masses differ by far more than the window for every pair.
	templates := []*model.Entity{entity("bank:0", 5)}
	proposals := []*model.Entity{entity("sim:0", 50)}

	synth := &fakeSynth{}
	stats, lines, err := runToBuffer(t, cfg, templates, proposals, WithSynthesizer(synth))
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, "bank:0\tsim:0\t-1\t0\t0", lines[0])
	assert.Equal(t, int64(1), stats.PairsPruned.Load())
	assert.Zero(t, synth.calls.Load(), "pruned pairs must not synthesize")
}

func TestRunSynthesizesAtMostOncePerTag(t *testing.T) {
	templates := []*model.Entity{entity("bank:0", 10), entity("bank:1", 20)}
	proposals := []*model.Entity{entity("sim:0", 11), entity("sim:1", 21), entity("sim:2", 31)}

	synth := &fakeSynth{}
	stats, lines, err := runToBuffer(t, testCfg, templates, proposals, WithSynthesizer(synth))
	require.NoError(t, err)

	require.Len(t, lines, 6)
	assert.Equal(t, int64(5), synth.calls.Load(), "one synthesis per distinct tag")
	assert.Equal(t, int64(5), stats.Synthesized.Load())
	assert.Equal(t, int64(7), stats.CacheHits.Load(), "12 signal resolutions, 5 misses")
}

func TestRunToleranceEnabled(t *testing.T) {
	cfg := testCfg
	cfg.TolerateFailures = true

	templates := []*model.Entity{entity("bank:0", 10), entity("bank:1", -1)}
	proposals := []*model.Entity{entity("sim:0", 11), entity("sim:1", 21)}

	synth := &fakeSynth{}
	stats, lines, err := runToBuffer(t, cfg, templates, proposals, WithSynthesizer(synth))
	require.NoError(t, err)
	require.Len(t, lines, 4)

	// Every pair involving the failing template takes the -2 path with
	// -1 on its side; the proposal side's sigma is still reported.
	assert.True(t, strings.HasPrefix(lines[2], "bank:1\tsim:0\t-2\t-1\t"))
	assert.True(t, strings.HasPrefix(lines[3], "bank:1\tsim:1\t-2\t-1\t"))
	assert.NotContains(t, lines[2], "\t-2\t-1\t-1", "present side keeps its computed norm")

	assert.Equal(t, int64(2), stats.PairsFailed.Load())
	assert.Equal(t, int64(2), stats.PairsEvaluated.Load())
	assert.Equal(t, []uint32{1}, stats.FailedTemplates())
	assert.Empty(t, stats.FailedProposals())
	assert.Equal(t, int64(4), synth.calls.Load(), "failure is memoized, not retried")
}

// countingCollector counts StatsCollector callbacks.
type countingCollector struct {
	NoopStatsCollector
	failures atomic.Int64
}

func (c *countingCollector) RecordSynthesisFailure(model.Role, int) {
	c.failures.Add(1)
}

func TestRunNotifiesCollectorOncePerFailedEntity(t *testing.T) {
	cfg := testCfg
	cfg.TolerateFailures = true

	// The failing template participates in three pairs; the collector must
	// hear about it once, even though every pair resolves the memoized
	// failure again.
	templates := []*model.Entity{entity("bank:0", -1)}
	proposals := []*model.Entity{entity("sim:0", 11), entity("sim:1", 21), entity("sim:2", 31)}

	collector := &countingCollector{}
	stats, lines, err := runToBuffer(t, cfg, templates, proposals,
		WithSynthesizer(&fakeSynth{}), WithStatsCollector(collector))
	require.NoError(t, err)

	require.Len(t, lines, 3)
	assert.Equal(t, int64(3), stats.PairsFailed.Load())
	assert.Equal(t, []uint32{0}, stats.FailedTemplates())
	assert.Equal(t, int64(1), collector.failures.Load(), "one notification per failed entity")
}

func TestRunToleranceDisabledAborts(t *testing.T) {
	templates := []*model.Entity{entity("bank:0", -1)}
	proposals := []*model.Entity{entity("sim:0", 11)}

	_, lines, err := runToBuffer(t, testCfg, templates, proposals, WithSynthesizer(&fakeSynth{}))
	require.ErrorIs(t, err, errUnphysical)

	var se *waveform.SynthesisError
	assert.True(t, errors.As(err, &se), "the propagated error identifies the entity")
	assert.Empty(t, lines, "nothing flushed after an abort")
}

func TestRunEmptyCollectionEarlyExit(t *testing.T) {
	store := blobstore.NewMemStore()
	out := sink.NewBuffered(store, "results.dat")

	synth := &fakeSynth{}
	runner, err := New(testCfg, nil, []*model.Entity{entity("sim:0", 10)}, out, WithSynthesizer(synth))
	require.NoError(t, err)

	stats, err := runner.Run(context.Background())
	require.NoError(t, err)

	data, ok := store.Get("results.dat")
	require.True(t, ok, "empty artifact is still created")
	assert.Empty(t, data)
	assert.Zero(t, stats.PairsTotal.Load())
	assert.Zero(t, synth.calls.Load())
}

func TestRunDeterminism(t *testing.T) {
	templates := []*model.Entity{entity("bank:0", 10), entity("bank:1", 20)}
	proposals := []*model.Entity{entity("sim:0", 11), entity("sim:1", 21)}

	var artifacts [][]byte
	for i := 0; i < 2; i++ {
		store := blobstore.NewMemStore()
		out := sink.NewBuffered(store, "results.dat")
		runner, err := New(testCfg, templates, proposals, out, WithSynthesizer(&fakeSynth{}))
		require.NoError(t, err)
		_, err = runner.Run(context.Background())
		require.NoError(t, err)

		data, _ := store.Get("results.dat")
		artifacts = append(artifacts, data)
	}

	assert.True(t, bytes.Equal(artifacts[0], artifacts[1]), "identical runs produce byte-identical output")
}

func TestRunSmallBatchesCoverAllPairs(t *testing.T) {
	cfg := testCfg
	cfg.TemplateBatchSize = 2
	cfg.ProposalBatchSize = 2

	var templates, proposals []*model.Entity
	for i := 0; i < 5; i++ {
		templates = append(templates, entity(fmt.Sprintf("bank:%d", i), float64(10+i)))
	}
	for i := 0; i < 3; i++ {
		proposals = append(proposals, entity(fmt.Sprintf("sim:%d", i), float64(11+i)))
	}

	stats, lines, err := runToBuffer(t, cfg, templates, proposals, WithSynthesizer(&fakeSynth{}))
	require.NoError(t, err)

	assert.Len(t, lines, 15)
	assert.Equal(t, int64(15), stats.PairsTotal.Load())
	assert.Equal(t, int64(6), stats.Batches.Load(), "3 template spans x 2 proposal spans")

	seen := make(map[string]bool)
	for _, line := range lines {
		f := strings.SplitN(line, "\t", 3)
		seen[f[0]+"|"+f[1]] = true
	}
	assert.Len(t, seen, 15, "every pair exactly once")
}

func TestNewValidation(t *testing.T) {
	out := sink.NewBuffered(blobstore.NewMemStore(), "r.dat")

	t.Run("nil sink", func(t *testing.T) {
		_, err := New(testCfg, nil, nil, nil)
		require.ErrorIs(t, err, ErrNilSink)
	})

	t.Run("tag collision", func(t *testing.T) {
		_, err := New(testCfg, []*model.Entity{entity("x", 1), entity("x", 2)}, nil, out)
		require.Error(t, err)
	})

	t.Run("negative window", func(t *testing.T) {
		cfg := testCfg
		// testCfg disables the mass window; the raw negative value must
		// still be rejected before the disable override zeroes it.
		cfg.MassWindow = -1
		_, err := New(cfg, nil, nil, out)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("negative duration window", func(t *testing.T) {
		cfg := testCfg
		cfg.DurationWindow = -1
		_, err := New(cfg, nil, nil, out)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("unknown psd model", func(t *testing.T) {
		cfg := testCfg
		cfg.PSDModel = "nope"
		runner, err := New(cfg, []*model.Entity{entity("a", 1)}, []*model.Entity{entity("b", 2)}, out)
		require.NoError(t, err)
		_, err = runner.Run(context.Background())
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
	})
}

func TestRunWithRealSPA(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping SPA integration run")
	}

	cfg := Config{
		DisableMassWindow: true,
		FLow:              15,
		Duration:          32,
		SampleRate:        1024,
		PSDModel:          psd.ModelFlat,
	}

	tpl := &model.Entity{Tag: "bank:0", Params: model.Params{Mass1: 30, Mass2: 25, Distance: 400}}
	alias := &model.Entity{Tag: "bank:0", Params: tpl.Params}
	other := &model.Entity{Tag: "sim:1", Params: model.Params{Mass1: 14, Mass2: 9, Distance: 400}}

	_, lines, err := runToBuffer(t, cfg, []*model.Entity{tpl}, []*model.Entity{alias, other})
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "bank:0\tbank:0\t1\t1\t1", lines[0])

	fields := strings.Split(lines[1], "\t")
	var m float64
	_, scanErr := fmt.Sscanf(fields[2], "%g", &m)
	require.NoError(t, scanErr)
	assert.Greater(t, m, 0.0)
	assert.Less(t, m, 0.99)
}
