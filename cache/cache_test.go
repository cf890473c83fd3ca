package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/banksim/model"
	"github.com/hupe1980/banksim/resource"
	"github.com/hupe1980/banksim/waveform"
)

// countingSynth is a fake synthesizer that counts invocations per call and
// fails for entities whose Mass1 is negative.
type countingSynth struct {
	calls atomic.Int64
	bins  int
}

var errBoom = errors.New("boom")

func (s *countingSynth) Synthesize(ctx context.Context, p model.Params, spec waveform.GenSpec) (model.Signal, error) {
	if err := ctx.Err(); err != nil {
		return model.Signal{}, err
	}
	s.calls.Add(1)
	if p.Mass1 < 0 {
		return model.Signal{}, waveform.NewSynthesisError(spec.Method, p, errBoom)
	}
	data := make([]complex128, s.bins)
	data[0] = complex(p.Mass1, 0)
	return model.Signal{Data: data, Df: spec.DeltaF()}, nil
}

var testSpec = waveform.GenSpec{Method: "fake", FLow: 15, DeltaT: 1.0 / 256, SampleCount: 256}

func newTestCache(rc *resource.Controller) (*Cache, *countingSynth) {
	synth := &countingSynth{bins: testSpec.Bins()}
	return New(synth, testSpec, testSpec, rc), synth
}

func TestGetOrSynthesizeMemoizes(t *testing.T) {
	c, synth := newTestCache(nil)
	ctx := context.Background()
	e := &model.Entity{Tag: "bank:0", Params: model.Params{Mass1: 10}}

	sig1, err := c.GetOrSynthesize(ctx, e, model.RoleTemplate)
	require.NoError(t, err)

	sig2, err := c.GetOrSynthesize(ctx, e, model.RoleTemplate)
	require.NoError(t, err)

	assert.Equal(t, int64(1), synth.calls.Load(), "at most one synthesis per tag")
	assert.Equal(t, int64(1), c.Hits())
	assert.Equal(t, &sig1.Data[0], &sig2.Data[0], "hit returns the stored signal")
}

func TestFailureIsMemoizedAsAbsent(t *testing.T) {
	c, synth := newTestCache(nil)
	ctx := context.Background()
	e := &model.Entity{Tag: "bank:1", Params: model.Params{Mass1: -1}}

	sig, err := c.GetOrSynthesize(ctx, e, model.RoleProposal)
	require.ErrorIs(t, err, errBoom)
	assert.True(t, sig.Absent)

	// Subsequent requests return the memoized sentinel and original
	// error without re-synthesizing.
	sig, err = c.GetOrSynthesize(ctx, e, model.RoleProposal)
	require.ErrorIs(t, err, errBoom)
	assert.True(t, sig.Absent)
	assert.Equal(t, int64(1), synth.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCancellationIsNotMemoized(t *testing.T) {
	c, synth := newTestCache(nil)
	e := &model.Entity{Tag: "bank:2", Params: model.Params{Mass1: 10}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOrSynthesize(ctx, e, model.RoleTemplate)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Len())

	// A later request with a live context synthesizes normally.
	_, err = c.GetOrSynthesize(context.Background(), e, model.RoleTemplate)
	require.NoError(t, err)
	assert.Equal(t, int64(1), synth.calls.Load())
}

func TestClearReleasesMemory(t *testing.T) {
	rc := resource.NewController(resource.Config{CacheMemoryBytes: 1 << 20})
	c, _ := newTestCache(rc)
	ctx := context.Background()

	_, err := c.GetOrSynthesize(ctx, &model.Entity{Tag: "a", Params: model.Params{Mass1: 1}}, model.RoleTemplate)
	require.NoError(t, err)
	_, err = c.GetOrSynthesize(ctx, &model.Entity{Tag: "b", Params: model.Params{Mass1: 2}}, model.RoleProposal)
	require.NoError(t, err)

	perSignal := int64(testSpec.Bins()) * 16
	assert.Equal(t, 2*perSignal, rc.MemoryUsage())

	c.Clear()
	assert.Equal(t, int64(0), rc.MemoryUsage())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryBudgetExceeded(t *testing.T) {
	// Budget fits one signal but not two.
	perSignal := int64(testSpec.Bins()) * 16
	rc := resource.NewController(resource.Config{CacheMemoryBytes: perSignal + 1})
	c, _ := newTestCache(rc)
	ctx := context.Background()

	_, err := c.GetOrSynthesize(ctx, &model.Entity{Tag: "a", Params: model.Params{Mass1: 1}}, model.RoleTemplate)
	require.NoError(t, err)

	_, err = c.GetOrSynthesize(ctx, &model.Entity{Tag: "b", Params: model.Params{Mass1: 2}}, model.RoleTemplate)
	require.ErrorIs(t, err, ErrMemoryBudget)
}

func TestConcurrentSingleSynthesis(t *testing.T) {
	c, synth := newTestCache(nil)
	e := &model.Entity{Tag: "hot", Params: model.Params{Mass1: 10}}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrSynthesize(context.Background(), e, model.RoleTemplate)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), synth.calls.Load(), "singleflight collapses concurrent misses")
}
