package prune

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/banksim/model"
)

func entity(tag string, m1, m2 float64) *model.Entity {
	return &model.Entity{Tag: model.Tag(tag), Params: model.Params{Mass1: m1, Mass2: m2, Distance: 100}}
}

func TestMassWindow(t *testing.T) {
	c := Chain{MassWindow: 1.0}

	out, pruned := c.Apply(entity("t", 30, 25), entity("p", 10, 8))
	assert.True(t, pruned)
	assert.Equal(t, model.Pruned, out.Kind)

	_, pruned = c.Apply(entity("t", 30, 25), entity("p", 30, 25.5))
	assert.False(t, pruned, "nearby chirp masses survive the window")
}

func TestZeroWindowDisablesFilter(t *testing.T) {
	c := Chain{}

	_, pruned := c.Apply(entity("t", 30, 25), entity("p", 1, 1))
	assert.False(t, pruned)
}

func TestDurationWindow(t *testing.T) {
	c := Chain{DurationWindow: 0.5, FLow: 15}

	// A light system chirps for far longer than a heavy one.
	out, pruned := c.Apply(entity("t", 1.4, 1.4), entity("p", 30, 30))
	assert.True(t, pruned)
	assert.Equal(t, model.Pruned, out.Kind)

	_, pruned = c.Apply(entity("t", 30, 30), entity("p", 30, 29))
	assert.False(t, pruned)
}

func TestIdentityShortCircuit(t *testing.T) {
	c := Chain{MassWindow: 1.0, DurationWindow: 1.0, FLow: 15}
	e := entity("shared", 30, 25)
	alias := entity("shared", 30, 25)

	out, pruned := c.Apply(e, alias)
	assert.True(t, pruned)
	assert.Equal(t, model.SelfMatch, out.Kind)

	m, st, sp := out.Sentinels()
	assert.Equal(t, []float64{1, 1, 1}, []float64{m, st, sp})
}

func TestFilterOrderMassBeforeDuration(t *testing.T) {
	// Both windows would fire; the pair must be recorded as pruned by the
	// mass window without the duration proxy ever being consulted. The
	// observable contract is simply the pruned outcome.
	c := Chain{MassWindow: 0.1, DurationWindow: 1e-9, FLow: 15}

	out, pruned := c.Apply(entity("t", 1.4, 1.4), entity("p", 30, 30))
	assert.True(t, pruned)
	assert.Equal(t, model.Pruned, out.Kind)
}
