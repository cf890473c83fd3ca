// Package cache memoizes synthesized waveforms by entity Tag.
//
// The cache guarantees at-most-once synthesis per Tag for the lifetime of
// a run: a hit never re-invokes the synthesizer, and failed syntheses are
// memoized as the absent sentinel alongside their original error. The run
// driver clears the cache between outer batches, which is what keeps the
// resident set bounded; clearing is a memory policy, not a correctness
// requirement.
//
// The cache is safe for concurrent use. Per-Tag singleflight ensures that
// a parallel execution backend still observes at-most-once synthesis.
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/banksim/model"
	"github.com/hupe1980/banksim/resource"
	"github.com/hupe1980/banksim/waveform"
)

// ErrMemoryBudget is returned when caching a signal would exceed the
// resource controller's hard memory limit. It indicates batch sizes too
// large for the configured budget and is fatal to the run.
var ErrMemoryBudget = errors.New("cache: signal memory budget exceeded, reduce batch sizes")

type entry struct {
	sig model.Signal
	err error // original synthesis error for absent entries
}

// Cache memoizes signals keyed by Tag. Role selects the generation spec;
// since a Tag belongs to exactly one collection, a cached signal is valid
// regardless of which role later requests it.
type Cache struct {
	synth        waveform.Synthesizer
	templateSpec waveform.GenSpec
	proposalSpec waveform.GenSpec
	rc           *resource.Controller

	mu      sync.RWMutex
	entries map[model.Tag]entry
	group   singleflight.Group

	hits        atomic.Int64
	synthesized atomic.Int64
}

// New creates a cache backed by the given synthesizer and generation specs
// for the two roles. rc may be nil for unbounded memory.
func New(synth waveform.Synthesizer, templateSpec, proposalSpec waveform.GenSpec, rc *resource.Controller) *Cache {
	return &Cache{
		synth:        synth,
		templateSpec: templateSpec,
		proposalSpec: proposalSpec,
		rc:           rc,
		entries:      make(map[model.Tag]entry),
	}
}

// GetOrSynthesize returns the entity's signal, synthesizing it on first
// request. On synthesis failure the absent sentinel is memoized and the
// original error is returned on this and every subsequent request for the
// Tag; the caller decides tolerate-vs-abort. Context cancellation is not
// memoized.
func (c *Cache) GetOrSynthesize(ctx context.Context, e *model.Entity, role model.Role) (model.Signal, error) {
	c.mu.RLock()
	ent, ok := c.entries[e.Tag]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return ent.sig, ent.err
	}

	v, err, _ := c.group.Do(string(e.Tag), func() (any, error) {
		// Re-check under the flight: a previous flight may have stored
		// the entry between our read and this call.
		c.mu.RLock()
		ent, ok := c.entries[e.Tag]
		c.mu.RUnlock()
		if ok {
			c.hits.Add(1)
			return ent, nil
		}

		spec := c.templateSpec
		if role == model.RoleProposal {
			spec = c.proposalSpec
		}

		sig, synthErr := c.synth.Synthesize(ctx, e.Params, spec)
		if synthErr != nil {
			if errors.Is(synthErr, context.Canceled) || errors.Is(synthErr, context.DeadlineExceeded) {
				return entry{}, synthErr
			}
			ent = entry{sig: model.AbsentSignal(), err: synthErr}
		} else {
			if !c.rc.TryAcquireMemory(sig.SizeBytes()) {
				return entry{}, ErrMemoryBudget
			}
			ent = entry{sig: sig}
		}

		c.synthesized.Add(1)
		c.mu.Lock()
		c.entries[e.Tag] = ent
		c.mu.Unlock()
		return ent, nil
	})
	if err != nil {
		return model.Signal{}, err
	}

	ent = v.(entry)
	return ent.sig, ent.err
}

// Clear drops every cached signal and returns its memory to the
// controller. The driver calls it between outer batch iterations.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ent := range c.entries {
		if !ent.sig.Absent {
			c.rc.ReleaseMemory(ent.sig.SizeBytes())
		}
	}
	c.entries = make(map[model.Tag]entry)
}

// Len returns the number of memoized Tags (absent entries included).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Hits returns the number of requests served without synthesis.
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Synthesized returns the number of synthesis attempts (failures included).
func (c *Cache) Synthesized() int64 { return c.synthesized.Load() }
