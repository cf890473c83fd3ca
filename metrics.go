package banksim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/banksim/model"
)

// StatsCollector observes run progress. Implement this interface to
// integrate with external monitoring; the engine also keeps its own
// RunStats regardless of what is injected.
type StatsCollector interface {
	// RecordPair is called once per emitted pair record.
	RecordPair(kind model.OutcomeKind)

	// RecordBatch is called after each template-batch × proposal-batch
	// block completes. pairs is the number of records the block emitted.
	RecordBatch(templateBatch, proposalBatch, pairs int, duration time.Duration)

	// RecordSynthesisFailure is called once per entity whose signal could
	// not be produced, on the first pair that observes the failure. index
	// is the entity's position within its collection.
	RecordSynthesisFailure(role model.Role, index int)
}

// NoopStatsCollector is a no-op implementation of StatsCollector.
type NoopStatsCollector struct{}

func (NoopStatsCollector) RecordPair(model.OutcomeKind)             {}
func (NoopStatsCollector) RecordBatch(int, int, int, time.Duration) {}
func (NoopStatsCollector) RecordSynthesisFailure(model.Role, int)   {}

// RunStats accumulates run counters in memory. It implements
// StatsCollector and is safe for concurrent use.
type RunStats struct {
	PairsTotal     atomic.Int64
	PairsPruned    atomic.Int64
	PairsSelf      atomic.Int64
	PairsEvaluated atomic.Int64
	PairsFailed    atomic.Int64

	Batches     atomic.Int64
	BatchNanos  atomic.Int64
	CacheHits   atomic.Int64
	Synthesized atomic.Int64

	mu              sync.Mutex
	failedTemplates *roaring.Bitmap
	failedProposals *roaring.Bitmap
}

// NewRunStats creates an empty RunStats.
func NewRunStats() *RunStats {
	return &RunStats{
		failedTemplates: roaring.New(),
		failedProposals: roaring.New(),
	}
}

// RecordPair implements StatsCollector.
func (s *RunStats) RecordPair(kind model.OutcomeKind) {
	s.PairsTotal.Add(1)
	switch kind {
	case model.Pruned:
		s.PairsPruned.Add(1)
	case model.SelfMatch:
		s.PairsSelf.Add(1)
	case model.EvaluationFailed:
		s.PairsFailed.Add(1)
	case model.Evaluated:
		s.PairsEvaluated.Add(1)
	}
}

// RecordBatch implements StatsCollector.
func (s *RunStats) RecordBatch(_, _, _ int, d time.Duration) {
	s.Batches.Add(1)
	s.BatchNanos.Add(int64(d))
}

// RecordSynthesisFailure implements StatsCollector.
func (s *RunStats) RecordSynthesisFailure(role model.Role, index int) {
	s.noteSynthesisFailure(role, index)
}

// noteSynthesisFailure records the failed entity and reports whether this
// is the first failure observed for it. The driver uses the result to
// notify external collectors exactly once per entity.
func (s *RunStats) noteSynthesisFailure(role model.Role, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == model.RoleTemplate {
		return s.failedTemplates.CheckedAdd(uint32(index))
	}
	return s.failedProposals.CheckedAdd(uint32(index))
}

// FailedTemplates returns the indices of template entities whose synthesis
// failed, in ascending order.
func (s *RunStats) FailedTemplates() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedTemplates.ToArray()
}

// FailedProposals returns the indices of proposal entities whose synthesis
// failed, in ascending order.
func (s *RunStats) FailedProposals() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedProposals.ToArray()
}
