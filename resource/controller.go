// Package resource is the engine's pluggable execution context: it bounds
// the waveform cache's memory footprint, serializes run execution slots and
// throttles streaming output IO. A Controller is acquired once per run and
// released on every exit path, including early empty-collection exits and
// propagated synthesis errors.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// CacheMemoryBytes is the hard limit for cached signal memory.
	// If 0, usage is tracked but not enforced.
	CacheMemoryBytes int64

	// MaxConcurrentRuns is the number of run execution slots.
	// If 0, defaults to 1.
	MaxConcurrentRuns int64

	// IOLimitBytesPerSec is the maximum throughput of the streaming sink.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages the run's shared resources (memory, execution slots, IO).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Execution slots
	runSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}

	c := &Controller{
		cfg:    cfg,
		runSem: semaphore.NewWeighted(cfg.MaxConcurrentRuns),
	}

	if cfg.CacheMemoryBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.CacheMemoryBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireRun reserves an execution slot for the lifetime of one run.
// It blocks until a slot is free or ctx is canceled. The returned release
// function is safe to call exactly once and must run on every exit path.
func (c *Controller) AcquireRun(ctx context.Context) (release func(), err error) {
	if err := c.runSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.runSem.Release(1) }, nil
}

// TryAcquireMemory attempts to reserve cache memory without blocking.
// Returns false if the hard limit would be exceeded; the caller treats
// that as a configuration error (batch sizes too large for the budget),
// never as a reason to skip caching.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved cache memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current cache memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
