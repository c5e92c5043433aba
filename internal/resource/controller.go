package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// minBurst keeps a single read of a typical socket buffer within the bucket.
const minBurst = 256 * 1024

// Config holds resource limits.
type Config struct {
	// MaxConcurrentFetches is the maximum number of remote fetches streaming at once.
	// If 0, defaults to 4.
	MaxConcurrentFetches int64

	// BufferLimitBytes is the hard limit for bytes held in fetch accumulators.
	// If 0, no hard limit is enforced (only tracking).
	BufferLimitBytes int64

	// FetchBytesPerSec caps the combined remote read throughput.
	// If 0, unlimited.
	FetchBytesPerSec int64
}

// Controller manages the resources shared by fetch drivers.
type Controller struct {
	cfg Config

	fetchSem *semaphore.Weighted

	bufSem  *semaphore.Weighted // nil if unlimited
	bufUsed atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 4
	}

	c := &Controller{
		cfg:      cfg,
		fetchSem: semaphore.NewWeighted(cfg.MaxConcurrentFetches),
	}

	if cfg.BufferLimitBytes > 0 {
		c.bufSem = semaphore.NewWeighted(cfg.BufferLimitBytes)
	}

	if cfg.FetchBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.FetchBytesPerSec), max(int(cfg.FetchBytesPerSec), minBurst))
	}

	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireFetch reserves a fetch slot, blocking until one is free or ctx is done.
func (c *Controller) AcquireFetch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.fetchSem.Acquire(ctx, 1)
}

// TryAcquireFetch reserves a fetch slot without blocking.
func (c *Controller) TryAcquireFetch() bool {
	if c == nil {
		return true
	}
	return c.fetchSem.TryAcquire(1)
}

// ReleaseFetch releases a fetch slot.
func (c *Controller) ReleaseFetch() {
	if c == nil {
		return
	}
	c.fetchSem.Release(1)
}

// TryAcquireBuffer reserves accumulator memory without blocking.
func (c *Controller) TryAcquireBuffer(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.bufSem != nil && !c.bufSem.TryAcquire(bytes) {
		return false
	}
	c.bufUsed.Add(bytes)
	return true
}

// ReleaseBuffer releases reserved accumulator memory.
func (c *Controller) ReleaseBuffer(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.bufSem != nil {
		c.bufSem.Release(bytes)
	}
	c.bufUsed.Add(-bytes)
}

// BufferUsage returns the bytes currently held in accumulators.
func (c *Controller) BufferUsage() int64 {
	if c == nil {
		return 0
	}
	return c.bufUsed.Load()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, min(bytes, c.ioLimiter.Burst()))
}

// ioBurst returns the largest single read the limiter can admit, or 0 if unlimited.
func (c *Controller) ioBurst() int {
	if c == nil || c.ioLimiter == nil {
		return 0
	}
	return c.ioLimiter.Burst()
}
