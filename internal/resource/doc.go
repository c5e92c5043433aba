// Package resource bounds the work the cache does on behalf of remote fetches.
//
// A single Controller governs three resources shared by every fetch driver:
//
//   - Fetch slots: how many remote fetches stream concurrently (blocking)
//   - Buffer memory: bytes held in fetch accumulators before they are flushed
//     to the blob store (non-blocking, fail-fast)
//   - IO rate: a token bucket over bytes pulled from the remote backend
//
// # Fetch Slots
//
//	rc := resource.NewController(resource.Config{MaxConcurrentFetches: 4})
//	if err := rc.AcquireFetch(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseFetch()
//
// # Buffer Memory
//
// TryAcquireBuffer never blocks. A fetch driver that is denied memory flushes
// what it has accumulated instead of waiting:
//
//	if !rc.TryAcquireBuffer(int64(n)) {
//	    flush()
//	}
//
// # IO Rate Limiting
//
//	body = resource.NewRateLimitedReader(ctx, body, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
