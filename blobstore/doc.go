// Package blobstore persists fetched media buffers as numbered blobs.
//
// Every blob is named by an [ID] taken from a durable, monotonically increasing
// counter ([IDAllocator]). IDs are never reused, not even across restarts, so a
// reference that outlives [Store.Remove] fails with [ErrNotFound] instead of
// returning another blob's bytes.
//
// # Built-in Implementations
//
//   - DiskStore: one file per blob under <root>/blobs, written via temp file and
//     rename, framed with optional LZ4/ZSTD compression and verified against a
//     content digest on read
//   - MemoryStore: in-memory store for tests
//
// # ID Allocators
//
//   - BoltAllocator: bbolt bucket sequence in <root>/ids.db (default)
//   - MemoryAllocator: process-local counter for tests
//   - redis.Allocator: INCR on a shared Redis key
//   - dynamodb.Allocator: atomic ADD on a DynamoDB item
//
// The on-disk state is a cache only. DiskStore deletes leftover blob files when
// it opens a directory, since no in-memory sequence can refer to them.
package blobstore
