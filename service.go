package mediacache

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/mediacache/blobstore"
	"github.com/hupe1980/mediacache/chunk"
	"github.com/hupe1980/mediacache/fetch"
	"github.com/hupe1980/mediacache/internal/resource"
	"github.com/hupe1980/mediacache/storage"
)

// Service owns the chunk cache, the blob store and the fetch drivers for one
// storage backend.
type Service struct {
	backend storage.Backend
	store   blobstore.Store
	closer  io.Closer // non-nil if the service opened the store
	cache   *chunk.Cache
	driver  *fetch.Driver
	rc      *resource.Controller
	logger  *Logger
	metrics MetricsCollector

	// ctx outlives every request; drivers run on it.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// New creates a Service reading from backend.
//
// Without WithCacheDir or WithBlobStore, chunk data is kept in memory.
func New(backend storage.Backend, optFns ...Option) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("mediacache: nil backend")
	}
	o := applyOptions(optFns)

	s := &Service{
		backend: backend,
		logger:  o.logger,
		metrics: o.metricsCollector,
		rc:      resource.NewController(o.resources),
	}

	switch {
	case o.blobStore != nil:
		s.store = o.blobStore
	case o.cacheDir != "":
		blobOpts := append([]blobstore.Option{blobstore.WithLogger(o.logger.Logger)}, o.blobOptions...)
		ds, err := blobstore.OpenDiskStore(o.cacheDir, blobOpts...)
		if err != nil {
			return nil, fmt.Errorf("mediacache: open blob store: %w", err)
		}
		s.store = ds
		s.closer = ds
	default:
		o.logger.Warn("no cache directory configured, keeping chunks in memory")
		s.store = blobstore.NewMemoryStore()
	}

	s.cache = chunk.NewCache(s.store,
		chunk.WithCapacity(o.capacity),
		chunk.WithLogger(o.logger.Logger),
		chunk.WithEvictionHook(s.onEvict),
	)
	s.driver = fetch.New(backend,
		fetch.WithFlushThreshold(o.flushThreshold),
		fetch.WithResourceController(s.rc),
		fetch.WithLogger(o.logger.Logger),
		fetch.WithObserver(s.onFetch),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	return s, nil
}

// Backend returns the storage backend the service reads from.
func (s *Service) Backend() storage.Backend {
	return s.backend
}

// Acquire returns a stream over asset starting at offset. path locates the
// asset in the backend.
//
// A request at offset 0 reads the (asset, 0) entry. A request at offset N
// reuses the (asset, 0) entry when it has already buffered at least N bytes,
// and otherwise reads the (asset, N) entry. The first request that misses an
// entry starts its fetch.
//
// The caller must Close the stream.
func (s *Service) Acquire(ctx context.Context, asset, path string, offset int64) (*Stream, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if offset > 0 {
		if head, ok := s.cache.Lookup(chunk.Key{Asset: asset}); ok {
			defer head.Release()
			if head.CurrentBytes() >= offset {
				s.metrics.RecordLookup(true)
				return s.stream(head, offset, offset, true, true)
			}
		}
	}

	key := chunk.Key{Asset: asset, Offset: offset}
	seq, hit := s.cache.GetOrCreate(key)
	defer seq.Release()
	s.metrics.RecordLookup(hit)

	if !hit {
		s.logger.WithAsset(asset).DebugContext(ctx, "cache miss, starting fetch", "path", path, "offset", offset)
		if err := s.driver.Start(s.ctx, seq, path); err != nil {
			return nil, err
		}
	}
	return s.stream(seq, 0, offset, hit, false)
}

func (s *Service) stream(seq *chunk.Sequence, skip, start int64, hit, coalesced bool) (*Stream, error) {
	cur, err := seq.Cursor(skip)
	if err != nil {
		return nil, err
	}
	return &Stream{cursor: cur, start: start, hit: hit, coalesced: coalesced}, nil
}

// Invalidate drops every cached offset of asset so the next request fetches
// it again. Readers already streaming keep their data.
func (s *Service) Invalidate(asset string) int {
	n := s.cache.Invalidate(asset)
	if n > 0 {
		s.logger.WithAsset(asset).Info("cache invalidated", "entries", n)
	}
	return n
}

// Stats describes the current state of the service.
type Stats struct {
	Cache       chunk.CacheStats  `json:"cache"`
	Entries     []chunk.EntryInfo `json:"entries"`
	Blobs       *blobstore.Stats  `json:"blobs,omitempty"`
	BufferBytes int64             `json:"buffer_bytes"`
}

// Stats returns a snapshot of cache and blob store state.
func (s *Service) Stats() Stats {
	st := Stats{
		Cache:       s.cache.Stats(),
		Entries:     s.cache.Entries(),
		BufferBytes: s.rc.BufferUsage(),
	}
	if bs, ok := s.store.(interface{ Stats() blobstore.Stats }); ok {
		blobs := bs.Stats()
		st.Blobs = &blobs
	}
	return st
}

func (s *Service) onEvict(key chunk.Key, reason chunk.EvictReason) {
	s.metrics.RecordEviction(reason.String())
	s.logger.LogEviction(context.Background(), key, reason)
}

func (s *Service) onFetch(res fetch.Result) {
	s.metrics.RecordFetch(res.Bytes, res.Duration, res.Err)
	s.logger.LogFetch(context.Background(), res.Key, res.Path, res.Bytes, res.Duration, res.Err)
}
