package mediacache

import (
	"log/slog"

	"github.com/hupe1980/mediacache/blobstore"
	"github.com/hupe1980/mediacache/chunk"
	"github.com/hupe1980/mediacache/fetch"
	"github.com/hupe1980/mediacache/internal/resource"
)

type options struct {
	capacity         int
	flushThreshold   int
	resources        resource.Config
	blobStore        blobstore.Store
	cacheDir         string
	blobOptions      []blobstore.Option
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Service.
type Option func(*options)

// WithCacheCapacity sets how many (asset, offset) entries the cache keeps.
// Defaults to 4.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithFlushThreshold sets how many fetched bytes are accumulated before
// they are written out as one chunk. Defaults to 16 MiB.
func WithFlushThreshold(n int) Option {
	return func(o *options) {
		o.flushThreshold = n
	}
}

// WithMaxConcurrentFetches bounds the number of remote fetches streaming at
// once. Further fetches wait for a slot. Defaults to 4.
func WithMaxConcurrentFetches(n int64) Option {
	return func(o *options) {
		o.resources.MaxConcurrentFetches = n
	}
}

// WithBufferLimit caps the bytes held in fetch accumulators across all
// drivers. A driver that cannot reserve more memory flushes early.
func WithBufferLimit(bytes int64) Option {
	return func(o *options) {
		o.resources.BufferLimitBytes = bytes
	}
}

// WithFetchRate caps the combined remote read throughput in bytes per second.
func WithFetchRate(bytesPerSec int64) Option {
	return func(o *options) {
		o.resources.FetchBytesPerSec = bytesPerSec
	}
}

// WithCacheDir stores chunk data in a DiskStore rooted at dir.
//
// Example:
//
//	svc, _ := mediacache.New(backend,
//	    mediacache.WithCacheDir("/var/cache/mediacache",
//	        blobstore.WithCompression(blobstore.CompressionZSTD),
//	    ),
//	)
func WithCacheDir(dir string, optFns ...blobstore.Option) Option {
	return func(o *options) {
		o.cacheDir = dir
		o.blobOptions = optFns
	}
}

// WithBlobStore uses store for chunk data. The service does not close it.
// Takes precedence over WithCacheDir.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) {
		o.blobStore = store
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mediacache.BasicMetricsCollector{}
//	svc, _ := mediacache.New(backend, mediacache.WithMetricsCollector(metrics))
//	// ... serve ...
//	stats := metrics.GetStats()
//	fmt.Printf("hits: %d, misses: %d\n", stats.Hits, stats.Misses)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		capacity:         chunk.DefaultCapacity,
		flushThreshold:   fetch.DefaultFlushThreshold,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
