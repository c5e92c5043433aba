package blobstore

import (
	"log/slog"

	"github.com/hupe1980/mediacache/internal/fs"
)

type diskOptions struct {
	fs           fs.FileSystem
	allocator    IDAllocator
	compression  Compression
	sync         bool
	purgeOnClose bool
	logger       *slog.Logger
}

// Option configures a DiskStore.
type Option func(*diskOptions)

// WithFileSystem replaces the filesystem used for blob files (tests inject fs.FaultyFS).
func WithFileSystem(f fs.FileSystem) Option {
	return func(o *diskOptions) {
		if f != nil {
			o.fs = f
		}
	}
}

// WithAllocator supplies the ID allocator. The store does not close it.
//
// If unset, DiskStore opens a BoltAllocator at <root>/ids.db and owns it.
func WithAllocator(a IDAllocator) Option {
	return func(o *diskOptions) {
		o.allocator = a
	}
}

// WithCompression frames new blobs with the given compression.
func WithCompression(c Compression) Option {
	return func(o *diskOptions) {
		o.compression = c
	}
}

// WithSync fsyncs every blob file before it is renamed into place.
func WithSync(enabled bool) Option {
	return func(o *diskOptions) {
		o.sync = enabled
	}
}

// WithPurgeOnClose controls whether Close removes blobs that are still live.
// Defaults to true.
func WithPurgeOnClose(enabled bool) Option {
	return func(o *diskOptions) {
		o.purgeOnClose = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *diskOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
