package mediacache

import (
	"context"

	"github.com/hupe1980/mediacache/chunk"
)

// Stream reads one asset from a fixed offset.
type Stream struct {
	cursor    *chunk.Cursor
	start     int64
	hit       bool
	coalesced bool
}

// Read returns the next piece of data, io.EOF at the end, or the terminal
// fetch error (ErrNotFound or *FetchError).
func (s *Stream) Read(ctx context.Context) ([]byte, error) {
	return s.cursor.Read(ctx)
}

// Close releases the stream. The fetch keeps running for other readers.
func (s *Stream) Close() error {
	return s.cursor.Close()
}

// Start returns the asset offset of the first byte the stream yields.
func (s *Stream) Start() int64 { return s.start }

// Size returns the full size of the asset if the backend reported it.
func (s *Stream) Size() (int64, bool) {
	return s.cursor.Sequence().AllBytes()
}

// ContentType returns the content type reported by the backend, or "".
func (s *Stream) ContentType() string {
	return s.cursor.Sequence().ContentType()
}

// Key returns the cache key of the entry the stream reads.
func (s *Stream) Key() chunk.Key { return s.cursor.Sequence().Key() }

// Hit reports whether the entry was already cached.
func (s *Stream) Hit() bool { return s.hit }

// Coalesced reports whether a ranged request was served from the offset 0 entry.
func (s *Stream) Coalesced() bool { return s.coalesced }
