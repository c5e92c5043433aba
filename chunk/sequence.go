package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"weak"

	"github.com/hupe1980/mediacache/blobstore"
)

// record is the in-memory form of a pushed chunk.
type record struct {
	status  Status
	blob    blobstore.ID
	size    int
	message string
}

// Sequence is the append-only list of chunks fetched for one key.
type Sequence struct {
	key    Key
	store  blobstore.Store
	cache  weak.Pointer[Cache]
	logger *slog.Logger

	mu          sync.Mutex
	records     []record
	chunkBytes  int64
	allBytes    int64 // -1 until known
	contentType string
	terminal    bool
	wake        chan struct{}
	refs        int
	released    bool
}

// NewSequence creates a standalone sequence holding one reference for the
// caller. Sequences created by a Cache carry a back reference to it instead.
func NewSequence(key Key, store blobstore.Store, logger *slog.Logger) *Sequence {
	return newSequence(key, store, weak.Pointer[Cache]{}, logger)
}

func newSequence(key Key, store blobstore.Store, cache weak.Pointer[Cache], logger *slog.Logger) *Sequence {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sequence{
		key:      key,
		store:    store,
		cache:    cache,
		logger:   logger,
		allBytes: -1,
		wake:     make(chan struct{}),
		refs:     1,
	}
}

// Key returns the key the sequence was created for.
func (s *Sequence) Key() Key { return s.key }

// Push appends a chunk and wakes all waiting cursors.
//
// Buffer data is written to the blob store before the chunk becomes visible.
// Empty buffers are dropped. A NotFound or Error status evicts the key from
// the owning cache if the key still maps to this sequence.
func (s *Sequence) Push(ctx context.Context, c Chunk) error {
	s.mu.Lock()
	closed, released := s.terminal, s.released
	s.mu.Unlock()
	if released {
		return ErrReleased
	}
	if closed {
		return ErrSequenceClosed
	}

	rec := record{status: c.Status, message: c.Message}
	if c.Status == StatusBuffer {
		if len(c.Data) == 0 {
			return nil
		}
		id, err := s.store.Write(ctx, c.Data)
		if err != nil {
			return fmt.Errorf("push %s: %w", s.key, err)
		}
		rec.blob = id
		rec.size = len(c.Data)
	}

	s.mu.Lock()
	if s.terminal || s.released {
		err := ErrSequenceClosed
		if s.released {
			err = ErrReleased
		}
		s.mu.Unlock()
		if rec.status == StatusBuffer {
			_ = s.store.Remove(context.Background(), rec.blob)
		}
		return err
	}
	s.records = append(s.records, rec)
	s.chunkBytes += int64(rec.size)
	if c.Terminal() {
		s.terminal = true
	}
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()

	if c.Status == StatusNotFound || c.Status == StatusError {
		if cache := s.cache.Value(); cache != nil {
			cache.evictFailed(s.key, s)
		}
	}
	return nil
}

// lookup returns the record at index i. On a miss it returns the current
// wakeup channel, captured under the same lock, and whether the sequence is
// already terminal.
func (s *Sequence) lookup(i int) (record, bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < len(s.records) {
		return s.records[i], true, nil
	}
	return record{}, false, s.wake
}

// ReadChunk returns the chunk at index i, re-hydrating buffer bytes from the
// blob store. ok is false if no chunk has been pushed at i yet.
//
// A missing or corrupt blob fails only this call.
func (s *Sequence) ReadChunk(ctx context.Context, i int) (Chunk, bool, error) {
	rec, ok, _ := s.lookup(i)
	if !ok {
		return Chunk{}, false, nil
	}
	c, err := s.hydrate(ctx, i, rec)
	if err != nil {
		return Chunk{}, true, err
	}
	return c, true, nil
}

func (s *Sequence) hydrate(ctx context.Context, i int, rec record) (Chunk, error) {
	if rec.status != StatusBuffer {
		return Chunk{Status: rec.status, Message: rec.message}, nil
	}
	data, err := s.store.Read(ctx, rec.blob)
	if err != nil {
		return Chunk{}, fmt.Errorf("read chunk %d of %s (blob %s): %w", i, s.key, rec.blob, err)
	}
	return Buffer(data), nil
}

// Len returns the number of chunks pushed so far.
func (s *Sequence) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// CurrentBytes returns the number of buffer bytes pushed so far.
func (s *Sequence) CurrentBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkBytes
}

// SetAllBytes records the full size of the asset. Only the first call has
// an effect; it reports whether the value was stored.
func (s *Sequence) SetAllBytes(n int64) bool {
	if n < 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allBytes >= 0 {
		return false
	}
	s.allBytes = n
	return true
}

// AllBytes returns the full size of the asset, if known.
func (s *Sequence) AllBytes() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allBytes, s.allBytes >= 0
}

// SetContentType records the content type. Only the first non-empty value is kept.
func (s *Sequence) SetContentType(ct string) bool {
	if ct == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contentType != "" {
		return false
	}
	s.contentType = ct
	return true
}

// ContentType returns the recorded content type or "".
func (s *Sequence) ContentType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentType
}

// Status returns the terminal status, or StatusBuffer while the fetch is
// still in progress.
func (s *Sequence) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.terminal {
		return StatusBuffer
	}
	return s.records[len(s.records)-1].status
}

// Retain adds a reference. It fails once the sequence has been released.
func (s *Sequence) Retain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	s.refs++
	return nil
}

// Release drops a reference. Dropping the last one removes every blob the
// sequence owns.
func (s *Sequence) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return
	}
	s.released = true
	blobs := make([]blobstore.ID, 0, len(s.records))
	for _, r := range s.records {
		if r.status == StatusBuffer {
			blobs = append(blobs, r.blob)
		}
	}
	s.records = nil
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()

	ctx := context.Background()
	for _, id := range blobs {
		if err := s.store.Remove(ctx, id); err != nil {
			s.logger.Warn("failed to remove blob", "key", s.key.String(), "blob", id.String(), "error", err)
		}
	}
	s.logger.Debug("sequence released", "key", s.key.String(), "blobs", len(blobs))
}

// Cursor returns a new reader positioned at the first chunk that skips the
// first skip bytes of buffered data. The cursor holds a reference until
// Close.
func (s *Sequence) Cursor(skip int64) (*Cursor, error) {
	if err := s.Retain(); err != nil {
		return nil, err
	}
	return &Cursor{seq: s, skip: max(skip, 0)}, nil
}
