package blobstore

import (
	"context"
	_ "crypto/sha256" // digest.Canonical
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/mediacache/internal/fs"
	"github.com/opencontainers/go-digest"
)

// ErrLocked is returned when another process holds the store directory.
var ErrLocked = errors.New("blob store directory is locked by another process")

const (
	blobDirName  = "blobs"
	blobSuffix   = ".blob"
	tmpSuffix    = ".tmp"
	lockFileName = "LOCK"
	idsFileName  = "ids.db"
)

// DiskStore implements Store on the local filesystem.
type DiskStore struct {
	root string
	dir  string
	opts diskOptions

	lock       *os.File
	ownsAlloc  bool
	closed     atomic.Bool
	writes     atomic.Int64
	removes    atomic.Int64
	closeOnce  sync.Once
	closeError error

	mu      sync.Mutex
	digests map[ID]digest.Digest
	live    *roaring64.Bitmap
}

// OpenDiskStore opens the blob store rooted at root, creating it if needed.
//
// The directory is locked for the lifetime of the store. Blob files left
// behind by an earlier process are deleted.
func OpenDiskStore(root string, optFns ...Option) (*DiskStore, error) {
	opts := diskOptions{
		fs:           fs.Default,
		purgeOnClose: true,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	dir := filepath.Join(root, blobDirName)
	if err := opts.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	lock, err := lockDir(filepath.Join(root, lockFileName))
	if err != nil {
		return nil, err
	}

	s := &DiskStore{
		root:    root,
		dir:     dir,
		opts:    opts,
		lock:    lock,
		digests: make(map[ID]digest.Digest),
		live:    roaring64.New(),
	}

	if s.opts.allocator == nil {
		alloc, err := OpenBoltAllocator(filepath.Join(root, idsFileName))
		if err != nil {
			_ = unlockDir(lock)
			return nil, fmt.Errorf("open id allocator: %w", err)
		}
		s.opts.allocator = alloc
		s.ownsAlloc = true
	}

	if n, err := s.sweep(); err != nil {
		s.opts.logger.Warn("blob sweep incomplete", "dir", dir, "removed", n, "error", err)
	} else if n > 0 {
		s.opts.logger.Info("removed stale blobs", "dir", dir, "count", n)
	}

	return s, nil
}

// sweep deletes blob and temp files from previous runs.
func (s *DiskStore) sweep() (int, error) {
	entries, err := s.opts.fs.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, blobSuffix) || strings.HasSuffix(name, tmpSuffix)) {
			continue
		}
		if err := s.opts.fs.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Path returns the file that holds blob id.
func (s *DiskStore) Path(id ID) string {
	return filepath.Join(s.dir, fmt.Sprintf("%016x%s", uint64(id), blobSuffix))
}

// Allocate reserves a fresh ID.
func (s *DiskStore) Allocate(ctx context.Context) (ID, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	id, err := s.opts.allocator.Next(ctx)
	if err != nil {
		return 0, fmt.Errorf("allocate blob id: %w", err)
	}
	return id, nil
}

// Write allocates an ID and persists data under it.
func (s *DiskStore) Write(ctx context.Context, data []byte) (ID, error) {
	if uint64(len(data)) > maxFrameSize {
		return 0, fmt.Errorf("write blob: %w", ErrTooLarge)
	}

	id, err := s.Allocate(ctx)
	if err != nil {
		return 0, err
	}

	frame, err := encodeFrame(data, s.opts.compression)
	if err != nil {
		return 0, fmt.Errorf("encode blob %d: %w", id, err)
	}

	path := s.Path(id)
	tmp := path + tmpSuffix
	if err := fs.WriteNew(s.opts.fs, tmp, frame, s.opts.sync); err != nil {
		_ = s.opts.fs.Remove(tmp)
		return 0, fmt.Errorf("write blob %d: %w", id, err)
	}
	if err := s.opts.fs.Rename(tmp, path); err != nil {
		_ = s.opts.fs.Remove(tmp)
		return 0, fmt.Errorf("commit blob %d: %w", id, err)
	}

	s.mu.Lock()
	s.digests[id] = digest.FromBytes(frame)
	s.live.Add(uint64(id))
	s.mu.Unlock()
	s.writes.Add(1)

	return id, nil
}

// Read returns the bytes stored under id.
//
// A missing file yields ErrNotFound. A file whose digest or framing does not
// match what was written yields ErrCorrupt.
func (s *DiskStore) Read(ctx context.Context, id ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := s.opts.fs.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %d: %w", id, err)
	}

	s.mu.Lock()
	want, ok := s.digests[id]
	s.mu.Unlock()
	if ok && want != digest.FromBytes(frame) {
		return nil, fmt.Errorf("blob %d: %w: digest mismatch", id, ErrCorrupt)
	}

	data, err := decodeFrame(frame)
	if err != nil {
		return nil, fmt.Errorf("blob %d: %w: %w", id, ErrCorrupt, err)
	}
	return data, nil
}

// Remove deletes the blob. A missing file is ignored.
func (s *DiskStore) Remove(_ context.Context, id ID) error {
	s.mu.Lock()
	delete(s.digests, id)
	s.live.Remove(uint64(id))
	s.mu.Unlock()

	err := s.opts.fs.Remove(s.Path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob %d: %w", id, err)
	}
	s.removes.Add(1)
	return nil
}

// Stats returns the store counters.
func (s *DiskStore) Stats() Stats {
	s.mu.Lock()
	live := s.live.GetCardinality()
	s.mu.Unlock()
	return Stats{
		Live:    live,
		Writes:  s.writes.Load(),
		Removes: s.removes.Load(),
	}
}

// Close purges live blobs (unless disabled), closes an owned allocator and
// releases the directory lock.
func (s *DiskStore) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		var errs []error
		if s.opts.purgeOnClose {
			s.mu.Lock()
			ids := s.live.ToArray()
			s.mu.Unlock()
			for _, id := range ids {
				if err := s.Remove(context.Background(), ID(id)); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if s.ownsAlloc {
			errs = append(errs, s.opts.allocator.Close())
		}
		errs = append(errs, unlockDir(s.lock))
		s.closeError = errors.Join(errs...)
	})
	return s.closeError
}
