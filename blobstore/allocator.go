package blobstore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// IDAllocator hands out blob IDs from a durable counter.
//
// Every call to Next is its own transaction and returns a value strictly
// greater than any value it returned before, including in earlier processes
// sharing the same backing store.
type IDAllocator interface {
	Next(ctx context.Context) (ID, error)
	Close() error
}

// MemoryAllocator is a process-local IDAllocator for tests.
type MemoryAllocator struct {
	last atomic.Uint64
}

// NewMemoryAllocator returns an allocator whose first ID is start+1.
func NewMemoryAllocator(start uint64) *MemoryAllocator {
	a := &MemoryAllocator{}
	a.last.Store(start)
	return a
}

// Next returns the next ID.
func (a *MemoryAllocator) Next(ctx context.Context) (ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return ID(a.last.Add(1)), nil
}

// Close is a no-op.
func (a *MemoryAllocator) Close() error { return nil }

var sequenceBucket = []byte("blob_ids")

// BoltAllocator keeps the next-ID counter in a bbolt database.
type BoltAllocator struct {
	db *bolt.DB
}

// OpenBoltAllocator opens (or creates) the counter database at path.
// The database file is exclusively locked by this process while open.
func OpenBoltAllocator(path string) (*BoltAllocator, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sequenceBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltAllocator{db: db}, nil
}

// Next increments the bucket sequence in its own read-write transaction.
func (a *BoltAllocator) Next(ctx context.Context) (ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var next uint64
	err := a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sequenceBucket)
		if b == nil {
			return errors.New("blob id bucket missing")
		}
		var err error
		next, err = b.NextSequence()
		return err
	})
	if err != nil {
		return 0, err
	}
	return ID(next), nil
}

// Close closes the database.
func (a *BoltAllocator) Close() error {
	return a.db.Close()
}
