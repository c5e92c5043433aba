package blobstore

import (
	"context"
	"errors"
	"os"
	"strconv"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies `errors.Is(err, ErrNotFound)`.
var ErrNotFound = os.ErrNotExist

// ErrCorrupt is returned when a blob exists but its content fails validation.
var ErrCorrupt = errors.New("blob corrupt")

// ErrTooLarge is returned when a blob does not fit a frame.
var ErrTooLarge = errors.New("blob too large")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("blob store closed")

// ID identifies one persisted blob.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Store persists byte blobs under monotonically allocated IDs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Allocate reserves a fresh ID without writing anything.
	Allocate(ctx context.Context) (ID, error)
	// Write allocates an ID and persists data under it.
	Write(ctx context.Context, data []byte) (ID, error)
	// Read returns the bytes stored under id.
	Read(ctx context.Context, id ID) ([]byte, error)
	// Remove deletes the blob. Removing a missing blob is not an error.
	Remove(ctx context.Context, id ID) error
}

// Stats describes the blobs a store currently holds.
type Stats struct {
	Live    uint64 // blobs written and not yet removed
	Writes  int64
	Removes int64
}
