package blobstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-memory Store implementation for testing.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[ID][]byte
	next  atomic.Uint64
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[ID][]byte),
	}
}

// Allocate reserves a fresh ID.
func (m *MemoryStore) Allocate(ctx context.Context) (ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return ID(m.next.Add(1)), nil
}

// Write stores a copy of data under a fresh ID.
func (m *MemoryStore) Write(ctx context.Context, data []byte) (ID, error) {
	id, err := m.Allocate(ctx)
	if err != nil {
		return 0, err
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	m.mu.Lock()
	m.blobs[id] = copied
	m.mu.Unlock()
	return id, nil
}

// Read returns a copy of the blob.
func (m *MemoryStore) Read(_ context.Context, id ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %d: %w", id, ErrNotFound)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Remove deletes a blob.
func (m *MemoryStore) Remove(_ context.Context, id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, id)
	return nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Has reports whether id is stored.
func (m *MemoryStore) Has(id ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[id]
	return ok
}
