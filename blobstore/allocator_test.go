package blobstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltAllocator_Durable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.db")
	ctx := context.Background()

	a, err := OpenBoltAllocator(path)
	require.NoError(t, err)
	first, err := a.Next(ctx)
	require.NoError(t, err)
	second, err := a.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
	require.NoError(t, a.Close())

	a, err = OpenBoltAllocator(path)
	require.NoError(t, err)
	defer a.Close()
	third, err := a.Next(ctx)
	require.NoError(t, err)
	assert.Greater(t, third, second)
}

func TestBoltAllocator_Concurrent(t *testing.T) {
	a, err := OpenBoltAllocator(filepath.Join(t.TempDir(), "ids.db"))
	require.NoError(t, err)
	defer a.Close()

	const n = 50
	var (
		mu   sync.Mutex
		seen = make(map[ID]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := a.Next(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestMemoryAllocator(t *testing.T) {
	a := NewMemoryAllocator(41)
	id, err := a.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ID(42), id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	id, err := m.Write(ctx, []byte("abc"))
	require.NoError(t, err)
	assert.True(t, m.Has(id))

	got, err := m.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	require.NoError(t, m.Remove(ctx, id))
	_, err = m.Read(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, m.Len())
}
