package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/mediacache/blobstore"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func (f *fakeClient) Incr(_ context.Context, key string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	f.counters[key]++
	return goredis.NewIntResult(f.counters[key], nil)
}

func TestAllocator_Next(t *testing.T) {
	fc := &fakeClient{counters: map[string]int64{DefaultKey: 7}}
	a := NewAllocator(fc, "")

	id, err := a.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blobstore.ID(8), id)

	id, err = a.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blobstore.ID(9), id)
	assert.NoError(t, a.Close())
}

func TestAllocator_Error(t *testing.T) {
	boom := errors.New("connection refused")
	a := NewAllocator(&fakeClient{err: boom}, "custom")

	_, err := a.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "custom")
}

func TestAllocator_UsableByDiskStore(t *testing.T) {
	fc := &fakeClient{counters: map[string]int64{}}
	s, err := blobstore.OpenDiskStore(t.TempDir(), blobstore.WithAllocator(NewAllocator(fc, "")))
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Write(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, blobstore.ID(1), id)
}
