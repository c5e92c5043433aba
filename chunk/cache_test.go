package chunk

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/mediacache/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SingleMissUnderConcurrency(t *testing.T) {
	cache := NewCache(blobstore.NewMemoryStore())
	key := Key{Asset: "song"}

	const workers = 64
	var misses atomic.Int32
	seqs := make([]*Sequence, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, hit := cache.GetOrCreate(key)
			if !hit {
				misses.Add(1)
			}
			seqs[i] = seq
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), misses.Load())
	for _, s := range seqs {
		assert.Same(t, seqs[0], s)
		s.Release()
	}

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(workers-1), stats.Hits)
}

func TestCache_DistinctOffsets(t *testing.T) {
	cache := NewCache(blobstore.NewMemoryStore())

	a, hit := cache.GetOrCreate(Key{Asset: "song", Offset: 0})
	require.False(t, hit)
	defer a.Release()

	b, hit := cache.GetOrCreate(Key{Asset: "song", Offset: 1000})
	require.False(t, hit)
	defer b.Release()

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, cache.Len())
}

func TestCache_LRURetentionAndBlobFreeing(t *testing.T) {
	store := blobstore.NewMemoryStore()
	var evicted []Key
	cache := NewCache(store, WithCapacity(2), WithEvictionHook(func(k Key, r EvictReason) {
		assert.Equal(t, EvictCapacity, r)
		evicted = append(evicted, k)
	}))
	ctx := context.Background()

	fill := func(asset string) {
		seq, hit := cache.GetOrCreate(Key{Asset: asset})
		require.False(t, hit)
		require.NoError(t, seq.Push(ctx, Buffer([]byte(asset))))
		require.NoError(t, seq.Push(ctx, Loaded()))
		seq.Release()
	}

	fill("a")
	fill("b")

	// A reader keeps b's blobs alive past eviction.
	held, ok := cache.Lookup(Key{Asset: "b"})
	require.True(t, ok)
	cur, err := held.Cursor(0)
	require.NoError(t, err)
	held.Release()

	// Touch a so b becomes least recently used.
	seq, hit := cache.GetOrCreate(Key{Asset: "a"})
	require.True(t, hit)
	seq.Release()

	fill("c")
	assert.Equal(t, []Key{{Asset: "b"}}, evicted)
	assert.Equal(t, []Key{{Asset: "c"}, {Asset: "a"}}, cache.Keys())
	assert.Equal(t, 3, store.Len())

	got, err := readAll(t, cur)
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))

	require.NoError(t, cur.Close())
	assert.Equal(t, 2, store.Len())

	again, hit := cache.GetOrCreate(Key{Asset: "b"})
	assert.False(t, hit, "evicted key misses again")
	again.Release()
}

func TestCache_CapacityKeepsMostRecent(t *testing.T) {
	store := blobstore.NewMemoryStore()
	const capacity = 3
	cache := NewCache(store, WithCapacity(capacity))
	ctx := context.Background()

	blobs := make(map[string]blobstore.ID)
	for _, asset := range []string{"a", "b", "c", "d"} {
		seq, hit := cache.GetOrCreate(Key{Asset: asset})
		require.False(t, hit)
		require.NoError(t, seq.Push(ctx, Buffer([]byte(asset))))
		require.NoError(t, seq.Push(ctx, Loaded()))
		blobs[asset] = seq.records[0].blob
		seq.Release()
	}

	assert.Equal(t, []Key{{Asset: "d"}, {Asset: "c"}, {Asset: "b"}}, cache.Keys())

	_, err := store.Read(ctx, blobs["a"])
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	for _, asset := range []string{"b", "c", "d"} {
		data, err := store.Read(ctx, blobs[asset])
		require.NoError(t, err)
		assert.Equal(t, asset, string(data))
	}
}

func TestCache_NotFoundEvicts(t *testing.T) {
	store := blobstore.NewMemoryStore()
	var reasons []EvictReason
	cache := NewCache(store, WithEvictionHook(func(_ Key, r EvictReason) {
		reasons = append(reasons, r)
	}))
	key := Key{Asset: "missing"}
	ctx := context.Background()

	seq, hit := cache.GetOrCreate(key)
	require.False(t, hit)
	require.NoError(t, seq.Push(ctx, NotFound()))

	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, []EvictReason{EvictFailed}, reasons)

	// The caller's reference still reads the terminal status.
	cur, err := seq.Cursor(0)
	require.NoError(t, err)
	_, err = cur.Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, cur.Close())
	seq.Release()

	next, hit := cache.GetOrCreate(key)
	assert.False(t, hit)
	next.Release()
}

func TestCache_StaleFailureKeepsNewEntry(t *testing.T) {
	cache := NewCache(blobstore.NewMemoryStore())
	key := Key{Asset: "song"}
	ctx := context.Background()

	old, _ := cache.GetOrCreate(key)
	require.True(t, cache.Evict(key))

	fresh, hit := cache.GetOrCreate(key)
	require.False(t, hit)
	defer fresh.Release()

	require.NoError(t, old.Push(ctx, Failed("late failure")))
	old.Release()

	current, ok := cache.Lookup(key)
	require.True(t, ok)
	assert.Same(t, fresh, current)
	current.Release()
}

func TestCache_ErrorEvicts(t *testing.T) {
	cache := NewCache(blobstore.NewMemoryStore())
	key := Key{Asset: "flaky"}

	seq, _ := cache.GetOrCreate(key)
	require.NoError(t, seq.Push(context.Background(), Failed("timeout")))
	seq.Release()

	_, ok := cache.Lookup(key)
	assert.False(t, ok)
}

func TestCache_LoadedStays(t *testing.T) {
	cache := NewCache(blobstore.NewMemoryStore())
	key := Key{Asset: "ok"}

	seq, _ := cache.GetOrCreate(key)
	require.NoError(t, seq.Push(context.Background(), Loaded()))
	seq.Release()

	again, ok := cache.Lookup(key)
	require.True(t, ok)
	again.Release()
}

func TestCache_InvalidateAndPurge(t *testing.T) {
	store := blobstore.NewMemoryStore()
	cache := NewCache(store, WithCapacity(8))
	ctx := context.Background()

	for _, k := range []Key{{"a", 0}, {"a", 100}, {"b", 0}} {
		seq, _ := cache.GetOrCreate(k)
		require.NoError(t, seq.Push(ctx, Buffer([]byte("data"))))
		seq.Release()
	}
	require.Equal(t, 3, store.Len())

	assert.Equal(t, 2, cache.Invalidate("a"))
	assert.Equal(t, []Key{{"b", 0}}, cache.Keys())
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 0, cache.Invalidate("a"))

	assert.False(t, cache.Evict(Key{"a", 0}))

	assert.Equal(t, 1, cache.Purge())
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, int64(3), cache.Stats().Evictions)
}

func TestCache_Defaults(t *testing.T) {
	cache := NewCache(blobstore.NewMemoryStore(), WithCapacity(0), WithLogger(nil))
	assert.Equal(t, DefaultCapacity, cache.Stats().Capacity)
	assert.Equal(t, "capacity", EvictCapacity.String())
}

func TestCache_Entries(t *testing.T) {
	cache := NewCache(blobstore.NewMemoryStore())
	ctx := context.Background()

	a, _ := cache.GetOrCreate(Key{Asset: "a"})
	a.SetAllBytes(10)
	require.NoError(t, a.Push(ctx, Buffer([]byte("0123"))))
	a.Release()

	b, _ := cache.GetOrCreate(Key{Asset: "b", Offset: 5})
	require.NoError(t, b.Push(ctx, Loaded()))
	b.Release()

	entries := cache.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, EntryInfo{Key: Key{Asset: "b", Offset: 5}, Bytes: 0, Size: -1, Status: "loaded"}, entries[0])
	assert.Equal(t, EntryInfo{Key: Key{Asset: "a"}, Bytes: 4, Size: 10, Status: "buffer"}, entries[1])

	// Entries does not refresh recency.
	assert.Equal(t, []Key{{Asset: "b", Offset: 5}, {Asset: "a"}}, cache.Keys())
}
