package mediacache

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/mediacache/blobstore"
	"github.com/hupe1980/mediacache/chunk"
	"github.com/hupe1980/mediacache/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 253)
	}
	return b
}

func readStream(t *testing.T, s *Stream) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	for {
		b, err := s.Read(ctx)
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return out.Bytes(), err
		}
		out.Write(b)
	}
}

func newService(t *testing.T, backend storage.Backend, opts ...Option) *Service {
	t.Helper()
	svc, err := New(backend, append([]Option{WithFlushThreshold(1024)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestService_SharedFetch(t *testing.T) {
	data := payload(10_000)
	backend := storage.NewMemoryStore()
	backend.Put("song.mp3", data)
	release := backend.Gate("song.mp3")

	metrics := &BasicMetricsCollector{}
	svc := newService(t, backend, WithMetricsCollector(metrics))

	const readers = 8
	var wg sync.WaitGroup
	results := make([][]byte, readers)
	for i := range readers {
		stream, err := svc.Acquire(context.Background(), "song", "song.mp3", 0)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer stream.Close()
			got, err := readStream(t, stream)
			assert.NoError(t, err)
			results[i] = got
		}()
	}

	release()
	wg.Wait()

	assert.Equal(t, 1, backend.Gets("song.mp3"))
	for _, got := range results {
		assert.Equal(t, data, got)
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(readers-1), stats.Hits)
}

func TestService_RangeCoalescing(t *testing.T) {
	data := payload(5000)
	backend := storage.NewMemoryStore()
	backend.Put("song.mp3", data)
	svc := newService(t, backend)
	ctx := context.Background()

	full, err := svc.Acquire(ctx, "song", "song.mp3", 0)
	require.NoError(t, err)
	got, err := readStream(t, full)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.NoError(t, full.Close())

	part, err := svc.Acquire(ctx, "song", "song.mp3", 1000)
	require.NoError(t, err)
	defer part.Close()

	assert.True(t, part.Coalesced())
	assert.Equal(t, chunk.Key{Asset: "song"}, part.Key())
	assert.Equal(t, int64(1000), part.Start())

	got, err = readStream(t, part)
	require.NoError(t, err)
	assert.Equal(t, data[1000:], got)
	assert.Equal(t, 1, backend.Gets("song.mp3"), "no second remote fetch")
}

func TestService_RangeBeyondBuffered(t *testing.T) {
	data := payload(5000)
	backend := storage.NewMemoryStore()
	backend.Put("song.mp3", data)
	svc := newService(t, backend)
	ctx := context.Background()

	part, err := svc.Acquire(ctx, "song", "song.mp3", 4000)
	require.NoError(t, err)
	defer part.Close()

	assert.False(t, part.Coalesced())
	assert.Equal(t, chunk.Key{Asset: "song", Offset: 4000}, part.Key())

	got, err := readStream(t, part)
	require.NoError(t, err)
	assert.Equal(t, data[4000:], got)

	size, ok := part.Size()
	require.True(t, ok)
	assert.Equal(t, int64(5000), size)
	assert.Equal(t, "audio/mpeg", part.ContentType())
}

func TestService_NotFoundRetries(t *testing.T) {
	backend := storage.NewMemoryStore()
	svc := newService(t, backend)
	ctx := context.Background()

	s1, err := svc.Acquire(ctx, "late", "late.mp3", 0)
	require.NoError(t, err)
	_, err = readStream(t, s1)
	assert.True(t, IsNotFound(err))
	require.NoError(t, s1.Close())

	backend.Put("late.mp3", []byte("now here"))

	s2, err := svc.Acquire(ctx, "late", "late.mp3", 0)
	require.NoError(t, err)
	defer s2.Close()
	assert.False(t, s2.Hit())

	got, err := readStream(t, s2)
	require.NoError(t, err)
	assert.Equal(t, "now here", string(got))
	assert.Equal(t, 2, backend.Gets("late.mp3"))
}

func TestService_Invalidate(t *testing.T) {
	backend := storage.NewMemoryStore()
	backend.Put("song.mp3", []byte("v1"))
	svc := newService(t, backend)
	ctx := context.Background()

	s1, err := svc.Acquire(ctx, "song", "song.mp3", 0)
	require.NoError(t, err)
	got, err := readStream(t, s1)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
	require.NoError(t, s1.Close())

	backend.Put("song.mp3", []byte("v2"))
	assert.Equal(t, 1, svc.Invalidate("song"))

	s2, err := svc.Acquire(ctx, "song", "song.mp3", 0)
	require.NoError(t, err)
	defer s2.Close()
	got, err = readStream(t, s2)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestService_DiskStore(t *testing.T) {
	data := payload(8192)
	backend := storage.NewMemoryStore()
	backend.Put("a.flac", data)

	dir := t.TempDir()
	svc, err := New(backend,
		WithFlushThreshold(1000),
		WithCacheDir(dir, blobstore.WithCompression(blobstore.CompressionZSTD)),
	)
	require.NoError(t, err)

	stream, err := svc.Acquire(context.Background(), "a", "a.flac", 0)
	require.NoError(t, err)
	got, err := readStream(t, stream)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	require.NoError(t, stream.Close())

	stats := svc.Stats()
	require.NotNil(t, stats.Blobs)
	assert.Positive(t, stats.Blobs.Live)
	assert.Equal(t, 1, stats.Cache.Len)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	_, err = svc.Acquire(context.Background(), "a", "a.flac", 0)
	assert.ErrorIs(t, err, ErrClosed)

	// The directory lock is released on close.
	reopened, err := New(backend, WithCacheDir(dir))
	require.NoError(t, err)
	require.NoError(t, reopened.Close())
}

func TestService_CloseCancelsFetches(t *testing.T) {
	backend := storage.NewMemoryStore()
	backend.Put("slow.mp3", []byte("never"))
	_ = backend.Gate("slow.mp3")

	svc, err := New(backend)
	require.NoError(t, err)

	stream, err := svc.Acquire(context.Background(), "slow", "slow.mp3", 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, svc.Close())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not cancel the running fetch")
	}

	_, err = readStream(t, stream)
	assert.True(t, IsFetchError(err))
	require.NoError(t, stream.Close())
}

func TestService_InvalidOffset(t *testing.T) {
	svc := newService(t, storage.NewMemoryStore())
	_, err := svc.Acquire(context.Background(), "a", "a.mp3", -1)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}
