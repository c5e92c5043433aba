package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Buffer(t *testing.T) {
	c := NewController(Config{BufferLimitBytes: 100})

	assert.True(t, c.TryAcquireBuffer(50))
	assert.Equal(t, int64(50), c.BufferUsage())

	assert.True(t, c.TryAcquireBuffer(40))
	assert.Equal(t, int64(90), c.BufferUsage())

	// Limit exceeded
	assert.False(t, c.TryAcquireBuffer(20))
	assert.Equal(t, int64(90), c.BufferUsage())

	c.ReleaseBuffer(50)
	assert.Equal(t, int64(40), c.BufferUsage())

	assert.True(t, c.TryAcquireBuffer(20))
	assert.Equal(t, int64(60), c.BufferUsage())
}

func TestController_UnlimitedBuffer(t *testing.T) {
	c := NewController(Config{})

	assert.True(t, c.TryAcquireBuffer(1<<30))
	assert.Equal(t, int64(1<<30), c.BufferUsage())

	c.ReleaseBuffer(1 << 29)
	assert.Equal(t, int64(1<<29), c.BufferUsage())
}

func TestController_FetchSlots(t *testing.T) {
	c := NewController(Config{MaxConcurrentFetches: 2})

	require.NoError(t, c.AcquireFetch(t.Context()))
	require.NoError(t, c.AcquireFetch(t.Context()))
	assert.False(t, c.TryAcquireFetch())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireFetch(ctx), context.DeadlineExceeded)

	c.ReleaseFetch()
	assert.True(t, c.TryAcquireFetch())
}

func TestController_DefaultFetchSlots(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, int64(4), c.Config().MaxConcurrentFetches)
}

func TestController_NilChecks(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireFetch(t.Context()))
	assert.True(t, c.TryAcquireFetch())
	c.ReleaseFetch()
	assert.True(t, c.TryAcquireBuffer(10))
	c.ReleaseBuffer(10)
	assert.Zero(t, c.BufferUsage())
	assert.NoError(t, c.AcquireIO(t.Context(), 1<<20))
}

func TestRateLimitedReader(t *testing.T) {
	c := NewController(Config{FetchBytesPerSec: 1 << 30})
	src := bytes.Repeat([]byte("x"), 1<<20)

	r := NewRateLimitedReader(t.Context(), bytes.NewReader(src), c)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestRateLimitedReader_Cancelled(t *testing.T) {
	// 1 byte/s with the minimum burst: the second large read must wait far longer than the deadline.
	c := NewController(Config{FetchBytesPerSec: 1})
	src := bytes.Repeat([]byte("x"), 2*minBurst)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	r := NewRateLimitedReader(ctx, bytes.NewReader(src), c)
	buf := make([]byte, minBurst)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, minBurst, n)

	_, err = r.Read(buf)
	assert.Error(t, err)
}
