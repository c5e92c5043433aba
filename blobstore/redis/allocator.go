// Package redis provides a blob ID allocator backed by a Redis counter.
//
// Use it when several cache processes share one blob directory tree (for
// example behind a network filesystem) and must never hand out the same ID.
package redis

import (
	"context"
	"fmt"

	"github.com/hupe1980/mediacache/blobstore"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultKey is the counter key used when none is given.
const DefaultKey = "mediacache:blob:next_id"

// Client is the subset of the go-redis client the allocator needs.
type Client interface {
	Incr(ctx context.Context, key string) *goredis.IntCmd
}

// Allocator implements blobstore.IDAllocator with INCR, which is atomic on the server.
type Allocator struct {
	client Client
	key    string
}

// NewAllocator creates an allocator on key (DefaultKey if empty).
// The client stays owned by the caller.
func NewAllocator(client Client, key string) *Allocator {
	if key == "" {
		key = DefaultKey
	}
	return &Allocator{client: client, key: key}
}

// Next increments the counter and returns the new value.
func (a *Allocator) Next(ctx context.Context) (blobstore.ID, error) {
	n, err := a.client.Incr(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", a.key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("redis incr %s: non-positive id %d", a.key, n)
	}
	return blobstore.ID(n), nil
}

// Close is a no-op; the client is owned by the caller.
func (a *Allocator) Close() error { return nil }
