package minio

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/hupe1980/mediacache/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	bucket := "test-mediacache"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	data := []byte("hello minio world")
	_, err = client.PutObject(ctx, bucket, "lib/album/track.mp3", bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	require.NoError(t, err)
	defer func() {
		_ = client.RemoveObject(ctx, bucket, "lib/album/track.mp3", minio.RemoveObjectOptions{})
	}()

	store := NewStore(client, bucket, "lib/")

	t.Run("Get", func(t *testing.T) {
		obj, err := store.Get(ctx, "album/track.mp3", 6)
		require.NoError(t, err)
		defer obj.Body.Close()

		assert.Equal(t, int64(len(data)), obj.Size)
		rest, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, "minio world", string(rest))
	})

	t.Run("List", func(t *testing.T) {
		root, err := store.List(ctx, "")
		require.NoError(t, err)
		require.NotEmpty(t, root)
		assert.Equal(t, storage.Entry{Name: "album", Path: "album", IsDir: true}, root[0])

		files, err := store.List(ctx, "album")
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "album/track.mp3", files[0].Path)
		assert.Equal(t, int64(len(data)), files[0].Size)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "album/missing.mp3", 0)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
