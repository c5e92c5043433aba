package s3

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/mediacache/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStore_Get(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix/")

	t.Run("NotFound", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return *input.Key == "prefix/missing.flac"
		})).Return(nil, &types.NoSuchKey{}).Once()

		_, err := store.Get(context.Background(), "missing.flac", 0)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("FromStart", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/a/song.mp3" && input.Range == nil
		})).Return(&s3.GetObjectOutput{
			Body:          io.NopCloser(strings.NewReader("hello world")),
			ContentLength: aws.Int64(11),
			ContentType:   aws.String("audio/mpeg"),
		}, nil).Once()

		obj, err := store.Get(context.Background(), "/a/song.mp3", 0)
		require.NoError(t, err)
		defer obj.Body.Close()

		assert.Equal(t, int64(11), obj.Size)
		assert.Equal(t, "audio/mpeg", obj.ContentType)
		data, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
	})

	t.Run("Offset", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return input.Range != nil && *input.Range == "bytes=6-"
		})).Return(&s3.GetObjectOutput{
			Body:          io.NopCloser(strings.NewReader("world")),
			ContentLength: aws.Int64(5),
			ContentRange:  aws.String("bytes 6-10/11"),
		}, nil).Once()

		obj, err := store.Get(context.Background(), "b.flac", 6)
		require.NoError(t, err)
		defer obj.Body.Close()

		assert.Equal(t, int64(11), obj.Size)
		assert.Equal(t, "audio/flac", obj.ContentType)
	})

	t.Run("PastEnd", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return *input.Key == "prefix/short.mp3"
		})).Return(nil, &smithy.GenericAPIError{Code: "InvalidRange", Message: "range not satisfiable"}).Once()
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Key == "prefix/short.mp3"
		})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(100)}, nil).Once()

		obj, err := store.Get(context.Background(), "short.mp3", 500)
		require.NoError(t, err)
		assert.Equal(t, int64(100), obj.Size)
		data, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("InvalidPath", func(t *testing.T) {
		_, err := store.Get(context.Background(), "../etc/passwd", 0)
		assert.ErrorIs(t, err, storage.ErrInvalidPath)
	})

	mockClient.AssertExpectations(t)
}

func TestStore_List(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return *input.Prefix == "prefix/albums/" && *input.Delimiter == "/"
	})).Return(&s3.ListObjectsV2Output{
		CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("prefix/albums/live/")}},
		Contents: []types.Object{
			{Key: aws.String("prefix/albums/"), Size: aws.Int64(0)},
			{Key: aws.String("prefix/albums/b.mp3"), Size: aws.Int64(20)},
			{Key: aws.String("prefix/albums/a.mp3"), Size: aws.Int64(10)},
		},
	}, nil).Once()

	entries, err := store.List(context.Background(), "albums")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, storage.Entry{Name: "a.mp3", Path: "albums/a.mp3", Size: 10}, entries[0])
	assert.Equal(t, "b.mp3", entries[1].Name)
	assert.Equal(t, storage.Entry{Name: "live", Path: "albums/live", IsDir: true}, entries[2])
}

func TestStore_List_Pagination(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "")

	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return input.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("token"),
		Contents:              []types.Object{{Key: aws.String("1.ogg")}},
	}, nil).Once()

	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return input.ContinuationToken != nil && *input.ContinuationToken == "token"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("2.ogg")}},
	}, nil).Once()

	entries, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1.ogg", entries[0].Path)
	assert.Equal(t, "2.ogg", entries[1].Path)
}

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}
	key := os.Getenv("S3_TEST_KEY")
	if key == "" {
		t.Skip("Skipping S3 integration test: S3_TEST_KEY not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	store := NewStore(s3.NewFromConfig(cfg), bucket, "")

	full, err := store.Get(ctx, key, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(full.Body)
	require.NoError(t, err)
	require.NoError(t, full.Body.Close())
	require.Equal(t, int64(len(data)), full.Size)

	if len(data) > 1 {
		part, err := store.Get(ctx, key, 1)
		require.NoError(t, err)
		rest, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		require.NoError(t, part.Body.Close())
		assert.Equal(t, data[1:], rest)
		assert.Equal(t, full.Size, part.Size)
	}

	_, err = store.Get(ctx, key+".does-not-exist", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
