package minio

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/mediacache/storage"
	"github.com/minio/minio-go/v7"
)

// Store implements storage.Backend for MinIO and S3-compatible storage.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a new MinIO backend.
// rootPrefix is prepended to all keys (e.g. "library/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(rootPrefix, "/"),
	}
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Get stats the object for its size and opens a ranged reader at offset.
func (s *Store) Get(ctx context.Context, p string, offset int64) (*storage.Object, error) {
	rel, err := storage.Clean(p)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("get %s: negative offset %d", p, offset)
	}
	key := s.key(rel)

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, translate(p, err)
	}

	contentType := info.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeFor(rel)
	}
	if offset >= info.Size && offset > 0 {
		return &storage.Object{Body: http.NoBody, Size: info.Size, ContentType: contentType}, nil
	}

	opts := minio.GetObjectOptions{}
	if offset > 0 {
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, err
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, translate(p, err)
	}

	return &storage.Object{
		Body:        obj,
		Size:        info.Size,
		ContentType: contentType,
	}, nil
}

// List returns the objects and prefixes directly below p.
func (s *Store) List(ctx context.Context, p string) ([]storage.Entry, error) {
	rel, err := storage.Clean(p)
	if err != nil {
		return nil, err
	}
	dir := s.key(rel)
	if dir != "" {
		dir += "/"
	}

	var entries []storage.Entry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    dir,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, translate(p, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, dir)
		isDir := strings.HasSuffix(name, "/")
		name = strings.TrimSuffix(name, "/")
		if name == "" {
			continue
		}
		e := storage.Entry{
			Name:  name,
			Path:  path.Join(rel, name),
			IsDir: isDir,
		}
		if !isDir {
			e.Size = obj.Size
			e.ModTime = obj.LastModified
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func translate(p string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return fmt.Errorf("%s: %w", p, storage.ErrNotFound)
	}
	return err
}
