package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/mediacache/storage"
)

// Client is the subset of the S3 API used by Store.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store implements storage.Backend for S3.
type Store struct {
	client Client
	bucket string
	prefix string
}

// NewStore creates a new S3 backend.
// rootPrefix is prepended to all keys (e.g. "music/").
func NewStore(client Client, bucket, rootPrefix string) *Store {
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

// Get issues a ranged GET from offset to the end of the object.
func (s *Store) Get(ctx context.Context, p string, offset int64) (*storage.Object, error) {
	rel, err := storage.Clean(p)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("get %s: negative offset %d", p, offset)
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rel)),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get %s: %w", p, storage.ErrNotFound)
		}
		if offset > 0 && isInvalidRange(err) {
			return s.emptyTail(ctx, p, rel)
		}
		return nil, err
	}

	size := int64(-1)
	switch {
	case resp.ContentRange != nil:
		size = storage.TotalFromContentRange(*resp.ContentRange)
	case resp.ContentLength != nil:
		size = *resp.ContentLength + offset
	}

	contentType := aws.ToString(resp.ContentType)
	if contentType == "" || contentType == "binary/octet-stream" {
		contentType = storage.ContentTypeFor(rel)
	}

	return &storage.Object{
		Body:        resp.Body,
		Size:        size,
		ContentType: contentType,
	}, nil
}

// emptyTail answers a read past the end of the object with an empty body and
// the object's size.
func (s *Store) emptyTail(ctx context.Context, p, rel string) (*storage.Object, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rel)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get %s: %w", p, storage.ErrNotFound)
		}
		return nil, err
	}
	return &storage.Object{
		Body:        http.NoBody,
		Size:        aws.ToInt64(head.ContentLength),
		ContentType: storage.ContentTypeFor(rel),
	}, nil
}

// List returns the objects and common prefixes directly below p.
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

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(dir),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), dir), "/")
			if name == "" {
				continue
			}
			entries = append(entries, storage.Entry{
				Name:  name,
				Path:  path.Join(rel, name),
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dir)
			if name == "" || strings.Contains(name, "/") {
				continue // directory marker
			}
			e := storage.Entry{
				Name: name,
				Path: path.Join(rel, name),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				e.ModTime = *obj.LastModified
			}
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
