package webdav

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/mediacache/storage"
)

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:resourcetype/>
    <d:getcontentlength/>
    <d:getlastmodified/>
  </d:prop>
</d:propfind>`

// Store implements storage.Backend for a WebDAV collection.
type Store struct {
	base     *url.URL
	client   *http.Client
	user     string
	password string
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// WithBasicAuth sets credentials sent with every request.
func WithBasicAuth(user, password string) Option {
	return func(s *Store) {
		s.user = user
		s.password = password
	}
}

// NewStore creates a WebDAV backend rooted at baseURL.
func NewStore(baseURL string, opts ...Option) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse webdav url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webdav url %q: unsupported scheme", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	s := &Store{
		base:   u,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) url(rel string, dir bool) string {
	u := *s.base
	u.Path = path.Join("/", s.base.Path, rel)
	if dir && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

func (s *Store) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if s.user != "" {
		req.SetBasicAuth(s.user, s.password)
	}
	return req, nil
}

// Get requests the resource from offset to its end.
func (s *Store) Get(ctx context.Context, p string, offset int64) (*storage.Object, error) {
	rel, err := storage.Clean(p)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("get %s: negative offset %d", p, offset)
	}

	req, err := s.newRequest(ctx, http.MethodGet, s.url(rel, false), nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	obj := &storage.Object{
		Body:        resp.Body,
		Size:        -1,
		ContentType: contentType(rel, resp.Header.Get("Content-Type")),
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if resp.ContentLength >= 0 {
			obj.Size = resp.ContentLength
		}
		if offset > 0 {
			// Server ignored the range.
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil && err != io.EOF {
				_ = resp.Body.Close()
				return nil, fmt.Errorf("get %s: skip to %d: %w", p, offset, err)
			}
		}
	case http.StatusPartialContent:
		obj.Size = storage.TotalFromContentRange(resp.Header.Get("Content-Range"))
	case http.StatusRequestedRangeNotSatisfiable:
		_ = resp.Body.Close()
		obj.Body = http.NoBody
		obj.Size = storage.TotalFromContentRange(resp.Header.Get("Content-Range"))
	case http.StatusNotFound, http.StatusGone:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: %w", p, storage.ErrNotFound)
	default:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: unexpected status %s", p, resp.Status)
	}

	return obj, nil
}

type multistatus struct {
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	ResourceType  resourceType `xml:"DAV: resourcetype"`
	ContentLength string       `xml:"DAV: getcontentlength"`
	LastModified  string       `xml:"DAV: getlastmodified"`
}

type resourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

// List issues a Depth 1 PROPFIND on the collection at p.
func (s *Store) List(ctx context.Context, p string) ([]storage.Entry, error) {
	rel, err := storage.Clean(p)
	if err != nil {
		return nil, err
	}

	req, err := s.newRequest(ctx, "PROPFIND", s.url(rel, true), strings.NewReader(propfindBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", "1")
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusMultiStatus:
	case http.StatusNotFound:
		return nil, fmt.Errorf("list %s: %w", p, storage.ErrNotFound)
	default:
		return nil, fmt.Errorf("list %s: unexpected status %s", p, resp.Status)
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("list %s: decode multistatus: %w", p, err)
	}

	basePath := strings.TrimSuffix(s.base.Path, "/")
	var entries []storage.Entry
	for _, r := range ms.Responses {
		href, err := url.Parse(r.Href)
		if err != nil {
			continue
		}
		entryRel := strings.Trim(strings.TrimPrefix(href.Path, basePath), "/")
		if entryRel == rel {
			continue // the collection itself
		}

		for _, ps := range r.Propstats {
			if !strings.Contains(ps.Status, " 200 ") {
				continue
			}
			e := storage.Entry{
				Name:  path.Base(entryRel),
				Path:  entryRel,
				IsDir: ps.Prop.ResourceType.Collection != nil,
			}
			if !e.IsDir && ps.Prop.ContentLength != "" {
				e.Size, _ = strconv.ParseInt(ps.Prop.ContentLength, 10, 64)
			}
			if ps.Prop.LastModified != "" {
				e.ModTime, _ = time.Parse(http.TimeFormat, ps.Prop.LastModified)
			}
			entries = append(entries, e)
			break
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func contentType(rel, header string) string {
	if ct := storage.ContentTypeFor(rel); ct != "application/octet-stream" {
		return ct
	}
	if header != "" {
		return header
	}
	return "application/octet-stream"
}
