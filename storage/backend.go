package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when an object or directory does not exist.
//
// Implementations return an error that satisfies `errors.Is(err, ErrNotFound)`.
var ErrNotFound = os.ErrNotExist

// ErrInvalidPath is returned for paths that escape the backend root.
var ErrInvalidPath = errors.New("invalid path")

// Backend is a read-only, byte-range capable media source.
type Backend interface {
	// List returns the entries of the directory at p.
	List(ctx context.Context, p string) ([]Entry, error)
	// Get opens the object at p and positions the stream at offset.
	Get(ctx context.Context, p string, offset int64) (*Object, error)
}

// Entry is one item of a directory listing.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Object is an open remote byte stream.
type Object struct {
	// Body yields the bytes from the requested offset to the end of the object.
	Body io.ReadCloser
	// Size is the size of the whole object, or -1 if unknown.
	Size int64
	// ContentType is empty if unknown.
	ContentType string
}

// Clean normalizes a backend path to a slash-separated path without a leading
// slash. It rejects paths that climb above the root.
func Clean(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.Contains("/"+p+"/", "/../") {
		return "", ErrInvalidPath
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	return cleaned, nil
}

// ContentTypeFor guesses a MIME type from the file extension.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".aac":
		return "audio/aac"
	case ".m4a":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".lrc":
		return "text/plain; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// TotalFromContentRange extracts the complete length from a
// "bytes start-end/total" header value. It returns -1 if the total is absent
// or "*".
func TotalFromContentRange(v string) int64 {
	i := strings.LastIndexByte(v, '/')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
