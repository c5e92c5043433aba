package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// LocalStore implements Backend using the local file system.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) resolve(p string) (string, string, error) {
	rel, err := Clean(p)
	if err != nil {
		return "", "", err
	}
	return rel, filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

// List returns the directory entries sorted by name.
func (s *LocalStore) List(ctx context.Context, p string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // removed while listing
			}
			return nil, err
		}
		e := Entry{
			Name:    d.Name(),
			Path:    path.Join(rel, d.Name()),
			IsDir:   d.IsDir(),
			ModTime: info.ModTime(),
		}
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Get opens the file and seeks to offset.
func (s *LocalStore) Get(ctx context.Context, p string, offset int64) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("get %s: negative offset %d", p, offset)
	}
	_, full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("get %s: is a directory: %w", p, ErrNotFound)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return &Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: ContentTypeFor(full),
	}, nil
}
