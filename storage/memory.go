package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Backend implementation for testing.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
	gets    map[string]int
}

type memoryObject struct {
	data        []byte
	contentType string
	hideSize    bool
	failAfter   int64
	failErr     error
	gate        chan struct{}
}

// NewMemoryStore creates a new in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*memoryObject),
		gets:    make(map[string]int),
	}
}

// Put stores a copy of data under p.
func (m *MemoryStore) Put(p string, data []byte) {
	rel, _ := Clean(p)
	copied := make([]byte, len(data))
	copy(copied, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[rel] = &memoryObject{data: copied, failAfter: -1}
}

// Delete removes the object at p.
func (m *MemoryStore) Delete(p string) {
	rel, _ := Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, rel)
}

// FailAfter makes reads of p fail with err once n bytes of the object have
// been delivered.
func (m *MemoryStore) FailAfter(p string, n int64, err error) {
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	m.update(p, func(o *memoryObject) {
		o.failAfter = n
		o.failErr = err
	})
}

// HideSize makes Get report an unknown size for p.
func (m *MemoryStore) HideSize(p string) {
	m.update(p, func(o *memoryObject) { o.hideSize = true })
}

// SetContentType overrides the content type reported for p.
func (m *MemoryStore) SetContentType(p, contentType string) {
	m.update(p, func(o *memoryObject) { o.contentType = contentType })
}

// Gate makes reads of p block until the returned function is called.
func (m *MemoryStore) Gate(p string) (release func()) {
	gate := make(chan struct{})
	m.update(p, func(o *memoryObject) { o.gate = gate })
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Gets returns how many times Get was called for p.
func (m *MemoryStore) Gets(p string) int {
	rel, _ := Clean(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets[rel]
}

func (m *MemoryStore) update(p string, fn func(*memoryObject)) {
	rel, _ := Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.objects[rel]; ok {
		fn(o)
	}
}

// Get returns a reader over the stored bytes starting at offset.
func (m *MemoryStore) Get(ctx context.Context, p string, offset int64) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := Clean(p)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.gets[rel]++
	o, ok := m.objects[rel]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("get %s: %w", p, ErrNotFound)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if offset > int64(len(o.data)) {
		offset = int64(len(o.data))
	}

	var r io.Reader = bytes.NewReader(o.data[offset:])
	if o.failAfter >= 0 {
		limit := max(o.failAfter-offset, 0)
		r = io.MultiReader(io.LimitReader(r, limit), errReader{o.failErr})
	}
	if o.gate != nil {
		r = &gatedReader{ctx: ctx, gate: o.gate, r: r}
	}

	size := int64(len(o.data))
	if o.hideSize {
		size = -1
	}
	contentType := o.contentType
	if contentType == "" {
		contentType = ContentTypeFor(rel)
	}

	return &Object{
		Body:        io.NopCloser(r),
		Size:        size,
		ContentType: contentType,
	}, nil
}

// List returns the objects and implicit directories directly below p.
func (m *MemoryStore) List(ctx context.Context, p string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := Clean(p)
	if err != nil {
		return nil, err
	}
	prefix := rel
	if prefix != "" {
		prefix += "/"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var entries []Entry
	for key, o := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name, _, nested := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		e := Entry{Name: name, Path: path.Join(rel, name), IsDir: nested}
		if !nested {
			e.Size = int64(len(o.data))
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 && rel != "" {
		return nil, fmt.Errorf("list %s: %w", p, ErrNotFound)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

type gatedReader struct {
	ctx  context.Context
	gate <-chan struct{}
	r    io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	select {
	case <-g.gate:
	case <-g.ctx.Done():
		return 0, g.ctx.Err()
	}
	return g.r.Read(p)
}
