package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/mediacache/codec"
	"github.com/hupe1980/mediacache/storage"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
)

// MetaSuffix is appended to an asset ID to form the cache key of its sidecar.
const MetaSuffix = "#meta"

// ErrNotScanned is returned by Save before the first successful scan.
var ErrNotScanned = errors.New("catalog not scanned")

// DefaultExtensions lists the file extensions treated as media assets.
var DefaultExtensions = []string{".mp3", ".flac", ".ogg", ".opus", ".m4a", ".aac", ".wav"}

// DefaultSidecarExtensions lists the extensions of metadata sidecar files in
// order of preference.
var DefaultSidecarExtensions = []string{".lrc", ".json", ".txt"}

// Asset is one media file known to the catalog.
type Asset struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	// Meta holds sidecar paths in order of preference.
	Meta []string `json:"meta,omitempty"`
}

// IDFor returns the stable asset ID of a backend path.
func IDFor(p string) string {
	rel, err := storage.Clean(p)
	if err != nil {
		rel = p
	}
	return digest.FromString(rel).Encoded()[:16]
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRoot restricts scanning to the subtree at root.
func WithRoot(root string) Option {
	return func(c *Catalog) {
		c.root = root
	}
}

// WithExtensions replaces the media extensions.
func WithExtensions(exts ...string) Option {
	return func(c *Catalog) {
		c.extensions = normalize(exts)
	}
}

// WithSidecarExtensions replaces the sidecar extensions, in order of
// preference.
func WithSidecarExtensions(exts ...string) Option {
	return func(c *Catalog) {
		c.sidecars = make([]string, 0, len(exts))
		for _, e := range exts {
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			c.sidecars = append(c.sidecars, e)
		}
	}
}

// WithInvalidator registers fn to drop cached data of assets that changed
// or disappeared during Refresh.
func WithInvalidator(fn func(asset string) int) Option {
	return func(c *Catalog) {
		c.invalidate = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// Catalog is a thread-safe index of the assets in a backend.
type Catalog struct {
	backend    storage.Backend
	root       string
	extensions map[string]bool
	sidecars   []string
	invalidate func(string) int
	logger     *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	assets  map[string]Asset
	scanned bool
}

// New creates an empty catalog over backend. Call Refresh to populate it.
func New(backend storage.Backend, opts ...Option) *Catalog {
	c := &Catalog{
		backend:    backend,
		extensions: normalize(DefaultExtensions),
		sidecars:   DefaultSidecarExtensions,
		logger:     slog.New(slog.DiscardHandler),
		assets:     make(map[string]Asset),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normalize(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = true
	}
	return m
}

// Scan walks the backend and returns the assets found, keyed by ID. It does
// not modify the catalog.
func (c *Catalog) Scan(ctx context.Context) (map[string]Asset, error) {
	found := make(map[string]Asset)
	if err := c.walk(ctx, c.root, found); err != nil {
		return nil, err
	}
	return found, nil
}

func (c *Catalog) walk(ctx context.Context, dir string, found map[string]Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := c.backend.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("list %q: %w", dir, err)
	}

	files := make(map[string]storage.Entry, len(entries))
	for _, e := range entries {
		if !e.IsDir {
			files[e.Name] = e
		}
	}

	for _, e := range entries {
		if e.IsDir {
			if err := c.walk(ctx, e.Path, found); err != nil {
				return err
			}
			continue
		}
		ext := strings.ToLower(path.Ext(e.Name))
		if !c.extensions[ext] {
			continue
		}
		base := strings.TrimSuffix(e.Name, path.Ext(e.Name))
		a := Asset{
			ID:      IDFor(e.Path),
			Path:    e.Path,
			Name:    e.Name,
			Size:    e.Size,
			ModTime: e.ModTime,
		}
		for _, sc := range c.sidecars {
			if side, ok := files[base+sc]; ok {
				a.Meta = append(a.Meta, side.Path)
			}
		}
		found[a.ID] = a
	}
	return nil
}

// Refresh rescans the backend and replaces the catalog contents. Concurrent
// calls share one scan. Assets whose size changed or that disappeared are
// passed to the invalidator. It returns the number of changed assets.
func (c *Catalog) Refresh(ctx context.Context) (int, error) {
	v, err, shared := c.group.Do("refresh", func() (any, error) {
		start := time.Now()
		found, err := c.Scan(ctx)
		if err != nil {
			return 0, err
		}

		c.mu.Lock()
		old := c.assets
		c.assets = found
		c.scanned = true
		c.mu.Unlock()

		var changed []string
		for id, prev := range old {
			cur, ok := found[id]
			if !ok || cur.Size != prev.Size || !cur.ModTime.Equal(prev.ModTime) {
				changed = append(changed, id)
			}
		}
		if c.invalidate != nil {
			for _, id := range changed {
				c.invalidate(id)
				c.invalidate(id + MetaSuffix)
			}
		}

		c.logger.Info("catalog refreshed",
			"assets", len(found),
			"changed", len(changed),
			"duration", time.Since(start),
		)
		return len(changed), nil
	})
	if err != nil {
		return 0, err
	}
	if shared {
		c.logger.Debug("catalog refresh shared with concurrent caller")
	}
	return v.(int), nil
}

// Asset returns the asset with the given ID.
func (c *Catalog) Asset(id string) (Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[id]
	return a, ok
}

// Assets returns all assets sorted by path.
func (c *Catalog) Assets() []Asset {
	c.mu.RLock()
	out := make([]Asset, 0, len(c.assets))
	for _, a := range c.assets {
		out = append(out, a)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of assets.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}

// Save writes the catalog as a JSON array to w.
func (c *Catalog) Save(w io.Writer, cd codec.Codec) error {
	c.mu.RLock()
	scanned := c.scanned
	c.mu.RUnlock()
	if !scanned {
		return ErrNotScanned
	}
	return codec.Encode(w, cd, c.Assets())
}

// Load replaces the catalog contents with a JSON array written by Save.
func (c *Catalog) Load(r io.Reader, cd codec.Codec) error {
	var list []Asset
	if err := codec.Decode(r, cd, &list); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	assets := make(map[string]Asset, len(list))
	for _, a := range list {
		if a.ID != IDFor(a.Path) {
			return fmt.Errorf("decode catalog: asset %q has id %s, want %s", a.Path, a.ID, IDFor(a.Path))
		}
		assets[a.ID] = a
	}

	c.mu.Lock()
	c.assets = assets
	c.scanned = true
	c.mu.Unlock()
	return nil
}
