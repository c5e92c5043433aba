package chunk

import (
	"container/list"
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/hupe1980/mediacache/blobstore"
)

// DefaultCapacity is the number of sequences a Cache keeps by default.
const DefaultCapacity = 4

// EvictReason says why an entry left the cache.
type EvictReason uint8

const (
	EvictCapacity EvictReason = iota // least recently used under capacity pressure
	EvictFailed                      // fetch ended with NotFound or Error
	EvictExplicit                    // Evict or Invalidate
	EvictPurge                       // Purge
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictFailed:
		return "failed"
	case EvictExplicit:
		return "explicit"
	case EvictPurge:
		return "purge"
	default:
		return "unknown"
	}
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Len       int   `json:"len"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCapacity sets the maximum number of entries. Values below 1 are ignored.
func WithCapacity(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithLogger sets the logger used by the cache and its sequences.
func WithLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEvictionHook registers fn to be called after an entry was evicted.
// The hook runs without the cache lock held.
func WithEvictionHook(fn func(Key, EvictReason)) CacheOption {
	return func(c *Cache) {
		c.onEvict = fn
	}
}

// Cache is a fixed capacity LRU map from Key to *Sequence.
type Cache struct {
	store    blobstore.Store
	logger   *slog.Logger
	onEvict  func(Key, EvictReason)
	capacity int

	mu        sync.Mutex
	items     map[Key]*list.Element
	evictList *list.List

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key Key
	seq *Sequence
}

type victim struct {
	key    Key
	seq    *Sequence
	reason EvictReason
}

// NewCache creates an empty cache whose sequences persist buffers in store.
func NewCache(store blobstore.Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:     store,
		logger:    slog.New(slog.DiscardHandler),
		capacity:  DefaultCapacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the sequence for key, creating it on a miss. hit is
// false exactly once per key until the entry is evicted; the caller that
// observes the miss is responsible for starting the fetch.
//
// The returned sequence carries a reference for the caller, who must call
// Release.
func (c *Cache) GetOrCreate(key Key) (seq *Sequence, hit bool) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.evictList.MoveToFront(el)
		seq = el.Value.(*cacheEntry).seq
		_ = seq.Retain() // the cache's own reference keeps it alive
		c.mu.Unlock()
		c.hits.Add(1)
		return seq, true
	}

	seq = newSequence(key, c.store, weak.Make(c), c.logger)
	_ = seq.Retain()
	c.items[key] = c.evictList.PushFront(&cacheEntry{key: key, seq: seq})

	var victims []victim
	for c.evictList.Len() > c.capacity {
		back := c.evictList.Back()
		victims = append(victims, c.removeElement(back, EvictCapacity))
	}
	c.mu.Unlock()

	c.misses.Add(1)
	c.finish(victims)
	return seq, false
}

// Lookup returns the sequence for key without creating one. A hit refreshes
// recency and carries a reference the caller must Release.
func (c *Cache) Lookup(key Key) (*Sequence, bool) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	c.evictList.MoveToFront(el)
	seq := el.Value.(*cacheEntry).seq
	_ = seq.Retain()
	c.mu.Unlock()
	return seq, true
}

// Evict removes key. It reports whether an entry was present.
func (c *Cache) Evict(key Key) bool {
	c.mu.Lock()
	el, ok := c.items[key]
	var victims []victim
	if ok {
		victims = append(victims, c.removeElement(el, EvictExplicit))
	}
	c.mu.Unlock()

	c.finish(victims)
	return ok
}

// evictFailed removes key only while it still maps to seq.
func (c *Cache) evictFailed(key Key, seq *Sequence) {
	c.mu.Lock()
	el, ok := c.items[key]
	var victims []victim
	if ok && el.Value.(*cacheEntry).seq == seq {
		victims = append(victims, c.removeElement(el, EvictFailed))
	}
	c.mu.Unlock()

	c.finish(victims)
}

// Invalidate removes every offset of asset and returns how many entries
// were removed.
func (c *Cache) Invalidate(asset string) int {
	c.mu.Lock()
	var victims []victim
	for key, el := range c.items {
		if key.Asset == asset {
			victims = append(victims, c.removeElement(el, EvictExplicit))
		}
	}
	c.mu.Unlock()

	c.finish(victims)
	return len(victims)
}

// Purge removes every entry.
func (c *Cache) Purge() int {
	c.mu.Lock()
	victims := make([]victim, 0, len(c.items))
	for el := c.evictList.Back(); el != nil; {
		prev := el.Prev()
		victims = append(victims, c.removeElement(el, EvictPurge))
		el = prev
	}
	c.mu.Unlock()

	c.finish(victims)
	return len(victims)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys from most to least recently used.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.items))
	for el := c.evictList.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*cacheEntry).key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	n := len(c.items)
	c.mu.Unlock()
	return CacheStats{
		Len:       n,
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// removeElement unlinks el. Must be called with c.mu held.
func (c *Cache) removeElement(el *list.Element, reason EvictReason) victim {
	ent := c.evictList.Remove(el).(*cacheEntry)
	delete(c.items, ent.key)
	return victim{key: ent.key, seq: ent.seq, reason: reason}
}

// finish drops the cache's reference of each victim. Must be called without
// c.mu held since releasing may remove blobs.
func (c *Cache) finish(victims []victim) {
	for _, v := range victims {
		c.evictions.Add(1)
		v.seq.Release()
		c.logger.Debug("cache entry evicted", "key", v.key.String(), "reason", v.reason.String())
		if c.onEvict != nil {
			c.onEvict(v.key, v.reason)
		}
	}
}

// EntryInfo describes one cache entry.
type EntryInfo struct {
	Key    Key    `json:"key"`
	Bytes  int64  `json:"bytes"`
	Size   int64  `json:"size"` // -1 if unknown
	Status string `json:"status"`
}

// Entries describes the entries from most to least recently used without
// touching recency.
func (c *Cache) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EntryInfo, 0, len(c.items))
	for el := c.evictList.Front(); el != nil; el = el.Next() {
		ent := el.Value.(*cacheEntry)
		size, _ := ent.seq.AllBytes()
		out = append(out, EntryInfo{
			Key:    ent.key,
			Bytes:  ent.seq.CurrentBytes(),
			Size:   size,
			Status: ent.seq.Status().String(),
		})
	}
	return out
}
