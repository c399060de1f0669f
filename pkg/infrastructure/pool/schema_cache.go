// Package pool holds reusable Arrow structures shared across requests.
package pool

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// entry holds bookkeeping for one schema.
type entry struct {
	key       string
	schema    *arrow.Schema
	createdAt time.Time
	lastUsed  atomic.Int64 // unix nanos
	hits      atomic.Int64
}

// SchemaCache is an O(1) LRU cache of Arrow schemas keyed by field signature.
// Repeated runs of the same query produce the same signature, so their
// records share one schema instance.
type SchemaCache struct {
	cap    int
	mu     sync.Mutex
	lru    *list.List               // front = most‑recent
	items  map[string]*list.Element // signature → *list.Element
	misses atomic.Int64
}

// NewSchemaCache returns a cache with a given maximum size (>0).
func NewSchemaCache(max int) *SchemaCache {
	if max <= 0 {
		max = 100
	}
	return &SchemaCache{
		cap:   max,
		lru:   list.New(),
		items: make(map[string]*list.Element, max),
	}
}

// Get returns the cached schema for key (updates LRU & stats) or nil/false.
func (c *SchemaCache) Get(key string) (*arrow.Schema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		c.touch(ele)
		return ele.Value.(*entry).schema, true
	}
	c.misses.Add(1)
	return nil, false
}

// GetOrCreate returns the cached schema for key, building and caching it on a miss.
func (c *SchemaCache) GetOrCreate(key string, build func() *arrow.Schema) *arrow.Schema {
	if s, ok := c.Get(key); ok {
		return s
	}
	s := build()
	c.Put(key, s)
	return s
}

// Put inserts the schema or refreshes its position if already cached.
func (c *SchemaCache) Put(key string, s *arrow.Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		ele.Value.(*entry).schema = s
		c.touch(ele)
		return
	}

	e := &entry{
		key:       key,
		schema:    s,
		createdAt: time.Now(),
	}
	e.lastUsed.Store(e.createdAt.UnixNano())

	c.items[key] = c.lru.PushFront(e)

	if len(c.items) > c.cap {
		c.evictOldest()
	}
}

// touch moves ele to the front and records a hit (caller holds the lock).
func (c *SchemaCache) touch(ele *list.Element) {
	c.lru.MoveToFront(ele)
	e := ele.Value.(*entry)
	e.hits.Add(1)
	e.lastUsed.Store(time.Now().UnixNano())
}

// evictOldest removes the LRU element (caller holds the lock).
func (c *SchemaCache) evictOldest() {
	ele := c.lru.Back()
	if ele == nil {
		return
	}
	c.lru.Remove(ele)
	delete(c.items, ele.Value.(*entry).key)
}

// Clear empties the cache.
func (c *SchemaCache) Clear() {
	c.mu.Lock()
	c.lru.Init()
	c.items = make(map[string]*list.Element, c.cap)
	c.mu.Unlock()
}

// Size returns the current number of cached schemas.
func (c *SchemaCache) Size() int {
	c.mu.Lock()
	n := len(c.items)
	c.mu.Unlock()
	return n
}

// CacheStats contains live statistics.
type CacheStats struct {
	Size      int
	Cap       int
	TotalHits int64
	Misses    int64
	OldestAge time.Duration
}

// Stats gathers statistics (O(n), called rarely).
func (c *SchemaCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		total int64
		old   time.Time
	)

	for e := c.lru.Back(); e != nil; e = e.Prev() {
		ent := e.Value.(*entry)
		total += ent.hits.Load()
		if old.IsZero() || ent.createdAt.Before(old) {
			old = ent.createdAt
		}
	}

	age := time.Duration(0)
	if !old.IsZero() {
		age = time.Since(old)
	}
	return CacheStats{
		Size:      len(c.items),
		Cap:       c.cap,
		TotalHits: total,
		Misses:    c.misses.Load(),
		OldestAge: age,
	}
}
