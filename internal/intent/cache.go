package intent

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded parse-result cache with a TTL.
//
// Eviction drops expired entries first, then least-recently-accessed ones
// until the entry count is back under capacity.
type Cache struct {
	mu    sync.Mutex
	max   int
	ttl   time.Duration
	now   func() time.Time
	items map[string]*list.Element
	lru   *list.List // front = most recently accessed

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key        string
	intent     Intent
	storedAt   time.Time
	lastAccess time.Time
}

// CacheStats is a point-in-time view of the cache.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		max:   maxEntries,
		ttl:   ttl,
		now:   time.Now,
		items: map[string]*list.Element{},
		lru:   list.New(),
	}
}

func (c *Cache) expired(e *cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) >= c.ttl
}

// Get returns a copy of the cached intent for key.
func (c *Cache) Get(key string) (Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return Intent{}, false
	}
	e := el.Value.(*cacheEntry)
	now := c.now()
	if c.expired(e, now) {
		c.removeLocked(el)
		c.misses++
		return Intent{}, false
	}
	e.lastAccess = now
	c.lru.MoveToFront(el)
	c.hits++
	return e.intent.Clone(), true
}

// Put stores a copy of in under key and evicts as needed.
func (c *Cache) Put(key string, in Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*cacheEntry)
		e.intent = in.Clone()
		e.storedAt = now
		e.lastAccess = now
		c.lru.MoveToFront(el)
		return
	}
	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, intent: in.Clone(), storedAt: now, lastAccess: now})
	if len(c.items) > c.max {
		c.evictLocked(now)
	}
}

func (c *Cache) evictLocked(now time.Time) {
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*cacheEntry), now) {
			c.removeLocked(el)
		}
		el = prev
	}
	for len(c.items) > c.max {
		c.removeLocked(c.lru.Back())
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := c.lru.Remove(el).(*cacheEntry)
	delete(c.items, e.key)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.items), Hits: c.hits, Misses: c.misses}
}
