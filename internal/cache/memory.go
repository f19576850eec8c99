package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is the L1 cache: an LRU bounded by both entry count and bytes.
type MemoryCache struct {
	lru      *lru.Cache[string, []byte]
	capacity int64

	mu    sync.Mutex
	size  int64
	stats Stats
}

// NewMemoryCache creates a memory cache holding at most entries items and
// capacity bytes.
func NewMemoryCache(entries int, capacity int64) (*MemoryCache, error) {
	c := &MemoryCache{capacity: capacity}
	l, err := lru.NewWithEvict(entries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	c.stats.Capacity = capacity
	return c, nil
}

// onEvict runs under the lru's lock, which is always taken while c.mu is held.
func (c *MemoryCache) onEvict(_ string, value []byte) {
	c.size -= int64(len(value))
	c.stats.Evictions++
}

// Get retrieves a value and marks it recently used.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return v, true
}

// Put stores a value, evicting least recently used entries as needed.
func (c *MemoryCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(value))
	if c.capacity > 0 && n > c.capacity {
		return ErrItemTooLarge
	}

	if c.lru.Remove(key) {
		c.stats.Evictions--
	}
	for c.capacity > 0 && c.size+n > c.capacity && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}

	c.lru.Add(key, value)
	c.size += n
	return nil
}

// Delete removes an entry.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Remove(key) {
		c.stats.Evictions--
	}
	return nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	evictions := c.stats.Evictions
	c.lru.Purge()
	c.stats.Evictions = evictions
	c.size = 0
	return nil
}

// Size returns the number of cached bytes.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Contains checks for a key without updating recency.
func (c *MemoryCache) Contains(key string) bool {
	return c.lru.Contains(key)
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.size
	s.ItemCount = int64(c.lru.Len())
	s.computeHitRate()
	return s
}
