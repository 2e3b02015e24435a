package retrieval

import (
	"sync"
	"sync/atomic"
)

// #region counter
// Counter hands out monotonically increasing session numbers.
type Counter interface {
	Next() uint64
}

// SessionCounter is an in-process Counter.
type SessionCounter struct {
	n atomic.Uint64
}

// NewSessionCounter starts counting at start.
func NewSessionCounter(start uint64) *SessionCounter {
	c := &SessionCounter{}
	c.n.Store(start)
	return c
}

// Next returns the current value and advances.
func (c *SessionCounter) Next() uint64 {
	return c.n.Add(1) - 1
}

// #endregion counter

// #region rotation-cache
// RotationCache remembers the ranked top-K example ids per brief hash.
// Oldest entries are evicted first once the cache is full.
type RotationCache struct {
	mu      sync.Mutex
	max     int
	order   []string
	entries map[string]cacheEntry
}

type cacheEntry struct {
	ids    []string
	source Source
}

// NewRotationCache creates a cache holding at most max briefs.
func NewRotationCache(max int) *RotationCache {
	if max <= 0 {
		max = 1
	}
	return &RotationCache{max: max, entries: make(map[string]cacheEntry)}
}

// Get returns the cached ranking for a brief hash.
func (c *RotationCache) Get(hash string) ([]string, Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash]
	return e.ids, e.source, ok
}

// Put stores a ranking.
func (c *RotationCache) Put(hash string, ids []string, source Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[hash]; !ok {
		c.order = append(c.order, hash)
	}
	c.entries[hash] = cacheEntry{ids: append([]string(nil), ids...), source: source}
	for len(c.order) > c.max {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

// Len reports how many briefs are cached.
func (c *RotationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Rotate returns ids starting at offset mod len(ids), wrapping around.
func Rotate(ids []string, offset uint64) []string {
	if len(ids) == 0 {
		return nil
	}
	start := int(offset % uint64(len(ids)))
	out := make([]string, 0, len(ids))
	out = append(out, ids[start:]...)
	return append(out, ids[:start]...)
}

// #endregion rotation-cache
