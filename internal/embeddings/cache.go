package embeddings

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"mnemolite/pkg/types"
)

// Cache is a process-local LRU cache for embedding vectors, keyed by
// (domain, sha256(text)) per spec.md §4.4. Adapted from the teacher's
// EmbeddingCache: same doubly-linked-list LRU plus TTL shape, generalized
// from a single implicit domain to the TEXT/CODE domain split.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	lru     *list.List
	maxSize int
	ttl     time.Duration

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	key        string
	value      []float32
	element    *list.Element
	createdAt  time.Time
	accessedAt time.Time
}

// NewCache creates an embedding cache bounded at maxSize entries with the
// given TTL.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a cached embedding for (domain, text).
func (c *Cache) Get(domain types.EmbeddingDomain, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(domain, text)
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		c.removeLocked(entry)
		c.misses++
		return nil, false
	}

	c.lru.MoveToFront(entry.element)
	entry.accessedAt = time.Now()
	c.hits++

	out := make([]float32, len(entry.value))
	copy(out, entry.value)
	return out, true
}

// Set stores an embedding for (domain, text), evicting the least recently
// used entry if the cache is over capacity.
func (c *Cache) Set(domain types.EmbeddingDomain, text string, vector []float32) {
	if len(vector) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(domain, text)
	now := time.Now()

	if entry, ok := c.entries[key]; ok {
		entry.value = append([]float32(nil), vector...)
		entry.createdAt = now
		entry.accessedAt = now
		c.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		key:        key,
		value:      append([]float32(nil), vector...),
		createdAt:  now,
		accessedAt: now,
	}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry

	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*cacheEntry))
		c.evictions++
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.lru = list.New()
}

// Stats reports the cache's current size and hit/miss counters.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:      c.lru.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate,
	}
}

func (c *Cache) removeLocked(entry *cacheEntry) {
	delete(c.entries, entry.key)
	c.lru.Remove(entry.element)
}

func cacheKey(domain types.EmbeddingDomain, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%x", domain, sum)
}
