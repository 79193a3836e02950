package cache

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// l1Shards bounds lock contention on the in-process tier; keys are routed
// to a shard by fnv hash, the same hash used by the teacher's
// internal/performance cache manager to spread its own multi-level store.
const l1Shards = 16

type l1Entry struct {
	value     []byte
	expiresAt time.Time
	size      int64
}

// l1Cache is the process-local tier: an LRU-by-recency, byte-bounded store
// with per-shard locking. Adapted from the teacher's internal/performance
// Cache (map + mutex + size accounting), generalized from one lock to
// l1Shards to match spec.md §5's "per-shard locks" concurrency note, and
// narrowed from the teacher's generic interface{} payload to []byte since
// every cascade tier stores pre-serialized values.
type l1Cache struct {
	shards    [l1Shards]*l1Shard
	maxBytes  int64
	defaultTT time.Duration

	hits   int64
	misses int64
	mu     sync.Mutex // guards hits/misses only
}

type l1Shard struct {
	mu    sync.RWMutex
	store map[string]*l1Entry
	size  int64
	order []string // approximate LRU order, oldest first
}

func newL1Cache(maxBytes int64, ttl time.Duration) *l1Cache {
	c := &l1Cache{maxBytes: maxBytes, defaultTT: ttl}
	for i := range c.shards {
		c.shards[i] = &l1Shard{store: make(map[string]*l1Entry)}
	}
	return c
}

func (c *l1Cache) shardFor(key string) *l1Shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%l1Shards]
}

func (c *l1Cache) get(key string) ([]byte, bool) {
	shard := c.shardFor(key)
	shard.mu.RLock()
	entry, ok := shard.store[key]
	shard.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		if ok {
			shard.delete(key)
		}
		return nil, false
	}

	shard.mu.Lock()
	for i, k := range shard.order {
		if k == key {
			shard.order = append(append(shard.order[:i:i], shard.order[i+1:]...), key)
			break
		}
	}
	shard.mu.Unlock()

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true
}

func (c *l1Cache) set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTT
	}
	shard := c.shardFor(key)
	entry := &l1Entry{
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
		size:      int64(len(value)),
	}
	shard.put(key, entry, c.maxBytes/l1Shards)
}

func (c *l1Cache) delete(key string) {
	c.shardFor(key).delete(key)
}

// deletePattern removes every key containing substr, the shape every
// invalidation rule in spec.md §4.7 needs (file path, repository name, or
// the literal "search:" prefix).
func (c *l1Cache) deletePattern(substr string) {
	for _, shard := range c.shards {
		shard.deleteMatching(substr)
	}
}

func (c *l1Cache) clear() {
	for _, shard := range c.shards {
		shard.clear()
	}
}

func (s *l1Shard) put(key string, entry *l1Entry, shardMaxBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.store[key]; ok {
		s.size -= old.size
	} else {
		s.order = append(s.order, key)
	}
	s.store[key] = entry
	s.size += entry.size

	for s.size > shardMaxBytes && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if old, ok := s.store[oldest]; ok {
			s.size -= old.size
			delete(s.store, oldest)
		}
	}
}

func (s *l1Shard) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.store[key]; ok {
		s.size -= old.size
		delete(s.store, key)
	}
}

func (s *l1Shard) deleteMatching(substr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.store {
		if strings.Contains(key, substr) {
			s.size -= entry.size
			delete(s.store, key)
		}
	}
}

func (s *l1Shard) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = make(map[string]*l1Entry)
	s.order = nil
	s.size = 0
}
