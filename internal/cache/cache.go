// Package cache implements the cascade cache: an in-process L1 tier backed
// by an optional Redis L2 tier, fronting the storage gateway's L3 (the
// database itself, which every miss falls through to by the caller issuing
// its normal query). Adapted from the teacher's internal/performance cache
// manager, which layers the same L1/L2/L3 terminology over its own
// CacheManager, generalized here from an in-process-only store to one that
// spans a network hop and therefore needs breaker protection and its own
// hit-rate bookkeeping per tier.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"mnemolite/internal/circuitbreaker"
	"mnemolite/internal/config"
	"mnemolite/internal/logging"
)

// Cascade is the two-tier cache: every Get checks L1 first, then L2 on
// miss (promoting the value back into L1), and every Set writes through
// both tiers. L2 is optional — constructed only when a Redis URL is
// configured — so the cascade degrades to L1-only when Redis is absent or
// persistently failing.
type Cascade struct {
	l1 *l1Cache
	l2 *l2Cache

	mu    sync.Mutex
	stats Stats
}

// New builds the cascade from configuration. L2 is attempted but its
// absence (bad URL, unreachable host) only disables that tier; it is never
// fatal to starting the engine, matching spec.md §4.7's degrade-to-L1
// requirement.
func New(cfg config.CacheConfig, breakerCfg *circuitbreaker.Config) *Cascade {
	c := &Cascade{l1: newL1Cache(cfg.L1MaxBytes, cfg.L1TTL)}

	if cfg.L2URL == "" {
		return c
	}

	l2, err := newL2Cache(cfg.L2URL, cfg.L2TTL, breakerCfg)
	if err != nil {
		logging.CacheLogger.Warn("l2 cache disabled: invalid redis url", "error", err.Error())
		return c
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := l2.ping(pingCtx); err != nil {
		logging.CacheLogger.Warn("l2 cache disabled: redis unreachable", "error", err.Error())
		return c
	}

	c.l2 = l2
	return c
}

// Get checks L1, then L2, promoting an L2 hit back into L1 so subsequent
// reads avoid the network hop.
func (c *Cascade) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, ok := c.l1.get(key); ok {
		c.recordHit(tierL1)
		return value, true, nil
	}
	c.recordMiss(tierL1)

	if c.l2 == nil {
		return nil, false, nil
	}

	value, ok, err := c.l2.get(ctx, key)
	if err != nil {
		c.recordMiss(tierL2)
		return nil, false, nil // breaker trips degrade silently to a miss
	}
	if !ok {
		c.recordMiss(tierL2)
		return nil, false, nil
	}

	c.recordHit(tierL2)
	c.l1.set(key, value, 0)
	return value, true, nil
}

// Set writes to both tiers. An L2 write failure (breaker open, network
// error) is logged and swallowed; L1 still holds the value.
func (c *Cascade) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.l1.set(key, value, ttl)
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.set(ctx, key, value, ttl); err != nil {
		logging.CacheLogger.Warn("l2 cache write failed", "key", key, "error", err.Error())
	}
	return nil
}

// InvalidateFile drops every cached entry derived from one file: its own
// chunk listing plus any search result that may have included it. Per
// spec.md §4.7, the file entry is matched by substring (`file:<path>`) and
// every `search:*` entry is cleared unconditionally afterward.
func (c *Cascade) InvalidateFile(ctx context.Context, repository, filePath string) {
	c.invalidatePattern(ctx, "file:"+filePath)
	c.invalidatePattern(ctx, "search:")
}

// InvalidateRepository drops every cache entry whose key contains the
// repository name, plus every search result, since a full reindex can
// change any ranking.
func (c *Cascade) InvalidateRepository(ctx context.Context, repository string) {
	c.invalidatePattern(ctx, repository)
	c.invalidatePattern(ctx, "search:")
}

// InvalidateMemory drops cached memory listings and searches; memory CRUD
// does not carry enough structure to target individual cache entries.
func (c *Cascade) InvalidateMemory(ctx context.Context) {
	c.invalidatePattern(ctx, "memory_list:")
	c.invalidatePattern(ctx, "memory_search:")
}

func (c *Cascade) invalidate(ctx context.Context, key string) {
	c.l1.delete(key)
	if c.l2 != nil {
		_ = c.l2.delete(ctx, key)
	}
}

func (c *Cascade) invalidatePattern(ctx context.Context, substr string) {
	c.l1.deletePattern(substr)
	if c.l2 != nil {
		_ = c.l2.deletePattern(ctx, "*"+substr+"*")
	}
}

// Flush clears every tier entirely.
func (c *Cascade) Flush(ctx context.Context) error {
	c.l1.clear()
	if c.l2 != nil {
		return c.l2.deletePattern(ctx, "*")
	}
	return nil
}

// Close releases the L2 client, if any.
func (c *Cascade) Close() error {
	if c.l2 != nil {
		return c.l2.close()
	}
	return nil
}

// Breaker returns the circuit breaker guarding the L2 tier, or nil when no
// L2 is configured. Used by the kernel to surface cache health via Health().
func (c *Cascade) Breaker() *circuitbreaker.CircuitBreaker {
	if c.l2 == nil {
		return nil
	}
	return c.l2.breaker
}

type tier int

const (
	tierL1 tier = iota
	tierL2
)

// Stats reports tiered hit/miss counts and the effective combined hit
// rate: H1 + (1-H1)*H2, the probability a request is satisfied without
// reaching L3 (the database) at all.
type Stats struct {
	L1Hits   int64
	L1Misses int64
	L2Hits   int64
	L2Misses int64
}

func (c *Cascade) recordHit(t tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch t {
	case tierL1:
		c.stats.L1Hits++
	case tierL2:
		c.stats.L2Hits++
	}
}

func (c *Cascade) recordMiss(t tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch t {
	case tierL1:
		c.stats.L1Misses++
	case tierL2:
		c.stats.L2Misses++
	}
}

// Stats returns a snapshot of tier hit/miss counters and the derived
// effective hit rate.
func (c *Cascade) Stats() (Stats, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.stats

	l1Total := snapshot.L1Hits + snapshot.L1Misses
	var h1 float64
	if l1Total > 0 {
		h1 = float64(snapshot.L1Hits) / float64(l1Total)
	}

	l2Total := snapshot.L2Hits + snapshot.L2Misses
	var h2 float64
	if l2Total > 0 {
		h2 = float64(snapshot.L2Hits) / float64(l2Total)
	}

	effective := h1 + (1-h1)*h2
	return snapshot, effective
}

// Key builders. Only SearchKey carries a version tag ("v1"), so a future
// change to the fused-result shape can be rolled out without colliding with
// stale search entries left by a prior binary; the chunk and memory keys
// are unversioned.

// SearchKey derives a cache key for a fused hybrid/lexical/vector search
// from its fully-resolved request parameters, hashed because the raw query
// text plus filters can be arbitrarily long.
func SearchKey(kind, repository, query string, filters string, limit int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", repository, query, filters, limit)))
	return fmt.Sprintf("search:v1:%s:%s", kind, hex.EncodeToString(h[:]))
}

// ChunksByRepositoryKey caches a repository's full chunk listing.
func ChunksByRepositoryKey(repository string) string {
	return fmt.Sprintf("chunks:repo:%s", repository)
}

// ChunksByFileKey caches one file's chunk listing within a repository.
func ChunksByFileKey(repository, filePath string) string {
	return fmt.Sprintf("chunks:file:%s:%s", repository, filePath)
}

// MemoryListKey caches a memory listing request, hashed over its filters
// and pagination since those vary per caller.
func MemoryListKey(filters string) string {
	h := sha256.Sum256([]byte(filters))
	return fmt.Sprintf("memory_list:%s", hex.EncodeToString(h[:]))
}

// MemorySearchKey caches a memory vector-search request.
func MemorySearchKey(query string, limit int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", query, limit)))
	return fmt.Sprintf("memory_search:%s", hex.EncodeToString(h[:]))
}
