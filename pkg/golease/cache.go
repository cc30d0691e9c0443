package golease

import (
	"context"
	"sync"
	"time"
)

// RateCache is the in-process (or shared) cache in front of the RateStore.
// Implementations must be safe for concurrent use.
type RateCache interface {
	// Get returns the cached record for date and true if found
	Get(ctx context.Context, date Date) (*RateRecord, bool)

	// Set stores a record under rec.Date with TTL
	Set(ctx context.Context, rec *RateRecord, ttl time.Duration)

	// LatestOnOrBefore returns the cached record with the greatest date <= date
	LatestOnOrBefore(ctx context.Context, date Date) (*RateRecord, bool)

	// Invalidate removes the record for date
	Invalidate(ctx context.Context, date Date)

	// Clear removes all entries from the cache
	Clear()

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// cacheEntry wraps a cached value with expiration time and access time for LRU
type cacheEntry struct {
	value      RateRecord
	expiration time.Time
	accessTime time.Time // For LRU eviction
	sequence   int64     // For tiebreaking when access times are equal
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// NoopRateCache is a cache implementation that does nothing
// Used when caching is disabled
type NoopRateCache struct{}

// NewNoopRateCache creates a new no-op cache
func NewNoopRateCache() *NoopRateCache {
	return &NoopRateCache{}
}

func (c *NoopRateCache) Get(_ context.Context, _ Date) (*RateRecord, bool) { return nil, false }

func (c *NoopRateCache) Set(_ context.Context, _ *RateRecord, _ time.Duration) {}

func (c *NoopRateCache) LatestOnOrBefore(_ context.Context, _ Date) (*RateRecord, bool) {
	return nil, false
}

func (c *NoopRateCache) Invalidate(_ context.Context, _ Date) {}

func (c *NoopRateCache) Clear() {}

func (c *NoopRateCache) Stats() CacheStats { return CacheStats{} }

// LRURateCache implements RateCache using an in-memory LRU map with TTL support
type LRURateCache struct {
	entries    map[Date]*cacheEntry
	maxEntries int
	mu         sync.Mutex
	hits       int64
	misses     int64
	evictions  int64
	sequence   int64
	now        func() time.Time
}

// NewLRURateCache creates a new LRU cache holding at most maxEntries dates
func NewLRURateCache(maxEntries int) *LRURateCache {
	if maxEntries <= 0 {
		maxEntries = 1000 // default
	}
	return &LRURateCache{
		entries:    make(map[Date]*cacheEntry, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *LRURateCache) Get(_ context.Context, date Date) (*RateRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, exists := c.entries[date]
	if !exists || entry.isExpired(now) {
		c.misses++
		return nil, false
	}

	entry.accessTime = now
	c.hits++
	// Return a copy to prevent external modifications
	rec := entry.value
	return &rec, true
}

func (c *LRURateCache) Set(_ context.Context, rec *RateRecord, ttl time.Duration) {
	if rec == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	_, exists := c.entries[rec.Date]

	// Evict if at capacity and entry doesn't exist
	if len(c.entries) >= c.maxEntries && !exists {
		c.evictOldest()
	}

	var expiration time.Time
	if ttl > 0 {
		expiration = now.Add(ttl)
	}
	seq := c.sequence
	c.sequence++
	c.entries[rec.Date] = &cacheEntry{
		value:      *rec,
		expiration: expiration,
		accessTime: now,
		sequence:   seq,
	}
}

// evictOldest removes the least recently used entry (oldest accessTime, then oldest sequence)
func (c *LRURateCache) evictOldest() {
	var oldestKey Date
	var oldestTime time.Time
	var oldestSeq int64
	first := true
	for key, entry := range c.entries {
		if first || entry.accessTime.Before(oldestTime) ||
			(entry.accessTime.Equal(oldestTime) && entry.sequence < oldestSeq) {
			oldestKey = key
			oldestTime = entry.accessTime
			oldestSeq = entry.sequence
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

func (c *LRURateCache) LatestOnOrBefore(_ context.Context, date Date) (*RateRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var best *cacheEntry
	for key, entry := range c.entries {
		if key.After(date) || entry.isExpired(now) {
			continue
		}
		if best == nil || key.After(best.value.Date) {
			best = entry
		}
	}
	if best == nil {
		c.misses++
		return nil, false
	}
	best.accessTime = now
	c.hits++
	rec := best.value
	return &rec, true
}

func (c *LRURateCache) Invalidate(_ context.Context, date Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, date)
}

func (c *LRURateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Date]*cacheEntry, c.maxEntries)
}

func (c *LRURateCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}
