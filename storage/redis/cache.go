package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/golease/pkg/golease"
)

// RateCache implements golease.RateCache on Redis so several processes share
// the rates they resolved.
type RateCache struct {
	client redis.UniversalClient
	prefix string

	hits   int64
	misses int64
}

// NewRateCache creates a shared rate cache. Keys are prefixed with
// keyPrefix + "ratecache:".
func NewRateCache(client redis.UniversalClient, keyPrefix string) *RateCache {
	if keyPrefix == "" {
		keyPrefix = "golease:"
	}
	return &RateCache{client: client, prefix: keyPrefix + "ratecache:"}
}

func (c *RateCache) key(date golease.Date) string {
	return c.prefix + date.String()
}

func (c *RateCache) indexKey() string {
	return c.prefix + "index"
}

func (c *RateCache) Get(ctx context.Context, date golease.Date) (*golease.RateRecord, bool) {
	rec, err := getRecord(ctx, c.client, c.key(date))
	if err != nil || rec == nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return rec, true
}

func (c *RateCache) Set(ctx context.Context, rec *golease.RateRecord, ttl time.Duration) {
	if rec == nil || rec.Date.IsZero() {
		return
	}
	if ttl < 0 {
		ttl = 0
	}
	_ = setRecord(ctx, c.client, c.indexKey(), c.key(rec.Date), rec, ttl) //nolint:errcheck // cache write is best-effort
}

func (c *RateCache) LatestOnOrBefore(ctx context.Context, date golease.Date) (*golease.RateRecord, bool) {
	rec, err := latestOnOrBefore(ctx, c.client, c.indexKey(), c.key, date)
	if err != nil || rec == nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return rec, true
}

func (c *RateCache) Invalidate(ctx context.Context, date golease.Date) {
	_, _ = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error { //nolint:errcheck
		pipe.Del(ctx, c.key(date))
		pipe.ZRem(ctx, c.indexKey(), date.String())
		return nil
	})
}

// Clear removes every cached rate.
func (c *RateCache) Clear() {
	ctx := context.Background()
	members, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, c.prefix+m)
	}
	keys = append(keys, c.indexKey())
	_ = c.client.Del(ctx, keys...).Err() //nolint:errcheck
}

func (c *RateCache) Stats() golease.CacheStats {
	size, _ := c.client.ZCard(context.Background(), c.indexKey()).Result()
	return golease.CacheStats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Size:   int(size),
	}
}
