package golease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRURateCache_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewLRURateCache(10)

	_, ok := cache.Get(ctx, MustParseDate("2024-06-14"))
	assert.False(t, ok)

	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-14"), Rate: 4.9771}, time.Hour)
	rec, ok := cache.Get(ctx, MustParseDate("2024-06-14"))
	require.True(t, ok)
	assert.Equal(t, 4.9771, rec.Rate)

	// returned records are copies
	rec.Rate = 1
	again, _ := cache.Get(ctx, MustParseDate("2024-06-14"))
	assert.Equal(t, 4.9771, again.Rate)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestLRURateCache_Expiration(t *testing.T) {
	ctx := context.Background()
	cache := NewLRURateCache(10)
	now := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-14"), Rate: 4.97}, time.Minute)
	now = now.Add(2 * time.Minute)

	_, ok := cache.Get(ctx, MustParseDate("2024-06-14"))
	assert.False(t, ok)
	_, ok = cache.LatestOnOrBefore(ctx, MustParseDate("2024-06-20"))
	assert.False(t, ok)
}

func TestLRURateCache_Eviction(t *testing.T) {
	ctx := context.Background()
	cache := NewLRURateCache(2)
	now := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-10"), Rate: 1}, 0)
	now = now.Add(time.Second)
	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-11"), Rate: 2}, 0)
	now = now.Add(time.Second)
	_, _ = cache.Get(ctx, MustParseDate("2024-06-10")) // touch
	now = now.Add(time.Second)
	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-12"), Rate: 3}, 0)

	_, ok := cache.Get(ctx, MustParseDate("2024-06-11"))
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = cache.Get(ctx, MustParseDate("2024-06-10"))
	assert.True(t, ok)
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestLRURateCache_LatestOnOrBefore(t *testing.T) {
	ctx := context.Background()
	cache := NewLRURateCache(10)
	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-12"), Rate: 4.96}, time.Hour)
	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-14"), Rate: 4.97}, time.Hour)
	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-18"), Rate: 4.98}, time.Hour)

	rec, ok := cache.LatestOnOrBefore(ctx, MustParseDate("2024-06-16"))
	require.True(t, ok)
	assert.Equal(t, MustParseDate("2024-06-14"), rec.Date)

	rec, ok = cache.LatestOnOrBefore(ctx, MustParseDate("2024-06-12"))
	require.True(t, ok)
	assert.Equal(t, MustParseDate("2024-06-12"), rec.Date)

	_, ok = cache.LatestOnOrBefore(ctx, MustParseDate("2024-06-01"))
	assert.False(t, ok)
}

func TestLRURateCache_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	cache := NewLRURateCache(10)
	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-12"), Rate: 4.96}, time.Hour)
	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-13"), Rate: 4.96}, time.Hour)

	cache.Invalidate(ctx, MustParseDate("2024-06-12"))
	_, ok := cache.Get(ctx, MustParseDate("2024-06-12"))
	assert.False(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestNoopRateCache(t *testing.T) {
	ctx := context.Background()
	cache := NewNoopRateCache()
	cache.Set(ctx, &RateRecord{Date: MustParseDate("2024-06-12"), Rate: 4.96}, time.Hour)
	_, ok := cache.Get(ctx, MustParseDate("2024-06-12"))
	assert.False(t, ok)
	_, ok = cache.LatestOnOrBefore(ctx, MustParseDate("2024-06-12"))
	assert.False(t, ok)
	assert.Equal(t, CacheStats{}, cache.Stats())
}
