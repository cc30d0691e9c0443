// Package redis provides a Redis implementation of golease.RateStore,
// golease.RateCache and golease.YearlyTotalsCache.
//
// Rates are stored as JSON strings keyed by date, with a sorted set indexing
// the dates (score yyyymmdd) for on-or-before lookups.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/golease/pkg/golease"
)

// Storage implements golease.RateStore and golease.YearlyTotalsCache using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "golease:")
	KeyPrefix string

	// RateTTL is the TTL for stored rate records (0 = no expiration)
	RateTTL time.Duration

	// YearlyTotalsTTL is the TTL for cached yearly totals (0 = no expiration)
	YearlyTotalsTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:       "golease:",
		RateTTL:         0, // Published rates never change
		YearlyTotalsTTL: 24 * time.Hour,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	// Set defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "golease:"
	}

	return &Storage{client: client, config: config}, nil
}

// GetRate implements golease.RateStore
func (s *Storage) GetRate(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	return getRecord(ctx, s.client, s.rateKey(date))
}

// GetLatestRateOnOrBefore implements golease.RateStore
func (s *Storage) GetLatestRateOnOrBefore(ctx context.Context, date golease.Date) (*golease.RateRecord, error) {
	return latestOnOrBefore(ctx, s.client, s.rateIndexKey(), s.rateKey, date)
}

// UpsertRate implements golease.RateStore
func (s *Storage) UpsertRate(ctx context.Context, rec *golease.RateRecord) error {
	if rec == nil || rec.Date.IsZero() {
		return fmt.Errorf("invalid rate record")
	}
	return setRecord(ctx, s.client, s.rateIndexKey(), s.rateKey(rec.Date), rec, s.config.RateTTL)
}

// GetYearlyTotals implements golease.YearlyTotalsCache
func (s *Storage) GetYearlyTotals(ctx context.Context, contractID string, year int) (*golease.YearlyTotals, error) {
	data, err := s.client.HGet(ctx, s.yearlyKey(contractID), strconv.Itoa(year)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get yearly totals: %w", err)
	}

	var t golease.YearlyTotals
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yearly totals: %w", err)
	}
	return &t, nil
}

// SetYearlyTotals implements golease.YearlyTotalsCache
func (s *Storage) SetYearlyTotals(ctx context.Context, t *golease.YearlyTotals) error {
	if t == nil || t.ContractID == "" {
		return fmt.Errorf("invalid yearly totals")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal yearly totals: %w", err)
	}

	key := s.yearlyKey(t.ContractID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.Itoa(t.Year), data)
		if s.config.YearlyTotalsTTL > 0 {
			pipe.Expire(ctx, key, s.config.YearlyTotalsTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set yearly totals: %w", err)
	}
	return nil
}

// InvalidateYearlyCache implements golease.YearlyTotalsCache
func (s *Storage) InvalidateYearlyCache(ctx context.Context, contractID string) error {
	if err := s.client.Del(ctx, s.yearlyKey(contractID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate yearly totals: %w", err)
	}
	return nil
}

func (s *Storage) rateKey(date golease.Date) string {
	return s.config.KeyPrefix + "rate:" + date.String()
}

func (s *Storage) rateIndexKey() string {
	return s.config.KeyPrefix + "rates"
}

func (s *Storage) yearlyKey(contractID string) string {
	return s.config.KeyPrefix + "yearly:" + contractID
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// dateScore orders dates in the index.
func dateScore(d golease.Date) float64 {
	return float64(d.Year*10000 + int(d.Month)*100 + d.Day)
}

func getRecord(ctx context.Context, client redis.UniversalClient, key string) (*golease.RateRecord, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // No record is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}

	var rec golease.RateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rate: %w", err)
	}
	return &rec, nil
}

func setRecord(ctx context.Context, client redis.UniversalClient, indexKey, key string,
	rec *golease.RateRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal rate: %w", err)
	}

	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: dateScore(rec.Date), Member: rec.Date.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set rate: %w", err)
	}
	return nil
}

// latestOnOrBefore walks the index downwards from date and returns the first
// record still present. Index members whose record expired are removed.
func latestOnOrBefore(ctx context.Context, client redis.UniversalClient, indexKey string,
	keyFor func(golease.Date) string, date golease.Date) (*golease.RateRecord, error) {
	const batch = 16
	max := strconv.FormatFloat(dateScore(date), 'f', 0, 64)

	for offset := int64(0); ; offset += batch {
		members, err := client.ZRevRangeByScore(ctx, indexKey, &redis.ZRangeBy{
			Min:    "-inf",
			Max:    max,
			Offset: offset,
			Count:  batch,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate index: %w", err)
		}
		if len(members) == 0 {
			return nil, nil
		}

		var stale []interface{}
		for _, m := range members {
			d, err := golease.ParseDate(m)
			if err != nil {
				stale = append(stale, m)
				continue
			}
			rec, err := getRecord(ctx, client, keyFor(d))
			if err != nil {
				return nil, err
			}
			if rec != nil {
				if len(stale) > 0 {
					_ = client.ZRem(ctx, indexKey, stale...).Err() //nolint:errcheck // best-effort pruning
				}
				return rec, nil
			}
			stale = append(stale, m)
		}
		if len(stale) > 0 && client.ZRem(ctx, indexKey, stale...).Err() == nil {
			offset -= int64(len(stale))
		}
	}
}
