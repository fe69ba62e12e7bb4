package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CacheService stores JSON-encoded read-model responses in Redis
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyPerformance is for performance summaries
	CacheKeyPerformance CacheKeyType = "perf"
	// CacheKeySignals is for anomaly signal results
	CacheKeySignals CacheKeyType = "signals"
	// CacheKeyAPY is for realized APY tables
	CacheKeyAPY CacheKeyType = "apy"
	// CacheKeyLatest is for the latest snapshot
	CacheKeyLatest CacheKeyType = "latest"
)

// GenerateCacheKey generates a cache key for a given type and parameters.
// Format: <type>:<param1>:<param2>:...
// Parameters keep their case because SS58 addresses are case sensitive.
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := append([]string{string(keyType)}, params...)
	return strings.Join(parts, ":")
}

// PerformanceKey is perf:<address>:<days>
func (c *CacheService) PerformanceKey(address string, days int) string {
	return c.GenerateCacheKey(CacheKeyPerformance, address, fmt.Sprint(days))
}

// SignalsKey is signals:<address>:<day>
func (c *CacheService) SignalsKey(address, day string) string {
	return c.GenerateCacheKey(CacheKeySignals, address, day)
}

// APYKey is apy:<address>
func (c *CacheService) APYKey(address string) string {
	return c.GenerateCacheKey(CacheKeyAPY, address)
}

// LatestKey is latest:<address>
func (c *CacheService) LatestKey(address string) string {
	return c.GenerateCacheKey(CacheKeyLatest, address)
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl)
}

// Get retrieves a value from cache and deserializes it.
// A missing key is a miss, not an error.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a pattern
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.Scan(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	return c.redis.Del(ctx, keys...)
}

// InvalidateAddress drops every cached read model for an address.
// Called after a snapshot or metric write.
func (c *CacheService) InvalidateAddress(ctx context.Context, address string) error {
	for _, keyType := range []CacheKeyType{CacheKeyPerformance, CacheKeySignals, CacheKeyAPY, CacheKeyLatest} {
		pattern := c.GenerateCacheKey(keyType, address) + "*"
		if err := c.InvalidatePattern(ctx, pattern); err != nil {
			return fmt.Errorf("failed to invalidate %s cache: %w", keyType, err)
		}
	}
	return nil
}

// GetTTL returns the configured TTL for this cache service
func (c *CacheService) GetTTL() time.Duration {
	return c.ttl
}
