package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"

func setupTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })

	return NewCacheService(cache, time.Minute), mr
}

type cachedSummary struct {
	Days  int     `json:"days"`
	Value *string `json:"value"`
}

func TestCacheService_Keys(t *testing.T) {
	svc, _ := setupTestCache(t)

	assert.Equal(t, "perf:"+testAddress+":30", svc.PerformanceKey(testAddress, 30))
	assert.Equal(t, "signals:"+testAddress+":2024-03-10", svc.SignalsKey(testAddress, "2024-03-10"))
	assert.Equal(t, "apy:"+testAddress, svc.APYKey(testAddress))
	assert.Equal(t, "latest:"+testAddress, svc.LatestKey(testAddress))

	// SS58 is case sensitive
	assert.NotEqual(t, svc.APYKey("5Abc"), svc.APYKey("5abc"))
}

func TestCacheService_SetGet(t *testing.T) {
	svc, mr := setupTestCache(t)
	ctx := context.Background()

	t.Run("miss is not an error", func(t *testing.T) {
		var out cachedSummary
		found, err := svc.Get(ctx, "perf:nobody:7", &out)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("round trip keeps nulls", func(t *testing.T) {
		key := svc.PerformanceKey(testAddress, 7)
		require.NoError(t, svc.Set(ctx, key, cachedSummary{Days: 7}))

		var out cachedSummary
		found, err := svc.Get(ctx, key, &out)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 7, out.Days)
		assert.Nil(t, out.Value)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		key := svc.APYKey(testAddress)
		require.NoError(t, svc.SetWithTTL(ctx, key, cachedSummary{Days: 1}, time.Second))

		mr.FastForward(2 * time.Second)

		var out cachedSummary
		found, err := svc.Get(ctx, key, &out)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("corrupt value is an error", func(t *testing.T) {
		require.NoError(t, mr.Set("latest:broken", "{not json"))

		var out cachedSummary
		found, err := svc.Get(ctx, "latest:broken", &out)
		assert.Error(t, err)
		assert.False(t, found)
	})
}

func TestCacheService_InvalidateAddress(t *testing.T) {
	svc, mr := setupTestCache(t)
	ctx := context.Background()

	other := "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	keys := []string{
		svc.PerformanceKey(testAddress, 7),
		svc.PerformanceKey(testAddress, 30),
		svc.SignalsKey(testAddress, "2024-03-10"),
		svc.APYKey(testAddress),
		svc.LatestKey(testAddress),
	}
	for _, k := range keys {
		require.NoError(t, svc.Set(ctx, k, cachedSummary{Days: 1}))
	}
	require.NoError(t, svc.Set(ctx, svc.APYKey(other), cachedSummary{Days: 1}))

	require.NoError(t, svc.InvalidateAddress(ctx, testAddress))

	for _, k := range keys {
		assert.False(t, mr.Exists(k), "key %s should be gone", k)
	}
	assert.True(t, mr.Exists(svc.APYKey(other)))
}

func TestCacheService_InvalidatePatternEmpty(t *testing.T) {
	svc, _ := setupTestCache(t)
	assert.NoError(t, svc.InvalidatePattern(context.Background(), "nothing:*"))
	assert.NoError(t, svc.Invalidate(context.Background()))
}

func TestRedisCache_GetMiss(t *testing.T) {
	_, mr := setupTestCache(t)
	cache := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer func() { _ = cache.Close() }()

	_, err := cache.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
