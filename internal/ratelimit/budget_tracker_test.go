package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// fixedClock pins the tracker to a window so tests never straddle a boundary
func fixedClock(tracker *BudgetTracker, at time.Time) {
	tracker.now = func() time.Time { return at }
}

func TestNewBudgetTracker(t *testing.T) {
	client, _ := setupTestRedis(t)

	tests := []struct {
		name    string
		cfg     *BudgetTrackerConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "configuration is required"},
		{name: "nil redis client", cfg: &BudgetTrackerConfig{}, wantErr: "redis client is required"},
		{name: "negative total", cfg: &BudgetTrackerConfig{Redis: client, TotalBudget: -1}, wantErr: "total budget cannot be negative"},
		{name: "negative reserved", cfg: &BudgetTrackerConfig{Redis: client, ReservedBudget: -1}, wantErr: "reserved budget cannot be negative"},
		{name: "reserved exceeds total", cfg: &BudgetTrackerConfig{Redis: client, TotalBudget: 10, ReservedBudget: 11}, wantErr: "cannot exceed total budget"},
		{name: "defaults", cfg: &BudgetTrackerConfig{Redis: client}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := NewBudgetTracker(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultTotalBudget, tracker.totalBudget)
			assert.Equal(t, DefaultReservedBudget, tracker.reservedBudget)
			assert.Equal(t, DefaultTotalBudget-DefaultReservedBudget, tracker.sharedBudget)
			assert.Equal(t, DefaultWindowSize, tracker.WindowSize())
		})
	}
}

func TestBudgetTracker_TryConsume(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	tracker, err := NewBudgetTracker(&BudgetTrackerConfig{
		Redis:          client,
		Name:           "taostats",
		TotalBudget:    5,
		ReservedBudget: 2,
		WindowSize:     time.Minute,
	})
	require.NoError(t, err)
	windowStart := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	fixedClock(tracker, windowStart.Add(15*time.Second))

	t.Run("shared pool is capped", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ok, _ := tracker.TryConsume(ctx, 1, PriorityLow)
			assert.True(t, ok, "request %d", i)
		}
		ok, wait := tracker.TryConsume(ctx, 1, PriorityLow)
		assert.False(t, ok)
		assert.Equal(t, 45*time.Second+time.Millisecond, wait)
	})

	t.Run("reserved pool still admits high priority", func(t *testing.T) {
		ok, _ := tracker.TryConsume(ctx, 1, PriorityHigh)
		assert.True(t, ok)
		ok, _ = tracker.TryConsume(ctx, 1, PriorityHigh)
		assert.True(t, ok)
		ok, _ = tracker.TryConsume(ctx, 1, PriorityHigh)
		assert.False(t, ok)
	})

	t.Run("usage reflects both pools", func(t *testing.T) {
		stats, err := tracker.GetUsage(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, stats.TotalUsed)
		assert.Equal(t, 2, stats.ReservedUsed)
		assert.Equal(t, 3, stats.SharedUsed)
		assert.Equal(t, windowStart, stats.WindowStart)

		avail, err := tracker.AvailableBudget(ctx, PriorityHigh)
		require.NoError(t, err)
		assert.Equal(t, 0, avail)
	})

	t.Run("next window starts fresh", func(t *testing.T) {
		fixedClock(tracker, windowStart.Add(time.Minute+time.Second))
		ok, _ := tracker.TryConsume(ctx, 1, PriorityLow)
		assert.True(t, ok)

		avail, err := tracker.AvailableBudget(ctx, PriorityLow)
		require.NoError(t, err)
		assert.Equal(t, 2, avail)
	})

	t.Run("non-positive request always passes", func(t *testing.T) {
		ok, wait := tracker.TryConsume(ctx, 0, PriorityLow)
		assert.True(t, ok)
		assert.Zero(t, wait)
	})
}

func TestBudgetTracker_RedisDownDenies(t *testing.T) {
	client, mr := setupTestRedis(t)
	tracker, err := NewBudgetTracker(&BudgetTrackerConfig{Redis: client})
	require.NoError(t, err)

	mr.Close()

	ok, wait := tracker.TryConsume(context.Background(), 1, PriorityHigh)
	assert.False(t, ok)
	assert.Positive(t, wait)
}

func TestBudgetTracker_RecordEndpointUsage(t *testing.T) {
	client, mr := setupTestRedis(t)
	tracker, err := NewBudgetTracker(&BudgetTrackerConfig{Redis: client, Name: "taostats"})
	require.NoError(t, err)
	at := time.Date(2024, 3, 10, 12, 0, 30, 0, time.UTC)
	fixedClock(tracker, at)

	ctx := context.Background()
	require.NoError(t, tracker.RecordEndpointUsage(ctx, "dtao_pool", 1))
	require.NoError(t, tracker.RecordEndpointUsage(ctx, "dtao_pool", 2))
	require.NoError(t, tracker.RecordEndpointUsage(ctx, "", 1))

	key := KeyPrefixEndpoint + "taostats:dtao_pool:" + "1710072000000"
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "3", got)
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "unknown", Priority(9).String())
}
