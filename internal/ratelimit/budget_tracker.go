// Package ratelimit shares an upstream request quota across processes through Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultTotalBudget    = 60          // requests per window
	DefaultReservedBudget = 20          // reserved for wallet calls
	DefaultWindowSize     = time.Minute // fixed window
)

// Redis key prefixes for quota tracking.
const (
	KeyPrefixTotal    = "quota:total:"
	KeyPrefixReserved = "quota:reserved:"
	KeyPrefixShared   = "quota:shared:"
	KeyPrefixEndpoint = "quota:endpoint:"
)

// Priority levels for budget allocation.
type Priority int

const (
	// PriorityHigh is for wallet, stake and price calls (reserved budget).
	PriorityHigh Priority = iota
	// PriorityLow is for per-subnet fan-out (shared budget).
	PriorityLow
)

// String returns a string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// BudgetTracker coordinates upstream request consumption across processes.
// Each window has a total counter plus one counter per pool; a request must
// fit in both.
type BudgetTracker struct {
	redis          redis.Cmdable
	name           string
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
	now            func() time.Time
}

// BudgetTrackerConfig holds configuration for the budget tracker.
type BudgetTrackerConfig struct {
	// Redis is required.
	Redis redis.Cmdable

	// Name scopes the keys, e.g. "taostats".
	Name string

	// TotalBudget is the number of requests per window. Default: 60.
	TotalBudget int

	// ReservedBudget is the part of TotalBudget kept for PriorityHigh. Default: 20.
	ReservedBudget int

	// WindowSize is the window duration. Default: 1m.
	WindowSize time.Duration
}

// UsageStats contains current consumption.
type UsageStats struct {
	TotalUsed      int
	ReservedUsed   int
	SharedUsed     int
	TotalBudget    int
	ReservedBudget int
	SharedBudget   int
	WindowStart    time.Time
}

// Validate checks if the configuration is valid.
func (c *BudgetTrackerConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	total, reserved := c.budgets()
	if reserved > total {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", reserved, total)
	}
	return nil
}

func (c *BudgetTrackerConfig) budgets() (total, reserved int) {
	total = c.TotalBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	reserved = c.ReservedBudget
	if reserved == 0 {
		reserved = DefaultReservedBudget
	}
	return total, reserved
}

// NewBudgetTracker creates a new tracker with the given configuration.
func NewBudgetTracker(cfg *BudgetTrackerConfig) (*BudgetTracker, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	total, reserved := cfg.budgets()

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	return &BudgetTracker{
		redis:          cfg.Redis,
		name:           name,
		totalBudget:    total,
		reservedBudget: reserved,
		sharedBudget:   total - reserved,
		windowSize:     windowSize,
		keyTTL:         2 * windowSize,
		now:            time.Now,
	}, nil
}

func (t *BudgetTracker) windowTimestamp() int64 {
	return t.now().Truncate(t.windowSize).UnixMilli()
}

func (t *BudgetTracker) keys(windowTS int64) (totalKey, reservedKey, sharedKey string) {
	suffix := t.name + ":" + strconv.FormatInt(windowTS, 10)
	return KeyPrefixTotal + suffix, KeyPrefixReserved + suffix, KeyPrefixShared + suffix
}

var consumeScript = redis.NewScript(`
	local totalKey = KEYS[1]
	local poolKey = KEYS[2]
	local n = tonumber(ARGV[1])
	local totalBudget = tonumber(ARGV[2])
	local poolBudget = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
	local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

	if totalUsed + n > totalBudget then
		return {0, totalUsed, poolUsed}
	end
	if poolUsed + n > poolBudget then
		return {0, totalUsed, poolUsed}
	end

	redis.call('INCRBY', totalKey, n)
	redis.call('EXPIRE', totalKey, ttl)
	redis.call('INCRBY', poolKey, n)
	redis.call('EXPIRE', poolKey, ttl)

	return {1, totalUsed + n, poolUsed + n}
`)

// TryConsume attempts to take n requests from the pool matching priority.
// When denied it returns the time until the next window. A Redis failure
// denies the request.
func (t *BudgetTracker) TryConsume(ctx context.Context, n int, priority Priority) (bool, time.Duration) {
	if n <= 0 {
		return true, 0
	}

	windowTS := t.windowTimestamp()
	totalKey, reservedKey, sharedKey := t.keys(windowTS)

	poolKey, poolBudget := sharedKey, t.sharedBudget
	if priority == PriorityHigh {
		poolKey, poolBudget = reservedKey, t.reservedBudget
	}

	ttlSeconds := int(t.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, t.redis, []string{totalKey, poolKey},
		n, t.totalBudget, poolBudget, ttlSeconds).Int64Slice()
	if err != nil || len(result) == 0 || result[0] != 1 {
		return false, t.waitTime(windowTS)
	}
	return true, 0
}

func (t *BudgetTracker) waitTime(windowTS int64) time.Duration {
	windowEnd := time.UnixMilli(windowTS).Add(t.windowSize)
	wait := windowEnd.Sub(t.now())
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// GetUsage returns current window usage.
func (t *BudgetTracker) GetUsage(ctx context.Context) (*UsageStats, error) {
	windowTS := t.windowTimestamp()
	totalKey, reservedKey, sharedKey := t.keys(windowTS)

	pipe := t.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	reservedCmd := pipe.Get(ctx, reservedKey)
	sharedCmd := pipe.Get(ctx, sharedKey)

	// missing keys come back as redis.Nil and count as zero
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read quota usage: %w", err)
	}

	return &UsageStats{
		TotalUsed:      parseIntOrZero(totalCmd),
		ReservedUsed:   parseIntOrZero(reservedCmd),
		SharedUsed:     parseIntOrZero(sharedCmd),
		TotalBudget:    t.totalBudget,
		ReservedBudget: t.reservedBudget,
		SharedBudget:   t.sharedBudget,
		WindowStart:    time.UnixMilli(windowTS).UTC(),
	}, nil
}

func parseIntOrZero(cmd *redis.StringCmd) int {
	val, err := cmd.Int()
	if err != nil {
		return 0
	}
	return val
}

// RecordEndpointUsage counts requests per endpoint for the current window.
func (t *BudgetTracker) RecordEndpointUsage(ctx context.Context, endpoint string, n int) error {
	if n <= 0 || endpoint == "" {
		return nil
	}

	key := fmt.Sprintf("%s%s:%s:%d", KeyPrefixEndpoint, t.name, endpoint, t.windowTimestamp())

	pipe := t.redis.Pipeline()
	pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, t.keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// AvailableBudget returns what is left in the pool for priority.
func (t *BudgetTracker) AvailableBudget(ctx context.Context, priority Priority) (int, error) {
	stats, err := t.GetUsage(ctx)
	if err != nil {
		return 0, err
	}

	available := t.sharedBudget - stats.SharedUsed
	if priority == PriorityHigh {
		available = t.reservedBudget - stats.ReservedUsed
	}
	if remaining := t.totalBudget - stats.TotalUsed; remaining < available {
		available = remaining
	}
	if available < 0 {
		available = 0
	}
	return available, nil
}

// WindowSize returns the configured window size.
func (t *BudgetTracker) WindowSize() time.Duration {
	return t.windowSize
}
