package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/analytics"
	apperrors "github.com/MrRuperto3/TAO-App/internal/errors"
	"github.com/MrRuperto3/TAO-App/internal/logging"
	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/observability"
	"github.com/MrRuperto3/TAO-App/internal/storage"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// Limits for the cron run listing
const (
	DefaultCronRunLimit = 20
	MaxCronRunLimit     = 200
)

// SnapshotReader reads the snapshot series of an address
type SnapshotReader interface {
	ListWindow(ctx context.Context, address string, from, to time.Time) ([]models.SnapshotWithPositions, error)
	Latest(ctx context.Context, address string) (*models.SnapshotWithPositions, error)
	LatestBefore(ctx context.Context, address string, t time.Time) (*models.SnapshotWithPositions, error)
}

// MetricReader reads daily subnet metrics
type MetricReader interface {
	ForDay(ctx context.Context, day string, netuids []int) (map[int]models.SubnetMetricSnapshot, error)
	History(ctx context.Context, netuids []int, beforeDay string, days int) (map[int][]models.SubnetMetricSnapshot, error)
	LatestDay(ctx context.Context) (string, bool, error)
}

// CronRunReader lists recent audit rows
type CronRunReader interface {
	Recent(ctx context.Context, limit int) ([]models.CronRun, error)
}

// AnalyticsConfig wires an AnalyticsService
type AnalyticsConfig struct {
	Address           string
	DefaultWindowDays int
	FlowThresholds    analytics.FlowThresholds
	SignalThresholds  analytics.SignalThresholds
	Snapshots         SnapshotReader
	Metrics           MetricReader
	CronRuns          CronRunReader         // optional
	Cache             *storage.CacheService // optional
	Observer          *observability.Metrics
	Now               func() time.Time
}

// AnalyticsService serves the dashboard read models for the tracked wallet
type AnalyticsService struct {
	cfg AnalyticsConfig
	now func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(cfg AnalyticsConfig) (*AnalyticsService, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("wallet address is required")
	}
	if cfg.Snapshots == nil || cfg.Metrics == nil {
		return nil, fmt.Errorf("snapshot and metric readers are required")
	}
	if cfg.DefaultWindowDays == 0 {
		cfg.DefaultWindowDays = 30
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AnalyticsService{cfg: cfg, now: now}, nil
}

// Address returns the tracked wallet
func (s *AnalyticsService) Address() string {
	return s.cfg.Address
}

// DefaultWindowDays returns the window used when a request names none
func (s *AnalyticsService) DefaultWindowDays() int {
	return s.cfg.DefaultWindowDays
}

// Performance returns the performance summary over the trailing days
func (s *AnalyticsService) Performance(ctx context.Context, days int) (*analytics.PerformanceSummary, error) {
	if days <= 0 || days > analytics.MaxWindowDays {
		return nil, apperrors.NewInvalidWindowError(days, analytics.ErrInvalidWindow)
	}

	var out analytics.PerformanceSummary
	key := s.cacheKey(func(c *storage.CacheService) string { return c.PerformanceKey(s.cfg.Address, days) })
	if s.cached(ctx, "performance", key, &out) {
		return &out, nil
	}

	now := s.now().UTC()
	from := now.Add(-time.Duration(days) * 24 * time.Hour)
	series, err := s.cfg.Snapshots.ListWindow(ctx, s.cfg.Address, from, now)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list snapshots", err)
	}

	summary, err := analytics.BuildPerformance(series, now, days, s.cfg.FlowThresholds)
	if err != nil {
		return nil, apperrors.NewInvalidWindowError(days, err)
	}

	s.store(ctx, key, summary)
	return summary, nil
}

// Signals evaluates anomaly signals for day (YYYY-MM-DD). An empty day uses
// the latest day with metrics, or today when there are none.
func (s *AnalyticsService) Signals(ctx context.Context, day string) (*analytics.SignalsResult, error) {
	if day == "" {
		latest, ok, err := s.cfg.Metrics.LatestDay(ctx)
		if err != nil {
			return nil, apperrors.NewDatabaseError("latest metric day", err)
		}
		day = latest
		if !ok {
			day = s.now().UTC().Format(types.DayLayout)
		}
	}
	dayStart, err := time.Parse(types.DayLayout, day)
	if err != nil {
		return nil, apperrors.NewInvalidParameterError("day", "must be a date in YYYY-MM-DD format")
	}

	var out analytics.SignalsResult
	key := s.cacheKey(func(c *storage.CacheService) string { return c.SignalsKey(s.cfg.Address, day) })
	if s.cached(ctx, "signals", key, &out) {
		return &out, nil
	}

	in, err := s.signalInput(ctx, day, dayStart)
	if err != nil {
		return nil, err
	}

	result := analytics.EvaluateSignals(*in, s.cfg.SignalThresholds)
	for _, sig := range result.Signals {
		s.cfg.Observer.SignalEmitted(string(sig.Severity))
	}

	s.store(ctx, key, result)
	return &result, nil
}

// signalInput gathers holdings from the day's snapshot, the prior-day
// snapshot, and the metric rows for the held subnets.
func (s *AnalyticsService) signalInput(ctx context.Context, day string, dayStart time.Time) (*analytics.SignalInput, error) {
	in := &analytics.SignalInput{
		Day:                    day,
		HeldNetuids:            []int{},
		Today:                  map[int]models.SubnetMetricSnapshot{},
		History:                map[int][]models.SubnetMetricSnapshot{},
		PositionValuesUSD:      map[int]float64{},
		PriorPositionValuesUSD: map[int]float64{},
	}

	current, err := s.cfg.Snapshots.LatestBefore(ctx, s.cfg.Address, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, apperrors.NewDatabaseError("snapshot for day", err)
	}
	if current == nil {
		return in, nil
	}

	in.PositionValuesUSD = subnetValuesUSD(current)
	for netuid := range in.PositionValuesUSD {
		in.HeldNetuids = append(in.HeldNetuids, netuid)
	}
	if total, ok := analytics.ParseNullable(current.TotalValueUSD); ok {
		in.PortfolioTotalUSD = &total
	}

	prior, err := s.cfg.Snapshots.LatestBefore(ctx, s.cfg.Address, dayStart)
	if err != nil {
		return nil, apperrors.NewDatabaseError("prior-day snapshot", err)
	}
	priorDay := dayStart.AddDate(0, 0, -1).Format(types.DayLayout)
	if prior != nil && prior.CapturedAt.UTC().Format(types.DayLayout) == priorDay {
		in.PriorSnapshotAvailable = true
		in.PriorPositionValuesUSD = subnetValuesUSD(prior)
	}

	if len(in.HeldNetuids) == 0 {
		return in, nil
	}

	in.Today, err = s.cfg.Metrics.ForDay(ctx, day, in.HeldNetuids)
	if err != nil {
		return nil, apperrors.NewDatabaseError("subnet metrics for day", err)
	}
	in.History, err = s.cfg.Metrics.History(ctx, in.HeldNetuids, day, s.cfg.SignalThresholds.BaselineDays)
	if err != nil {
		return nil, apperrors.NewDatabaseError("subnet metric history", err)
	}
	return in, nil
}

// subnetValuesUSD sums USD value per netuid across hotkeys, skipping root
func subnetValuesUSD(snap *models.SnapshotWithPositions) map[int]float64 {
	out := make(map[int]float64)
	for _, p := range snap.Positions {
		if p.PositionType != types.PositionSubnet {
			continue
		}
		out[p.Netuid] += analytics.ParseDecimal(p.ValueUSD)
	}
	return out
}

// APY returns realized APY over the 1/7/30 day windows for every current position
func (s *AnalyticsService) APY(ctx context.Context) ([]analytics.PositionAPY, error) {
	var out []analytics.PositionAPY
	key := s.cacheKey(func(c *storage.CacheService) string { return c.APYKey(s.cfg.Address) })
	if s.cached(ctx, "apy", key, &out) {
		return out, nil
	}

	now := s.now().UTC()
	longest := analytics.APYWindows[len(analytics.APYWindows)-1]
	from := now.AddDate(0, 0, -longest)
	series, err := s.cfg.Snapshots.ListWindow(ctx, s.cfg.Address, from, now)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list snapshots", err)
	}

	result := analytics.RealizedAPY(series, now)
	if result == nil {
		result = []analytics.PositionAPY{}
	}

	s.store(ctx, key, result)
	return result, nil
}

// LatestSnapshot returns the most recent snapshot with positions
func (s *AnalyticsService) LatestSnapshot(ctx context.Context) (*models.SnapshotWithPositions, error) {
	var out models.SnapshotWithPositions
	key := s.cacheKey(func(c *storage.CacheService) string { return c.LatestKey(s.cfg.Address) })
	if s.cached(ctx, "latest", key, &out) {
		return &out, nil
	}

	snap, err := s.cfg.Snapshots.Latest(ctx, s.cfg.Address)
	if err != nil {
		return nil, apperrors.NewDatabaseError("latest snapshot", err)
	}
	if snap == nil {
		return nil, apperrors.NewNotFoundError("snapshot", s.cfg.Address)
	}

	s.store(ctx, key, snap)
	return snap, nil
}

// CronRuns lists recent ingestion runs, newest first. limit 0 uses the default.
func (s *AnalyticsService) CronRuns(ctx context.Context, limit int) ([]models.CronRun, error) {
	if limit == 0 {
		limit = DefaultCronRunLimit
	}
	if limit < 0 || limit > MaxCronRunLimit {
		return nil, apperrors.NewInvalidParameterError("limit", fmt.Sprintf("must be between 1 and %d", MaxCronRunLimit))
	}
	if s.cfg.CronRuns == nil {
		return nil, apperrors.NewServiceUnavailableError("cron run log")
	}

	runs, err := s.cfg.CronRuns.Recent(ctx, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("recent cron runs", err)
	}
	if runs == nil {
		runs = []models.CronRun{}
	}
	return runs, nil
}

func (s *AnalyticsService) cacheKey(fn func(c *storage.CacheService) string) string {
	if s.cfg.Cache == nil {
		return ""
	}
	return fn(s.cfg.Cache)
}

// cached loads key into dest; cache errors count as a miss
func (s *AnalyticsService) cached(ctx context.Context, resource, key string, dest interface{}) bool {
	if key == "" {
		return false
	}
	found, err := s.cfg.Cache.Get(ctx, key, dest)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("cache read failed")
		found = false
	}
	s.cfg.Observer.CacheResult(resource, found)
	return found
}

func (s *AnalyticsService) store(ctx context.Context, key string, value interface{}) {
	if key == "" {
		return
	}
	if err := s.cfg.Cache.Set(ctx, key, value); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("cache write failed")
	}
}
