package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/MrRuperto3/TAO-App/internal/adapter"
	"github.com/MrRuperto3/TAO-App/internal/logging"
	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/observability"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// Fetcher is one ingestion run's view of the upstream API
type Fetcher interface {
	TaoPriceUSD(ctx context.Context) (decimal.Decimal, error)
	FreeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	Stakes(ctx context.Context, coldkey string) ([]adapter.StakeBalance, error)
	SubnetStats(ctx context.Context, netuid int) (*adapter.SubnetStats, error)
}

// SnapshotWriter persists a day's snapshot idempotently
type SnapshotWriter interface {
	InsertForDay(ctx context.Context, snap *models.SnapshotWithPositions, force bool) (bool, error)
}

// MetricWriter upserts daily subnet metric rows
type MetricWriter interface {
	Upsert(ctx context.Context, rows []models.SubnetMetricSnapshot) error
}

// CronRunWriter appends audit rows
type CronRunWriter interface {
	Insert(ctx context.Context, runs ...models.CronRun) error
}

// CacheInvalidator drops cached read models for an address
type CacheInvalidator interface {
	InvalidateAddress(ctx context.Context, address string) error
}

// IngestConfig wires an IngestService
type IngestConfig struct {
	Address      string
	Concurrency  int
	ScheduleHour int
	NewSession   func() Fetcher
	Snapshots    SnapshotWriter
	Metrics      MetricWriter
	CronRuns     CronRunWriter    // optional
	Cache        CacheInvalidator // optional
	Observer     *observability.Metrics
	Now          func() time.Time
}

// IngestService captures wallet snapshots and subnet metrics
type IngestService struct {
	cfg IngestConfig
	now func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewIngestService creates a new ingest service
func NewIngestService(cfg IngestConfig) (*IngestService, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("wallet address is required")
	}
	if cfg.NewSession == nil || cfg.Snapshots == nil || cfg.Metrics == nil {
		return nil, fmt.Errorf("session factory, snapshot and metric writers are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &IngestService{cfg: cfg, now: now}, nil
}

// RunOptions controls a single cycle
type RunOptions struct {
	// Force writes a snapshot even when one already exists for the UTC day
	Force bool
}

// CycleResult summarizes one ingestion cycle
type CycleResult struct {
	Day               string `json:"day"`
	SnapshotInserted  bool   `json:"snapshotInserted"`
	PositionsInserted int    `json:"positionsInserted"`
	MetricsUpserted   int    `json:"metricsUpserted"`
	FailedNetuids     []int  `json:"failedNetuids"`
}

// RunCycle takes one snapshot and refreshes metrics for every held subnet.
// Each job appends a CronRun; audit and cache failures are logged only.
// The returned error is the first job failure.
func (s *IngestService) RunCycle(ctx context.Context, opts RunOptions) (*CycleResult, error) {
	capturedAt := s.now().UTC()
	day := capturedAt.Format(types.DayLayout)
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address": s.cfg.Address,
		"day":     day,
	})
	ctx = logging.WithLogger(ctx, log)

	session := s.cfg.NewSession()
	result := &CycleResult{Day: day, FailedNetuids: []int{}}

	snapStart := time.Now()
	stakes, snapErr := s.snapshotJob(ctx, session, capturedAt, opts, result)
	snapRun := s.finishRun(ctx, types.JobSnapshot, capturedAt, snapStart, snapErr, snapshotMessage(result, snapErr))
	snapRun.SnapshotsInserted = boolToInt(result.SnapshotInserted)
	snapRun.PositionsInserted = result.PositionsInserted

	metricStart := time.Now()
	var metricErr error
	if snapErr != nil && stakes == nil {
		metricErr = fmt.Errorf("no stake list: %w", snapErr)
	} else {
		metricErr = s.metricsJob(ctx, session, day, heldSubnets(stakes), result)
	}
	metricRun := s.finishRun(ctx, types.JobSubnetMetrics, capturedAt, metricStart, metricErr, metricsMessage(result, metricErr))

	if s.cfg.CronRuns != nil {
		if err := s.cfg.CronRuns.Insert(ctx, snapRun, metricRun); err != nil {
			log.WithError(err).Warn("failed to record cron runs")
		}
	}

	if s.cfg.Cache != nil && (result.SnapshotInserted || result.MetricsUpserted > 0) {
		if err := s.cfg.Cache.InvalidateAddress(ctx, s.cfg.Address); err != nil {
			log.WithError(err).Warn("failed to invalidate cached analytics")
		}
	}

	if snapErr != nil {
		return result, snapErr
	}
	return result, metricErr
}

func (s *IngestService) snapshotJob(ctx context.Context, f Fetcher, capturedAt time.Time, opts RunOptions, result *CycleResult) ([]adapter.StakeBalance, error) {
	price, err := f.TaoPriceUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch tao price: %w", err)
	}
	free, err := f.FreeBalance(ctx, s.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("fetch free balance: %w", err)
	}
	stakes, err := f.Stakes(ctx, s.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("fetch stakes: %w", err)
	}

	snap, err := BuildSnapshot(s.cfg.Address, capturedAt, price, free, stakes)
	if err != nil {
		return stakes, err
	}
	if err := ValidateSnapshot(snap).Err(); err != nil {
		return stakes, err
	}

	inserted, err := s.cfg.Snapshots.InsertForDay(ctx, snap, opts.Force)
	if err != nil {
		return stakes, fmt.Errorf("store snapshot: %w", err)
	}
	result.SnapshotInserted = inserted
	if inserted {
		result.PositionsInserted = len(snap.Positions)
	}
	return stakes, nil
}

func (s *IngestService) metricsJob(ctx context.Context, f Fetcher, day string, netuids []int, result *CycleResult) error {
	if len(netuids) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		rows   []models.SubnetMetricSnapshot
		failed []int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, netuid := range netuids {
		g.Go(func() error {
			stats, err := f.SubnetStats(gctx, netuid)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// one subnet failing must not cancel the others
				logging.FromContext(gctx).WithError(err).WithField("netuid", netuid).Warn("subnet metrics fetch failed")
				failed = append(failed, netuid)
				return nil
			}
			rows = append(rows, metricRow(day, stats))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Ints(failed)
	result.FailedNetuids = append(result.FailedNetuids, failed...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Netuid < rows[j].Netuid })

	if err := s.cfg.Metrics.Upsert(ctx, rows); err != nil {
		return fmt.Errorf("store subnet metrics: %w", err)
	}
	result.MetricsUpserted = len(rows)

	if len(failed) > 0 {
		return fmt.Errorf("subnet metrics unavailable for netuids %v", failed)
	}
	return nil
}

func (s *IngestService) finishRun(ctx context.Context, job types.CronJob, ranAt, started time.Time, err error, message string) models.CronRun {
	elapsed := time.Since(started)
	s.cfg.Observer.ObserveIngest(string(job), err == nil, elapsed)

	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"job":        string(job),
		"durationMs": elapsed.Milliseconds(),
	})
	if err != nil {
		log.WithError(err).Error("ingest job failed")
	} else {
		log.Info(message)
	}

	return models.CronRun{
		Job:        job,
		RanAt:      ranAt,
		OK:         err == nil,
		Message:    message,
		DurationMs: elapsed.Milliseconds(),
	}
}

// BuildSnapshot turns upstream balances into a snapshot. Root stake across
// validators collapses into one root position; subnet stake is keyed by
// (netuid, hotkey). Totals include the free balance.
func BuildSnapshot(address string, capturedAt time.Time, taoUSD, free decimal.Decimal, stakes []adapter.StakeBalance) (*models.SnapshotWithPositions, error) {
	type holding struct {
		alpha decimal.Decimal
		value decimal.Decimal
	}

	var root *holding
	subnets := make(map[types.PositionKey]*holding)

	for _, st := range stakes {
		if st.Netuid == types.RootNetuid {
			if root == nil {
				root = &holding{}
			}
			root.alpha = root.alpha.Add(st.Alpha)
			root.value = root.value.Add(st.ValueTao)
			continue
		}
		key := types.PositionKey{Type: types.PositionSubnet, Netuid: st.Netuid, Hotkey: st.Hotkey, HasHotkey: st.Hotkey != ""}
		h, ok := subnets[key]
		if !ok {
			h = &holding{}
			subnets[key] = h
		}
		h.alpha = h.alpha.Add(st.Alpha)
		h.value = h.value.Add(st.ValueTao)
	}

	id := uuid.NewString()
	usd := func(tao decimal.Decimal) string { return tao.Mul(taoUSD).Round(6).String() }

	positions := make([]models.PositionSnapshot, 0, len(subnets)+1)
	total := free
	if root != nil {
		alpha := root.alpha.String()
		p := models.NewRootPosition(root.value.String(), usd(root.value), &alpha)
		p.SnapshotID = id
		positions = append(positions, p)
		total = total.Add(root.value)
	}

	keys := make([]types.PositionKey, 0, len(subnets))
	for k := range subnets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, k := range keys {
		h := subnets[k]
		alpha := h.alpha.String()
		p, err := models.NewSubnetPosition(k.Netuid, k.Hotkey, &alpha, h.value.String(), usd(h.value))
		if err != nil {
			return nil, err
		}
		p.SnapshotID = id
		positions = append(positions, p)
		total = total.Add(h.value)
	}

	price := taoUSD.String()
	totalTao := total.String()
	totalUSD := usd(total)

	return &models.SnapshotWithPositions{
		Snapshot: models.Snapshot{
			ID:            id,
			CapturedAt:    capturedAt,
			Address:       address,
			TaoUSD:        &price,
			TotalValueTao: &totalTao,
			TotalValueUSD: &totalUSD,
		},
		Positions: positions,
	}, nil
}

func metricRow(day string, st *adapter.SubnetStats) models.SubnetMetricSnapshot {
	str := func(d *decimal.Decimal) *string {
		if d == nil {
			return nil
		}
		s := d.String()
		return &s
	}
	return models.SubnetMetricSnapshot{
		Day:           day,
		Netuid:        st.Netuid,
		Flow24h:       str(st.Flow24h),
		EmissionPct:   str(st.EmissionPct),
		Price:         str(st.Price),
		Liquidity:     str(st.Liquidity),
		TaoVolume24h:  str(st.TaoVolume24h),
		PriceChange1d: str(st.PriceChange1d),
		PriceChange1w: str(st.PriceChange1w),
		PriceChange1m: str(st.PriceChange1m),
	}
}

// heldSubnets returns the distinct non-root netuids with stake, ascending
func heldSubnets(stakes []adapter.StakeBalance) []int {
	seen := make(map[int]bool)
	var out []int
	for _, st := range stakes {
		if st.Netuid <= types.RootNetuid || seen[st.Netuid] {
			continue
		}
		seen[st.Netuid] = true
		out = append(out, st.Netuid)
	}
	sort.Ints(out)
	return out
}

func snapshotMessage(r *CycleResult, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case r.SnapshotInserted:
		return fmt.Sprintf("snapshot inserted with %d positions", r.PositionsInserted)
	default:
		return "snapshot already exists for " + r.Day
	}
}

func metricsMessage(r *CycleResult, err error) string {
	msg := fmt.Sprintf("upserted %d subnet metric rows", r.MetricsUpserted)
	if len(r.FailedNetuids) > 0 {
		parts := make([]string, len(r.FailedNetuids))
		for i, n := range r.FailedNetuids {
			parts[i] = fmt.Sprint(n)
		}
		msg += "; failed netuids " + strings.Join(parts, ",")
	}
	if err != nil && len(r.FailedNetuids) == 0 {
		return err.Error()
	}
	return msg
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Start runs a cycle every day at ScheduleHour UTC until Stop or ctx ends
func (s *IngestService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("ingest scheduler is already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	log := logging.FromContext(ctx)
	go func() {
		defer close(s.done)
		for {
			next := NextRun(s.now().UTC(), s.cfg.ScheduleHour)
			wait := next.Sub(s.now())
			log.WithField("nextRun", next.Format(time.RFC3339)).Info("ingest scheduler waiting")

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				if _, err := s.RunCycle(ctx, RunOptions{}); err != nil {
					log.WithError(err).Error("scheduled ingest cycle failed")
				}
			case <-s.stopChan:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop halts the scheduler and waits for an in-flight cycle to finish
func (s *IngestService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("ingest scheduler is not running")
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// NextRun returns the first instant strictly after now at hour:00 UTC
func NextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
