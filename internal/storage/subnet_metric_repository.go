package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrRuperto3/TAO-App/internal/models"
)

// SubnetMetricRepository stores one metric row per (day, netuid)
type SubnetMetricRepository struct {
	pool *pgxpool.Pool
}

// NewSubnetMetricRepository creates a new subnet metric repository
func NewSubnetMetricRepository(pool *pgxpool.Pool) *SubnetMetricRepository {
	return &SubnetMetricRepository{pool: pool}
}

const upsertSubnetMetricSQL = `
	INSERT INTO subnet_metric_snapshots (
		day, netuid, flow_24h, emission_pct, price, liquidity, tao_volume_24h,
		price_change_1d, price_change_1w, price_change_1m, updated_at
	) VALUES (
		$1::date, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric,
		$8::numeric, $9::numeric, $10::numeric, NOW()
	)
	ON CONFLICT (day, netuid) DO UPDATE SET
		flow_24h        = COALESCE(EXCLUDED.flow_24h, subnet_metric_snapshots.flow_24h),
		emission_pct    = COALESCE(EXCLUDED.emission_pct, subnet_metric_snapshots.emission_pct),
		price           = COALESCE(EXCLUDED.price, subnet_metric_snapshots.price),
		liquidity       = COALESCE(EXCLUDED.liquidity, subnet_metric_snapshots.liquidity),
		tao_volume_24h  = COALESCE(EXCLUDED.tao_volume_24h, subnet_metric_snapshots.tao_volume_24h),
		price_change_1d = COALESCE(EXCLUDED.price_change_1d, subnet_metric_snapshots.price_change_1d),
		price_change_1w = COALESCE(EXCLUDED.price_change_1w, subnet_metric_snapshots.price_change_1w),
		price_change_1m = COALESCE(EXCLUDED.price_change_1m, subnet_metric_snapshots.price_change_1m),
		updated_at      = NOW()`

// Upsert writes rows keyed by (day, netuid). A null incoming field never
// overwrites a stored value, so a later partial fetch can only fill gaps.
func (r *SubnetMetricRepository) Upsert(ctx context.Context, rows []models.SubnetMetricSnapshot) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range rows {
		m := &rows[i]
		batch.Queue(upsertSubnetMetricSQL,
			m.Day, m.Netuid, m.Flow24h, m.EmissionPct, m.Price, m.Liquidity, m.TaoVolume24h,
			m.PriceChange1d, m.PriceChange1w, m.PriceChange1m)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert subnet metrics: %w", err)
	}
	return nil
}

const subnetMetricColumns = `
	day::text,
	netuid,
	flow_24h::text,
	emission_pct::text,
	price::text,
	liquidity::text,
	tao_volume_24h::text,
	price_change_1d::text,
	price_change_1w::text,
	price_change_1m::text,
	updated_at`

// ForDay returns the rows of one day for the given subnets keyed by netuid
func (r *SubnetMetricRepository) ForDay(ctx context.Context, day string, netuids []int) (map[int]models.SubnetMetricSnapshot, error) {
	rows, err := r.query(ctx, `
		SELECT `+subnetMetricColumns+`
		FROM subnet_metric_snapshots
		WHERE day = $1::date AND netuid = ANY($2)`, day, netuids)
	if err != nil {
		return nil, err
	}

	out := make(map[int]models.SubnetMetricSnapshot, len(rows))
	for _, m := range rows {
		out[m.Netuid] = m
	}
	return out, nil
}

// History returns up to days prior rows per subnet, strictly before beforeDay, ascending
func (r *SubnetMetricRepository) History(ctx context.Context, netuids []int, beforeDay string, days int) (map[int][]models.SubnetMetricSnapshot, error) {
	rows, err := r.query(ctx, `
		SELECT `+subnetMetricColumns+`
		FROM subnet_metric_snapshots
		WHERE netuid = ANY($1)
			AND day < $2::date
			AND day >= $2::date - $3::int
		ORDER BY netuid, day ASC`, netuids, beforeDay, days)
	if err != nil {
		return nil, err
	}

	out := make(map[int][]models.SubnetMetricSnapshot)
	for _, m := range rows {
		out[m.Netuid] = append(out[m.Netuid], m)
	}
	return out, nil
}

// LatestDay returns the most recent day with any metric row; ok is false when empty
func (r *SubnetMetricRepository) LatestDay(ctx context.Context) (string, bool, error) {
	var day *string
	if err := r.pool.QueryRow(ctx, `SELECT max(day)::text FROM subnet_metric_snapshots`).Scan(&day); err != nil {
		return "", false, fmt.Errorf("failed to query latest metric day: %w", err)
	}
	if day == nil {
		return "", false, nil
	}
	return *day, true, nil
}

func (r *SubnetMetricRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.SubnetMetricSnapshot, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subnet metrics: %w", err)
	}
	defer rows.Close()

	var out []models.SubnetMetricSnapshot
	for rows.Next() {
		var m models.SubnetMetricSnapshot
		err := rows.Scan(&m.Day, &m.Netuid, &m.Flow24h, &m.EmissionPct, &m.Price, &m.Liquidity,
			&m.TaoVolume24h, &m.PriceChange1d, &m.PriceChange1w, &m.PriceChange1m, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subnet metric row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subnet metrics: %w", err)
	}
	return out, nil
}
