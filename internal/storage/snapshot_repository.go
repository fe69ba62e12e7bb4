package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// SnapshotRepository stores wallet snapshots and their positions
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

const snapshotColumns = `
	id::text,
	captured_at,
	address,
	tao_usd::text,
	total_value_tao::text,
	total_value_usd::text`

// InsertForDay writes the snapshot and its positions in one transaction.
// Unless force is set, nothing is written when the address already has a
// snapshot on the same UTC day; inserted reports whether a row was written.
// A per-(address, day) advisory lock serializes overlapping runs.
func (r *SnapshotRepository) InsertForDay(ctx context.Context, snap *models.SnapshotWithPositions, force bool) (bool, error) {
	day := snap.CapturedAt.UTC().Format(types.DayLayout)
	inserted := false

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, snap.Address+"|"+day); err != nil {
			return fmt.Errorf("failed to take snapshot lock: %w", err)
		}

		if !force {
			var exists bool
			err := tx.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM snapshots
					WHERE address = $1 AND (captured_at AT TIME ZONE 'UTC')::date = $2::date
				)`, snap.Address, day).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check existing snapshot: %w", err)
			}
			if exists {
				return nil
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO snapshots (id, captured_at, address, tao_usd, total_value_tao, total_value_usd)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric)`,
			snap.ID, snap.CapturedAt, snap.Address, snap.TaoUSD, snap.TotalValueTao, snap.TotalValueUSD)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		if len(snap.Positions) > 0 {
			batch := &pgx.Batch{}
			for i := range snap.Positions {
				p := &snap.Positions[i]
				batch.Queue(`
					INSERT INTO position_snapshots
						(snapshot_id, position_type, netuid, hotkey, alpha_balance, value_tao, value_usd)
					VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric)`,
					snap.ID, string(p.PositionType), p.Netuid, p.Hotkey, p.AlphaBalance, p.ValueTao, p.ValueUSD)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert positions: %w", err)
			}
		}

		inserted = true
		return nil
	})

	return inserted, err
}

// ListWindow returns snapshots captured in [from, to] plus the latest snapshot
// before from, ascending by capture time, with positions attached.
func (r *SnapshotRepository) ListWindow(ctx context.Context, address string, from, to time.Time) ([]models.SnapshotWithPositions, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE address = $1
			AND captured_at <= $3
			AND captured_at >= COALESCE(
				(SELECT max(captured_at) FROM snapshots WHERE address = $1 AND captured_at < $2),
				$2)
		ORDER BY captured_at ASC`

	return r.querySnapshots(ctx, query, address, from, to)
}

// Latest returns the most recent snapshot, or nil when there is none
func (r *SnapshotRepository) Latest(ctx context.Context, address string) (*models.SnapshotWithPositions, error) {
	return r.latestBefore(ctx, address, nil)
}

// LatestBefore returns the most recent snapshot captured strictly before t, or nil
func (r *SnapshotRepository) LatestBefore(ctx context.Context, address string, t time.Time) (*models.SnapshotWithPositions, error) {
	return r.latestBefore(ctx, address, &t)
}

func (r *SnapshotRepository) latestBefore(ctx context.Context, address string, before *time.Time) (*models.SnapshotWithPositions, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE address = $1 AND ($2::timestamptz IS NULL OR captured_at < $2)
		ORDER BY captured_at DESC
		LIMIT 1`

	out, err := r.querySnapshots(ctx, query, address, before)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (r *SnapshotRepository) querySnapshots(ctx context.Context, query string, args ...interface{}) ([]models.SnapshotWithPositions, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.SnapshotWithPositions
	index := map[string]int{}
	var ids []string

	for rows.Next() {
		var s models.SnapshotWithPositions
		if err := rows.Scan(&s.ID, &s.CapturedAt, &s.Address, &s.TaoUSD, &s.TotalValueTao, &s.TotalValueUSD); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		s.CapturedAt = s.CapturedAt.UTC()
		s.Positions = []models.PositionSnapshot{}
		index[s.ID] = len(out)
		ids = append(ids, s.ID)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	if len(ids) == 0 {
		return out, nil
	}

	positions, err := r.positionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		i, ok := index[p.SnapshotID]
		if !ok {
			return nil, errors.New("position references unknown snapshot")
		}
		out[i].Positions = append(out[i].Positions, p)
	}

	return out, nil
}

func (r *SnapshotRepository) positionsFor(ctx context.Context, ids []string) ([]models.PositionSnapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			snapshot_id::text,
			position_type,
			netuid,
			hotkey,
			alpha_balance::text,
			value_tao::text,
			value_usd::text
		FROM position_snapshots
		WHERE snapshot_id = ANY($1::uuid[])
		ORDER BY snapshot_id, position_type, netuid, hotkey`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []models.PositionSnapshot
	for rows.Next() {
		var p models.PositionSnapshot
		var positionType string
		if err := rows.Scan(&p.SnapshotID, &positionType, &p.Netuid, &p.Hotkey, &p.AlphaBalance, &p.ValueTao, &p.ValueUSD); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		p.PositionType = types.PositionType(positionType)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return out, nil
}
