package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// CronRunRepository appends ingestion run records to ClickHouse
type CronRunRepository struct {
	db *ClickHouseDB
}

// NewCronRunRepository creates a new cron run repository
func NewCronRunRepository(db *ClickHouseDB) *CronRunRepository {
	return &CronRunRepository{db: db}
}

// Insert appends runs in one batch
func (r *CronRunRepository) Insert(ctx context.Context, runs ...models.CronRun) error {
	if len(runs) == 0 {
		return nil
	}

	err := r.db.appendBatch(ctx, `
		INSERT INTO cron_runs (
			job, ran_at, ok, message, duration_ms, snapshots_inserted, positions_inserted
		)`, len(runs), func(i int) []interface{} {
		run := runs[i]
		return []interface{}{
			string(run.Job),
			run.RanAt.UTC(),
			run.OK,
			run.Message,
			run.DurationMs,
			int32(run.SnapshotsInserted), // #nosec G115 - per-run counts are tiny
			int32(run.PositionsInserted), // #nosec G115
		}
	})
	if err != nil {
		return fmt.Errorf("failed to insert cron runs: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first
func (r *CronRunRepository) Recent(ctx context.Context, limit int) ([]models.CronRun, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT job, ran_at, ok, message, duration_ms, snapshots_inserted, positions_inserted
		FROM cron_runs
		ORDER BY ran_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cron runs: %w", err)
	}
	defer rows.Close()

	var out []models.CronRun
	for rows.Next() {
		var (
			job       string
			ranAt     time.Time
			ok        bool
			message   string
			duration  int64
			snapshots int32
			positions int32
		)
		if err := rows.Scan(&job, &ranAt, &ok, &message, &duration, &snapshots, &positions); err != nil {
			return nil, fmt.Errorf("failed to scan cron run: %w", err)
		}
		out = append(out, models.CronRun{
			Job:               types.CronJob(job),
			RanAt:             ranAt.UTC(),
			OK:                ok,
			Message:           message,
			DurationMs:        duration,
			SnapshotsInserted: int(snapshots),
			PositionsInserted: int(positions),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cron runs: %w", err)
	}
	return out, nil
}
