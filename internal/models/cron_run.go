package models

import (
	"time"

	"github.com/MrRuperto3/TAO-App/internal/types"
)

// CronRun is an append-only audit record of one scheduled job execution
type CronRun struct {
	Job               types.CronJob `json:"job" ch:"job"`
	RanAt             time.Time     `json:"ranAt" ch:"ran_at"`
	OK                bool          `json:"ok" ch:"ok"`
	Message           string        `json:"message" ch:"message"`
	DurationMs        int64         `json:"durationMs" ch:"duration_ms"`
	SnapshotsInserted int           `json:"snapshotsInserted" ch:"snapshots_inserted"`
	PositionsInserted int           `json:"positionsInserted" ch:"positions_inserted"`
}
