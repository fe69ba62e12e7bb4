package models

import (
	"time"

	"github.com/MrRuperto3/TAO-App/internal/types"
)

// Snapshot is an immutable record of wallet totals captured once per ingestion cycle.
// Decimal fields are carried as strings so stored precision is never lost.
type Snapshot struct {
	ID            string    `json:"id" db:"id"`
	CapturedAt    time.Time `json:"capturedAt" db:"captured_at"`
	Address       string    `json:"address" db:"address"`
	TaoUSD        *string   `json:"taoUsd" db:"tao_usd"`
	TotalValueTao *string   `json:"totalValueTao" db:"total_value_tao"`
	TotalValueUSD *string   `json:"totalValueUsd" db:"total_value_usd"`
}

// PositionSnapshot is one root or subnet holding inside a Snapshot
type PositionSnapshot struct {
	SnapshotID   string             `json:"snapshotId" db:"snapshot_id"`
	PositionType types.PositionType `json:"positionType" db:"position_type"`
	Netuid       int                `json:"netuid" db:"netuid"`
	Hotkey       *string            `json:"hotkey" db:"hotkey"`
	AlphaBalance *string            `json:"alphaBalance" db:"alpha_balance"`
	ValueTao     string             `json:"valueTao" db:"value_tao"`
	ValueUSD     string             `json:"valueUsd" db:"value_usd"`
}

// Key returns the stable identity of the holding across snapshots
func (p *PositionSnapshot) Key() types.PositionKey {
	return types.NewPositionKey(p.PositionType, p.Netuid, p.Hotkey)
}

// SnapshotWithPositions pairs a snapshot with the positions captured alongside it
type SnapshotWithPositions struct {
	Snapshot
	Positions []PositionSnapshot `json:"positions"`
}
