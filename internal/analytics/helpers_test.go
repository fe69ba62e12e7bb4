package analytics

import (
	"strconv"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

var t0 = time.Date(2025, 3, 1, 0, 5, 0, 0, time.UTC)

func dec(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func decPtr(v float64) *string {
	s := dec(v)
	return &s
}

func subnetPos(netuid int, hotkey string, alpha, valueTao float64) models.PositionSnapshot {
	h := hotkey
	return models.PositionSnapshot{
		PositionType: types.PositionSubnet,
		Netuid:       netuid,
		Hotkey:       &h,
		AlphaBalance: decPtr(alpha),
		ValueTao:     dec(valueTao),
		ValueUSD:     dec(valueTao * 400),
	}
}

func snap(at time.Time, totalTao float64, positions ...models.PositionSnapshot) models.SnapshotWithPositions {
	return models.SnapshotWithPositions{
		Snapshot: models.Snapshot{
			ID:            at.Format(time.RFC3339),
			CapturedAt:    at,
			Address:       "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty",
			TotalValueTao: decPtr(totalTao),
			TotalValueUSD: decPtr(totalTao * 400),
		},
		Positions: positions,
	}
}

func day(n int) time.Time {
	return t0.AddDate(0, 0, n)
}
