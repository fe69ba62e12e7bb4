package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// APYWindows are the trailing lookbacks reported per position, in days
var APYWindows = []int{1, 7, 30}

// ValuePoint is one observation of a position's TAO value
type ValuePoint struct {
	At       time.Time
	ValueTao float64
}

// APY holds annualized returns in percent; nil marks an unavailable window
type APY struct {
	OneDayPct    *string `json:"oneDayPct"`
	SevenDayPct  *string `json:"sevenDayPct"`
	ThirtyDayPct *string `json:"thirtyDayPct"`
}

// PositionAPY is the realized APY of one holding
type PositionAPY struct {
	PositionType types.PositionType `json:"positionType"`
	Netuid       int                `json:"netuid"`
	Hotkey       *string            `json:"hotkey"`
	APY          APY                `json:"apy"`
}

// pointAtOrBefore scans backwards for the latest point with At <= cutoff
func pointAtOrBefore(points []ValuePoint, cutoff time.Time) (ValuePoint, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].At.After(cutoff) {
			return points[i], true
		}
	}
	return ValuePoint{}, false
}

// AnnualizedReturn compounds a d-day return to a yearly percentage.
// nil when start is not positive or the result is not finite.
func AnnualizedReturn(start, end float64, days int) *float64 {
	if !(start > 0) || days <= 0 || !isFinite(end) {
		return nil
	}
	growth := 1 + (end-start)/start
	apy := (math.Pow(growth, 365/float64(days)) - 1) * 100
	if !isFinite(apy) {
		return nil
	}
	return &apy
}

// WindowAPY computes the realized APY over d days ending at the latest point at or before end.
// points must be sorted by At. nil when both ends resolve to the same observation.
func WindowAPY(points []ValuePoint, end time.Time, days int) *float64 {
	last, ok := pointAtOrBefore(points, end)
	if !ok {
		return nil
	}
	first, ok := pointAtOrBefore(points, end.AddDate(0, 0, -days))
	if !ok || !first.At.Before(last.At) {
		return nil
	}
	return AnnualizedReturn(first.ValueTao, last.ValueTao, days)
}

// RealizedAPY computes 1/7/30 day APY for every position held in the latest
// snapshot at or before end. Windows are measured back from that snapshot's
// CapturedAt, not from end. series must be sorted by CapturedAt.
func RealizedAPY(series []models.SnapshotWithPositions, end time.Time) []PositionAPY {
	var latest *models.SnapshotWithPositions
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].CapturedAt.After(end) {
			latest = &series[i]
			break
		}
	}
	if latest == nil {
		return []PositionAPY{}
	}

	points := make(map[types.PositionKey][]ValuePoint)
	for i := range series {
		if series[i].CapturedAt.After(end) {
			break
		}
		for key, st := range indexPositions(series[i].Positions) {
			points[key] = append(points[key], ValuePoint{
				At:       series[i].CapturedAt,
				ValueTao: st.valueTao,
			})
		}
	}

	anchor := latest.CapturedAt
	held := indexPositions(latest.Positions)
	keys := make([]types.PositionKey, 0, len(held))
	for k := range held {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]PositionAPY, 0, len(keys))
	for _, key := range keys {
		pts := points[key]
		out = append(out, PositionAPY{
			PositionType: key.Type,
			Netuid:       key.Netuid,
			Hotkey:       key.HotkeyPtr(),
			APY: APY{
				OneDayPct:    FormatNullable(WindowAPY(pts, anchor, 1)),
				SevenDayPct:  FormatNullable(WindowAPY(pts, anchor, 7)),
				ThirtyDayPct: FormatNullable(WindowAPY(pts, anchor, 30)),
			},
		})
	}
	return out
}
