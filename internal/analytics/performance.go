package analytics

import (
	"time"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// NotEnoughDataNote explains an empty performance summary
const NotEnoughDataNote = "not enough data yet: at least 2 snapshots are needed in the selected window"

// PerformanceKPIs are window-level return and risk figures
type PerformanceKPIs struct {
	ReturnTaoPct             *string `json:"returnTaoPct"`
	ReturnUsdPct             *string `json:"returnUsdPct"`
	DeltaTao                 *string `json:"deltaTao"`
	DeltaUsd                 *string `json:"deltaUsd"`
	MaxDrawdownPct           string  `json:"maxDrawdownPct"`
	AlphaTaoImpactEstNet     string  `json:"alphaTaoImpactEstNet"`
	AlphaTaoImpactEstStaking string  `json:"alphaTaoImpactEstStaking"`
}

// Contributor is the presentation form of an Attribution
type Contributor struct {
	PositionType          types.PositionType `json:"positionType"`
	Netuid                int                `json:"netuid"`
	Hotkey                *string            `json:"hotkey"`
	AlphaEarnedNet        string             `json:"alphaEarnedNet"`
	AlphaEarnedStakingEst string             `json:"alphaEarnedStakingEst"`
	TaoImpactEstNet       string             `json:"taoImpactEstNet"`
	TaoImpactEstStaking   string             `json:"taoImpactEstStaking"`
	SharePctNet           string             `json:"sharePctNet"`
	SharePctStaking       string             `json:"sharePctStaking"`
	FlowIntervalsExcluded int                `json:"flowIntervalsExcluded"`
}

// DailyPoint is the change between the last snapshots of two consecutive UTC days
type DailyPoint struct {
	PeriodEnd    time.Time `json:"periodEnd"`
	DeltaTao     string    `json:"deltaTao"`
	ReturnPctTao *string   `json:"returnPctTao"`
}

// PerformanceSummary is the output of BuildPerformance
type PerformanceSummary struct {
	Days          int              `json:"days"`
	SnapshotCount int              `json:"snapshotCount"`
	KPIs          *PerformanceKPIs `json:"kpis"`
	Contributors  []Contributor    `json:"contributors"`
	Daily         []DailyPoint     `json:"daily"`
	Note          string           `json:"note,omitempty"`
}

// BuildPerformance computes returns, drawdown, attribution and the daily series
// for the window [now-days, now]. series must be sorted by CapturedAt.
// Fewer than two snapshots in the window yields a summary with nil KPIs and a note.
func BuildPerformance(series []models.SnapshotWithPositions, now time.Time, days int, th FlowThresholds) (*PerformanceSummary, error) {
	window, err := SelectWindow(series, now, days)
	if err != nil {
		return nil, err
	}

	summary := &PerformanceSummary{
		Days:          days,
		SnapshotCount: len(window),
		Contributors:  []Contributor{},
		Daily:         []DailyPoint{},
	}

	if len(window) < 2 {
		summary.Note = NotEnoughDataNote
		return summary, nil
	}

	first := window[0]
	last := window[len(window)-1]

	kpis := &PerformanceKPIs{}

	startTao, okStartTao := ParseNullable(first.TotalValueTao)
	endTao, okEndTao := ParseNullable(last.TotalValueTao)
	if okStartTao && okEndTao {
		kpis.ReturnTaoPct = FormatNullable(PercentReturn(startTao, endTao))
		kpis.DeltaTao = FormatNullable(floatPtr(endTao - startTao))
	}

	startUSD, okStartUSD := ParseNullable(first.TotalValueUSD)
	endUSD, okEndUSD := ParseNullable(last.TotalValueUSD)
	if okStartUSD && okEndUSD {
		kpis.ReturnUsdPct = FormatNullable(PercentReturn(startUSD, endUSD))
		kpis.DeltaUsd = FormatNullable(floatPtr(endUSD - startUSD))
	}

	values := make([]float64, 0, len(window))
	for i := range window {
		v, ok := ParseNullable(window[i].TotalValueTao)
		if !ok {
			continue
		}
		values = append(values, v)
	}
	kpis.MaxDrawdownPct = FormatDecimal(MaxDrawdown(values))

	attributions := Attribute(window, th)
	totalNet, totalStaking := 0.0, 0.0
	for _, a := range attributions {
		totalNet += a.TaoImpactNet
		totalStaking += a.TaoImpactStaking
		summary.Contributors = append(summary.Contributors, toContributor(a))
	}
	kpis.AlphaTaoImpactEstNet = FormatDecimal(totalNet)
	kpis.AlphaTaoImpactEstStaking = FormatDecimal(totalStaking)

	summary.KPIs = kpis
	summary.Daily = DailySeries(window)

	return summary, nil
}

func toContributor(a Attribution) Contributor {
	return Contributor{
		PositionType:          a.Key.Type,
		Netuid:                a.Key.Netuid,
		Hotkey:                a.Key.HotkeyPtr(),
		AlphaEarnedNet:        FormatDecimal(a.AlphaNet),
		AlphaEarnedStakingEst: FormatDecimal(a.AlphaStaking),
		TaoImpactEstNet:       FormatDecimal(a.TaoImpactNet),
		TaoImpactEstStaking:   FormatDecimal(a.TaoImpactStaking),
		SharePctNet:           FormatDecimal(a.SharePctNet),
		SharePctStaking:       FormatDecimal(a.SharePctStaking),
		FlowIntervalsExcluded: a.FlowIntervalsExcluded,
	}
}

// DailySeries buckets snapshots by UTC day, keeps the last snapshot of each day
// and reports the TAO change against the previous bucket.
func DailySeries(window []models.SnapshotWithPositions) []DailyPoint {
	type bucket struct {
		day   string
		at    time.Time
		value float64
	}

	var buckets []bucket
	for i := range window {
		v, ok := ParseNullable(window[i].TotalValueTao)
		if !ok {
			continue
		}
		at := window[i].CapturedAt.UTC()
		day := at.Format(types.DayLayout)
		if n := len(buckets); n > 0 && buckets[n-1].day == day {
			buckets[n-1].at = at
			buckets[n-1].value = v
			continue
		}
		buckets = append(buckets, bucket{day: day, at: at, value: v})
	}

	points := make([]DailyPoint, 0, len(buckets))
	for i := 1; i < len(buckets); i++ {
		prev, cur := buckets[i-1], buckets[i]
		points = append(points, DailyPoint{
			PeriodEnd:    cur.at,
			DeltaTao:     FormatDecimal(cur.value - prev.value),
			ReturnPctTao: FormatNullable(PercentReturn(prev.value, cur.value)),
		})
	}
	return points
}
