package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrRuperto3/TAO-App/internal/models"
)

func TestAnnualizedReturn(t *testing.T) {
	apy := AnnualizedReturn(100, 101, 1)
	require.NotNil(t, apy)
	assert.InDelta(t, (math.Pow(1.01, 365)-1)*100, *apy, 1e-6)

	assert.Nil(t, AnnualizedReturn(0, 10, 7))
	assert.Nil(t, AnnualizedReturn(-1, 10, 7))

	flat := AnnualizedReturn(50, 50, 30)
	require.NotNil(t, flat)
	assert.Equal(t, 0.0, *flat)
}

func TestWindowAPY_UsesLatestPointAtOrBeforeCutoff(t *testing.T) {
	end := day(30)
	points := []ValuePoint{
		{At: day(0), ValueTao: 80},
		{At: day(22), ValueTao: 100},
		{At: day(24), ValueTao: 200},
		{At: day(30), ValueTao: 102},
	}

	apy := WindowAPY(points, end, 7)
	require.NotNil(t, apy)
	assert.InDelta(t, (math.Pow(1.02, 365.0/7)-1)*100, *apy, 1e-6)

	apy = WindowAPY(points, end, 1)
	require.NotNil(t, apy)
	assert.InDelta(t, (math.Pow(0.51, 365)-1)*100, *apy, 1e-6, "irregular cadence falls back to day 24")

	assert.Nil(t, WindowAPY(points, day(-1), 1))
}

func TestRealizedAPY(t *testing.T) {
	series := []models.SnapshotWithPositions{
		snap(day(0), 100, subnetPos(8, "hk", 100, 100)),
		snap(day(27), 100, subnetPos(8, "hk", 100, 100), subnetPos(9, "hk", 10, 10)),
		snap(day(29), 101, subnetPos(8, "hk", 100, 100), subnetPos(9, "hk", 10, 10)),
		snap(day(30), 102, subnetPos(8, "hk", 101, 101), subnetPos(9, "hk", 10, 10)),
	}

	out := RealizedAPY(series, day(30))
	require.Len(t, out, 2)

	sn8 := out[0]
	assert.Equal(t, 8, sn8.Netuid)
	require.NotNil(t, sn8.APY.OneDayPct)
	require.NotNil(t, sn8.APY.SevenDayPct)
	require.NotNil(t, sn8.APY.ThirtyDayPct)
	assert.InDelta(t, (math.Pow(1.01, 365.0/30)-1)*100, ParseDecimal(*sn8.APY.ThirtyDayPct), 1e-6)

	sn9 := out[1]
	assert.Equal(t, 9, sn9.Netuid)
	require.NotNil(t, sn9.APY.OneDayPct)
	assert.Equal(t, "0", *sn9.APY.OneDayPct)
	assert.Nil(t, sn9.APY.ThirtyDayPct, "unavailable rather than zero")
}

func TestWindowAPY_SameObservationIsUnavailable(t *testing.T) {
	points := []ValuePoint{
		{At: day(1), ValueTao: 100},
		{At: day(2), ValueTao: 101},
	}
	assert.Nil(t, WindowAPY(points, day(3).Add(10*time.Hour), 1))
	assert.Nil(t, WindowAPY(points[:1], day(5), 1))
}

func TestRealizedAPY_AnchorsOnLatestSnapshot(t *testing.T) {
	series := []models.SnapshotWithPositions{
		snap(day(1), 100, subnetPos(8, "hk", 100, 100)),
		snap(day(2), 101, subnetPos(8, "hk", 101, 101)),
	}

	// today's snapshot has not been captured yet
	out := RealizedAPY(series, day(3).Add(10*time.Hour))
	require.Len(t, out, 1)
	require.NotNil(t, out[0].APY.OneDayPct)
	assert.InDelta(t, (math.Pow(1.01, 365)-1)*100, ParseDecimal(*out[0].APY.OneDayPct), 1e-6)
	assert.Nil(t, out[0].APY.SevenDayPct)
}

func TestRealizedAPY_Empty(t *testing.T) {
	assert.Empty(t, RealizedAPY(nil, day(0)))
}

func TestRealizedAPY_SevenDayFallback(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no point at or before T-7d means no 7-day APY", prop.ForAll(
		func(offsetsHours []int) bool {
			end := day(30)
			var series []models.SnapshotWithPositions
			last := end.Add(-7*24*time.Hour + time.Minute)
			for _, h := range offsetsHours {
				at := last.Add(time.Duration(h) * time.Hour)
				if len(series) > 0 && !at.After(series[len(series)-1].CapturedAt) {
					continue
				}
				series = append(series, snap(at, 10, subnetPos(1, "hk", 10, 10+float64(h))))
			}
			for _, p := range RealizedAPY(series, end) {
				if p.APY.SevenDayPct != nil {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 24*7-1)),
	))

	properties.TestingRun(t)
}
