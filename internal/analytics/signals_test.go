package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

const evalDay = "2025-03-21"

func metricRow(dayStr string, netuid int, flow, emission, liquidity *string) models.SubnetMetricSnapshot {
	return models.SubnetMetricSnapshot{
		Day:         dayStr,
		Netuid:      netuid,
		Flow24h:     flow,
		EmissionPct: emission,
		Liquidity:   liquidity,
	}
}

func daysBefore(n int) string {
	return shiftDay(evalDay, -n)
}

func baseInput(netuids ...int) SignalInput {
	return SignalInput{
		Day:                    evalDay,
		HeldNetuids:            netuids,
		Today:                  map[int]models.SubnetMetricSnapshot{},
		History:                map[int][]models.SubnetMetricSnapshot{},
		PositionValuesUSD:      map[int]float64{},
		PriorPositionValuesUSD: map[int]float64{},
		PriorSnapshotAvailable: true,
	}
}

func signalsOfType(res SignalsResult, st types.SignalType) []Signal {
	var out []Signal
	for _, s := range res.Signals {
		if s.Type == st {
			out = append(out, s)
		}
	}
	return out
}

func TestEvaluateSignals_FlowSpikeZScore(t *testing.T) {
	in := baseInput(8)
	for i := 1; i <= 20; i++ {
		v := 1e10
		if i%2 == 0 {
			v = -1e10
		}
		in.History[8] = append(in.History[8], metricRow(daysBefore(i), 8, decPtr(v), nil, nil))
	}
	in.Today[8] = metricRow(evalDay, 8, decPtr(4.5e10), nil, nil)

	res := EvaluateSignals(in, DefaultSignalThresholds())

	spikes := signalsOfType(res, types.SignalFlowSpike)
	require.Len(t, spikes, 1)
	assert.Equal(t, types.SeverityCritical, spikes[0].Severity)
	assert.Equal(t, methodZScore, spikes[0].Metrics["method"])
	assert.InDelta(t, 4.5, ParseDecimal(spikes[0].Metrics["z"]), 1e-9)
	assert.Equal(t, string(TrendInflow), spikes[0].Metrics["trend"])
	assert.NotEmpty(t, spikes[0].Metrics["flowEma7"])
}

func TestEvaluateSignals_FlowSpikeFallbacks(t *testing.T) {
	t.Run("day over day", func(t *testing.T) {
		in := baseInput(8)
		in.History[8] = []models.SubnetMetricSnapshot{metricRow(daysBefore(1), 8, decPtr(1e9), nil, nil)}
		in.Today[8] = metricRow(evalDay, 8, decPtr(4e9), nil, nil)

		spikes := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalFlowSpike)
		require.Len(t, spikes, 1)
		assert.Equal(t, types.SeverityWarn, spikes[0].Severity)
		assert.Equal(t, methodDayOnDay, spikes[0].Metrics["method"])
	})

	t.Run("absolute", func(t *testing.T) {
		in := baseInput(8)
		in.Today[8] = metricRow(evalDay, 8, decPtr(-6e12), nil, nil)

		spikes := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalFlowSpike)
		require.Len(t, spikes, 1)
		assert.Equal(t, types.SeverityWarn, spikes[0].Severity)
		assert.Equal(t, methodAbsolute, spikes[0].Metrics["method"])
	})

	t.Run("configured absolute bands", func(t *testing.T) {
		in := baseInput(8)
		in.Today[8] = metricRow(evalDay, 8, decPtr(6e9), nil, nil)

		th := DefaultSignalThresholds()
		th.FlowSpikeAbs = Bands{Info: 1e9, Warn: 5e9, Critical: 1e10}

		spikes := signalsOfType(EvaluateSignals(in, th), types.SignalFlowSpike)
		require.Len(t, spikes, 1)
		assert.Equal(t, types.SeverityWarn, spikes[0].Severity)
	})

	t.Run("stale yesterday is ignored", func(t *testing.T) {
		in := baseInput(8)
		in.History[8] = []models.SubnetMetricSnapshot{metricRow(daysBefore(2), 8, decPtr(1), nil, nil)}
		in.Today[8] = metricRow(evalDay, 8, decPtr(1e6), nil, nil)

		spikes := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalFlowSpike)
		assert.Empty(t, spikes, "absolute fallback applies and 1e6 is below it")
	})
}

func TestEvaluateSignals_NegativeFlowStreak(t *testing.T) {
	t.Run("long streak", func(t *testing.T) {
		in := baseInput(3)
		for i := 1; i <= 7; i++ {
			in.History[3] = append(in.History[3], metricRow(daysBefore(i), 3, decPtr(-5), nil, nil))
		}
		in.Today[3] = metricRow(evalDay, 3, decPtr(-5), nil, nil)

		streaks := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalNegativeFlowStreak)
		require.Len(t, streaks, 1)
		assert.Equal(t, types.SeverityCritical, streaks[0].Severity)
		assert.Equal(t, "8", streaks[0].Metrics["streakDays"])
		assert.Equal(t, string(TrendOutflow), streaks[0].Metrics["trend"])
	})

	t.Run("gap breaks streak", func(t *testing.T) {
		in := baseInput(3)
		for _, i := range []int{1, 2, 4, 5, 6} {
			in.History[3] = append(in.History[3], metricRow(daysBefore(i), 3, decPtr(-5), nil, nil))
		}
		in.Today[3] = metricRow(evalDay, 3, decPtr(-5), nil, nil)

		streaks := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalNegativeFlowStreak)
		require.Len(t, streaks, 1)
		assert.Equal(t, types.SeverityWarn, streaks[0].Severity)
		assert.Equal(t, "3", streaks[0].Metrics["streakDays"])
	})

	t.Run("capped", func(t *testing.T) {
		in := baseInput(3)
		for i := 1; i <= 15; i++ {
			in.History[3] = append(in.History[3], metricRow(daysBefore(i), 3, decPtr(-5), nil, nil))
		}
		in.Today[3] = metricRow(evalDay, 3, decPtr(-5), nil, nil)

		streaks := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalNegativeFlowStreak)
		require.Len(t, streaks, 1)
		assert.Equal(t, "10", streaks[0].Metrics["streakDays"])
	})

	t.Run("positive today", func(t *testing.T) {
		in := baseInput(3)
		in.History[3] = []models.SubnetMetricSnapshot{metricRow(daysBefore(1), 3, decPtr(-5), nil, nil)}
		in.Today[3] = metricRow(evalDay, 3, decPtr(5), nil, nil)

		assert.Empty(t, signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalNegativeFlowStreak))
	})
}

func TestEvaluateSignals_EmissionShock(t *testing.T) {
	in := baseInput(11)
	in.History[11] = []models.SubnetMetricSnapshot{metricRow(daysBefore(1), 11, nil, decPtr(1.0), nil)}
	in.Today[11] = metricRow(evalDay, 11, nil, decPtr(2.0), nil)

	shocks := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalEmissionShock)
	require.Len(t, shocks, 1)
	assert.Equal(t, types.SeverityWarn, shocks[0].Severity)
	assert.Equal(t, "1", shocks[0].Metrics["deltaPP"])

	in = baseInput(11)
	in.Today[11] = metricRow(evalDay, 11, nil, decPtr(9.0), nil)
	assert.Empty(t, signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalEmissionShock),
		"no absolute fallback for emission")
}

func TestEvaluateSignals_LiquidityDrain(t *testing.T) {
	in := baseInput(5)
	in.History[5] = []models.SubnetMetricSnapshot{metricRow(daysBefore(1), 5, nil, nil, decPtr(100))}
	in.Today[5] = metricRow(evalDay, 5, nil, nil, decPtr(70))

	drains := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalLiquidityDrain)
	require.Len(t, drains, 1)
	assert.Equal(t, types.SeverityWarn, drains[0].Severity)

	in.Today[5] = metricRow(evalDay, 5, nil, nil, decPtr(130))
	assert.Empty(t, signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), types.SignalLiquidityDrain),
		"rising liquidity is not a drain")
}

// alternatingHistory builds 20 days (2..21 days back) alternating lo and hi,
// leaving yesterday empty so mean = (lo+hi)/2 and std = (hi-lo)/2.
func alternatingHistory(netuid int, lo, hi float64, row func(day string, v float64) models.SubnetMetricSnapshot) []models.SubnetMetricSnapshot {
	var out []models.SubnetMetricSnapshot
	for i := 2; i <= 21; i++ {
		v := lo
		if i%2 == 1 {
			v = hi
		}
		out = append(out, row(daysBefore(i), v))
	}
	return out
}

func TestEvaluateSignals_BaselineFallbacks(t *testing.T) {
	emission := func(day string, v float64) models.SubnetMetricSnapshot {
		return metricRow(day, 11, nil, decPtr(v), nil)
	}
	liquidity := func(day string, v float64) models.SubnetMetricSnapshot {
		return metricRow(day, 5, nil, nil, decPtr(v))
	}

	tests := []struct {
		name       string
		netuid     int
		signalType types.SignalType
		history    []models.SubnetMetricSnapshot
		today      models.SubnetMetricSnapshot
		severity   types.Severity // empty means no signal
		method     string
	}{
		{
			name:       "emission z-score above mean",
			netuid:     11,
			signalType: types.SignalEmissionShock,
			history:    alternatingHistory(11, 10, 12, emission),
			today:      emission(evalDay, 14.5),
			severity:   types.SeverityWarn,
			method:     methodZScore,
		},
		{
			name:       "emission z-score below mean",
			netuid:     11,
			signalType: types.SignalEmissionShock,
			history:    alternatingHistory(11, 10, 12, emission),
			today:      emission(evalDay, 7.5),
			severity:   types.SeverityWarn,
			method:     methodZScore,
		},
		{
			name:       "emission yesterday without value falls back to z-score",
			netuid:     11,
			signalType: types.SignalEmissionShock,
			history:    append(alternatingHistory(11, 10, 12, emission), metricRow(daysBefore(1), 11, nil, nil, nil)),
			today:      emission(evalDay, 14.5),
			severity:   types.SeverityWarn,
			method:     methodZScore,
		},
		{
			name:       "emission day over day wins over z-score",
			netuid:     11,
			signalType: types.SignalEmissionShock,
			history:    append(alternatingHistory(11, 10, 12, emission), emission(daysBefore(1), 14.4)),
			today:      emission(evalDay, 14.5),
		},
		{
			name:       "liquidity z-score below mean",
			netuid:     5,
			signalType: types.SignalLiquidityDrain,
			history:    alternatingHistory(5, 100, 120, liquidity),
			today:      liquidity(evalDay, 75),
			severity:   types.SeverityWarn,
			method:     methodZScore,
		},
		{
			name:       "liquidity z-score critical",
			netuid:     5,
			signalType: types.SignalLiquidityDrain,
			history:    alternatingHistory(5, 100, 120, liquidity),
			today:      liquidity(evalDay, 65),
			severity:   types.SeverityCritical,
			method:     methodZScore,
		},
		{
			name:       "liquidity above mean is not a drain",
			netuid:     5,
			signalType: types.SignalLiquidityDrain,
			history:    alternatingHistory(5, 100, 120, liquidity),
			today:      liquidity(evalDay, 145),
		},
		{
			name:       "liquidity day over day wins over z-score",
			netuid:     5,
			signalType: types.SignalLiquidityDrain,
			history:    append(alternatingHistory(5, 100, 120, liquidity), liquidity(daysBefore(1), 100)),
			today:      liquidity(evalDay, 75),
			severity:   types.SeverityWarn,
			method:     methodDayOnDay,
		},
		{
			name:       "liquidity small day over day move suppresses z-score",
			netuid:     5,
			signalType: types.SignalLiquidityDrain,
			history:    append(alternatingHistory(5, 100, 120, liquidity), liquidity(daysBefore(1), 78)),
			today:      liquidity(evalDay, 75),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput(tt.netuid)
			in.History[tt.netuid] = tt.history
			in.Today[tt.netuid] = tt.today

			got := signalsOfType(EvaluateSignals(in, DefaultSignalThresholds()), tt.signalType)
			if tt.severity == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.severity, got[0].Severity)
			assert.Equal(t, tt.method, got[0].Metrics["method"])
		})
	}
}

func TestEvaluateSignals_PositionValueShock(t *testing.T) {
	in := baseInput(8)
	in.Today[8] = metricRow(evalDay, 8, nil, nil, nil)
	in.PositionValuesUSD[8] = 89
	in.PriorPositionValuesUSD[8] = 100

	res := EvaluateSignals(in, DefaultSignalThresholds())
	shocks := signalsOfType(res, types.SignalPositionValueShock)
	require.Len(t, shocks, 1)
	assert.Equal(t, types.SeverityWarn, shocks[0].Severity)

	in.PriorSnapshotAvailable = false
	res = EvaluateSignals(in, DefaultSignalThresholds())
	assert.Empty(t, signalsOfType(res, types.SignalPositionValueShock))
	assert.True(t, res.Meta.Partial)
	assert.Contains(t, res.Meta.Missing, MissingPriorDaySnapshot)
}

func TestEvaluateSignals_ConcentrationRisk(t *testing.T) {
	in := baseInput(8)
	in.Today[8] = metricRow(evalDay, 8, nil, nil, nil)
	in.PositionValuesUSD[8] = 20
	total := 100.0
	in.PortfolioTotalUSD = &total

	res := EvaluateSignals(in, DefaultSignalThresholds())
	risks := signalsOfType(res, types.SignalConcentrationRisk)
	require.Len(t, risks, 1)
	assert.Equal(t, types.SeverityInfo, risks[0].Severity, "20% sits in the INFO band")
	assert.Equal(t, "0.2", risks[0].Metrics["weight"])

	in.PortfolioTotalUSD = nil
	res = EvaluateSignals(in, DefaultSignalThresholds())
	assert.Empty(t, signalsOfType(res, types.SignalConcentrationRisk))
	assert.Contains(t, res.Meta.Missing, MissingPortfolioTotal)
}

func TestEvaluateSignals_MissingMetricRowIsFailSoft(t *testing.T) {
	in := baseInput(8, 9, 0, 8)
	in.Today[9] = metricRow(evalDay, 9, decPtr(-6e12), nil, nil)
	in.PositionValuesUSD[8] = 40
	total := 100.0
	in.PortfolioTotalUSD = &total

	res := EvaluateSignals(in, DefaultSignalThresholds())

	assert.Equal(t, []int{8, 9}, res.Meta.HeldNetuids, "root dropped and duplicates removed")
	assert.True(t, res.Meta.Partial)
	assert.Equal(t, []string{"subnet_metrics:8"}, res.Meta.Missing)

	require.Len(t, signalsOfType(res, types.SignalConcentrationRisk), 1, "other cells still evaluated")
	require.Len(t, signalsOfType(res, types.SignalFlowSpike), 1)
}

func TestEvaluateSignals_Ordering(t *testing.T) {
	in := baseInput(2, 7, 4)
	in.Today[2] = metricRow(evalDay, 2, decPtr(3e12), nil, nil)
	in.Today[4] = metricRow(evalDay, 4, decPtr(2e13), nil, nil)
	in.Today[7] = metricRow(evalDay, 7, decPtr(2e13), nil, nil)
	in.PositionValuesUSD[2] = 30
	total := 100.0
	in.PortfolioTotalUSD = &total

	res := EvaluateSignals(in, DefaultSignalThresholds())
	require.Len(t, res.Signals, 4)

	assert.Equal(t, 4, res.Signals[0].Netuid)
	assert.Equal(t, types.SeverityCritical, res.Signals[0].Severity)
	assert.Equal(t, 7, res.Signals[1].Netuid)
	assert.Equal(t, types.SeverityCritical, res.Signals[1].Severity)
	assert.Equal(t, types.SignalConcentrationRisk, res.Signals[2].Type)
	assert.Equal(t, types.SignalFlowSpike, res.Signals[3].Type)
	assert.Equal(t, types.SeverityInfo, res.Signals[3].Severity)
	assert.False(t, res.Meta.Partial)
}

func TestEvaluateSignals_Idempotent(t *testing.T) {
	in := baseInput(2, 4)
	in.Today[2] = metricRow(evalDay, 2, decPtr(3e12), decPtr(1), decPtr(10))
	in.Today[4] = metricRow(evalDay, 4, decPtr(-2e13), decPtr(2), decPtr(5))
	in.History[4] = []models.SubnetMetricSnapshot{metricRow(daysBefore(1), 4, decPtr(-1), decPtr(1), decPtr(10))}
	in.PositionValuesUSD[2] = 40
	in.PriorPositionValuesUSD[2] = 20
	total := 100.0
	in.PortfolioTotalUSD = &total

	first := EvaluateSignals(in, DefaultSignalThresholds())
	second := EvaluateSignals(in, DefaultSignalThresholds())
	assert.Equal(t, first, second)

	seen := map[string]bool{}
	for _, s := range first.Signals {
		assert.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
		assert.Equal(t, SignalID(evalDay, s.Netuid, s.Type), s.ID)
	}
}

func TestEvaluateSignals_NoHoldings(t *testing.T) {
	res := EvaluateSignals(baseInput(), DefaultSignalThresholds())
	assert.NotNil(t, res.Signals)
	assert.Empty(t, res.Signals)
	assert.False(t, res.Meta.Partial)
	assert.Empty(t, res.Meta.Missing)
}

func TestBandsClassify(t *testing.T) {
	b := Bands{Warn: 3, Critical: 7}
	_, hit := b.Classify(2)
	assert.False(t, hit, "zero info band disables INFO")

	sev, hit := b.Classify(3)
	require.True(t, hit)
	assert.Equal(t, types.SeverityWarn, sev)
}
