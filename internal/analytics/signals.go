package analytics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// signalNamespace seeds the name-based signal IDs
var signalNamespace = uuid.MustParse("6f1c2a4e-8d0b-4f51-9a3e-7b2d5c9e0a14")

// Missing prerequisite keys reported in SignalsMeta.Missing
const (
	MissingPriorDaySnapshot = "prior_day_snapshot"
	MissingPortfolioTotal   = "portfolio_total_usd"
)

// Detection methods recorded in a signal's metrics payload
const (
	methodZScore    = "zscore"
	methodDayOnDay  = "day_over_day"
	methodAbsolute  = "absolute"
	methodStreak    = "streak"
	methodPriorDay  = "prior_day"
	methodPortfolio = "portfolio_weight"
)

// Bands holds INFO/WARN/CRITICAL cut-offs for a magnitude. A zero Info band disables INFO.
type Bands struct {
	Info     float64
	Warn     float64
	Critical float64
}

// Classify returns the highest band v reaches
func (b Bands) Classify(v float64) (types.Severity, bool) {
	if !isFinite(v) {
		return "", false
	}
	switch {
	case v >= b.Critical:
		return types.SeverityCritical, true
	case v >= b.Warn:
		return types.SeverityWarn, true
	case b.Info > 0 && v >= b.Info:
		return types.SeverityInfo, true
	default:
		return "", false
	}
}

// SignalThresholds configures every anomaly heuristic
type SignalThresholds struct {
	BaselineDays  int
	StreakMaxDays int

	FlowSpikeZ   Bands
	FlowSpikePct Bands
	FlowSpikeAbs Bands
	FlowEMASpan  int

	NegativeFlowStreak Bands

	EmissionDeltaPP Bands
	EmissionZ       Bands

	LiquidityDropPct Bands
	LiquidityZ       Bands

	ValueShockPct Bands
	Concentration Bands
}

// DefaultSignalThresholds returns the standard heuristic cut-offs
func DefaultSignalThresholds() SignalThresholds {
	return SignalThresholds{
		BaselineDays:       30,
		StreakMaxDays:      10,
		FlowSpikeZ:         Bands{Info: 2, Warn: 3, Critical: 4},
		FlowSpikePct:       Bands{Info: 1, Warn: 2, Critical: 4},
		FlowSpikeAbs:       Bands{Info: 2e12, Warn: 5e12, Critical: 1e13},
		FlowEMASpan:        7,
		NegativeFlowStreak: Bands{Warn: 3, Critical: 7},
		EmissionDeltaPP:    Bands{Info: 0.25, Warn: 0.75, Critical: 1.5},
		EmissionZ:          Bands{Info: 2, Warn: 3, Critical: 4},
		LiquidityDropPct:   Bands{Info: 0.10, Warn: 0.25, Critical: 0.40},
		LiquidityZ:         Bands{Info: 2, Warn: 3, Critical: 4},
		ValueShockPct:      Bands{Info: 0.05, Warn: 0.10, Critical: 0.20},
		Concentration:      Bands{Info: 0.15, Warn: 0.25, Critical: 0.35},
	}
}

// Signal is one severity-tagged anomaly for a held subnet on a given day
type Signal struct {
	ID       string            `json:"id"`
	Day      string            `json:"day"`
	Netuid   int               `json:"netuid"`
	Type     types.SignalType  `json:"type"`
	Severity types.Severity    `json:"severity"`
	Title    string            `json:"title"`
	Why      string            `json:"why"`
	Metrics  map[string]string `json:"metrics"`
}

// SignalsMeta reports which prerequisites were unavailable
type SignalsMeta struct {
	Partial     bool     `json:"partial"`
	Missing     []string `json:"missing"`
	HeldNetuids []int    `json:"heldNetuids"`
}

// SignalsResult is the output of EvaluateSignals
type SignalsResult struct {
	Day     string      `json:"day"`
	Signals []Signal    `json:"signals"`
	Meta    SignalsMeta `json:"meta"`
}

// SignalInput carries everything the engine reads. All data dependencies are
// explicit so evaluation is a pure function of this value.
type SignalInput struct {
	Day         string // UTC date being evaluated
	HeldNetuids []int  // subnets currently held; root is ignored

	// Today holds the metric row for Day keyed by netuid
	Today map[int]models.SubnetMetricSnapshot
	// History holds prior metric rows per netuid, any order, excluding Day
	History map[int][]models.SubnetMetricSnapshot

	// PositionValuesUSD is today's held USD value per netuid
	PositionValuesUSD map[int]float64
	// PriorPositionValuesUSD is the prior-day snapshot's USD value per netuid
	PriorPositionValuesUSD map[int]float64
	PriorSnapshotAvailable bool
	// PortfolioTotalUSD is today's portfolio total, nil when unknown
	PortfolioTotalUSD *float64
}

// SignalID derives the deterministic identifier of a (day, netuid, type) cell
func SignalID(day string, netuid int, signalType types.SignalType) string {
	name := day + "|" + strconv.Itoa(netuid) + "|" + string(signalType)
	return uuid.NewSHA1(signalNamespace, []byte(name)).String()
}

// EvaluateSignals runs every heuristic for every held subnet. A missing input
// only skips the cells that need it and is reported in Meta.Missing.
func EvaluateSignals(in SignalInput, th SignalThresholds) SignalsResult {
	held := normalizeNetuids(in.HeldNetuids)
	e := &signalEval{
		day:     in.Day,
		th:      th,
		missing: make(map[string]struct{}),
	}

	for _, netuid := range held {
		history := e.baseline(in.History[netuid])
		today, ok := in.Today[netuid]
		if !ok {
			e.markMissing(fmt.Sprintf("subnet_metrics:%d", netuid))
		} else {
			yesterday := e.yesterday(history)
			e.flowSpike(netuid, today, yesterday, history)
			e.negativeFlowStreak(netuid, today, history)
			e.emissionShock(netuid, today, yesterday, history)
			e.liquidityDrain(netuid, today, yesterday, history)
		}

		e.positionValueShock(netuid, in)
		e.concentrationRisk(netuid, in)
	}

	sortSignals(e.signals)

	missing := make([]string, 0, len(e.missing))
	for k := range e.missing {
		missing = append(missing, k)
	}
	sort.Strings(missing)

	signals := e.signals
	if signals == nil {
		signals = []Signal{}
	}

	return SignalsResult{
		Day:     in.Day,
		Signals: signals,
		Meta: SignalsMeta{
			Partial:     len(missing) > 0,
			Missing:     missing,
			HeldNetuids: held,
		},
	}
}

type signalEval struct {
	day     string
	th      SignalThresholds
	signals []Signal
	missing map[string]struct{}
}

func (e *signalEval) markMissing(key string) {
	e.missing[key] = struct{}{}
}

func (e *signalEval) emit(netuid int, t types.SignalType, sev types.Severity, title, why string, metrics map[string]string) {
	e.signals = append(e.signals, Signal{
		ID:       SignalID(e.day, netuid, t),
		Day:      e.day,
		Netuid:   netuid,
		Type:     t,
		Severity: sev,
		Title:    title,
		Why:      why,
		Metrics:  metrics,
	})
}

// baseline keeps rows strictly before the evaluated day, deduplicated by day,
// ascending, limited to the most recent BaselineDays.
func (e *signalEval) baseline(rows []models.SubnetMetricSnapshot) []models.SubnetMetricSnapshot {
	byDay := make(map[string]models.SubnetMetricSnapshot, len(rows))
	for _, r := range rows {
		if r.Day >= e.day {
			continue
		}
		byDay[r.Day] = r
	}

	out := make([]models.SubnetMetricSnapshot, 0, len(byDay))
	for _, r := range byDay {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })

	if n := e.th.BaselineDays; n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func (e *signalEval) yesterday(history []models.SubnetMetricSnapshot) *models.SubnetMetricSnapshot {
	want := shiftDay(e.day, -1)
	if want == "" || len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	if last.Day != want {
		return nil
	}
	return &last
}

func seriesOf(history []models.SubnetMetricSnapshot, field func(models.SubnetMetricSnapshot) *string) []float64 {
	out := make([]float64, 0, len(history))
	for _, r := range history {
		if v, ok := ParseNullable(field(r)); ok {
			out = append(out, v)
		}
	}
	return out
}

func flowOf(r models.SubnetMetricSnapshot) *string      { return r.Flow24h }
func emissionOf(r models.SubnetMetricSnapshot) *string  { return r.EmissionPct }
func liquidityOf(r models.SubnetMetricSnapshot) *string { return r.Liquidity }

func (e *signalEval) flowSpike(netuid int, today models.SubnetMetricSnapshot, yesterday *models.SubnetMetricSnapshot, history []models.SubnetMetricSnapshot) {
	flow, ok := ParseNullable(today.Flow24h)
	if !ok {
		e.markMissing(fmt.Sprintf("subnet_metrics:%d:flow24h", netuid))
		return
	}

	series := seriesOf(history, flowOf)
	metrics := map[string]string{"flow24h": FormatDecimal(flow)}
	e.addTrend(metrics, append(series, flow))

	title := fmt.Sprintf("Flow spike on SN%d", netuid)

	if z, ok := ZScore(flow, series); ok {
		metrics["method"] = methodZScore
		metrics["z"] = FormatDecimal(z)
		metrics["baselinePoints"] = strconv.Itoa(len(series))
		if sev, hit := e.th.FlowSpikeZ.Classify(math.Abs(z)); hit {
			e.emit(netuid, types.SignalFlowSpike, sev, title,
				fmt.Sprintf("24h flow is %.2f standard deviations from its %d-day mean", z, len(series)), metrics)
		}
		return
	}

	if yesterday != nil {
		if prev, ok := ParseNullable(yesterday.Flow24h); ok {
			pct := (flow - prev) / math.Max(math.Abs(prev), 1)
			metrics["method"] = methodDayOnDay
			metrics["yesterdayFlow24h"] = FormatDecimal(prev)
			metrics["pct"] = FormatDecimal(pct)
			if sev, hit := e.th.FlowSpikePct.Classify(math.Abs(pct)); hit {
				e.emit(netuid, types.SignalFlowSpike, sev, title,
					fmt.Sprintf("24h flow changed %.0f%% versus yesterday", pct*100), metrics)
			}
			return
		}
	}

	metrics["method"] = methodAbsolute
	if sev, hit := e.th.FlowSpikeAbs.Classify(math.Abs(flow)); hit {
		e.emit(netuid, types.SignalFlowSpike, sev, title,
			"24h flow magnitude exceeds the absolute threshold with no baseline available", metrics)
	}
}

func (e *signalEval) negativeFlowStreak(netuid int, today models.SubnetMetricSnapshot, history []models.SubnetMetricSnapshot) {
	flowByDay := make(map[string]float64, len(history)+1)
	for _, r := range history {
		if v, ok := ParseNullable(r.Flow24h); ok {
			flowByDay[r.Day] = v
		}
	}
	if v, ok := ParseNullable(today.Flow24h); ok {
		flowByDay[e.day] = v
	}

	streak := 0
	day := e.day
	for streak < e.th.StreakMaxDays {
		v, ok := flowByDay[day]
		if !ok || !(v < 0) {
			break
		}
		streak++
		day = shiftDay(day, -1)
	}

	sev, hit := e.th.NegativeFlowStreak.Classify(float64(streak))
	if !hit {
		return
	}

	metrics := map[string]string{
		"method":      methodStreak,
		"streakDays":  strconv.Itoa(streak),
		"maxScanDays": strconv.Itoa(e.th.StreakMaxDays),
	}
	e.addTrend(metrics, append(seriesOf(history, flowOf), flowByDay[e.day]))

	e.emit(netuid, types.SignalNegativeFlowStreak, sev,
		fmt.Sprintf("Sustained outflow on SN%d", netuid),
		fmt.Sprintf("24h flow has been negative for %d consecutive days", streak), metrics)
}

func (e *signalEval) emissionShock(netuid int, today models.SubnetMetricSnapshot, yesterday *models.SubnetMetricSnapshot, history []models.SubnetMetricSnapshot) {
	emission, ok := ParseNullable(today.EmissionPct)
	if !ok {
		return
	}

	metrics := map[string]string{"emissionPct": FormatDecimal(emission)}
	title := fmt.Sprintf("Emission shift on SN%d", netuid)

	if yesterday != nil {
		if prev, ok := ParseNullable(yesterday.EmissionPct); ok {
			delta := emission - prev
			metrics["method"] = methodDayOnDay
			metrics["yesterdayEmissionPct"] = FormatDecimal(prev)
			metrics["deltaPP"] = FormatDecimal(delta)
			if sev, hit := e.th.EmissionDeltaPP.Classify(math.Abs(delta)); hit {
				e.emit(netuid, types.SignalEmissionShock, sev, title,
					fmt.Sprintf("Emission share moved %+.2f percentage points versus yesterday", delta), metrics)
			}
			return
		}
	}

	series := seriesOf(history, emissionOf)
	if z, ok := ZScore(emission, series); ok {
		metrics["method"] = methodZScore
		metrics["z"] = FormatDecimal(z)
		metrics["baselinePoints"] = strconv.Itoa(len(series))
		if sev, hit := e.th.EmissionZ.Classify(math.Abs(z)); hit {
			e.emit(netuid, types.SignalEmissionShock, sev, title,
				fmt.Sprintf("Emission share is %.2f standard deviations from its %d-day mean", z, len(series)), metrics)
		}
	}
}

func (e *signalEval) liquidityDrain(netuid int, today models.SubnetMetricSnapshot, yesterday *models.SubnetMetricSnapshot, history []models.SubnetMetricSnapshot) {
	liquidity, ok := ParseNullable(today.Liquidity)
	if !ok {
		return
	}

	metrics := map[string]string{"liquidity": FormatDecimal(liquidity)}
	title := fmt.Sprintf("Liquidity drain on SN%d", netuid)

	if yesterday != nil {
		if prev, ok := ParseNullable(yesterday.Liquidity); ok && prev > 0 {
			pct := (liquidity - prev) / prev
			metrics["method"] = methodDayOnDay
			metrics["yesterdayLiquidity"] = FormatDecimal(prev)
			metrics["pct"] = FormatDecimal(pct)
			if sev, hit := e.th.LiquidityDropPct.Classify(-pct); hit {
				e.emit(netuid, types.SignalLiquidityDrain, sev, title,
					fmt.Sprintf("Pool liquidity fell %.1f%% versus yesterday", -pct*100), metrics)
			}
			return
		}
	}

	series := seriesOf(history, liquidityOf)
	if z, ok := ZScore(liquidity, series); ok {
		metrics["method"] = methodZScore
		metrics["z"] = FormatDecimal(z)
		metrics["baselinePoints"] = strconv.Itoa(len(series))
		if sev, hit := e.th.LiquidityZ.Classify(-z); hit {
			e.emit(netuid, types.SignalLiquidityDrain, sev, title,
				fmt.Sprintf("Pool liquidity is %.2f standard deviations below its %d-day mean", -z, len(series)), metrics)
		}
	}
}

func (e *signalEval) positionValueShock(netuid int, in SignalInput) {
	if !in.PriorSnapshotAvailable {
		e.markMissing(MissingPriorDaySnapshot)
		return
	}

	prior := in.PriorPositionValuesUSD[netuid]
	if !(prior > 0) {
		return
	}
	today := in.PositionValuesUSD[netuid]
	pct := (today - prior) / prior

	sev, hit := e.th.ValueShockPct.Classify(math.Abs(pct))
	if !hit {
		return
	}

	e.emit(netuid, types.SignalPositionValueShock, sev,
		fmt.Sprintf("Position value move on SN%d", netuid),
		fmt.Sprintf("Held value changed %+.1f%% versus the prior-day snapshot", pct*100),
		map[string]string{
			"method":        methodPriorDay,
			"valueUsd":      FormatDecimal(today),
			"priorValueUsd": FormatDecimal(prior),
			"pct":           FormatDecimal(pct),
		})
}

func (e *signalEval) concentrationRisk(netuid int, in SignalInput) {
	if in.PortfolioTotalUSD == nil || !(*in.PortfolioTotalUSD > 0) || !isFinite(*in.PortfolioTotalUSD) {
		e.markMissing(MissingPortfolioTotal)
		return
	}

	total := *in.PortfolioTotalUSD
	value := in.PositionValuesUSD[netuid]
	weight := value / total

	sev, hit := e.th.Concentration.Classify(weight)
	if !hit {
		return
	}

	e.emit(netuid, types.SignalConcentrationRisk, sev,
		fmt.Sprintf("Concentration in SN%d", netuid),
		fmt.Sprintf("SN%d is %.1f%% of portfolio value", netuid, weight*100),
		map[string]string{
			"method":        methodPortfolio,
			"valueUsd":      FormatDecimal(value),
			"totalValueUsd": FormatDecimal(total),
			"weight":        FormatDecimal(weight),
		})
}

func (e *signalEval) addTrend(metrics map[string]string, flows []float64) {
	ema, ok := FlowEMA(flows, e.th.FlowEMASpan)
	if !ok {
		return
	}
	metrics["flowEma7"] = FormatDecimal(ema)
	metrics["trend"] = string(TrendOf(ema))
}

func sortSignals(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Netuid != b.Netuid {
			return a.Netuid < b.Netuid
		}
		return a.Type < b.Type
	})
}

// normalizeNetuids returns sorted unique subnet ids, dropping root
func normalizeNetuids(netuids []int) []int {
	seen := make(map[int]struct{}, len(netuids))
	out := make([]int, 0, len(netuids))
	for _, n := range netuids {
		if n == types.RootNetuid || n < 0 {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// shiftDay moves a YYYY-MM-DD date by n days; malformed input yields ""
func shiftDay(day string, n int) string {
	t, err := time.Parse(types.DayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, n).Format(types.DayLayout)
}
