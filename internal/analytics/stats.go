package analytics

import "math"

const (
	// MinBaselinePoints is the history length required before z-scores are used
	MinBaselinePoints = 14
	// stdFloor keeps z-scores finite over flat histories
	stdFloor = 1e-9
)

// Trend is the smoothed direction of a flow series
type Trend string

const (
	TrendInflow  Trend = "inflow"
	TrendOutflow Trend = "outflow"
	TrendFlat    Trend = "flat"
)

// finiteValues drops NaN and infinities
func finiteValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

// MeanStd returns the population mean and standard deviation, std floored at 1e-9.
// ok is false for an empty input.
func MeanStd(values []float64) (mean, std float64, ok bool) {
	vals := finiteValues(values)
	if len(vals) == 0 {
		return 0, 0, false
	}

	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))

	variance := 0.0
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vals))

	std = math.Sqrt(variance)
	if !(std > stdFloor) {
		std = stdFloor
	}
	return mean, std, true
}

// ZScore scores today against history. ok is false when history has fewer
// than MinBaselinePoints finite values.
func ZScore(today float64, history []float64) (z float64, ok bool) {
	vals := finiteValues(history)
	if len(vals) < MinBaselinePoints || !isFinite(today) {
		return 0, false
	}
	mean, std, _ := MeanStd(vals)
	z = (today - mean) / std
	if !isFinite(z) {
		return 0, false
	}
	return z, true
}

// FlowEMA returns the exponential moving average of values with alpha = 2/(span+1).
// The first finite value seeds the average. ok is false when nothing is finite.
func FlowEMA(values []float64, span int) (float64, bool) {
	if span < 1 {
		span = 1
	}
	alpha := 2.0 / float64(span+1)

	vals := finiteValues(values)
	if len(vals) == 0 {
		return 0, false
	}

	ema := vals[0]
	for _, v := range vals[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema, true
}

// TrendOf maps the sign of a smoothed flow to a Trend
func TrendOf(ema float64) Trend {
	switch {
	case ema > 0:
		return TrendInflow
	case ema < 0:
		return TrendOutflow
	default:
		return TrendFlat
	}
}
