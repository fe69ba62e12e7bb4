package analytics

import "math"

// Default flow classifier thresholds
const (
	DefaultFlowAlphaPct = 0.05
	DefaultFlowValuePct = 0.10
)

// FlowThresholds are the caller-overridable cut-offs of the flow classifier
type FlowThresholds struct {
	AlphaPct float64 // relative token-count increase treated as flow
	ValuePct float64 // relative TAO-value change treated as flow
}

// DefaultFlowThresholds returns the standard classifier thresholds
func DefaultFlowThresholds() FlowThresholds {
	return FlowThresholds{
		AlphaPct: DefaultFlowAlphaPct,
		ValuePct: DefaultFlowValuePct,
	}
}

// IsFlowLikely decides whether an interval's alpha increase looks like a
// deposit or rebalance rather than staking yield.
// Decreases are never flow; a balance appearing from nothing always is.
func IsFlowLikely(alphaStart, alphaEnd, valueTaoStart, valueTaoEnd float64, th FlowThresholds) bool {
	delta := alphaEnd - alphaStart
	if !(delta > 0) {
		return false
	}

	if alphaStart <= 0 {
		return true
	}

	alphaPct := math.Abs(delta) / alphaStart
	if alphaPct > th.AlphaPct {
		return true
	}

	if valueTaoStart > 0 {
		valuePct := math.Abs(valueTaoEnd-valueTaoStart) / valueTaoStart
		if valuePct > th.ValuePct {
			return true
		}
	}

	return false
}
