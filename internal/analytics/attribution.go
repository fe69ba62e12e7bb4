package analytics

import (
	"sort"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// Attribution is one position's contribution to the portfolio's TAO-value change
// over a window, in an unfiltered (net) and a flow-filtered (staking) view.
// AlphaNet always equals AlphaStaking + AlphaFlowExcluded.
type Attribution struct {
	Key                   types.PositionKey
	AlphaNet              float64
	AlphaStaking          float64
	AlphaFlowExcluded     float64
	TaoImpactNet          float64
	TaoImpactStaking      float64
	FlowIntervalsExcluded int
	SharePctNet           float64
	SharePctStaking       float64
}

type positionState struct {
	alpha    float64
	valueTao float64
}

// alphaOf returns the token balance of a position. Root stake is denominated in
// TAO, so a root row without an alpha balance uses its TAO value.
func alphaOf(p *models.PositionSnapshot) float64 {
	if p.AlphaBalance != nil {
		return ParseDecimal(*p.AlphaBalance)
	}
	if p.PositionType == types.PositionRoot {
		return ParseDecimal(p.ValueTao)
	}
	return 0
}

func indexPositions(positions []models.PositionSnapshot) map[types.PositionKey]positionState {
	idx := make(map[types.PositionKey]positionState, len(positions))
	for i := range positions {
		p := &positions[i]
		key := p.Key()
		st := idx[key]
		st.alpha += alphaOf(p)
		st.valueTao += ParseDecimal(p.ValueTao)
		idx[key] = st
	}
	return idx
}

// endPrice is the TAO price per alpha token at the end of an interval
func endPrice(st positionState) float64 {
	if st.alpha == 0 {
		return 0
	}
	p := st.valueTao / st.alpha
	if !isFinite(p) {
		return 0
	}
	return p
}

// Attribute walks every consecutive snapshot pair of the window and accumulates
// per-position alpha earned and TAO impact, excluding intervals the flow
// classifier flags from the staking view. Output is sorted by staking impact
// then net impact, both descending.
func Attribute(window []models.SnapshotWithPositions, th FlowThresholds) []Attribution {
	acc := make(map[types.PositionKey]*Attribution)

	get := func(key types.PositionKey) *Attribution {
		a, ok := acc[key]
		if !ok {
			a = &Attribution{Key: key}
			acc[key] = a
		}
		return a
	}

	for i := 1; i < len(window); i++ {
		startIdx := indexPositions(window[i-1].Positions)
		endIdx := indexPositions(window[i].Positions)

		keys := make(map[types.PositionKey]struct{}, len(startIdx)+len(endIdx))
		for k := range startIdx {
			keys[k] = struct{}{}
		}
		for k := range endIdx {
			keys[k] = struct{}{}
		}

		for key := range keys {
			start := startIdx[key]
			end := endIdx[key]

			earned := end.alpha - start.alpha
			if earned == 0 || !isFinite(earned) {
				continue
			}

			impact := earned * endPrice(end)
			if !isFinite(impact) {
				impact = 0
			}

			a := get(key)
			a.AlphaNet += earned
			a.TaoImpactNet += impact

			if IsFlowLikely(start.alpha, end.alpha, start.valueTao, end.valueTao, th) {
				a.FlowIntervalsExcluded++
				a.AlphaFlowExcluded += earned
				continue
			}
			a.AlphaStaking += earned
			a.TaoImpactStaking += impact
		}
	}

	out := make([]Attribution, 0, len(acc))
	totalNet, totalStaking := 0.0, 0.0
	for _, a := range acc {
		totalNet += a.TaoImpactNet
		totalStaking += a.TaoImpactStaking
		out = append(out, *a)
	}

	for i := range out {
		out[i].SharePctNet = sharePct(out[i].TaoImpactNet, totalNet)
		out[i].SharePctStaking = sharePct(out[i].TaoImpactStaking, totalStaking)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TaoImpactStaking != out[j].TaoImpactStaking {
			return out[i].TaoImpactStaking > out[j].TaoImpactStaking
		}
		if out[i].TaoImpactNet != out[j].TaoImpactNet {
			return out[i].TaoImpactNet > out[j].TaoImpactNet
		}
		return out[i].Key.Less(out[j].Key)
	})

	return out
}

func sharePct(part, total float64) float64 {
	if !(total > 0) {
		return 0
	}
	s := part / total * 100
	if !isFinite(s) {
		return 0
	}
	return s
}
