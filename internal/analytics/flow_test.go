package analytics

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestIsFlowLikely(t *testing.T) {
	th := DefaultFlowThresholds()

	tests := []struct {
		name                 string
		alphaStart, alphaEnd float64
		valueStart, valueEnd float64
		want                 bool
	}{
		{"decrease is never flow", 100, 50, 100, 10, false},
		{"no change", 100, 100, 100, 300, false},
		{"six percent increase", 100, 106, 100, 100, true},
		{"small increase", 100, 102, 100, 101, false},
		{"value jump", 100, 102, 100, 115, true},
		{"new position", 0, 10, 0, 5, true},
		{"zero value start ignores value rule", 100, 101, 0, 50, false},
		{"exactly at threshold", 100, 105, 100, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsFlowLikely(tt.alphaStart, tt.alphaEnd, tt.valueStart, tt.valueEnd, th)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsFlowLikely_CustomThresholds(t *testing.T) {
	th := FlowThresholds{AlphaPct: 0.10, ValuePct: 0.50}
	assert.False(t, IsFlowLikely(100, 106, 100, 100, th))
	assert.True(t, IsFlowLikely(100, 111, 100, 100, th))
}

func TestIsFlowLikely_Monotonic(t *testing.T) {
	th := DefaultFlowThresholds()
	properties := gopter.NewProperties(nil)

	properties.Property("a larger increase is flagged whenever a smaller one is", prop.ForAll(
		func(start, d1, d2 float64) bool {
			if d1 > d2 {
				d1, d2 = d2, d1
			}
			small := IsFlowLikely(start, start+d1, 50, 50, th)
			large := IsFlowLikely(start, start+d2, 50, 50, th)
			return !small || large
		},
		gen.Float64Range(1, 1e6),
		gen.Float64Range(0, 1e5),
		gen.Float64Range(0, 1e5),
	))

	properties.Property("increases past the threshold are flow", prop.ForAll(
		func(start, k float64) bool {
			return IsFlowLikely(start, start+start*th.AlphaPct*(1.01+k), 50, 50, th)
		},
		gen.Float64Range(1, 1e6),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}
