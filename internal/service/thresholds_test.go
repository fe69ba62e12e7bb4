package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MrRuperto3/TAO-App/internal/analytics"
	"github.com/MrRuperto3/TAO-App/internal/config"
)

func TestThresholdsFromConfig(t *testing.T) {
	flow, signals := ThresholdsFromConfig(&config.AnalyticsConfig{
		FlowAlphaPct:      0.02,
		FlowSpikeInfo:     1e12,
		FlowSpikeWarn:     3e12,
		FlowSpikeCritical: 9e12,
	})

	assert.Equal(t, 0.02, flow.AlphaPct)
	assert.Equal(t, analytics.DefaultFlowValuePct, flow.ValuePct, "unset values keep the default")
	assert.Equal(t, analytics.Bands{Info: 1e12, Warn: 3e12, Critical: 9e12}, signals.FlowSpikeAbs)
	assert.Equal(t, analytics.DefaultSignalThresholds().Concentration, signals.Concentration)
}

func TestThresholdsFromConfigIgnoresUnorderedBands(t *testing.T) {
	_, signals := ThresholdsFromConfig(&config.AnalyticsConfig{
		FlowSpikeInfo:     5e12,
		FlowSpikeWarn:     1e12,
		FlowSpikeCritical: 9e12,
	})
	assert.Equal(t, analytics.DefaultSignalThresholds().FlowSpikeAbs, signals.FlowSpikeAbs)
}

func TestRetryFromConfig(t *testing.T) {
	rc := RetryFromConfig(&config.IngestConfig{MaxAttempts: 6, MaxBackoff: 30 * time.Second})
	assert.Equal(t, 6, rc.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, rc.InitialDelay)
	assert.Equal(t, 30*time.Second, rc.MaxDelay)
}
