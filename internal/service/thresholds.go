package service

import (
	"github.com/MrRuperto3/TAO-App/internal/analytics"
	"github.com/MrRuperto3/TAO-App/internal/config"
	"github.com/MrRuperto3/TAO-App/internal/retry"
)

// ThresholdsFromConfig overlays the configured cut-offs on the defaults
func ThresholdsFromConfig(cfg *config.AnalyticsConfig) (analytics.FlowThresholds, analytics.SignalThresholds) {
	flow := analytics.DefaultFlowThresholds()
	if cfg.FlowAlphaPct > 0 {
		flow.AlphaPct = cfg.FlowAlphaPct
	}
	if cfg.FlowValuePct > 0 {
		flow.ValuePct = cfg.FlowValuePct
	}

	signals := analytics.DefaultSignalThresholds()
	if cfg.FlowSpikeInfo > 0 && cfg.FlowSpikeWarn >= cfg.FlowSpikeInfo && cfg.FlowSpikeCritical >= cfg.FlowSpikeWarn {
		signals.FlowSpikeAbs = analytics.Bands{
			Info:     cfg.FlowSpikeInfo,
			Warn:     cfg.FlowSpikeWarn,
			Critical: cfg.FlowSpikeCritical,
		}
	}
	return flow, signals
}

// RetryFromConfig builds the upstream retry policy for ingestion
func RetryFromConfig(cfg *config.IngestConfig) *retry.RetryConfig {
	rc := retry.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		rc.InitialDelay = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		rc.MaxDelay = cfg.MaxBackoff
	}
	return rc
}
