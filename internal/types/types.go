// Package types provides common type definitions for the TAO wallet dashboard.
package types

import (
	"fmt"
	"strings"
)

// PositionType distinguishes root stake from subnet (alpha) stake
type PositionType string

const (
	// PositionRoot is stake delegated to the base layer (netuid 0)
	PositionRoot PositionType = "root"
	// PositionSubnet is alpha stake in a specific subnet
	PositionSubnet PositionType = "subnet"
)

// Valid reports whether the position type is known
func (p PositionType) Valid() bool {
	return p == PositionRoot || p == PositionSubnet
}

// RootNetuid is the netuid reserved for root stake
const RootNetuid = 0

// PositionKey identifies one logical holding across snapshots.
// Hotkey is part of the identity because the same subnet can be delegated
// to several validators. HasHotkey keeps a missing hotkey distinct from an
// empty one.
type PositionKey struct {
	Type      PositionType
	Netuid    int
	Hotkey    string
	HasHotkey bool
}

// NewPositionKey builds a key, normalizing root positions to netuid 0 with no hotkey
func NewPositionKey(positionType PositionType, netuid int, hotkey *string) PositionKey {
	if positionType == PositionRoot {
		return PositionKey{Type: PositionRoot, Netuid: RootNetuid}
	}
	key := PositionKey{Type: positionType, Netuid: netuid}
	if hotkey != nil {
		key.Hotkey = *hotkey
		key.HasHotkey = true
	}
	return key
}

// HotkeyPtr returns the hotkey as a nullable value (nil when absent)
func (k PositionKey) HotkeyPtr() *string {
	if !k.HasHotkey {
		return nil
	}
	h := k.Hotkey
	return &h
}

// Less orders keys by type, then netuid, then hotkey. A missing hotkey sorts first.
func (k PositionKey) Less(other PositionKey) bool {
	if k.Type != other.Type {
		return k.Type < other.Type
	}
	if k.Netuid != other.Netuid {
		return k.Netuid < other.Netuid
	}
	if k.HasHotkey != other.HasHotkey {
		return !k.HasHotkey
	}
	return k.Hotkey < other.Hotkey
}

// String renders the key for logs only; never parse it back
func (k PositionKey) String() string {
	if !k.HasHotkey {
		return fmt.Sprintf("%s/%d", k.Type, k.Netuid)
	}
	if k.Hotkey == "" {
		return fmt.Sprintf("%s/%d/\"\"", k.Type, k.Netuid)
	}
	return fmt.Sprintf("%s/%d/%s", k.Type, k.Netuid, k.Hotkey)
}

// Severity is the level attached to an anomaly signal
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns a sortable weight (CRITICAL > WARN > INFO)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarn:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// SignalType names an anomaly heuristic
type SignalType string

const (
	SignalFlowSpike          SignalType = "FLOW_SPIKE"
	SignalNegativeFlowStreak SignalType = "NEGATIVE_FLOW_STREAK"
	SignalEmissionShock      SignalType = "EMISSION_SHOCK"
	SignalLiquidityDrain     SignalType = "LIQUIDITY_DRAIN"
	SignalPositionValueShock SignalType = "POSITION_VALUE_SHOCK"
	SignalConcentrationRisk  SignalType = "CONCENTRATION_RISK"
)

// CronJob names a scheduled job recorded in the audit log
type CronJob string

const (
	// JobSnapshot captures the wallet portfolio snapshot
	JobSnapshot CronJob = "snapshot"
	// JobSubnetMetrics upserts daily subnet metrics
	JobSubnetMetrics CronJob = "subnet_metrics"
)

// DayLayout is the UTC date format used for metric days
const DayLayout = "2006-01-02"

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NormalizeAddress trims whitespace around an SS58 address.
// SS58 is case sensitive so the case is preserved.
func NormalizeAddress(address string) string {
	return strings.TrimSpace(address)
}
