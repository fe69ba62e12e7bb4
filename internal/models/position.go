package models

import (
	"fmt"

	"github.com/MrRuperto3/TAO-App/internal/types"
)

// NewRootPosition builds a root stake position (netuid 0, no hotkey)
func NewRootPosition(valueTao, valueUSD string, alphaBalance *string) PositionSnapshot {
	return PositionSnapshot{
		PositionType: types.PositionRoot,
		Netuid:       types.RootNetuid,
		AlphaBalance: alphaBalance,
		ValueTao:     valueTao,
		ValueUSD:     valueUSD,
	}
}

// NewSubnetPosition builds a subnet stake position. Netuid 0 is reserved for root.
func NewSubnetPosition(netuid int, hotkey string, alphaBalance *string, valueTao, valueUSD string) (PositionSnapshot, error) {
	if netuid == types.RootNetuid {
		return PositionSnapshot{}, fmt.Errorf("subnet position cannot use netuid %d", types.RootNetuid)
	}
	if netuid < 0 {
		return PositionSnapshot{}, fmt.Errorf("invalid netuid %d", netuid)
	}

	var hk *string
	if hotkey != "" {
		hk = &hotkey
	}

	return PositionSnapshot{
		PositionType: types.PositionSubnet,
		Netuid:       netuid,
		Hotkey:       hk,
		AlphaBalance: alphaBalance,
		ValueTao:     valueTao,
		ValueUSD:     valueUSD,
	}, nil
}
