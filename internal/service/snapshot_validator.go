package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/types"
)

// ValidationResult lists what is wrong with a snapshot before it is persisted.
// Snapshots are append-only, so a bad one would skew every later window.
type ValidationResult struct {
	SnapshotID string   `json:"snapshotId"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// Err folds the violations into one error, nil when valid
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("snapshot %s failed validation: %s", r.SnapshotID, strings.Join(r.Violations, "; "))
}

// ValidateSnapshot checks position identity, amounts and totals
func ValidateSnapshot(snap *models.SnapshotWithPositions) *ValidationResult {
	result := &ValidationResult{SnapshotID: snap.ID, Valid: true}
	violate := func(format string, args ...interface{}) {
		result.Valid = false
		result.Violations = append(result.Violations, fmt.Sprintf(format, args...))
	}

	if snap.Address == "" {
		violate("address is empty")
	}
	if snap.CapturedAt.IsZero() {
		violate("captured_at is zero")
	}

	seen := make(map[types.PositionKey]bool, len(snap.Positions))
	sum := decimal.Zero
	for _, p := range snap.Positions {
		key := p.Key()
		if p.SnapshotID != snap.ID {
			violate("%s belongs to snapshot %q", key, p.SnapshotID)
		}
		if seen[key] {
			violate("duplicate position %s", key)
		}
		seen[key] = true

		switch p.PositionType {
		case types.PositionRoot:
			if p.Netuid != types.RootNetuid || p.Hotkey != nil {
				violate("root position must have netuid 0 and no hotkey, got %s", key)
			}
		case types.PositionSubnet:
			if p.Netuid <= types.RootNetuid {
				violate("subnet position has netuid %d", p.Netuid)
			}
		default:
			violate("unknown position type %q", p.PositionType)
		}

		value, ok := nonNegative(p.ValueTao)
		if !ok {
			violate("%s value_tao %q is not a non-negative number", key, p.ValueTao)
		}
		sum = sum.Add(value)
		if _, ok := nonNegative(p.ValueUSD); !ok {
			violate("%s value_usd %q is not a non-negative number", key, p.ValueUSD)
		}
		if p.AlphaBalance != nil {
			if _, ok := nonNegative(*p.AlphaBalance); !ok {
				violate("%s alpha_balance %q is not a non-negative number", key, *p.AlphaBalance)
			}
		}
	}

	if snap.TotalValueTao != nil {
		total, ok := nonNegative(*snap.TotalValueTao)
		switch {
		case !ok:
			violate("total_value_tao %q is not a non-negative number", *snap.TotalValueTao)
		case total.LessThan(sum):
			violate("total_value_tao %s is below the position sum %s", total, sum)
		}
	}

	return result
}

func nonNegative(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}
