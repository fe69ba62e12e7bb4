// Package analytics implements the pure portfolio analytics core: flow
// classification, returns and drawdown, attribution, anomaly signals and
// realized APY. Nothing in this package performs I/O.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"
)

// outputPlaces is the number of decimal places kept when emitting float results
const outputPlaces = 12

// isFinite reports whether v is neither NaN nor ±Inf
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseDecimal converts a stored decimal string to float64.
// Malformed or non-finite input coerces to zero so NaN never reaches an aggregate.
func ParseDecimal(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	if !isFinite(f) {
		return 0
	}
	return f
}

// ParseNullable parses an optional decimal string.
// ok is false when the value is absent or malformed.
func ParseNullable(s *string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	if !isFinite(f) {
		return 0, false
	}
	return f, true
}

// FormatDecimal renders a float as a decimal string. Non-finite values render as "0".
func FormatDecimal(v float64) string {
	if !isFinite(v) {
		return "0"
	}
	return decimal.NewFromFloat(v).Round(outputPlaces).String()
}

// FormatNullable renders an optional float; nil stays nil
func FormatNullable(v *float64) *string {
	if v == nil || !isFinite(*v) {
		return nil
	}
	s := FormatDecimal(*v)
	return &s
}

func floatPtr(v float64) *float64 {
	return &v
}
