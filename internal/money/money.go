package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts move through the engines as int64 base units; decimal strings
// appear only at the CLI/config/API boundary.
const Decimals = 9

var unit = decimal.New(1, Decimals)

// Parse converts a decimal string like "0.01" into base units.
// Precision beyond Decimals digits is rejected rather than truncated.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	scaled := d.Mul(unit)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, Decimals)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("invalid amount %q: out of range", s)
	}
	return scaled.IntPart(), nil
}

// Format renders base units as a decimal string.
func Format(v int64) string {
	return decimal.New(v, -Decimals).String()
}
