/*
Package generic provides the building blocks shared by the leave engine.

PURPOSE:
  Day arithmetic, day-count quantities and identifiers that the vacation
  package composes into grant lots, requests and stats. Nothing in here
  knows about labour law.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: leave quantities as decimal.Decimal (never float64)
  - RoundHalf: nearest-0.5 rounding used for every reported figure
  - NewID: random identifiers for lots, requests and audit entries

DESIGN PRINCIPLES:
  1. Precision: half days must add up exactly, so decimal.Decimal throughout
  2. Clamping: remaining balances never go negative

SEE ALSO:
  - time.go: TimePoint calendar-day type
  - period.go: grant periods
  - errors.go: sentinel and structured errors
*/
package generic

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - leave quantities
// =============================================================================

var (
	half = decimal.NewFromFloat(0.5)
	two  = decimal.NewFromInt(2)
)

// Days converts a float literal (config tables, DTOs) into a decimal day count.
func Days(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// DaysInt converts a whole day count.
func DaysInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// ParseDays parses a stored decimal string. Empty or malformed input is zero.
func ParseDays(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundHalf rounds to the nearest 0.5 day, halves away from zero.
func RoundHalf(d decimal.Decimal) decimal.Decimal {
	return d.Mul(two).Round(0).Div(two)
}

// Half is 0.5 day.
func Half() decimal.Decimal { return half }

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// ToFloat is used at API boundaries only.
func ToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}
