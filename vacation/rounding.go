package vacation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
)

// DefaultHoursPerDay is the working day length assumed when none is given.
const DefaultHoursPerDay = 8

// ApplyRounding rounds a day quantity. DAY rounds to whole days; HOUR
// converts to minutes, rounds to the configured minute step and converts
// back using hoursPerDay.
func ApplyRounding(value decimal.Decimal, rule RoundingRule, hoursPerDay int) decimal.Decimal {
	if rule.Unit == RoundHour {
		if hoursPerDay <= 0 {
			hoursPerDay = DefaultHoursPerDay
		}
		minutesPerDay := decimal.NewFromInt(int64(hoursPerDay * 60))
		step := decimal.NewFromInt(int64(rule.step()))
		steps := roundWithMode(value.Mul(minutesPerDay).Div(step), rule.Mode)
		return steps.Mul(step).Div(minutesPerDay).Round(6)
	}
	return roundWithMode(value, rule.Mode)
}

func roundWithMode(v decimal.Decimal, mode RoundingMode) decimal.Decimal {
	switch mode {
	case ModeFloor:
		return v.Floor()
	case ModeCeil:
		return v.Ceil()
	default:
		return v.Round(0)
	}
}

// ConvertTimeToDays turns used minutes into days. Anything up to half a
// working day counts as a half day (半日); longer spans are converted and
// rounded with the rule.
func ConvertTimeToDays(usedMinutes, hoursPerDay int, rule RoundingRule) decimal.Decimal {
	if usedMinutes <= 0 {
		return decimal.Zero
	}
	if hoursPerDay <= 0 {
		hoursPerDay = DefaultHoursPerDay
	}
	if usedMinutes*2 <= hoursPerDay*60 {
		return generic.Half()
	}
	days := decimal.NewFromInt(int64(usedMinutes)).Div(decimal.NewFromInt(int64(hoursPerDay * 60)))
	return ApplyRounding(days, rule, hoursPerDay)
}

// RequestSpan is the part of a request that determines its size.
type RequestSpan struct {
	Start       generic.TimePoint
	End         generic.TimePoint
	Unit        RequestUnit
	HoursPerDay int
	// Requested is days for DAY (zero means every day of the span) and
	// hours for HOUR.
	Requested decimal.Decimal
}

// SpanDays counts calendar days in [Start, End].
func (s RequestSpan) SpanDays() int {
	return generic.DaysBetween(s.Start, s.End) + 1
}

// RequestTotalDays sizes a request in days. Day requests are rounded to the
// nearest half day; hour requests go through ConvertTimeToDays. Both are
// capped at the number of calendar days in the span.
func RequestTotalDays(span RequestSpan, rule RoundingRule) (decimal.Decimal, error) {
	if span.Start.IsZero() || span.End.IsZero() {
		return decimal.Zero, generic.Validationf("start and end dates are required")
	}
	if span.End.Before(span.Start) {
		return decimal.Zero, generic.ErrInvalidPeriod
	}
	periodDays := generic.DaysInt(span.SpanDays())

	switch span.Unit {
	case UnitHour:
		if span.HoursPerDay <= 0 {
			return decimal.Zero, generic.Validationf("hoursPerDay is required for HOUR requests")
		}
		if !span.Requested.IsPositive() {
			return decimal.Zero, generic.Validationf("requested hours must be positive")
		}
		maxHours := periodDays.Mul(generic.DaysInt(span.HoursPerDay))
		if span.Requested.GreaterThan(maxHours) {
			return decimal.Zero, generic.Validationf("requested hours %s exceed the span maximum of %s", span.Requested, maxHours)
		}
		minutes := int(span.Requested.Mul(decimal.NewFromInt(60)).Round(0).IntPart())
		return decimal.Min(ConvertTimeToDays(minutes, span.HoursPerDay, rule), periodDays), nil

	case UnitDay, "":
		raw := periodDays
		if span.Requested.IsPositive() {
			raw = span.Requested
		}
		total := decimal.Min(generic.RoundHalf(raw), periodDays)
		if !total.IsPositive() {
			return decimal.Zero, generic.Validationf("requested days must be at least 0.5")
		}
		return total, nil

	default:
		return decimal.Zero, generic.Validationf("unknown request unit %q", span.Unit)
	}
}
