package vacation

import (
	"iter"
	"slices"
	"time"

	"github.com/warp/yukyu/generic"
)

// =============================================================================
// ANCHOR GENERATOR
// =============================================================================

// Anchors yields grant anchor dates for an employee in ascending order, up to
// and including until. The sequence is lazy; callers may stop early.
func Anchors(cfg AppConfig, join, until generic.TimePoint) iter.Seq[generic.TimePoint] {
	return func(yield func(generic.TimePoint) bool) {
		if join.IsZero() || until.Before(join) {
			return
		}
		rule := cfg.BaselineRule
		switch rule.Kind {
		case BaselineRelativeFromJoin:
			step := cfg.cycleMonths()
			for d := join.AddMonths(rule.InitialGrantAfterMonths); !d.After(until); d = d.AddMonths(step) {
				if !yield(d) {
					return
				}
			}

		case BaselineAnniversary:
			for y := join.Year(); ; y++ {
				d := generic.NewTimePoint(y, join.Month(), join.Day()).AddMonths(rule.OffsetMonths)
				if d.After(until) {
					return
				}
				if !yield(d) {
					return
				}
			}

		case BaselineFixedMonthDay:
			for y := join.Year(); ; y++ {
				d := generic.NewTimePoint(y, time.Month(rule.Month), rule.Day)
				if d.After(until) {
					return
				}
				if d.Before(join) {
					continue
				}
				if !yield(d) {
					return
				}
			}
		}
	}
}

// AnchorsUntil materializes Anchors.
func AnchorsUntil(cfg AppConfig, join, until generic.TimePoint) []generic.TimePoint {
	return slices.Collect(Anchors(cfg, join, until))
}

// searchHorizon bounds forward anchor searches: Dec 31 of the following year
// plus one grant cycle, so a long cycle still finds its next anchor.
func searchHorizon(cfg AppConfig, today generic.TimePoint) generic.TimePoint {
	return generic.EndOfYear(today.Year() + 1).AddMonths(cfg.cycleMonths())
}

// NextAnchor returns the first anchor strictly after today.
func NextAnchor(cfg AppConfig, join, today generic.TimePoint) (generic.TimePoint, bool) {
	for d := range Anchors(cfg, join, searchHorizon(cfg, today)) {
		if d.After(today) {
			return d, true
		}
	}
	return generic.TimePoint{}, false
}

// PreviousAnchor returns the last anchor on or before today.
func PreviousAnchor(cfg AppConfig, join, today generic.TimePoint) (generic.TimePoint, bool) {
	var last generic.TimePoint
	found := false
	for d := range Anchors(cfg, join, today) {
		last, found = d, true
	}
	return last, found
}

// CurrentPeriod returns the grant period containing today: from the previous
// anchor (the join date before the first grant) to the next anchor.
func CurrentPeriod(cfg AppConfig, join, today generic.TimePoint) (generic.Period, bool) {
	next, ok := NextAnchor(cfg, join, today)
	if !ok {
		return generic.Period{}, false
	}
	start, ok := PreviousAnchor(cfg, join, today)
	if !ok {
		start = join
	}
	return generic.Period{Start: start, End: next}, true
}
