package generic

import "fmt"

// =============================================================================
// PERIOD - grant period between two anchors
// =============================================================================

// Period is a half-open day range [Start, End). A grant period starts on an
// anchor and ends on the next one, so the next anchor belongs to the next
// period.
type Period struct {
	Start TimePoint
	End   TimePoint
}

func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.Before(p.End)
}

// Overlaps reports whether the inclusive span [from, to] shares at least one
// day with the period.
func (p Period) Overlaps(from, to TimePoint) bool {
	return from.Before(p.End) && to.AfterOrEqual(p.Start)
}

// Days returns the number of days in the period.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start, p.End)
}
