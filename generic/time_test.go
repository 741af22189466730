package generic_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/generic"
)

func TestFromTime_UsesLocalCalendarDay(t *testing.T) {
	// GIVEN: 23:30 UTC, which is already the next day in Tokyo
	tokyo := time.FixedZone("JST", 9*60*60)
	utc := time.Date(2024, 3, 31, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-31", generic.FromTime(utc).String())
	assert.Equal(t, "2024-04-01", generic.FromTime(utc.In(tokyo)).String())
}

func TestParseTimePoint(t *testing.T) {
	tp, err := generic.ParseTimePoint("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, generic.NewTimePoint(2024, time.February, 29), tp)

	tp, err = generic.ParseTimePoint("2024-02-29T15:00:00+09:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", tp.String())

	_, err = generic.ParseTimePoint("29/02/2024")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestCalendarMonthsBetween(t *testing.T) {
	assert.Equal(t, 1, generic.CalendarMonthsBetween(
		generic.NewTimePoint(2024, time.April, 30), generic.NewTimePoint(2024, time.May, 1)))
	assert.Equal(t, 18, generic.CalendarMonthsBetween(
		generic.NewTimePoint(2023, time.January, 15), generic.NewTimePoint(2024, time.July, 1)))
	assert.Equal(t, -2, generic.CalendarMonthsBetween(
		generic.NewTimePoint(2024, time.March, 1), generic.NewTimePoint(2024, time.January, 1)))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 366, generic.DaysBetween(generic.NewTimePoint(2024, 1, 1), generic.NewTimePoint(2025, 1, 1)))
	assert.Equal(t, -1, generic.DaysBetween(generic.NewTimePoint(2024, 1, 2), generic.NewTimePoint(2024, 1, 1)))
}

func TestPeriod_HalfOpen(t *testing.T) {
	start := generic.NewTimePoint(2024, time.October, 1)
	end := generic.NewTimePoint(2025, time.October, 1)
	p, err := generic.NewPeriod(start, end)
	require.NoError(t, err)

	assert.True(t, p.Contains(start))
	assert.True(t, p.Contains(end.AddDays(-1)))
	assert.False(t, p.Contains(end), "the next anchor belongs to the next period")
	assert.True(t, p.Overlaps(start.AddDays(-3), start), "span ending on the start overlaps")
	assert.False(t, p.Overlaps(end, end.AddDays(2)))
	assert.Equal(t, 365, p.Days())
	assert.Equal(t, "[2024-10-01, 2025-10-01)", p.String())

	_, err = generic.NewPeriod(end, start)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestRoundHalf(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.2, 0},
		{0.25, 0.5},
		{0.74, 0.5},
		{0.75, 1},
		{3.3, 3.5},
		{10, 10},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			got := generic.RoundHalf(generic.Days(tt.in))
			assert.True(t, generic.Days(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestDayHelpers(t *testing.T) {
	assert.True(t, generic.NonNegative(decimal.NewFromInt(-3)).IsZero())
	assert.True(t, generic.Sum(generic.Days(1.5), generic.DaysInt(2)).Equal(generic.Days(3.5)))
	assert.True(t, generic.ParseDays("bogus").IsZero())
	assert.True(t, generic.ParseDays("7.5").Equal(generic.Days(7.5)))
	assert.Equal(t, 2.5, generic.ToFloat(generic.Days(2.5)))
	assert.NotEqual(t, generic.NewID(), generic.NewID())
}

func TestErrorClassification(t *testing.T) {
	notFound := fmt.Errorf("load: %w", generic.ErrEmployeeNotFound)
	assert.True(t, generic.IsNotFound(notFound))
	assert.False(t, generic.IsClientError(notFound))

	assert.True(t, generic.IsClientError(generic.Validationf("bad %s", "input")))
	assert.True(t, generic.IsClientError(generic.ErrMissingJoinDate))

	transition := &generic.TransitionError{RequestID: "r1", From: "REJECTED", Action: "approve"}
	assert.True(t, generic.IsConflict(transition))
	assert.EqualError(t, transition, "cannot approve request r1 in state REJECTED")

	assert.True(t, generic.IsRetryable(fmt.Errorf("lot: %w", generic.ErrConcurrentModification)))

	var err error = &generic.InsufficientBalanceError{
		Available: generic.Days(2),
		Requested: generic.Days(5),
		Shortfall: generic.Days(3),
	}
	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance))
	assert.Contains(t, err.Error(), "shortfall 3")
}
