package vacation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

func withBaseline(rule vacation.BaselineRule) vacation.AppConfig {
	cfg := vacation.DefaultAppConfig()
	cfg.BaselineRule = rule
	return cfg
}

func TestAnchors_RelativeFromJoin(t *testing.T) {
	// GIVEN: Statutory rule, first grant 6 months after joining, then yearly
	cfg := vacation.DefaultAppConfig()

	// WHEN: Listing anchors up to the third grant date (inclusive)
	got := vacation.AnchorsUntil(cfg, date(2020, time.April, 1), date(2022, time.October, 1))

	// THEN: Three anchors, the last one equal to until
	assert.Equal(t, []generic.TimePoint{
		date(2020, time.October, 1),
		date(2021, time.October, 1),
		date(2022, time.October, 1),
	}, got)
}

func TestAnchors_RelativeFromJoin_CustomCycle(t *testing.T) {
	// GIVEN: First grant at 3 months, then every 6 months
	cfg := withBaseline(vacation.RelativeFromJoin(3, 6))

	got := vacation.AnchorsUntil(cfg, date(2024, time.January, 15), date(2025, time.January, 1))

	assert.Equal(t, []generic.TimePoint{
		date(2024, time.April, 15),
		date(2024, time.October, 15),
	}, got)
}

func TestAnchors_Anniversary(t *testing.T) {
	// GIVEN: Anniversary with a 6 month offset
	cfg := withBaseline(vacation.Anniversary(6))

	got := vacation.AnchorsUntil(cfg, date(2021, time.July, 10), date(2023, time.June, 30))

	// THEN: Join day + 6 months every year
	assert.Equal(t, []generic.TimePoint{
		date(2022, time.January, 10),
		date(2023, time.January, 10),
	}, got)
}

func TestAnchors_FixedMonthDay_SkipsDatesBeforeJoin(t *testing.T) {
	// GIVEN: Company-wide April 1 grants, employee joined mid-June
	cfg := withBaseline(vacation.FixedMonthDay(4, 1))

	got := vacation.AnchorsUntil(cfg, date(2020, time.June, 10), date(2023, time.January, 1))

	// THEN: April 1 of the join year is skipped
	assert.Equal(t, []generic.TimePoint{
		date(2021, time.April, 1),
		date(2022, time.April, 1),
	}, got)
}

func TestAnchors_EmptyCases(t *testing.T) {
	cfg := vacation.DefaultAppConfig()

	assert.Empty(t, vacation.AnchorsUntil(cfg, generic.TimePoint{}, date(2030, 1, 1)), "no join date")
	assert.Empty(t, vacation.AnchorsUntil(cfg, date(2024, 1, 1), date(2023, 1, 1)), "until before join")
	assert.Empty(t, vacation.AnchorsUntil(cfg, date(2024, 1, 1), date(2024, 6, 30)), "before first grant")
}

func TestAnchors_StopsEarly(t *testing.T) {
	cfg := vacation.DefaultAppConfig()

	count := 0
	for range vacation.Anchors(cfg, date(2000, 1, 1), date(2030, 1, 1)) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestNextAndPreviousAnchor(t *testing.T) {
	cfg := vacation.DefaultAppConfig()
	join := date(2020, time.April, 1)

	// WHEN: today is itself an anchor
	today := date(2021, time.October, 1)
	next, ok := vacation.NextAnchor(cfg, join, today)
	require.True(t, ok)
	prev, ok := vacation.PreviousAnchor(cfg, join, today)
	require.True(t, ok)

	// THEN: next is strictly after, previous includes today
	assert.Equal(t, date(2022, time.October, 1), next)
	assert.Equal(t, today, prev)

	_, ok = vacation.PreviousAnchor(cfg, join, date(2020, time.May, 1))
	assert.False(t, ok, "no anchor before the first grant")
}

func TestNextAnchor_LongCycle(t *testing.T) {
	// GIVEN: A 24 month cycle, so the next anchor can be past next year's end
	cfg := withBaseline(vacation.RelativeFromJoin(6, 24))

	next, ok := vacation.NextAnchor(cfg, date(2020, time.January, 1), date(2020, time.August, 1))

	require.True(t, ok)
	assert.Equal(t, date(2022, time.July, 1), next)
}

func TestCurrentPeriod(t *testing.T) {
	cfg := vacation.DefaultAppConfig()
	join := date(2020, time.April, 1)

	// Before the first grant the period starts at the join date
	p, ok := vacation.CurrentPeriod(cfg, join, date(2020, time.May, 1))
	require.True(t, ok)
	assert.Equal(t, join, p.Start)
	assert.Equal(t, date(2020, time.October, 1), p.End)

	// Afterwards it runs anchor to anchor, half-open
	p, ok = vacation.CurrentPeriod(cfg, join, date(2021, time.March, 3))
	require.True(t, ok)
	assert.Equal(t, date(2020, time.October, 1), p.Start)
	assert.Equal(t, date(2021, time.October, 1), p.End)
	assert.True(t, p.Contains(date(2021, time.March, 3)))
	assert.False(t, p.Contains(p.End))
}
