package vacation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// statsEnv: full-timer joined 2020-04-01 with lots of 10 (2020-10-01) and 11
// (2021-10-01) days, 3 days finalized in October 2021 and a 2-day request
// pending.
func statsEnv(t *testing.T) *env {
	t.Helper()
	e := newEnv(t, time.Date(2021, 10, 5, 0, 0, 0, 0, time.UTC))
	e.fullTimer(t, "emp-1", date(2020, time.April, 1))
	_, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2021, time.October, 5))
	require.NoError(t, err)

	used, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.October, 11), date(2021, time.October, 13)))
	require.NoError(t, err)
	_, err = e.requests.ApproveAndFinalize(e.ctx, used.ID, "hr")
	require.NoError(t, err)

	_, err = e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.December, 1), date(2021, time.December, 2)))
	require.NoError(t, err)
	return e
}

func TestStats_Figures(t *testing.T) {
	e := statsEnv(t)

	st, err := e.stats.Stats(e.ctx, "emp-1", date(2021, time.November, 1))
	require.NoError(t, err)

	requireDays(t, 18, st.TotalRemaining)
	requireDays(t, 3, st.Used)
	requireDays(t, 2, st.Pending)
	requireDays(t, 11, st.CurrentGrant)
	requireDays(t, 10, st.CarryOver)
	requireDays(t, 21, st.TotalGranted)
	requireDays(t, 0, st.ExpiringSoon)
	assert.Equal(t, "A", st.Pattern)
	assert.Equal(t, vacation.DefaultVersion, st.ConfigVersion)
	require.NotNil(t, st.PreviousGrantDate)
	require.NotNil(t, st.NextGrantDate)
	assert.Equal(t, date(2021, time.October, 1), *st.PreviousGrantDate)
	assert.Equal(t, date(2022, time.October, 1), *st.NextGrantDate)

	// Five-day obligation: 3 of 5 used, next grant far away
	assert.True(t, st.Alert.Needed)
	assert.Equal(t, vacation.UrgencyNormal, st.Alert.Urgency)
	require.Len(t, st.Alert.Checkpoints, 3)
	assert.Equal(t, date(2022, time.July, 1), st.Alert.Checkpoints[0].Deadline)
	assert.False(t, st.Alert.Checkpoints[0].Reached)
}

func TestStats_ExpiringSoon(t *testing.T) {
	e := statsEnv(t)

	// The 2020 lot expires 2022-09-30, inside the 30-day window
	st, err := e.stats.Stats(e.ctx, "emp-1", date(2022, time.September, 15))
	require.NoError(t, err)
	requireDays(t, 10, st.ExpiringSoon)

	// After expiry it no longer counts as remaining even before the sweep
	st, err = e.stats.Stats(e.ctx, "emp-1", date(2022, time.October, 1))
	require.NoError(t, err)
	requireDays(t, 8, st.TotalRemaining)
}

func TestStats_HighUrgencyNearNextGrant(t *testing.T) {
	e := statsEnv(t)

	st, err := e.stats.Stats(e.ctx, "emp-1", date(2022, time.August, 1))
	require.NoError(t, err)

	assert.True(t, st.Alert.Needed)
	assert.Equal(t, vacation.UrgencyHigh, st.Alert.Urgency)
	assert.True(t, st.Alert.Checkpoints[0].Reached)
	assert.False(t, st.Alert.Checkpoints[0].Met)
}

func TestStats_NoJoinDate(t *testing.T) {
	e := newEnv(t, time.Now())
	e.addEmployee(t, vacation.Employee{ID: "new", EmployeeType: "正社員"})

	st, err := e.stats.Stats(e.ctx, "new", date(2024, 1, 1))
	require.NoError(t, err)

	assert.Nil(t, st.NextGrantDate)
	assert.False(t, st.Alert.Needed)
	assert.Equal(t, vacation.UrgencyNone, st.Alert.Urgency)
	requireDays(t, 0, st.TotalRemaining)

	_, err = e.stats.Periods(e.ctx, "new", date(2024, 1, 1), -1)
	assert.ErrorIs(t, err, generic.ErrMissingJoinDate)
}

func TestStats_UnknownEmployee(t *testing.T) {
	e := newEnv(t, time.Now())

	_, err := e.stats.Stats(e.ctx, "ghost", date(2024, 1, 1))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestPeriods_CarryOverChainAndProjection(t *testing.T) {
	e := statsEnv(t)

	periods, err := e.stats.Periods(e.ctx, "emp-1", date(2021, time.November, 1), -1)
	require.NoError(t, err)

	// THEN: Two real periods plus the projected one, oldest first
	require.Len(t, periods, 3)

	first, current, next := periods[0], periods[1], periods[2]
	assert.Equal(t, -1, first.Index)
	assert.Equal(t, date(2020, time.October, 1), first.Start)
	requireDays(t, 10, first.NewGrant)
	requireDays(t, 0, first.Used)

	assert.Equal(t, 0, current.Index)
	requireDays(t, 11, current.NewGrant)
	requireDays(t, 10, current.CarryOver)
	requireDays(t, 3, current.Used)
	requireDays(t, 18, current.Remaining)

	assert.True(t, next.Projected)
	assert.Equal(t, 1, next.Index)
	assert.Equal(t, date(2022, time.October, 1), next.Start)
	assert.Equal(t, date(2023, time.October, 1), next.End)
	requireDays(t, 12, next.NewGrant)
	requireDays(t, 8, next.CarryOver)
	requireDays(t, 20, next.TotalAvailable)

	// back=0 keeps only the current period and the projection
	periods, err = e.stats.Periods(e.ctx, "emp-1", date(2021, time.November, 1), 0)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, 0, periods[0].Index)
}
