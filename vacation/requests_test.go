package vacation_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// requestEnv has one full-timer with a single 10-day lot granted 2020-10-01
// and the clock on 2021-01-05.
func requestEnv(t *testing.T) *env {
	t.Helper()
	e := newEnv(t, time.Date(2021, 1, 5, 10, 0, 0, 0, time.UTC))
	e.fullTimer(t, "emp-1", date(2020, time.April, 1))
	_, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2021, time.January, 5))
	require.NoError(t, err)
	return e
}

func TestRequestLifecycle_SubmitApproveFinalizeReject(t *testing.T) {
	e := requestEnv(t)
	lotDate := date(2020, time.October, 1)

	// Submit: PENDING, nothing debited
	req, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 3)))
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusPending, req.Status)
	requireDays(t, 3, req.TotalDays)
	requireDays(t, 10, e.lotOn(t, "emp-1", lotDate).DaysRemaining)

	available, err := e.requests.Available(e.ctx, "emp-1")
	require.NoError(t, err)
	requireDays(t, 7, available)

	// Approve: APPROVED, still nothing debited
	req, err = e.requests.Approve(e.ctx, req.ID, "boss")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusApproved, req.Status)
	assert.False(t, req.Finalized())
	requireDays(t, 10, e.lotOn(t, "emp-1", lotDate).DaysRemaining)

	// Finalize: debit recorded per lot
	req, err = e.requests.Finalize(e.ctx, req.ID, "hr")
	require.NoError(t, err)
	assert.True(t, req.Finalized())
	require.Len(t, req.Breakdown, 1)
	requireDays(t, 3, req.Breakdown[0].Days)
	requireDays(t, 7, e.lotOn(t, "emp-1", lotDate).DaysRemaining)
	cs, err := e.store.ListConsumptionsByRequest(e.ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, cs, 1)

	_, err = e.requests.Finalize(e.ctx, req.ID, "hr")
	assert.ErrorIs(t, err, generic.ErrInvalidTransition, "finalize twice")

	// Reject after finalization: days come back
	req, err = e.requests.Reject(e.ctx, req.ID, "hr", "cancelled trip")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusRejected, req.Status)
	assert.Equal(t, "cancelled trip", req.RejectionReason)
	requireDays(t, 10, e.lotOn(t, "emp-1", lotDate).DaysRemaining)
	cs, err = e.store.ListConsumptionsByRequest(e.ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, cs)

	assert.Equal(t, []vacation.AuditAction{
		vacation.AuditRequestSubmit,
		vacation.AuditRequestApprove,
		vacation.AuditRequestFinalize,
		vacation.AuditRequestReject,
	}, e.audit.actions())
}

func TestSubmit_InsufficientBalance(t *testing.T) {
	e := requestEnv(t)
	_, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 3)))
	require.NoError(t, err)

	// WHEN: Asking for 8 more days with 7 available
	_, err = e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.March, 1), date(2021, time.March, 8)))

	// THEN: Refused with the shortfall
	var ib *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	requireDays(t, 7, ib.Available)
	requireDays(t, 1, ib.Shortfall)
}

func TestSubmit_ApprovedUnfinalizedRequestsHoldDays(t *testing.T) {
	e := requestEnv(t)
	req, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 8)))
	require.NoError(t, err)
	_, err = e.requests.Approve(e.ctx, req.ID, "boss")
	require.NoError(t, err)

	_, err = e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.March, 1), date(2021, time.March, 3)))
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
}

func TestSubmit_Validation(t *testing.T) {
	e := requestEnv(t)

	_, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.February, 3), date(2021, time.February, 1)))
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)

	_, err = e.requests.Submit(e.ctx, dayRequest("ghost", date(2021, time.February, 1), date(2021, time.February, 1)))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestSubmit_HourRequest(t *testing.T) {
	e := requestEnv(t)

	req, err := e.requests.Submit(e.ctx, vacation.SubmitInput{
		EmployeeID:  "emp-1",
		StartDate:   date(2021, time.February, 1),
		EndDate:     date(2021, time.February, 1),
		Unit:        vacation.UnitHour,
		HoursPerDay: 8,
		Requested:   days(3),
	})
	require.NoError(t, err)
	requireDays(t, 0.5, req.TotalDays)
}

func TestUpdate_CountsOwnDaysAsAvailable(t *testing.T) {
	e := requestEnv(t)
	req, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 3)))
	require.NoError(t, err)

	// WHEN: Growing the request to the whole balance
	updated, err := e.requests.Update(e.ctx, req.ID, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 10)), "emp-1")

	// THEN: Allowed, since its own 3 days are not double counted
	require.NoError(t, err)
	requireDays(t, 10, updated.TotalDays)
	assert.Equal(t, req.ID, updated.ID)

	// AND: Non-pending requests cannot be edited
	_, err = e.requests.Approve(e.ctx, req.ID, "boss")
	require.NoError(t, err)
	_, err = e.requests.Update(e.ctx, req.ID, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 2)), "emp-1")
	var te *generic.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "APPROVED", te.From)
}

func TestDelete_RestoresDebit(t *testing.T) {
	e := requestEnv(t)
	req, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 2)))
	require.NoError(t, err)
	_, err = e.requests.ApproveAndFinalize(e.ctx, req.ID, "hr")
	require.NoError(t, err)
	requireDays(t, 8, e.lotOn(t, "emp-1", date(2020, time.October, 1)).DaysRemaining)

	require.NoError(t, e.requests.Delete(e.ctx, req.ID, "hr"))

	requireDays(t, 10, e.lotOn(t, "emp-1", date(2020, time.October, 1)).DaysRemaining)
	_, err = e.requests.Get(e.ctx, req.ID)
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)
}

func TestDelete_RejectedIsKept(t *testing.T) {
	e := requestEnv(t)
	req, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 1)))
	require.NoError(t, err)
	_, err = e.requests.Reject(e.ctx, req.ID, "boss", "")
	require.NoError(t, err)

	err = e.requests.Delete(e.ctx, req.ID, "boss")
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
}

func TestFinalize_ConsumesNewestLotFirst(t *testing.T) {
	// GIVEN: 10 days from 2020-10-01 and 11 days from 2021-10-01
	e := newEnv(t, time.Date(2021, 10, 5, 0, 0, 0, 0, time.UTC))
	e.fullTimer(t, "emp-1", date(2020, time.April, 1))
	_, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2021, time.October, 5))
	require.NoError(t, err)

	// WHEN: 13 days are finalized
	req, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.November, 1), date(2021, time.November, 13)))
	require.NoError(t, err)
	req, err = e.requests.ApproveAndFinalize(e.ctx, req.ID, "hr")
	require.NoError(t, err)

	// THEN: The 2021 lot is emptied first, the rest comes from 2020
	older := e.lotOn(t, "emp-1", date(2020, time.October, 1))
	newer := e.lotOn(t, "emp-1", date(2021, time.October, 1))
	require.Len(t, req.Breakdown, 2)
	assert.Equal(t, newer.ID, req.Breakdown[0].LotID)
	requireDays(t, 11, req.Breakdown[0].Days)
	assert.Equal(t, older.ID, req.Breakdown[1].LotID)
	requireDays(t, 2, req.Breakdown[1].Days)
	requireDays(t, 0, newer.DaysRemaining)
	requireDays(t, 8, older.DaysRemaining)
}

func TestFinalize_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	// GIVEN: Two approved 6-day requests against a 10-day lot
	e := requestEnv(t)
	approvedAt := time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"req-a", "req-b"} {
		require.NoError(t, e.store.SaveRequest(e.ctx, vacation.TimeOffRequest{
			ID:         id,
			EmployeeID: "emp-1",
			StartDate:  date(2021, time.February, 1),
			EndDate:    date(2021, time.February, 6),
			Unit:       vacation.UnitDay,
			TotalDays:  days(6),
			Status:     vacation.StatusApproved,
			ApprovedAt: &approvedAt,
			CreatedAt:  approvedAt,
			UpdatedAt:  approvedAt,
		}))
	}

	// WHEN: Both are finalized at once
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"req-a", "req-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.requests.Finalize(e.ctx, id, "hr")
		}()
	}
	wg.Wait()

	// THEN: Exactly one succeeds and the lot holds the rest
	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, failed)
	requireDays(t, 4, e.lotOn(t, "emp-1", date(2020, time.October, 1)).DaysRemaining)
}

func TestApprove_OnlySupervisorOrAdmin(t *testing.T) {
	// GIVEN: A request naming "boss" as supervisor, with "hr" as admin
	e := requestEnv(t)
	e.requests.Admins = map[string]bool{"hr": true}
	in := dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 1))
	in.SupervisorID = "boss"

	req, err := e.requests.Submit(e.ctx, in)
	require.NoError(t, err)

	// WHEN: Someone else approves
	_, err = e.requests.Approve(e.ctx, req.ID, "intern")

	// THEN: It is refused and the request stays PENDING
	assert.ErrorIs(t, err, generic.ErrNotApprover)
	got, err := e.requests.Get(e.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusPending, got.Status)

	// AND: The supervisor and an admin are both accepted
	approved, err := e.requests.Approve(e.ctx, req.ID, "boss")
	require.NoError(t, err)
	assert.Equal(t, "boss", approved.ApprovedBy)

	other, err := e.requests.Submit(e.ctx, in)
	require.NoError(t, err)
	_, err = e.requests.Approve(e.ctx, other.ID, "hr")
	assert.NoError(t, err)
}
