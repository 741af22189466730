package vacation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

func TestGenerateForEmployee_CreatesStatutoryLots(t *testing.T) {
	// GIVEN: A full-timer who joined 2020-04-01, no stored config
	e := newEnv(t, time.Date(2022, 10, 2, 9, 0, 0, 0, time.UTC))
	e.fullTimer(t, "emp-1", date(2020, time.April, 1))

	// WHEN: Generating up to the third anchor
	res, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2022, time.October, 1))
	require.NoError(t, err)

	// THEN: 10, 11, 12 days, each valid for two years
	assert.Equal(t, 3, res.Generated)
	lots := e.lots(t, "emp-1")
	require.Len(t, lots, 3)
	for i, want := range []float64{10, 11, 12} {
		requireDays(t, want, lots[i].DaysGranted)
		requireDays(t, want, lots[i].DaysRemaining)
		assert.Equal(t, lots[i].GrantDate.AddYears(2).AddDays(-1), lots[i].ExpiryDate)
		assert.Equal(t, vacation.DefaultVersion, lots[i].ConfigVersion)
	}

	// AND: The employee is stamped with the config version used
	emp, err := e.store.GetEmployee(e.ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, vacation.DefaultVersion, emp.ConfigVersion)
}

func TestGenerateForEmployee_TwoRowTableEndToEnd(t *testing.T) {
	// GIVEN: A table of {0.5 -> 10, 1.5 -> 11} and a join date of 2022-04-01
	e := newEnv(t, time.Date(2023, 10, 2, 9, 0, 0, 0, time.UTC))
	cfg := vacation.DefaultAppConfig()
	cfg.Version = "two-row"
	cfg.FullTime.Table = []vacation.GrantRow{{Years: 0.5, Days: 10}, {Years: 1.5, Days: 11}}
	require.NoError(t, e.configs.Save(e.ctx, "two-row", &cfg, true))
	e.fullTimer(t, "emp-1", date(2022, time.April, 1))

	// WHEN: Generating through 2023-10-02
	res, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2023, time.October, 2))
	require.NoError(t, err)

	// THEN: Exactly two lots with two-year validity
	assert.Equal(t, 2, res.Generated)
	lots := e.lots(t, "emp-1")
	require.Len(t, lots, 2)
	assert.Equal(t, date(2022, time.October, 1), lots[0].GrantDate)
	requireDays(t, 10, lots[0].DaysGranted)
	assert.Equal(t, date(2024, time.September, 30), lots[0].ExpiryDate)
	assert.Equal(t, date(2023, time.October, 1), lots[1].GrantDate)
	requireDays(t, 11, lots[1].DaysGranted)
	assert.Equal(t, date(2025, time.September, 30), lots[1].ExpiryDate)
	assert.Equal(t, "two-row", lots[1].ConfigVersion)
}

func TestGenerateForEmployee_Idempotent(t *testing.T) {
	e := newEnv(t, time.Now())
	e.fullTimer(t, "emp-1", date(2020, time.April, 1))
	until := date(2023, time.January, 1)

	_, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", until)
	require.NoError(t, err)
	before := e.lots(t, "emp-1")

	// WHEN: Running again with the same inputs
	res, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", until)
	require.NoError(t, err)

	// THEN: Nothing changes
	assert.Zero(t, res.Generated)
	assert.Zero(t, res.Updated)
	assert.Equal(t, before, e.lots(t, "emp-1"))
}

func TestGenerateForEmployee_Preconditions(t *testing.T) {
	e := newEnv(t, time.Now())
	e.addEmployee(t, vacation.Employee{ID: "no-join", EmployeeType: "正社員"})

	_, err := e.generator.GenerateForEmployee(e.ctx, "no-join", date(2025, 1, 1))
	assert.ErrorIs(t, err, generic.ErrMissingJoinDate)
	assert.True(t, generic.IsClientError(err))

	_, err = e.generator.GenerateForEmployee(e.ctx, "ghost", date(2025, 1, 1))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestGenerateForEmployee_PartTimeUsesTable(t *testing.T) {
	e := newEnv(t, time.Now())
	e.addEmployee(t, vacation.Employee{ID: "pt", EmployeeType: "パート", WeeklyPattern: 2, JoinDate: date(2022, time.January, 1)})

	_, err := e.generator.GenerateForEmployee(e.ctx, "pt", date(2023, time.July, 1))
	require.NoError(t, err)

	lots := e.lots(t, "pt")
	require.Len(t, lots, 2)
	requireDays(t, 7, lots[0].DaysGranted)
	requireDays(t, 8, lots[1].DaysGranted)
}

func TestGenerateForEmployee_UpdatesInPlaceWhenTableChanges(t *testing.T) {
	// GIVEN: Version v1 active, one lot of 10 days with 3 days consumed
	e := newEnv(t, time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC))
	cfg := vacation.DefaultAppConfig()
	cfg.Version = "v1"
	require.NoError(t, e.configs.Save(e.ctx, "v1", &cfg, true))
	e.addEmployee(t, vacation.Employee{ID: "emp-1", EmployeeType: "正社員", JoinDate: date(2020, time.April, 1), ConfigVersion: "v1"})

	_, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2021, time.January, 5))
	require.NoError(t, err)
	req, err := e.requests.Submit(e.ctx, dayRequest("emp-1", date(2021, time.February, 1), date(2021, time.February, 3)))
	require.NoError(t, err)
	_, err = e.requests.ApproveAndFinalize(e.ctx, req.ID, "hr")
	require.NoError(t, err)
	original := e.lotOn(t, "emp-1", date(2020, time.October, 1))

	// WHEN: v1's table is edited to grant 12 days at 0.5 years
	cfg.FullTime.Table[0].Days = 12
	require.NoError(t, e.configs.Save(e.ctx, "v1", &cfg, false))
	res, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2021, time.January, 5))
	require.NoError(t, err)

	// THEN: Same lot, new grant, consumption kept
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Generated)
	lot := e.lotOn(t, "emp-1", date(2020, time.October, 1))
	assert.Equal(t, original.ID, lot.ID)
	assert.NotEqual(t, original.DedupKey, lot.DedupKey)
	requireDays(t, 12, lot.DaysGranted)
	requireDays(t, 9, lot.DaysRemaining)
}

func TestGenerateForEmployee_VersionChangeRetiresStaleLots(t *testing.T) {
	// GIVEN: Two lots under v1, the newer one partly consumed
	e := newEnv(t, time.Date(2021, 10, 5, 0, 0, 0, 0, time.UTC))
	v1 := vacation.DefaultAppConfig()
	v1.Version = "v1"
	v2 := vacation.DefaultAppConfig()
	v2.Version = "v2"
	require.NoError(t, e.configs.Save(e.ctx, "v1", &v1, true))
	require.NoError(t, e.configs.Save(e.ctx, "v2", &v2, false))
	emp := e.addEmployee(t, vacation.Employee{ID: "emp-1", EmployeeType: "正社員", JoinDate: date(2020, time.April, 1), ConfigVersion: "v1"})

	until := date(2021, time.October, 5)
	_, err := e.generator.GenerateForEmployee(e.ctx, emp.ID, until)
	require.NoError(t, err)
	req, err := e.requests.Submit(e.ctx, dayRequest(emp.ID, date(2021, time.October, 11), date(2021, time.October, 13)))
	require.NoError(t, err)
	_, err = e.requests.ApproveAndFinalize(e.ctx, req.ID, "hr")
	require.NoError(t, err)

	// WHEN: The employee moves to v2
	emp.ConfigVersion = "v2"
	require.NoError(t, e.store.SaveEmployee(e.ctx, emp))
	res, err := e.generator.GenerateForEmployee(e.ctx, emp.ID, until)
	require.NoError(t, err)

	// THEN: The untouched v1 lot is deleted, the consumed one is zeroed
	assert.Equal(t, 2, res.Generated)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 1, res.Retired)

	lots := e.lots(t, emp.ID)
	require.Len(t, lots, 3)
	byVersion := map[string][]vacation.GrantLot{}
	for _, l := range lots {
		byVersion[l.ConfigVersion] = append(byVersion[l.ConfigVersion], l)
	}
	require.Len(t, byVersion["v1"], 1)
	assert.Equal(t, date(2021, time.October, 1), byVersion["v1"][0].GrantDate)
	requireDays(t, 0, byVersion["v1"][0].DaysRemaining)
	assert.Len(t, byVersion["v2"], 2)
}

func TestReject_AfterVersionChangeDoesNotReviveRetiredLot(t *testing.T) {
	// GIVEN: A 3-day request finalized under v1, then the employee regenerated under v2
	e := newEnv(t, time.Date(2021, 10, 5, 0, 0, 0, 0, time.UTC))
	v1 := vacation.DefaultAppConfig()
	v1.Version = "v1"
	v2 := vacation.DefaultAppConfig()
	v2.Version = "v2"
	require.NoError(t, e.configs.Save(e.ctx, "v1", &v1, true))
	require.NoError(t, e.configs.Save(e.ctx, "v2", &v2, false))
	emp := e.addEmployee(t, vacation.Employee{ID: "emp-1", EmployeeType: "正社員", JoinDate: date(2020, time.April, 1), ConfigVersion: "v1"})

	until := date(2021, time.October, 5)
	_, err := e.generator.GenerateForEmployee(e.ctx, emp.ID, until)
	require.NoError(t, err)
	req, err := e.requests.Submit(e.ctx, dayRequest(emp.ID, date(2021, time.October, 11), date(2021, time.October, 13)))
	require.NoError(t, err)
	_, err = e.requests.ApproveAndFinalize(e.ctx, req.ID, "hr")
	require.NoError(t, err)

	emp.ConfigVersion = "v2"
	require.NoError(t, e.store.SaveEmployee(e.ctx, emp))
	_, err = e.generator.GenerateForEmployee(e.ctx, emp.ID, until)
	require.NoError(t, err)

	// WHEN: The request is rejected
	_, err = e.requests.Reject(e.ctx, req.ID, "hr", "cancelled")
	require.NoError(t, err)

	// THEN: The retired v1 lot stays at zero and the balance equals the entitlement
	total := decimal.Zero
	for _, l := range e.lots(t, emp.ID) {
		if l.ConfigVersion == "v1" {
			requireDays(t, 0, l.DaysRemaining, "retired lot %s", l.GrantDate)
		}
		total = total.Add(l.DaysRemaining)
	}
	requireDays(t, 21, total)

	cs, err := e.store.ListConsumptionsByRequest(e.ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestGenerateForEmployee_SettlesDeferredRequests(t *testing.T) {
	// GIVEN: A finalized request imported before any lot existed
	e := newEnv(t, time.Date(2021, 1, 20, 0, 0, 0, 0, time.UTC))
	e.fullTimer(t, "emp-1", date(2020, time.April, 1))
	finalizedAt := time.Date(2021, 1, 8, 0, 0, 0, 0, time.UTC)
	require.NoError(t, e.store.SaveRequest(e.ctx, vacation.TimeOffRequest{
		ID:          "req-old",
		EmployeeID:  "emp-1",
		StartDate:   date(2021, time.January, 10),
		EndDate:     date(2021, time.January, 11),
		Unit:        vacation.UnitDay,
		TotalDays:   days(2),
		Status:      vacation.StatusApproved,
		ApprovedAt:  &finalizedAt,
		FinalizedAt: &finalizedAt,
		CreatedAt:   finalizedAt,
		UpdatedAt:   finalizedAt,
	}))

	// WHEN: The lot is generated
	res, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2020, time.December, 31))
	require.NoError(t, err)

	// THEN: The request is debited and audited
	assert.Equal(t, 1, res.DeferredProcessed)
	requireDays(t, 8, e.lotOn(t, "emp-1", date(2020, time.October, 1)).DaysRemaining)

	req, err := e.requests.Get(e.ctx, "req-old")
	require.NoError(t, err)
	require.Len(t, req.Breakdown, 1)
	requireDays(t, 2, req.Breakdown[0].Days)
	assert.Contains(t, e.audit.actions(), vacation.AuditDeferredConsumption)

	// AND: A second run does not debit again
	res, err = e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2020, time.December, 31))
	require.NoError(t, err)
	assert.Zero(t, res.DeferredProcessed)
	requireDays(t, 8, e.lotOn(t, "emp-1", date(2020, time.October, 1)).DaysRemaining)
}

func TestGenerateForAll_ContinuesPastFailures(t *testing.T) {
	e := newEnv(t, time.Now())
	e.fullTimer(t, "ok-1", date(2020, time.April, 1))
	e.addEmployee(t, vacation.Employee{ID: "broken", EmployeeType: "正社員"})
	e.fullTimer(t, "ok-2", date(2021, time.April, 1))

	batch, err := e.generator.GenerateForAll(e.ctx, date(2021, time.December, 31))
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Employees)
	assert.Equal(t, 3, batch.Generated)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "broken", batch.Failures[0].EmployeeID)
	assert.ErrorIs(t, batch.Failures[0].Err, generic.ErrMissingJoinDate)
}

func TestGenerateDue_OnlyEmployeesWithAnchorTomorrow(t *testing.T) {
	e := newEnv(t, time.Now())
	e.fullTimer(t, "due", date(2024, time.April, 1))
	e.fullTimer(t, "not-due", date(2024, time.May, 1))

	// WHEN: today is the day before "due"'s first anchor
	batch, err := e.generator.GenerateDue(e.ctx, date(2024, time.September, 30))
	require.NoError(t, err)

	// THEN: Only "due" gets its lot, dated tomorrow
	assert.Equal(t, 1, batch.Employees)
	assert.Equal(t, 1, batch.Generated)
	assert.Len(t, e.lots(t, "due"), 1)
	assert.Empty(t, e.lots(t, "not-due"))
	assert.Equal(t, date(2024, time.October, 1), e.lots(t, "due")[0].GrantDate)
}

func TestSweeper_ExpireLots(t *testing.T) {
	// GIVEN: Lots granted 2020-10-01 (expires 2022-09-30) and 2021-10-01
	e := newEnv(t, time.Now())
	e.fullTimer(t, "emp-1", date(2020, time.April, 1))
	_, err := e.generator.GenerateForEmployee(e.ctx, "emp-1", date(2021, time.October, 1))
	require.NoError(t, err)

	// WHEN: Sweeping on the expiry day itself
	n, err := e.sweeper.ExpireLots(e.ctx, date(2022, time.September, 30))
	require.NoError(t, err)
	assert.Zero(t, n, "the expiry day is still usable")

	// AND: Sweeping the day after
	n, err = e.sweeper.ExpireLots(e.ctx, date(2022, time.October, 1))
	require.NoError(t, err)

	// THEN: Only the old lot is zeroed; a rerun changes nothing
	assert.Equal(t, 1, n)
	requireDays(t, 0, e.lotOn(t, "emp-1", date(2020, time.October, 1)).DaysRemaining)
	requireDays(t, 11, e.lotOn(t, "emp-1", date(2021, time.October, 1)).DaysRemaining)

	n, err = e.sweeper.ExpireLots(e.ctx, date(2022, time.October, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
}
