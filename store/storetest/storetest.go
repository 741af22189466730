// Package storetest holds the behaviour every vacation.Store must share.
// Backends call Run from their own tests with a constructor for a fresh,
// empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// Run executes the contract suite. newStore is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) vacation.Store) {
	t.Run("Employees", func(t *testing.T) { testEmployees(t, newStore(t)) })
	t.Run("Lots", func(t *testing.T) { testLots(t, newStore(t)) })
	t.Run("SetLotRemaining", func(t *testing.T) { testSetLotRemaining(t, newStore(t)) })
	t.Run("ExpireLots", func(t *testing.T) { testExpireLots(t, newStore(t)) })
	t.Run("Consumptions", func(t *testing.T) { testConsumptions(t, newStore(t)) })
	t.Run("Requests", func(t *testing.T) { testRequests(t, newStore(t)) })
	t.Run("Configs", func(t *testing.T) { testConfigs(t, newStore(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newStore(t)) })
	t.Run("WithTxRollback", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
	t.Run("DuplicateLotInTx", func(t *testing.T) { testDuplicateLotInTx(t, newStore(t)) })
}

func date(t *testing.T, s string) generic.TimePoint {
	t.Helper()
	tp, err := generic.ParseTimePoint(s)
	require.NoError(t, err)
	return tp
}

// Lot builds a lot with remaining equal to granted.
func Lot(id, employeeID string, grant, expiry generic.TimePoint, days int64) vacation.GrantLot {
	now := time.Now().UTC()
	return vacation.GrantLot{
		ID:            id,
		EmployeeID:    employeeID,
		GrantDate:     grant,
		DaysGranted:   decimal.NewFromInt(days),
		DaysRemaining: decimal.NewFromInt(days),
		ExpiryDate:    expiry,
		DedupKey:      "key-" + id,
		ConfigVersion: "1.0.0",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testEmployees(t *testing.T, s vacation.Store) {
	ctx := context.Background()

	// GIVEN: two employees, one inactive
	pt, err := vacation.PartTime(3)
	require.NoError(t, err)
	require.NoError(t, s.SaveEmployee(ctx, vacation.Employee{
		ID: "e1", Name: "Aoki", JoinDate: date(t, "2020-04-01"), WeeklyPattern: 5,
		DefaultPattern: vacation.FullTime(), Active: true, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.SaveEmployee(ctx, vacation.Employee{
		ID: "e2", Name: "Baba", DefaultPattern: pt, Active: false, CreatedAt: time.Now().UTC(),
	}))

	// WHEN / THEN: reads return what was written
	got, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Aoki", got.Name)
	assert.True(t, got.JoinDate.Equal(date(t, "2020-04-01")))
	assert.Equal(t, vacation.FullTime(), got.DefaultPattern)
	assert.Equal(t, 5, got.WeeklyPattern)

	e2, err := s.GetEmployee(ctx, "e2")
	require.NoError(t, err)
	assert.True(t, e2.JoinDate.IsZero())
	assert.Equal(t, pt, e2.DefaultPattern)

	missing, err := s.GetEmployee(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := s.ListActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "e1", active[0].ID)

	// WHEN: saving again with the same ID
	got.Name = "Aoki Taro"
	require.NoError(t, s.SaveEmployee(ctx, *got))

	// THEN: the record is replaced, not duplicated
	all, err = s.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	again, _ := s.GetEmployee(ctx, "e1")
	assert.Equal(t, "Aoki Taro", again.Name)
}

func testLots(t *testing.T, s vacation.Store) {
	ctx := context.Background()

	// GIVEN: three lots, one expired and one fully used
	old := Lot("l-old", "e1", date(t, "2019-10-01"), date(t, "2021-10-01"), 10)
	mid := Lot("l-mid", "e1", date(t, "2020-10-01"), date(t, "2022-10-01"), 11)
	recent := Lot("l-new", "e1", date(t, "2021-10-01"), date(t, "2023-10-01"), 12)
	used := Lot("l-used", "e1", date(t, "2021-10-01"), date(t, "2023-10-01"), 3)
	used.DaysRemaining = decimal.Zero
	other := Lot("l-other", "e2", date(t, "2021-10-01"), date(t, "2023-10-01"), 10)
	for _, l := range []vacation.GrantLot{old, mid, recent, used, other} {
		require.NoError(t, s.CreateLot(ctx, l))
	}

	// WHEN: a lot reuses a dedup key
	dup := Lot("l-dup", "e1", date(t, "2021-10-01"), date(t, "2023-10-01"), 12)
	dup.DedupKey = recent.DedupKey
	err := s.CreateLot(ctx, dup)

	// THEN: the store reports a duplicate
	assert.True(t, errors.Is(err, generic.ErrDuplicateDedupKey), "got %v", err)

	all, err := s.ListLots(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "l-old", all[0].ID)

	byDate, err := s.ListLotsByGrantDate(ctx, "e1", date(t, "2021-10-01"))
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	// THEN: usable lots are newest first, without expired or empty ones
	usable, err := s.ListUsableLots(ctx, "e1", date(t, "2022-01-15"))
	require.NoError(t, err)
	require.Len(t, usable, 2)
	assert.Equal(t, "l-new", usable[0].ID)
	assert.Equal(t, "l-mid", usable[1].ID)

	// expiry day itself is still usable
	onExpiry, err := s.ListUsableLots(ctx, "e1", date(t, "2022-10-01"))
	require.NoError(t, err)
	assert.Len(t, onExpiry, 2)

	byKey, err := s.GetLotByDedupKey(ctx, mid.DedupKey)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "l-mid", byKey.ID)
	assert.True(t, byKey.DaysGranted.Equal(decimal.NewFromInt(11)))

	// WHEN: updating a lot in place
	byKey.DaysGranted = decimal.NewFromInt(12)
	byKey.DaysRemaining = decimal.RequireFromString("9.5")
	byKey.DedupKey = "key-mid-v2"
	require.NoError(t, s.UpdateLot(ctx, *byKey))

	// THEN: the new key resolves and the old one does not
	updated, err := s.GetLotByDedupKey(ctx, "key-mid-v2")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.DaysRemaining.Equal(decimal.RequireFromString("9.5")))
	gone, err := s.GetLotByDedupKey(ctx, mid.DedupKey)
	require.NoError(t, err)
	assert.Nil(t, gone)

	missing := Lot("l-missing", "e1", date(t, "2021-10-01"), date(t, "2023-10-01"), 1)
	assert.True(t, errors.Is(s.UpdateLot(ctx, missing), generic.ErrLotNotFound))

	// WHEN: deleting a lot
	require.NoError(t, s.DeleteLot(ctx, "l-old"))
	deleted, err := s.GetLot(ctx, "l-old")
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func testSetLotRemaining(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	lot := Lot("l1", "e1", date(t, "2021-10-01"), date(t, "2023-10-01"), 10)
	require.NoError(t, s.CreateLot(ctx, lot))

	// WHEN: the expected value matches
	require.NoError(t, s.SetLotRemaining(ctx, "l1", decimal.NewFromInt(10), decimal.RequireFromString("7.5")))
	got, _ := s.GetLot(ctx, "l1")
	assert.True(t, got.DaysRemaining.Equal(decimal.RequireFromString("7.5")))

	// WHEN: the expected value is stale
	err := s.SetLotRemaining(ctx, "l1", decimal.NewFromInt(10), decimal.NewFromInt(5))

	// THEN: the write is refused as a conflict
	assert.True(t, errors.Is(err, generic.ErrConcurrentModification), "got %v", err)
	got, _ = s.GetLot(ctx, "l1")
	assert.True(t, got.DaysRemaining.Equal(decimal.RequireFromString("7.5")))

	err = s.SetLotRemaining(ctx, "nope", decimal.Zero, decimal.Zero)
	assert.True(t, errors.Is(err, generic.ErrLotNotFound), "got %v", err)
}

func testExpireLots(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateLot(ctx, Lot("a", "e1", date(t, "2019-10-01"), date(t, "2021-10-01"), 10)))
	require.NoError(t, s.CreateLot(ctx, Lot("b", "e1", date(t, "2020-10-01"), date(t, "2022-10-01"), 11)))
	empty := Lot("c", "e1", date(t, "2019-04-01"), date(t, "2021-04-01"), 5)
	empty.DaysRemaining = decimal.Zero
	require.NoError(t, s.CreateLot(ctx, empty))

	// WHEN: sweeping the day after the first expiry
	n, err := s.ExpireLots(ctx, date(t, "2021-10-02"))

	// THEN: only the lapsed lot with days left changes
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	a, _ := s.GetLot(ctx, "a")
	assert.True(t, a.DaysRemaining.IsZero())
	b, _ := s.GetLot(ctx, "b")
	assert.True(t, b.DaysRemaining.Equal(decimal.NewFromInt(11)))

	// a second sweep is a no-op
	n, err = s.ExpireLots(ctx, date(t, "2021-10-02"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// a lot expiring today is kept
	n, err = s.ExpireLots(ctx, date(t, "2022-10-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testConsumptions(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	base := time.Now().UTC()
	rows := []vacation.Consumption{
		{ID: "c1", EmployeeID: "e1", RequestID: "r1", LotID: "l1", Date: date(t, "2022-01-10"), Days: decimal.NewFromInt(2), CreatedAt: base},
		{ID: "c2", EmployeeID: "e1", RequestID: "r1", LotID: "l2", Date: date(t, "2022-01-10"), Days: decimal.RequireFromString("0.5"), CreatedAt: base.Add(time.Millisecond)},
		{ID: "c3", EmployeeID: "e1", RequestID: "r2", LotID: "l1", Date: date(t, "2022-02-10"), Days: decimal.NewFromInt(1), CreatedAt: base.Add(2 * time.Millisecond)},
	}
	for _, c := range rows {
		require.NoError(t, s.CreateConsumption(ctx, c))
	}

	byReq, err := s.ListConsumptionsByRequest(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, byReq, 2)
	assert.Equal(t, "c1", byReq[0].ID)
	assert.True(t, byReq[1].Days.Equal(decimal.RequireFromString("0.5")))

	byLot, err := s.ListConsumptionsByLot(ctx, "l1")
	require.NoError(t, err)
	assert.Len(t, byLot, 2)

	// WHEN: removing one request's rows
	require.NoError(t, s.DeleteConsumptionsByRequest(ctx, "r1"))

	// THEN: the other request keeps its rows
	byReq, _ = s.ListConsumptionsByRequest(ctx, "r1")
	assert.Empty(t, byReq)
	byLot, _ = s.ListConsumptionsByLot(ctx, "l1")
	require.Len(t, byLot, 1)
	assert.Equal(t, "c3", byLot[0].ID)
}

func testRequests(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// GIVEN: a finalized request with a breakdown and a pending one
	finalized := vacation.TimeOffRequest{
		ID: "r1", EmployeeID: "e1",
		StartDate: date(t, "2022-01-10"), EndDate: date(t, "2022-01-12"),
		Unit: vacation.UnitDay, TotalDays: decimal.NewFromInt(3),
		Status: vacation.StatusApproved, Reason: "trip",
		ApprovedBy: "boss", ApprovedAt: &now,
		FinalizedBy: "hr", FinalizedAt: &now,
		Breakdown: []vacation.Draw{
			{LotID: "l2", Days: decimal.NewFromInt(2)},
			{LotID: "l1", Days: decimal.NewFromInt(1)},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	pending := vacation.TimeOffRequest{
		ID: "r2", EmployeeID: "e1",
		StartDate: date(t, "2022-03-01"), EndDate: date(t, "2022-03-01"),
		Unit: vacation.UnitHour, HoursPerDay: 8, RequestedAmount: decimal.NewFromInt(4),
		TotalDays: decimal.RequireFromString("0.5"), Status: vacation.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.SaveRequest(ctx, finalized))
	require.NoError(t, s.SaveRequest(ctx, pending))

	// THEN: fields survive the round trip
	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Finalized())
	assert.Equal(t, "boss", got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(now))
	assert.Nil(t, got.RejectedAt)
	require.Len(t, got.Breakdown, 2)
	assert.Equal(t, "l2", got.Breakdown[0].LotID)
	assert.True(t, got.TotalDays.Equal(decimal.NewFromInt(3)))

	hour, _ := s.GetRequest(ctx, "r2")
	assert.Equal(t, vacation.UnitHour, hour.Unit)
	assert.Equal(t, 8, hour.HoursPerDay)
	assert.True(t, hour.TotalDays.Equal(decimal.RequireFromString("0.5")))

	all, err := s.ListRequests(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r1", all[0].ID)

	onlyPending, err := s.ListRequests(ctx, "e1", vacation.StatusPending)
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)
	assert.Equal(t, "r2", onlyPending[0].ID)

	both, err := s.ListRequests(ctx, "e1", vacation.StatusPending, vacation.StatusApproved)
	require.NoError(t, err)
	assert.Len(t, both, 2)

	// WHEN: rejecting the pending one
	hour.Status = vacation.StatusRejected
	hour.RejectedBy = "boss"
	hour.RejectedAt = &now
	hour.RejectionReason = "busy"
	require.NoError(t, s.SaveRequest(ctx, *hour))

	rejected, _ := s.GetRequest(ctx, "r2")
	assert.Equal(t, vacation.StatusRejected, rejected.Status)
	assert.Equal(t, "busy", rejected.RejectionReason)

	// WHEN: deleting
	require.NoError(t, s.DeleteRequest(ctx, "r1"))
	missing, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testConfigs(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	none, err := s.GetActiveConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.SaveConfig(ctx, vacation.ConfigRecord{Version: "1.0.0", Payload: []byte(`{"v":1}`), IsActive: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.SaveConfig(ctx, vacation.ConfigRecord{Version: "2.0.0", Payload: []byte(`{"v":2}`), CreatedAt: now, UpdatedAt: now}))

	active, err := s.GetActiveConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "1.0.0", active.Version)

	// WHEN: re-saving the active version without the flag
	require.NoError(t, s.SaveConfig(ctx, vacation.ConfigRecord{Version: "1.0.0", Payload: []byte(`{"v":11}`), CreatedAt: now, UpdatedAt: now}))

	// THEN: it stays active with the new payload
	rec, err := s.GetConfig(ctx, "1.0.0")
	require.NoError(t, err)
	assert.True(t, rec.IsActive)
	assert.JSONEq(t, `{"v":11}`, string(rec.Payload))

	// WHEN: activating another version
	require.NoError(t, s.ActivateConfig(ctx, "2.0.0"))

	// THEN: exactly one version is active
	list, err := s.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	activeCount := 0
	for _, r := range list {
		if r.IsActive {
			activeCount++
			assert.Equal(t, "2.0.0", r.Version)
		}
	}
	assert.Equal(t, 1, activeCount)

	err = s.ActivateConfig(ctx, "9.9.9")
	assert.True(t, errors.Is(err, generic.ErrConfigNotFound), "got %v", err)

	missing, err := s.GetConfig(ctx, "9.9.9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testAudit(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	base := time.Now().UTC()
	for i, action := range []vacation.AuditAction{
		vacation.AuditRequestSubmit, vacation.AuditRequestApprove, vacation.AuditRequestFinalize,
	} {
		require.NoError(t, s.AppendAudit(ctx, vacation.AuditEntry{
			ID: generic.NewID(), EmployeeID: "e1", Actor: "boss", Action: action,
			EntityType: "TimeOffRequest", EntityID: "r1",
			Payload:   map[string]any{"step": float64(i)},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.AppendAudit(ctx, vacation.AuditEntry{
		ID: generic.NewID(), EmployeeID: "e2", Actor: "hr", Action: vacation.AuditRequestSubmit,
		EntityType: "TimeOffRequest", EntityID: "r9", CreatedAt: base.Add(5 * time.Second),
	}))

	// THEN: newest first, filtered and limited
	entries, err := s.ListAudit(ctx, "e1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, vacation.AuditRequestFinalize, entries[0].Action)
	assert.Equal(t, float64(2), entries[0].Payload["step"])

	limited, err := s.ListAudit(ctx, "e1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	everyone, err := s.ListAudit(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, everyone, 4)
	assert.Equal(t, "e2", everyone[0].EmployeeID)
}

func testWithTxRollback(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	// WHEN: the transaction body fails after a write
	err := s.WithTx(ctx, func(tx vacation.Store) error {
		if err := tx.CreateLot(ctx, Lot("l1", "e1", date(t, "2021-10-01"), date(t, "2023-10-01"), 10)); err != nil {
			return err
		}
		return boom
	})

	// THEN: the error surfaces and nothing was kept
	assert.ErrorIs(t, err, boom)
	lot, err := s.GetLot(ctx, "l1")
	require.NoError(t, err)
	assert.Nil(t, lot)

	// WHEN: it succeeds
	require.NoError(t, s.WithTx(ctx, func(tx vacation.Store) error {
		return tx.CreateLot(ctx, Lot("l2", "e1", date(t, "2021-10-01"), date(t, "2023-10-01"), 10))
	}))
	lot, err = s.GetLot(ctx, "l2")
	require.NoError(t, err)
	assert.NotNil(t, lot)
}

func testDuplicateLotInTx(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	grant, expiry := date(t, "2021-10-01"), date(t, "2023-10-01")

	// WHEN: a duplicate dedup key is skipped mid-transaction and work continues
	err := s.WithTx(ctx, func(tx vacation.Store) error {
		if err := tx.CreateLot(ctx, Lot("l1", "e1", grant, expiry, 10)); err != nil {
			return err
		}
		dup := Lot("l2", "e1", grant, expiry, 10)
		dup.DedupKey = "key-l1"
		if err := tx.CreateLot(ctx, dup); !errors.Is(err, generic.ErrDuplicateDedupKey) {
			return fmt.Errorf("want duplicate key, got %v", err)
		}
		if _, err := tx.ListLotsByGrantDate(ctx, "e1", grant); err != nil {
			return err
		}
		return tx.CreateLot(ctx, Lot("l3", "e1", date(t, "2022-10-01"), date(t, "2024-10-01"), 11))
	})

	// THEN: the transaction commits with both real lots and no duplicate
	require.NoError(t, err)
	lots, err := s.ListLots(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, "l1", lots[0].ID)
	assert.Equal(t, "l3", lots[1].ID)
}
