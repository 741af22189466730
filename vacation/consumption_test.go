package vacation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/store/memory"
	"github.com/warp/yukyu/vacation"
)

// twoLots stores A (granted 2023, 5 days) and B (granted 2024, 3 days).
func twoLots(t *testing.T) (*memory.Memory, vacation.GrantLot, vacation.GrantLot) {
	t.Helper()
	store := memory.New()
	now := time.Now().UTC()
	lot := func(id string, grant generic.TimePoint, n float64) vacation.GrantLot {
		l := vacation.GrantLot{
			ID:            id,
			EmployeeID:    "emp-1",
			GrantDate:     grant,
			DaysGranted:   days(n),
			DaysRemaining: days(n),
			ExpiryDate:    grant.AddYears(2).AddDays(-1),
			DedupKey:      "key-" + id,
			ConfigVersion: vacation.DefaultVersion,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		require.NoError(t, store.CreateLot(context.Background(), l))
		return l
	}
	a := lot("A", date(2023, time.April, 1), 5)
	b := lot("B", date(2024, time.April, 1), 3)
	return store, a, b
}

func TestConsumeLIFO_NewestLotFirst(t *testing.T) {
	store, a, b := twoLots(t)

	// WHEN: 4 days are planned
	plan, err := vacation.ConsumeLIFO(context.Background(), store, "emp-1", days(4), date(2024, time.June, 1))

	// THEN: B is emptied, A gives the remaining day
	require.NoError(t, err)
	require.Len(t, plan.Draws, 2)
	assert.Equal(t, b.ID, plan.Draws[0].LotID)
	requireDays(t, 3, plan.Draws[0].Days)
	assert.Equal(t, a.ID, plan.Draws[1].LotID)
	requireDays(t, 1, plan.Draws[1].Days)
	requireDays(t, 4, plan.Total())
}

func TestConsumeLIFO_ShortfallChangesNothing(t *testing.T) {
	store, _, _ := twoLots(t)

	// WHEN: 9 days are planned against 8
	_, err := vacation.ConsumeLIFO(context.Background(), store, "emp-1", days(9), date(2024, time.June, 1))

	// THEN: the shortfall is 1 and every lot is untouched
	var ib *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &ib), "got %v", err)
	requireDays(t, 1, ib.Shortfall)
	requireDays(t, 8, ib.Available)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)

	lots, err := store.ListLots(context.Background(), "emp-1")
	require.NoError(t, err)
	require.Len(t, lots, 2)
	requireDays(t, 5, lots[0].DaysRemaining)
	requireDays(t, 3, lots[1].DaysRemaining)
}
