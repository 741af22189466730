package vacation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
)

// =============================================================================
// CONSUMPTION ENGINE - newest lot first
// =============================================================================

// ledgerStore is the slice of Store that moves days between lots and requests.
type ledgerStore interface {
	LotStore
	ConsumptionStore
}

// ConsumptionPlan is the result of ConsumeLIFO. Nothing is written until
// Commit.
type ConsumptionPlan struct {
	EmployeeID string
	AsOf       generic.TimePoint
	Requested  decimal.Decimal
	Draws      []Draw
}

// Total is the sum of all draws.
func (p ConsumptionPlan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.Draws {
		total = total.Add(d.Days)
	}
	return total
}

// ConsumeLIFO plans a debit of days against lots usable on asOf, newest grant
// first. A shortfall returns *generic.InsufficientBalanceError.
func ConsumeLIFO(ctx context.Context, lots LotStore, employeeID string, days decimal.Decimal, asOf generic.TimePoint) (ConsumptionPlan, error) {
	if !days.IsPositive() {
		return ConsumptionPlan{}, generic.Validationf("days to consume must be positive, got %s", days)
	}

	usable, err := lots.ListUsableLots(ctx, employeeID, asOf)
	if err != nil {
		return ConsumptionPlan{}, fmt.Errorf("failed to list usable lots: %w", err)
	}
	slices.SortStableFunc(usable, func(a, b GrantLot) int {
		return b.GrantDate.Time.Compare(a.GrantDate.Time)
	})

	plan := ConsumptionPlan{EmployeeID: employeeID, AsOf: asOf, Requested: days}
	need := days
	available := decimal.Zero
	for _, lot := range usable {
		if !lot.UsableOn(asOf) {
			continue
		}
		available = available.Add(lot.DaysRemaining)
		if !need.IsPositive() {
			continue
		}
		take := decimal.Min(lot.DaysRemaining, need)
		plan.Draws = append(plan.Draws, Draw{LotID: lot.ID, Days: take})
		need = need.Sub(take)
	}

	if need.IsPositive() {
		return ConsumptionPlan{}, &generic.InsufficientBalanceError{
			EmployeeID: employeeID,
			Available:  available,
			Requested:  days,
			Shortfall:  need,
		}
	}
	return plan, nil
}

// Commit applies a plan for a request: every lot is decremented with a
// compare-and-set and one Consumption row is written per lot. Run it inside
// Store.WithTx so a conflict on any lot rolls back the whole debit.
func Commit(ctx context.Context, store ledgerStore, req TimeOffRequest, plan ConsumptionPlan) error {
	now := time.Now().UTC()
	for _, draw := range plan.Draws {
		lot, err := store.GetLot(ctx, draw.LotID)
		if err != nil {
			return fmt.Errorf("failed to load lot %s: %w", draw.LotID, err)
		}
		if lot == nil {
			return fmt.Errorf("%w: %s", generic.ErrLotNotFound, draw.LotID)
		}
		next := lot.DaysRemaining.Sub(draw.Days)
		if next.IsNegative() {
			return fmt.Errorf("%w: lot %s has %s left, plan draws %s",
				generic.ErrConcurrentModification, lot.ID, lot.DaysRemaining, draw.Days)
		}
		if err := store.SetLotRemaining(ctx, lot.ID, lot.DaysRemaining, next); err != nil {
			return err
		}
		if err := store.CreateConsumption(ctx, Consumption{
			ID:         generic.NewID(),
			EmployeeID: req.EmployeeID,
			RequestID:  req.ID,
			LotID:      lot.ID,
			Date:       req.StartDate,
			Days:       draw.Days,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("failed to record consumption: %w", err)
		}
	}
	return nil
}

// Restore gives back every day a request drew, capped at each lot's grant,
// and removes the consumption rows. Lots deleted since are skipped. A lot
// retired by a config change is not re-credited; its days go to the lot
// granted on the same date under liveVersion, when one exists.
// It returns the number of days restored.
func Restore(ctx context.Context, store ledgerStore, requestID, liveVersion string) (decimal.Decimal, error) {
	consumptions, err := store.ListConsumptionsByRequest(ctx, requestID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list consumptions: %w", err)
	}

	restored := decimal.Zero
	for _, c := range consumptions {
		lot, err := store.GetLot(ctx, c.LotID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to load lot %s: %w", c.LotID, err)
		}
		if lot == nil {
			continue
		}
		if lot, err = restoreTarget(ctx, store, *lot, liveVersion); err != nil {
			return decimal.Zero, err
		}
		next := decimal.Min(lot.DaysRemaining.Add(c.Days), lot.DaysGranted)
		if err := store.SetLotRemaining(ctx, lot.ID, lot.DaysRemaining, next); err != nil {
			return decimal.Zero, err
		}
		restored = restored.Add(next.Sub(lot.DaysRemaining))
	}

	if len(consumptions) > 0 {
		if err := store.DeleteConsumptionsByRequest(ctx, requestID); err != nil {
			return decimal.Zero, fmt.Errorf("failed to delete consumptions: %w", err)
		}
	}
	return restored, nil
}

// restoreTarget returns the replacement for a lot of a stale config version,
// or the lot itself.
func restoreTarget(ctx context.Context, store LotStore, lot GrantLot, liveVersion string) (*GrantLot, error) {
	if liveVersion == "" || lot.ConfigVersion == liveVersion {
		return &lot, nil
	}
	siblings, err := store.ListLotsByGrantDate(ctx, lot.EmployeeID, lot.GrantDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots granted on %s: %w", lot.GrantDate, err)
	}
	for i := range siblings {
		if siblings[i].ID != lot.ID && siblings[i].ConfigVersion == liveVersion {
			return &siblings[i], nil
		}
	}
	return &lot, nil
}

// consumedDays sums what has been drawn from a lot.
func consumedDays(ctx context.Context, store ConsumptionStore, lotID string) (decimal.Decimal, error) {
	cs, err := store.ListConsumptionsByLot(ctx, lotID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Days)
	}
	return total, nil
}
