package vacation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
)

// DefaultExpiringSoonDays is the look-ahead window for expiringSoon.
const DefaultExpiringSoonDays = 30

// highUrgencyMonths: an unmet five-day obligation is urgent when the next
// grant is closer than this.
const highUrgencyMonths = 3

// =============================================================================
// RESULT TYPES
// =============================================================================

type AlertUrgency string

const (
	UrgencyNone   AlertUrgency = "none"
	UrgencyNormal AlertUrgency = "normal"
	UrgencyHigh   AlertUrgency = "high"
)

// CheckpointStatus reports one alert checkpoint against the next grant date.
type CheckpointStatus struct {
	MonthsBefore    int
	Deadline        generic.TimePoint
	MinConsumedDays decimal.Decimal
	Reached         bool
	Met             bool
}

// FiveDayAlert is the 年5日取得義務 (five-day use obligation) status.
type FiveDayAlert struct {
	Needed          bool
	Urgency         AlertUrgency
	LatestGrantDays decimal.Decimal
	Used            decimal.Decimal
	Required        decimal.Decimal
	Checkpoints     []CheckpointStatus
}

// Stats is computed on read; nothing here is stored.
type Stats struct {
	EmployeeID        string
	AsOf              generic.TimePoint
	ConfigVersion     string
	Pattern           string
	PatternLabel      string
	TotalRemaining    decimal.Decimal
	Used              decimal.Decimal
	Pending           decimal.Decimal
	TotalGranted      decimal.Decimal
	CarryOver         decimal.Decimal
	CurrentGrant      decimal.Decimal
	ExpiringSoon      decimal.Decimal
	ExpiringSoonDays  int
	PreviousGrantDate *generic.TimePoint
	NextGrantDate     *generic.TimePoint
	Alert             FiveDayAlert
}

// PeriodSummary is one grant period in the grant-calculation breakdown.
// Index is 0 for the current period, negative for past ones and 1 for the
// projected next period.
type PeriodSummary struct {
	Index          int
	Start          generic.TimePoint
	End            generic.TimePoint
	NewGrant       decimal.Decimal
	CarryOver      decimal.Decimal
	TotalAvailable decimal.Decimal
	Used           decimal.Decimal
	Remaining      decimal.Decimal
	Projected      bool
}

// =============================================================================
// STATS SERVICE
// =============================================================================

type StatsService struct {
	store            Store
	configs          *ConfigService
	expiringSoonDays int
}

func NewStatsService(store Store, configs *ConfigService) *StatsService {
	return &StatsService{store: store, configs: configs, expiringSoonDays: DefaultExpiringSoonDays}
}

// WithExpiringSoonDays overrides the look-ahead window.
func (s *StatsService) WithExpiringSoonDays(days int) *StatsService {
	if days > 0 {
		s.expiringSoonDays = days
	}
	return s
}

// employeeView is everything the calculations need, loaded once.
type employeeView struct {
	emp      Employee
	cfg      AppConfig
	lots     []GrantLot
	requests []TimeOffRequest
}

func (s *StatsService) load(ctx context.Context, employeeID string) (*employeeView, error) {
	emp, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load employee %s: %w", employeeID, err)
	}
	if emp == nil {
		return nil, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, employeeID)
	}
	lots, err := s.store.ListLots(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	requests, err := s.store.ListRequests(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return &employeeView{
		emp:      *emp,
		cfg:      s.configs.Load(ctx, emp.ConfigVersion),
		lots:     lots,
		requests: requests,
	}, nil
}

// Stats returns the employee's figures as of today, each rounded to 0.5.
func (s *StatsService) Stats(ctx context.Context, employeeID string, today generic.TimePoint) (Stats, error) {
	v, err := s.load(ctx, employeeID)
	if err != nil {
		return Stats{}, err
	}
	pattern := EffectivePattern(v.emp)
	st := Stats{
		EmployeeID:       employeeID,
		AsOf:             today,
		ConfigVersion:    v.cfg.Version,
		Pattern:          pattern.String(),
		PatternLabel:     pattern.Label(v.cfg),
		TotalRemaining:   decimal.Zero,
		Used:             decimal.Zero,
		Pending:          decimal.Zero,
		TotalGranted:     decimal.Zero,
		CarryOver:        decimal.Zero,
		CurrentGrant:     decimal.Zero,
		ExpiringSoon:     decimal.Zero,
		ExpiringSoonDays: s.expiringSoonDays,
	}

	horizon := today.AddDays(s.expiringSoonDays)
	for _, lot := range v.lots {
		if lot.ExpiryDate.Before(today) {
			continue
		}
		st.TotalRemaining = st.TotalRemaining.Add(lot.DaysRemaining)
		if !lot.ExpiryDate.After(horizon) {
			st.ExpiringSoon = st.ExpiringSoon.Add(lot.DaysRemaining)
		}
	}

	for _, r := range v.requests {
		if r.Status == StatusPending {
			st.Pending = st.Pending.Add(pendingDays(r, v.cfg))
		}
	}

	if !v.emp.JoinDate.IsZero() {
		periods := v.periods(today)
		if n := len(periods); n > 0 {
			cur := periods[n-1]
			st.Used = cur.Used
			st.CarryOver = cur.CarryOver
			st.CurrentGrant = cur.NewGrant
			st.TotalGranted = cur.TotalAvailable
			if prev, ok := PreviousAnchor(v.cfg, v.emp.JoinDate, today); ok {
				st.PreviousGrantDate = &prev
			}
			if !cur.End.IsZero() {
				next := cur.End
				st.NextGrantDate = &next
			}
		}
		st.Alert = v.fiveDayAlert(today, st.CurrentGrant, st.Used, st.NextGrantDate)
	} else {
		st.Alert = FiveDayAlert{Urgency: UrgencyNone, Used: decimal.Zero, LatestGrantDays: decimal.Zero,
			Required: generic.Days(v.cfg.MinLegalUseDaysPerYear)}
	}

	st.TotalRemaining = generic.RoundHalf(st.TotalRemaining)
	st.Used = generic.RoundHalf(st.Used)
	st.Pending = generic.RoundHalf(st.Pending)
	st.TotalGranted = generic.RoundHalf(st.TotalGranted)
	st.CarryOver = generic.RoundHalf(st.CarryOver)
	st.CurrentGrant = generic.RoundHalf(st.CurrentGrant)
	st.ExpiringSoon = generic.RoundHalf(st.ExpiringSoon)
	return st, nil
}

// Periods returns up to `back` past periods, the current period and the
// projected next period, oldest first.
func (s *StatsService) Periods(ctx context.Context, employeeID string, today generic.TimePoint, back int) ([]PeriodSummary, error) {
	v, err := s.load(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if v.emp.JoinDate.IsZero() {
		return nil, fmt.Errorf("employee %s: %w", employeeID, generic.ErrMissingJoinDate)
	}

	all := v.periods(today)
	if back >= 0 && len(all) > back+1 {
		all = all[len(all)-back-1:]
	}
	if n := len(all); n > 0 && !all[n-1].End.IsZero() {
		cur := all[n-1]
		next := cur.End
		grant := v.grantOn(next)
		carry := generic.NonNegative(cur.NewGrant.Sub(cur.Used))
		projected := PeriodSummary{
			Index:          1,
			Start:          next,
			NewGrant:       grant,
			CarryOver:      carry,
			TotalAvailable: grant.Add(carry),
			Used:           decimal.Zero,
			Remaining:      grant.Add(carry),
			Projected:      true,
		}
		if after, ok := NextAnchor(v.cfg, v.emp.JoinDate, next); ok {
			projected.End = after
		}
		all = append(all, projected)
	}
	for i := range all {
		p := &all[i]
		p.NewGrant = generic.RoundHalf(p.NewGrant)
		p.CarryOver = generic.RoundHalf(p.CarryOver)
		p.TotalAvailable = generic.RoundHalf(p.TotalAvailable)
		p.Used = generic.RoundHalf(p.Used)
		p.Remaining = generic.RoundHalf(p.Remaining)
	}
	return all, nil
}

// periods builds every period from the first anchor (or the join date) up to
// the one containing today, with the carry-over chain applied. Figures are
// not rounded.
func (v *employeeView) periods(today generic.TimePoint) []PeriodSummary {
	join := v.emp.JoinDate
	anchors := AnchorsUntil(v.cfg, join, today)
	next, hasNext := NextAnchor(v.cfg, join, today)

	starts := anchors
	if len(starts) == 0 {
		starts = []generic.TimePoint{join}
	}

	out := make([]PeriodSummary, 0, len(starts))
	prevGrant, prevUsed := decimal.Zero, decimal.Zero
	for i, start := range starts {
		var end generic.TimePoint
		switch {
		case i+1 < len(starts):
			end = starts[i+1]
		case hasNext:
			end = next
		}

		grant := decimal.Zero
		if len(anchors) > 0 {
			grant = v.grantOn(start)
		}
		carry := decimal.Zero
		if i > 0 {
			carry = generic.NonNegative(prevGrant.Sub(prevUsed))
		}
		used := v.usedIn(start, end)
		total := grant.Add(carry)

		out = append(out, PeriodSummary{
			Index:          i - (len(starts) - 1),
			Start:          start,
			End:            end,
			NewGrant:       grant,
			CarryOver:      carry,
			TotalAvailable: total,
			Used:           used,
			Remaining:      generic.NonNegative(total.Sub(used)),
		})
		prevGrant, prevUsed = grant, used
	}
	return out
}

// grantOn is the lot granted on date under the current config version, else
// any lot granted that day, else what the table would grant.
func (v *employeeView) grantOn(date generic.TimePoint) decimal.Decimal {
	var fallback *GrantLot
	for i := range v.lots {
		lot := &v.lots[i]
		if !lot.GrantDate.Equal(date) {
			continue
		}
		if lot.ConfigVersion == v.cfg.Version {
			return lot.DaysGranted
		}
		if fallback == nil {
			fallback = lot
		}
	}
	if fallback != nil {
		return fallback.DaysGranted
	}
	return LatestTableGrant(v.cfg, v.emp, date)
}

// usedIn sums approved requests overlapping [start, end). A zero end means
// the period is open.
func (v *employeeView) usedIn(start, end generic.TimePoint) decimal.Decimal {
	used := decimal.Zero
	for _, r := range v.requests {
		if r.Status != StatusApproved {
			continue
		}
		if r.EndDate.Before(start) {
			continue
		}
		if !end.IsZero() && !r.StartDate.Before(end) {
			continue
		}
		used = used.Add(r.TotalDays)
	}
	return used
}

func (v *employeeView) fiveDayAlert(today generic.TimePoint, latestGrant, used decimal.Decimal, next *generic.TimePoint) FiveDayAlert {
	required := generic.Days(v.cfg.MinLegalUseDaysPerYear)
	alert := FiveDayAlert{
		Urgency:         UrgencyNone,
		LatestGrantDays: latestGrant,
		Used:            used,
		Required:        required,
	}
	alert.Needed = latestGrant.GreaterThanOrEqual(generic.Days(v.cfg.Alert.MinGrantDaysForAlert)) &&
		latestGrant.IsPositive() &&
		used.LessThan(required)

	if next != nil {
		for _, cp := range v.cfg.Alert.Checkpoints {
			deadline := next.AddMonths(-cp.MonthsBefore)
			minDays := generic.Days(cp.MinConsumedDays)
			alert.Checkpoints = append(alert.Checkpoints, CheckpointStatus{
				MonthsBefore:    cp.MonthsBefore,
				Deadline:        deadline,
				MinConsumedDays: minDays,
				Reached:         !today.Before(deadline),
				Met:             used.GreaterThanOrEqual(minDays),
			})
		}
	}

	if alert.Needed {
		alert.Urgency = UrgencyNormal
		if next != nil && next.Before(today.AddMonths(highUrgencyMonths)) {
			alert.Urgency = UrgencyHigh
		}
	}
	return alert
}

// pendingDays is the stored total, or an estimate for requests saved
// without one.
func pendingDays(r TimeOffRequest, cfg AppConfig) decimal.Decimal {
	if r.TotalDays.IsPositive() {
		return r.TotalDays
	}
	est, err := RequestTotalDays(RequestSpan{
		Start:       r.StartDate,
		End:         r.EndDate,
		Unit:        r.Unit,
		HoursPerDay: r.HoursPerDay,
		Requested:   r.RequestedAmount,
	}, cfg.Rounding)
	if err != nil || !est.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return est
}
