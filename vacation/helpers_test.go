package vacation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/store/memory"
	"github.com/warp/yukyu/vacation"
)

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func days(f float64) decimal.Decimal {
	return generic.Days(f)
}

// requireDays compares decimals by value so 10 and 10.0 are equal.
func requireDays(t *testing.T, want float64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, days(want).Equal(got), "want %v days, got %s %v", want, got, msgAndArgs)
}

// recordingAudit keeps every entry in memory.
type recordingAudit struct {
	mu      sync.Mutex
	entries []vacation.AuditEntry
}

func (r *recordingAudit) Record(_ context.Context, e vacation.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudit) actions() []vacation.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vacation.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type env struct {
	ctx       context.Context
	store     *memory.Memory
	configs   *vacation.ConfigService
	generator *vacation.LotGenerator
	requests  *vacation.RequestService
	stats     *vacation.StatsService
	sweeper   *vacation.Sweeper
	audit     *recordingAudit
}

// newEnv wires the services over an in-memory store with the request clock
// fixed at now.
func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	logger := zerolog.Nop()
	store := memory.New()
	rec := &recordingAudit{}
	configs := vacation.NewConfigService(store, nil, logger)
	requests := vacation.NewRequestService(store, configs, rec, logger)
	requests.Now = func() time.Time { return now }
	return &env{
		ctx:       context.Background(),
		store:     store,
		configs:   configs,
		generator: vacation.NewLotGenerator(store, configs, rec, logger),
		requests:  requests,
		stats:     vacation.NewStatsService(store, configs),
		sweeper:   vacation.NewSweeper(store, logger),
		audit:     rec,
	}
}

func (e *env) addEmployee(t *testing.T, emp vacation.Employee) vacation.Employee {
	t.Helper()
	if emp.Name == "" {
		emp.Name = emp.ID
	}
	emp.Active = true
	emp.CreatedAt = time.Now().UTC()
	require.NoError(t, e.store.SaveEmployee(e.ctx, emp))
	return emp
}

func (e *env) fullTimer(t *testing.T, id string, join generic.TimePoint) vacation.Employee {
	t.Helper()
	return e.addEmployee(t, vacation.Employee{ID: id, EmployeeType: "正社員", JoinDate: join})
}

func (e *env) lots(t *testing.T, employeeID string) []vacation.GrantLot {
	t.Helper()
	lots, err := e.store.ListLots(e.ctx, employeeID)
	require.NoError(t, err)
	return lots
}

func (e *env) lotOn(t *testing.T, employeeID string, grant generic.TimePoint) vacation.GrantLot {
	t.Helper()
	for _, l := range e.lots(t, employeeID) {
		if l.GrantDate.Equal(grant) {
			return l
		}
	}
	t.Fatalf("no lot granted on %s", grant)
	return vacation.GrantLot{}
}

func dayRequest(employeeID string, start, end generic.TimePoint) vacation.SubmitInput {
	return vacation.SubmitInput{EmployeeID: employeeID, StartDate: start, EndDate: end, Unit: vacation.UnitDay}
}
