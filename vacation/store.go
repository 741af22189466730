/*
store.go - Persistence interfaces for the leave engine

PURPOSE:
  Defines the boundary between the leave rules and the database.
  Implementations: SQL (SQLite and PostgreSQL share one) and in-memory.

KEY INTERFACES:
  EmployeeStore:    employee records
  LotStore:         grant lots, guarded balance updates, bulk expiry
  ConsumptionStore: per-request draws against lots
  RequestStore:     leave requests
  ConfigStore:      versioned AppConfig payloads
  AuditStore:       append-only audit trail
  Store:            all of the above plus WithTx

IDEMPOTENCY:
  CreateLot rejects a duplicate dedup key with generic.ErrDuplicateDedupKey.
  The dedup key is UNIQUE in every implementation, so concurrent generators
  cannot both insert the same lot.

GUARDED UPDATES:
  SetLotRemaining only writes when the stored remaining still equals
  `expected`; otherwise it returns generic.ErrConcurrentModification.

LOOKUPS:
  Get* methods return (nil, nil) when nothing matches.

IMPLEMENTATIONS:
  - store/sqlstore: database/sql implementation
  - store/sqlite, store/postgres: driver-specific constructors
  - store/memory: in-memory for tests
*/
package vacation

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
)

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
}

type LotStore interface {
	CreateLot(ctx context.Context, lot GrantLot) error
	UpdateLot(ctx context.Context, lot GrantLot) error
	DeleteLot(ctx context.Context, id string) error
	GetLot(ctx context.Context, id string) (*GrantLot, error)
	GetLotByDedupKey(ctx context.Context, key string) (*GrantLot, error)

	// ListLots returns every lot of the employee ordered by grant date ascending.
	ListLots(ctx context.Context, employeeID string) ([]GrantLot, error)

	// ListLotsByGrantDate returns the employee's lots granted on date.
	ListLotsByGrantDate(ctx context.Context, employeeID string, date generic.TimePoint) ([]GrantLot, error)

	// ListUsableLots returns lots with remaining > 0 and expiry >= asOf,
	// newest grant first.
	ListUsableLots(ctx context.Context, employeeID string, asOf generic.TimePoint) ([]GrantLot, error)

	// SetLotRemaining is a compare-and-set on DaysRemaining.
	SetLotRemaining(ctx context.Context, id string, expected, next decimal.Decimal) error

	// ExpireLots zeroes remaining on lots with expiry < asOf and remaining > 0,
	// returning how many changed.
	ExpireLots(ctx context.Context, asOf generic.TimePoint) (int, error)
}

type ConsumptionStore interface {
	CreateConsumption(ctx context.Context, c Consumption) error
	ListConsumptionsByRequest(ctx context.Context, requestID string) ([]Consumption, error)
	ListConsumptionsByLot(ctx context.Context, lotID string) ([]Consumption, error)
	DeleteConsumptionsByRequest(ctx context.Context, requestID string) error
}

type RequestStore interface {
	// SaveRequest inserts or replaces by ID.
	SaveRequest(ctx context.Context, r TimeOffRequest) error
	GetRequest(ctx context.Context, id string) (*TimeOffRequest, error)
	DeleteRequest(ctx context.Context, id string) error

	// ListRequests returns the employee's requests ordered by start date.
	// With no statuses given every request is returned.
	ListRequests(ctx context.Context, employeeID string, statuses ...RequestStatus) ([]TimeOffRequest, error)
}

type ConfigStore interface {
	// SaveConfig upserts by version. IsActive on an existing record is kept
	// unless the new record is active.
	SaveConfig(ctx context.Context, rec ConfigRecord) error
	GetConfig(ctx context.Context, version string) (*ConfigRecord, error)
	GetActiveConfig(ctx context.Context) (*ConfigRecord, error)
	ListConfigs(ctx context.Context) ([]ConfigRecord, error)

	// ActivateConfig marks version active and every other version inactive.
	ActivateConfig(ctx context.Context, version string) error
}

type AuditStore interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error

	// ListAudit returns newest entries first; an empty employeeID lists all
	// employees and limit <= 0 means no limit.
	ListAudit(ctx context.Context, employeeID string, limit int) ([]AuditEntry, error)
}

// Store is everything the engine persists.
type Store interface {
	EmployeeStore
	LotStore
	ConsumptionStore
	RequestStore
	ConfigStore
	AuditStore

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
