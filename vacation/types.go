package vacation

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID             string
	Name           string
	Email          string
	EmployeeType   string            // 正社員, 契約社員, 派遣社員, パート, ...
	WeeklyPattern  int               // scheduled workdays per week, 0 when unknown
	DefaultPattern Pattern           // explicit override, zero when unset
	JoinDate       generic.TimePoint // zero when not recorded
	ConfigVersion  string            // stamped on first generation
	Active         bool
	CreatedAt      time.Time
}

// =============================================================================
// GRANT LOT
// =============================================================================

// GrantLot is one grant with its own expiry. DaysRemaining only moves down
// through consumption or expiry and back up through a restore.
type GrantLot struct {
	ID            string
	EmployeeID    string
	GrantDate     generic.TimePoint
	DaysGranted   decimal.Decimal
	DaysRemaining decimal.Decimal
	ExpiryDate    generic.TimePoint
	DedupKey      string
	ConfigVersion string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UsableOn reports whether the lot can be drawn on asOf.
func (l GrantLot) UsableOn(asOf generic.TimePoint) bool {
	return l.DaysRemaining.IsPositive() && !l.ExpiryDate.Before(asOf)
}

// Consumption records days drawn from one lot for one request.
type Consumption struct {
	ID         string
	EmployeeID string
	RequestID  string
	LotID      string
	Date       generic.TimePoint
	Days       decimal.Decimal
	CreatedAt  time.Time
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
)

type RequestUnit string

const (
	UnitDay  RequestUnit = "DAY"
	UnitHour RequestUnit = "HOUR"
)

// Draw is one line of a consumption breakdown.
type Draw struct {
	LotID string
	Days  decimal.Decimal
}

// TimeOffRequest is a leave application. Only APPROVED requests that have
// been finalized hold debits against grant lots.
type TimeOffRequest struct {
	ID              string
	EmployeeID      string
	StartDate       generic.TimePoint
	EndDate         generic.TimePoint
	Unit            RequestUnit
	HoursPerDay     int             // HOUR requests only
	RequestedAmount decimal.Decimal // days for DAY, hours for HOUR; zero means the whole span
	TotalDays       decimal.Decimal
	Status          RequestStatus
	Reason          string
	SupervisorID    string
	ApprovedBy      string
	ApprovedAt      *time.Time
	FinalizedBy     string
	FinalizedAt     *time.Time
	RejectedBy      string
	RejectedAt      *time.Time
	RejectionReason string
	Breakdown       []Draw
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Finalized reports whether the request has been settled against lots.
func (r TimeOffRequest) Finalized() bool {
	return r.FinalizedAt != nil
}

// =============================================================================
// CONFIG RECORD / AUDIT
// =============================================================================

// ConfigRecord is a persisted AppConfig. Payload is the JSON encoding.
type ConfigRecord struct {
	Version   string
	Payload   []byte
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AuditAction string

const (
	AuditRequestSubmit       AuditAction = "REQUEST_SUBMIT"
	AuditRequestUpdate       AuditAction = "REQUEST_UPDATE"
	AuditRequestApprove      AuditAction = "REQUEST_APPROVE"
	AuditRequestFinalize     AuditAction = "REQUEST_FINALIZE"
	AuditRequestReject       AuditAction = "REQUEST_REJECT"
	AuditRequestDelete       AuditAction = "REQUEST_DELETE"
	AuditDeferredConsumption AuditAction = "DEFERRED_CONSUMPTION_EXECUTE"
)

type AuditEntry struct {
	ID         string
	EmployeeID string
	Actor      string
	Action     AuditAction
	EntityType string
	EntityID   string
	Payload    map[string]any
	CreatedAt  time.Time
}
