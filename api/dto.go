/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Employee:  EmployeeDTO, CreateEmployeeRequest
  Leave:     StatsDTO, AlertDTO, PeriodDTO, LotDTO
  Requests:  SubmitRequest, RequestDTO, DecisionRequest, RejectRequest
  Config:    ConfigDTO, SaveConfigRequest
  Admin:     GenerateRequest, BatchResultDTO

VALIDATION:
  Request bodies carry go-playground/validator tags and are checked in
  decodeAndValidate before any domain call. Dates are YYYY-MM-DD; day
  figures are numbers with at most two decimals.

SEE ALSO:
  - handlers.go: Uses these types
  - vacation/types.go: Domain types
*/
package api

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	EmployeeType   string `json:"employee_type,omitempty"`
	WeeklyPattern  int    `json:"weekly_pattern,omitempty"`
	DefaultPattern string `json:"default_pattern,omitempty"`
	JoinDate       string `json:"join_date,omitempty"`
	ConfigVersion  string `json:"config_version,omitempty"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest creates or replaces an employee.
type CreateEmployeeRequest struct {
	ID             string `json:"id" validate:"required,max=64"`
	Name           string `json:"name" validate:"required,max=200"`
	Email          string `json:"email" validate:"omitempty,email"`
	EmployeeType   string `json:"employee_type" validate:"omitempty,max=50"`
	WeeklyPattern  int    `json:"weekly_pattern" validate:"gte=0,lte=7"`
	DefaultPattern string `json:"default_pattern" validate:"omitempty,max=10"`
	JoinDate       string `json:"join_date" validate:"omitempty,datetime=2006-01-02"`
	ConfigVersion  string `json:"config_version" validate:"omitempty,max=100"`
	Active         *bool  `json:"active"`
}

func toEmployeeDTO(e vacation.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:            e.ID,
		Name:          e.Name,
		Email:         e.Email,
		EmployeeType:  e.EmployeeType,
		WeeklyPattern: e.WeeklyPattern,
		JoinDate:      dateString(e.JoinDate),
		ConfigVersion: e.ConfigVersion,
		Active:        e.Active,
		CreatedAt:     timeString(e.CreatedAt),
	}
	if !e.DefaultPattern.IsZero() {
		dto.DefaultPattern = e.DefaultPattern.String()
	}
	return dto
}

// =============================================================================
// STATS / PERIODS / LOTS
// =============================================================================

type CheckpointDTO struct {
	MonthsBefore    int     `json:"months_before"`
	Deadline        string  `json:"deadline"`
	MinConsumedDays float64 `json:"min_consumed_days"`
	Reached         bool    `json:"reached"`
	Met             bool    `json:"met"`
}

type AlertDTO struct {
	Needed          bool            `json:"needed"`
	Urgency         string          `json:"urgency"`
	LatestGrantDays float64         `json:"latest_grant_days"`
	Used            float64         `json:"used"`
	Required        float64         `json:"required"`
	Checkpoints     []CheckpointDTO `json:"checkpoints"`
}

type StatsDTO struct {
	EmployeeID        string   `json:"employee_id"`
	AsOf              string   `json:"as_of"`
	ConfigVersion     string   `json:"config_version"`
	Pattern           string   `json:"pattern"`
	PatternLabel      string   `json:"pattern_label"`
	TotalRemaining    float64  `json:"total_remaining"`
	Used              float64  `json:"used"`
	Pending           float64  `json:"pending"`
	TotalGranted      float64  `json:"total_granted"`
	CarryOver         float64  `json:"carry_over"`
	CurrentGrant      float64  `json:"current_grant"`
	ExpiringSoon      float64  `json:"expiring_soon"`
	ExpiringSoonDays  int      `json:"expiring_soon_days"`
	PreviousGrantDate *string  `json:"previous_grant_date"`
	NextGrantDate     *string  `json:"next_grant_date"`
	Alert             AlertDTO `json:"five_day_alert"`
}

func toStatsDTO(s vacation.Stats) StatsDTO {
	checkpoints := make([]CheckpointDTO, 0, len(s.Alert.Checkpoints))
	for _, c := range s.Alert.Checkpoints {
		checkpoints = append(checkpoints, CheckpointDTO{
			MonthsBefore:    c.MonthsBefore,
			Deadline:        c.Deadline.String(),
			MinConsumedDays: generic.ToFloat(c.MinConsumedDays),
			Reached:         c.Reached,
			Met:             c.Met,
		})
	}
	return StatsDTO{
		EmployeeID:        s.EmployeeID,
		AsOf:              s.AsOf.String(),
		ConfigVersion:     s.ConfigVersion,
		Pattern:           s.Pattern,
		PatternLabel:      s.PatternLabel,
		TotalRemaining:    generic.ToFloat(s.TotalRemaining),
		Used:              generic.ToFloat(s.Used),
		Pending:           generic.ToFloat(s.Pending),
		TotalGranted:      generic.ToFloat(s.TotalGranted),
		CarryOver:         generic.ToFloat(s.CarryOver),
		CurrentGrant:      generic.ToFloat(s.CurrentGrant),
		ExpiringSoon:      generic.ToFloat(s.ExpiringSoon),
		ExpiringSoonDays:  s.ExpiringSoonDays,
		PreviousGrantDate: datePtr(s.PreviousGrantDate),
		NextGrantDate:     datePtr(s.NextGrantDate),
		Alert: AlertDTO{
			Needed:          s.Alert.Needed,
			Urgency:         string(s.Alert.Urgency),
			LatestGrantDays: generic.ToFloat(s.Alert.LatestGrantDays),
			Used:            generic.ToFloat(s.Alert.Used),
			Required:        generic.ToFloat(s.Alert.Required),
			Checkpoints:     checkpoints,
		},
	}
}

type PeriodDTO struct {
	Index          int     `json:"index"`
	Start          string  `json:"start"`
	End            string  `json:"end"`
	NewGrant       float64 `json:"new_grant"`
	CarryOver      float64 `json:"carry_over"`
	TotalAvailable float64 `json:"total_available"`
	Used           float64 `json:"used"`
	Remaining      float64 `json:"remaining"`
	Projected      bool    `json:"projected"`
}

func toPeriodDTOs(ps []vacation.PeriodSummary) []PeriodDTO {
	out := make([]PeriodDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, PeriodDTO{
			Index:          p.Index,
			Start:          p.Start.String(),
			End:            p.End.String(),
			NewGrant:       generic.ToFloat(p.NewGrant),
			CarryOver:      generic.ToFloat(p.CarryOver),
			TotalAvailable: generic.ToFloat(p.TotalAvailable),
			Used:           generic.ToFloat(p.Used),
			Remaining:      generic.ToFloat(p.Remaining),
			Projected:      p.Projected,
		})
	}
	return out
}

type LotDTO struct {
	ID            string  `json:"id"`
	GrantDate     string  `json:"grant_date"`
	DaysGranted   float64 `json:"days_granted"`
	DaysRemaining float64 `json:"days_remaining"`
	ExpiryDate    string  `json:"expiry_date"`
	ConfigVersion string  `json:"config_version"`
	Expired       bool    `json:"expired"`
}

func toLotDTOs(lots []vacation.GrantLot, today generic.TimePoint) []LotDTO {
	out := make([]LotDTO, 0, len(lots))
	for _, l := range lots {
		out = append(out, LotDTO{
			ID:            l.ID,
			GrantDate:     l.GrantDate.String(),
			DaysGranted:   generic.ToFloat(l.DaysGranted),
			DaysRemaining: generic.ToFloat(l.DaysRemaining),
			ExpiryDate:    l.ExpiryDate.String(),
			ConfigVersion: l.ConfigVersion,
			Expired:       l.ExpiryDate.Before(today),
		})
	}
	return out
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// SubmitRequest creates (POST) or edits (PUT) a leave request. Amount is days
// for DAY requests and hours for HOUR requests; zero means the whole span.
type SubmitRequest struct {
	EmployeeID   string  `json:"employee_id" validate:"required"`
	StartDate    string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	Unit         string  `json:"unit" validate:"omitempty,oneof=DAY HOUR"`
	HoursPerDay  int     `json:"hours_per_day" validate:"required_if=Unit HOUR,gte=0,lte=24"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	Reason       string  `json:"reason" validate:"max=500"`
	SupervisorID string  `json:"supervisor_id"`
	Actor        string  `json:"actor"`
}

// DecisionRequest carries the acting user for approve, finalize and delete.
type DecisionRequest struct {
	Actor string `json:"actor" validate:"required"`
}

type RejectRequest struct {
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type DrawDTO struct {
	LotID string  `json:"lot_id"`
	Days  float64 `json:"days"`
}

type RequestDTO struct {
	ID              string    `json:"id"`
	EmployeeID      string    `json:"employee_id"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	Unit            string    `json:"unit"`
	HoursPerDay     int       `json:"hours_per_day,omitempty"`
	Amount          float64   `json:"amount,omitempty"`
	TotalDays       float64   `json:"total_days"`
	Status          string    `json:"status"`
	Finalized       bool      `json:"finalized"`
	Reason          string    `json:"reason,omitempty"`
	SupervisorID    string    `json:"supervisor_id,omitempty"`
	ApprovedBy      string    `json:"approved_by,omitempty"`
	ApprovedAt      *string   `json:"approved_at,omitempty"`
	FinalizedBy     string    `json:"finalized_by,omitempty"`
	FinalizedAt     *string   `json:"finalized_at,omitempty"`
	RejectedBy      string    `json:"rejected_by,omitempty"`
	RejectedAt      *string   `json:"rejected_at,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	Breakdown       []DrawDTO `json:"breakdown"`
	CreatedAt       string    `json:"created_at"`
}

func toRequestDTO(r vacation.TimeOffRequest) RequestDTO {
	draws := make([]DrawDTO, 0, len(r.Breakdown))
	for _, d := range r.Breakdown {
		draws = append(draws, DrawDTO{LotID: d.LotID, Days: generic.ToFloat(d.Days)})
	}
	return RequestDTO{
		ID:              r.ID,
		EmployeeID:      r.EmployeeID,
		StartDate:       r.StartDate.String(),
		EndDate:         r.EndDate.String(),
		Unit:            string(r.Unit),
		HoursPerDay:     r.HoursPerDay,
		Amount:          generic.ToFloat(r.RequestedAmount),
		TotalDays:       generic.ToFloat(r.TotalDays),
		Status:          string(r.Status),
		Finalized:       r.Finalized(),
		Reason:          r.Reason,
		SupervisorID:    r.SupervisorID,
		ApprovedBy:      r.ApprovedBy,
		ApprovedAt:      timePtr(r.ApprovedAt),
		FinalizedBy:     r.FinalizedBy,
		FinalizedAt:     timePtr(r.FinalizedAt),
		RejectedBy:      r.RejectedBy,
		RejectedAt:      timePtr(r.RejectedAt),
		RejectionReason: r.RejectionReason,
		Breakdown:       draws,
		CreatedAt:       timeString(r.CreatedAt),
	}
}

func toRequestDTOs(rs []vacation.TimeOffRequest) []RequestDTO {
	out := make([]RequestDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRequestDTO(r))
	}
	return out
}

// =============================================================================
// CONFIG
// =============================================================================

// ConfigDTO is a stored config version. Config is the AppConfig JSON.
type ConfigDTO struct {
	Version   string          `json:"version"`
	IsActive  bool            `json:"is_active"`
	Config    json.RawMessage `json:"config,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// SaveConfigRequest stores Config under Version. Preset may replace Config
// with a named preset.
type SaveConfigRequest struct {
	Version  string          `json:"version" validate:"required,max=100"`
	Config   json.RawMessage `json:"config" validate:"required_without=Preset"`
	Preset   string          `json:"preset" validate:"omitempty,oneof=statutory fiscal-april anniversary"`
	Activate bool            `json:"activate"`
}

func toConfigDTO(rec vacation.ConfigRecord, withPayload bool) ConfigDTO {
	dto := ConfigDTO{
		Version:   rec.Version,
		IsActive:  rec.IsActive,
		CreatedAt: timeString(rec.CreatedAt),
		UpdatedAt: timeString(rec.UpdatedAt),
	}
	if withPayload {
		dto.Config = json.RawMessage(rec.Payload)
	}
	return dto
}

// =============================================================================
// ADMIN
// =============================================================================

// GenerateRequest triggers generation. Until defaults to today.
type GenerateRequest struct {
	Until string `json:"until" validate:"omitempty,datetime=2006-01-02"`
}

type GenerateResultDTO struct {
	EmployeeID        string `json:"employee_id"`
	Generated         int    `json:"generated"`
	Updated           int    `json:"updated"`
	Removed           int    `json:"removed"`
	Retired           int    `json:"retired"`
	DeferredProcessed int    `json:"deferred_processed"`
}

func toGenerateResultDTO(r vacation.GenerateResult) GenerateResultDTO {
	return GenerateResultDTO{
		EmployeeID:        r.EmployeeID,
		Generated:         r.Generated,
		Updated:           r.Updated,
		Removed:           r.Removed,
		Retired:           r.Retired,
		DeferredProcessed: r.DeferredProcessed,
	}
}

type FailureDTO struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

type BatchResultDTO struct {
	Employees int          `json:"employees"`
	Generated int          `json:"generated"`
	Updated   int          `json:"updated"`
	Failures  []FailureDTO `json:"failures"`
}

func toBatchResultDTO(b vacation.BatchResult) BatchResultDTO {
	failures := make([]FailureDTO, 0, len(b.Failures))
	for _, f := range b.Failures {
		failures = append(failures, FailureDTO{EmployeeID: f.EmployeeID, Error: f.Err.Error()})
	}
	return BatchResultDTO{
		Employees: b.Employees,
		Generated: b.Generated,
		Updated:   b.Updated,
		Failures:  failures,
	}
}

type ExpireResultDTO struct {
	Expired int `json:"expired"`
}

type AuditEntryDTO struct {
	ID         string         `json:"id"`
	EmployeeID string         `json:"employee_id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

func toAuditDTOs(entries []vacation.AuditEntry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryDTO{
			ID:         e.ID,
			EmployeeID: e.EmployeeID,
			Actor:      e.Actor,
			Action:     string(e.Action),
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Payload:    e.Payload,
			CreatedAt:  timeString(e.CreatedAt),
		})
	}
	return out
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Details   string            `json:"details,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Shortfall *float64          `json:"shortfall,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

func dateString(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.String()
}

func datePtr(tp *generic.TimePoint) *string {
	if tp == nil {
		return nil
	}
	s := tp.String()
	return &s
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timeString(*t)
	return &s
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	EmployeeID  string `json:"employee_id"`
	Loaded      bool   `json:"loaded"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type LoadScenarioResponse struct {
	Scenario   string `json:"scenario"`
	EmployeeID string `json:"employee_id"`
	Lots       int    `json:"lots"`
	Requests   int    `json:"requests"`
}
