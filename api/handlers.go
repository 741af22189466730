/*
handlers.go - HTTP API handlers for the paid-leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the vacation services.

ENDPOINTS:
  Employees:
    GET    /api/employees                     List employees
    POST   /api/employees                     Create or replace employee
    GET    /api/employees/{id}                Get employee
    GET    /api/employees/{id}/stats          Leave stats and five-day alert
    GET    /api/employees/{id}/periods        Grant-period breakdown
    GET    /api/employees/{id}/lots           Grant lots
    GET    /api/employees/{id}/requests       Leave requests
    GET    /api/employees/{id}/audit          Audit trail
    GET    /api/employees/{id}/register.xlsx  Management register download
    POST   /api/employees/{id}/generate       Generate lots up to a date

  Requests:
    POST   /api/requests                      Submit (PENDING)
    GET    /api/requests/{id}                 Get
    PUT    /api/requests/{id}                 Edit a PENDING request
    DELETE /api/requests/{id}?actor=          Delete, restoring any debit
    POST   /api/requests/{id}/approve         Supervisor approval
    POST   /api/requests/{id}/finalize        HR finalization (debits lots)
    POST   /api/requests/{id}/reject          Reject, restoring any debit

  Config:
    GET    /api/config                        List versions
    POST   /api/config                        Save a version (JSON or preset)
    GET    /api/config/active                 Active version
    GET    /api/config/presets                Built-in presets
    GET    /api/config/{version}              Get a version
    POST   /api/config/{version}/activate     Activate a version

  Admin:
    POST   /api/admin/expire                  Run the expiry job now
    POST   /api/admin/generate                Generate lots for everyone
    GET    /api/admin/scheduler               Scheduler status

  Scenarios:
    GET    /api/scenarios                     Demo scenarios and load state
    POST   /api/scenarios/load                Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, missing join date
  - 403: Approver is neither the request's supervisor nor an admin
  - 404: Resource not found
  - 409: Invalid state transition, concurrent modification, job locked,
         scenario already loaded
  - 422: Insufficient balance (body carries the shortfall)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The actor on each decision is taken from the request
  body as given; approval only checks it against the request's supervisor
  and the configured admins.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/export"
	"github.com/warp/yukyu/factory"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	store     vacation.Store
	configs   *vacation.ConfigService
	generator *vacation.LotGenerator
	requests  *vacation.RequestService
	stats     *vacation.StatsService
	scheduler *Scheduler
	validate  *validator.Validate
	logger    zerolog.Logger
	loc       *time.Location

	// Now is the clock behind "today" when as_of is not given.
	Now func() time.Time
}

// Services bundles what the handlers delegate to.
type Services struct {
	Store     vacation.Store
	Configs   *vacation.ConfigService
	Generator *vacation.LotGenerator
	Requests  *vacation.RequestService
	Stats     *vacation.StatsService
	Scheduler *Scheduler
	Location  *time.Location
}

func NewHandler(svc Services, logger zerolog.Logger) *Handler {
	loc := svc.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:     svc.Store,
		configs:   svc.Configs,
		generator: svc.Generator,
		requests:  svc.Requests,
		stats:     svc.Stats,
		scheduler: svc.Scheduler,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "api").Logger(),
		loc:       loc,
		Now:       time.Now,
	}
}

func (h *Handler) today() generic.TimePoint {
	return generic.FromTime(h.Now().In(h.loc))
}

// asOf reads ?as_of=YYYY-MM-DD, defaulting to today.
func (h *Handler) asOf(r *http.Request) (generic.TimePoint, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return h.today(), nil
	}
	tp, err := generic.ParseTimePoint(raw)
	if err != nil {
		return generic.TimePoint{}, generic.Validationf("invalid as_of %q", raw)
	}
	return tp, nil
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.store.ListEmployees(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]EmployeeDTO, 0, len(employees))
	for _, e := range employees {
		out = append(out, toEmployeeDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.loadEmployee(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates or replaces an employee. CreatedAt and a stamped
// config version survive a replace unless the body names a version.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	pattern, err := vacation.ParsePattern(req.DefaultPattern)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var join generic.TimePoint
	if req.JoinDate != "" {
		if join, err = generic.ParseTimePoint(req.JoinDate); err != nil {
			h.respondError(w, generic.Validationf("invalid join_date %q", req.JoinDate))
			return
		}
	}

	emp := vacation.Employee{
		ID:             req.ID,
		Name:           req.Name,
		Email:          req.Email,
		EmployeeType:   req.EmployeeType,
		WeeklyPattern:  req.WeeklyPattern,
		DefaultPattern: pattern,
		JoinDate:       join,
		ConfigVersion:  req.ConfigVersion,
		Active:         req.Active == nil || *req.Active,
		CreatedAt:      time.Now().UTC(),
	}

	status := http.StatusCreated
	existing, err := h.store.GetEmployee(r.Context(), req.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if existing != nil {
		status = http.StatusOK
		emp.CreatedAt = existing.CreatedAt
		if emp.ConfigVersion == "" {
			emp.ConfigVersion = existing.ConfigVersion
		}
	}

	if err := h.store.SaveEmployee(r.Context(), emp); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, status, toEmployeeDTO(emp))
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	stats, err := h.stats.Stats(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}

// GetPeriods returns the grant-period breakdown. ?back=N limits how many past
// periods are included; omitted means all.
func (h *Handler) GetPeriods(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	back := -1
	if raw := r.URL.Query().Get("back"); raw != "" {
		if back, err = strconv.Atoi(raw); err != nil || back < 0 {
			h.respondError(w, generic.Validationf("invalid back %q", raw))
			return
		}
	}
	periods, err := h.stats.Periods(r.Context(), chi.URLParam(r, "id"), asOf, back)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTOs(periods))
}

func (h *Handler) GetLots(w http.ResponseWriter, r *http.Request) {
	emp, err := h.loadEmployee(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	lots, err := h.store.ListLots(r.Context(), emp.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLotDTOs(lots, h.today()))
}

// GetEmployeeRequests lists requests, optionally ?status=PENDING,APPROVED.
func (h *Handler) GetEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	emp, err := h.loadEmployee(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	var statuses []vacation.RequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := vacation.RequestStatus(strings.ToUpper(strings.TrimSpace(s)))
			switch st {
			case vacation.StatusPending, vacation.StatusApproved, vacation.StatusRejected:
				statuses = append(statuses, st)
			default:
				h.respondError(w, generic.Validationf("invalid status %q", s))
				return
			}
		}
	}
	requests, err := h.requests.List(r.Context(), emp.ID, statuses...)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// GetAudit returns the newest entries first, ?limit=N (default 100).
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	emp, err := h.loadEmployee(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			h.respondError(w, generic.Validationf("invalid limit %q", raw))
			return
		}
	}
	entries, err := h.store.ListAudit(r.Context(), emp.ID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// DownloadRegister streams the 年次有給休暇管理簿 workbook.
func (h *Handler) DownloadRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	emp, err := h.loadEmployee(r, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	asOf, err := h.asOf(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	periods, err := h.stats.Periods(ctx, emp.ID, asOf, -1)
	if err != nil {
		h.respondError(w, err)
		return
	}
	lots, err := h.store.ListLots(ctx, emp.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="register-%s.xlsx"`, emp.ID))
	if err := export.WriteRegister(w, emp, periods, lots); err != nil {
		// Headers are gone; all that is left is the log.
		h.logger.Error().Err(err).Str("employee_id", emp.ID).Msg("failed to write register")
	}
}

// GenerateForEmployee materializes lots up to ?until= or the body's until.
func (h *Handler) GenerateForEmployee(w http.ResponseWriter, r *http.Request) {
	until, ok := h.generateUntil(w, r)
	if !ok {
		return
	}
	result, err := h.generator.GenerateForEmployee(r.Context(), chi.URLParam(r, "id"), until)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGenerateResultDTO(result))
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	in, err := toSubmitInput(req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out, err := h.requests.Submit(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(out))
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	out, err := h.requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(out))
}

func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	in, err := toSubmitInput(req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = req.EmployeeID
	}
	out, err := h.requests.Update(r.Context(), chi.URLParam(r, "id"), in, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(out))
}

func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		h.respondError(w, generic.Validationf("actor is required"))
		return
	}
	if err := h.requests.Delete(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.requests.Approve)
}

func (h *Handler) FinalizeRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.requests.Finalize)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id, actor string) (vacation.TimeOffRequest, error)) {
	var req DecisionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	out, err := action(r.Context(), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(out))
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	out, err := h.requests.Reject(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(out))
}

func toSubmitInput(req SubmitRequest) (vacation.SubmitInput, error) {
	start, err := generic.ParseTimePoint(req.StartDate)
	if err != nil {
		return vacation.SubmitInput{}, generic.Validationf("invalid start_date %q", req.StartDate)
	}
	end, err := generic.ParseTimePoint(req.EndDate)
	if err != nil {
		return vacation.SubmitInput{}, generic.Validationf("invalid end_date %q", req.EndDate)
	}
	unit := vacation.UnitDay
	if req.Unit != "" {
		unit = vacation.RequestUnit(req.Unit)
	}
	return vacation.SubmitInput{
		EmployeeID:   req.EmployeeID,
		StartDate:    start,
		EndDate:      end,
		Unit:         unit,
		HoursPerDay:  req.HoursPerDay,
		Requested:    decimal.NewFromFloat(req.Amount),
		Reason:       req.Reason,
		SupervisorID: req.SupervisorID,
	}, nil
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	records, err := h.configs.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]ConfigDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toConfigDTO(rec, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	rec, err := h.store.GetConfig(r.Context(), version)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if rec == nil {
		h.respondError(w, fmt.Errorf("%w: %s", generic.ErrConfigNotFound, version))
		return
	}
	writeJSON(w, http.StatusOK, toConfigDTO(*rec, true))
}

func (h *Handler) GetActiveConfig(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetActiveConfig(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if rec == nil {
		h.respondError(w, fmt.Errorf("%w: no active config", generic.ErrConfigNotFound))
		return
	}
	writeJSON(w, http.StatusOK, toConfigDTO(*rec, true))
}

// SaveConfig stores a version from a JSON payload or a named preset.
func (h *Handler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req SaveConfigRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	var (
		cfg vacation.AppConfig
		err error
	)
	if req.Preset != "" {
		cfg, err = factory.LookupPreset(req.Preset)
	} else {
		cfg, err = factory.ParseAppConfig(req.Config)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	cfg.Version = req.Version

	if err := h.configs.Save(r.Context(), req.Version, &cfg, req.Activate); err != nil {
		h.respondError(w, err)
		return
	}
	rec, err := h.store.GetConfig(r.Context(), req.Version)
	if err != nil || rec == nil {
		h.respondError(w, fmt.Errorf("failed to reload config %s: %w", req.Version, err))
		return
	}
	writeJSON(w, http.StatusCreated, toConfigDTO(*rec, true))
}

func (h *Handler) ActivateConfig(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if err := h.configs.Activate(r.Context(), version); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": version})
}

func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.Presets())
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerExpire runs the expiry job under the scheduler's lock.
func (h *Handler) TriggerExpire(w http.ResponseWriter, r *http.Request) {
	n, err := h.scheduler.RunExpire(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExpireResultDTO{Expired: n})
}

// TriggerGenerate generates lots for every active employee up to until.
// With ?due=true it runs the scheduled grant job instead.
func (h *Handler) TriggerGenerate(w http.ResponseWriter, r *http.Request) {
	if due, _ := strconv.ParseBool(r.URL.Query().Get("due")); due {
		batch, err := h.scheduler.RunGrant(r.Context())
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResultDTO(batch))
		return
	}

	until, ok := h.generateUntil(w, r)
	if !ok {
		return
	}
	batch, err := h.generator.GenerateForAll(r.Context(), until)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(batch))
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// generateUntil reads until from ?until= or an optional JSON body.
func (h *Handler) generateUntil(w http.ResponseWriter, r *http.Request) (generic.TimePoint, bool) {
	req := GenerateRequest{Until: r.URL.Query().Get("until")}
	if req.Until == "" && r.ContentLength > 0 {
		if !h.decodeAndValidate(w, r, &req) {
			return generic.TimePoint{}, false
		}
	}
	if req.Until == "" {
		return h.today(), true
	}
	until, err := generic.ParseTimePoint(req.Until)
	if err != nil {
		h.respondError(w, generic.Validationf("invalid until %q", req.Until))
		return generic.TimePoint{}, false
	}
	return until, true
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadEmployee(r *http.Request, id string) (vacation.Employee, error) {
	emp, err := h.store.GetEmployee(r.Context(), id)
	if err != nil {
		return vacation.Employee{}, err
	}
	if emp == nil {
		return vacation.Employee{}, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	return *emp, nil
}

// decodeAndValidate writes a 400 and returns false when the body is not
// valid JSON or fails its validator tags.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "Validation failed",
				Fields: validationFields(verrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func validationFields(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// respondError maps engine errors to HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var ib *generic.InsufficientBalanceError
	switch {
	case errors.As(err, &ib):
		shortfall := generic.ToFloat(ib.Shortfall)
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     "Insufficient balance",
			Details:   err.Error(),
			Shortfall: &shortfall,
		})
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrNotApprover):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case generic.IsConflict(err), errors.Is(err, ErrJobLocked), errors.Is(err, ErrScenarioLoaded):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
