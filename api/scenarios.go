/*
scenarios.go - Demo scenario loaders for trying the API

PURPOSE:

	Provides pre-built employees with grant history and requests so the
	stats, alert and register endpoints have something to show. Dates are
	relative to today, so a scenario looks the same whenever it is loaded.

AVAILABLE SCENARIOS:

	new-hire:        Joined three months ago, no grant yet
	full-timer:      Three grants, one expired, a finalized and a pending request
	part-timer:      Weekly pattern B-3 on the proportional table
	five-day-alert:  A 10-day grant with nothing used two months before the next
	hourly:          Anniversary preset with an hour-based request

HOW SCENARIOS WORK:
 1. Save any config version the scenario needs (never activated)
 2. Create the employee under a fixed demo-<scenario> id
 3. Generate lots up to today
 4. Submit, approve and finalize requests through the request service

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"scenario_id": "full-timer"}

NOTE:

	Loading never resets data. A scenario whose employee already exists is
	rejected with 409.

SEE ALSO:
  - handlers.go: shared error mapping
  - factory/config.go: presets used by the hourly scenario
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/factory"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// ErrScenarioLoaded is returned when a scenario's employee already exists.
var ErrScenarioLoaded = errors.New("scenario already loaded")

const scenarioActor = "demo"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, h *Handler, id string, today generic.TimePoint) (int, error)
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "new-hire",
			Name:        "New Hire",
			Description: "Joined three months ago; the first grant is still ahead",
		},
		load: loadNewHire,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "full-timer",
			Name:        "Full-Timer With History",
			Description: "Three statutory grants, the oldest expired; one finalized and one pending request",
		},
		load: loadFullTimer,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "part-timer",
			Name:        "Part-Timer (B-3)",
			Description: "Three scheduled days a week on the proportional grant table",
		},
		load: loadPartTimer,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "five-day-alert",
			Name:        "Five-Day Alert",
			Description: "Ten days granted, nothing taken, two months before the next grant",
		},
		load: loadFiveDayAlert,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "hourly",
			Name:        "Hour-Based Leave",
			Description: "Anniversary preset with 30-minute rounding and an hour request",
		},
		load: loadHourly,
	},
}

func scenarioEmployeeID(scenarioID string) string { return "demo-" + scenarioID }

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns every scenario and whether it is already loaded.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		dto := s.ScenarioDTO
		dto.EmployeeID = scenarioEmployeeID(s.ID)
		emp, err := h.store.GetEmployee(r.Context(), dto.EmployeeID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		dto.Loaded = emp != nil
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		h.respondError(w, fmt.Errorf("%w: scenario %s", generic.ErrNotFound, req.ScenarioID))
		return
	}

	ctx := r.Context()
	id := scenarioEmployeeID(s.ID)
	existing, err := h.store.GetEmployee(ctx, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if existing != nil {
		h.respondError(w, fmt.Errorf("%w: %s", ErrScenarioLoaded, s.ID))
		return
	}

	requests, err := s.load(ctx, h, id, h.today())
	if err != nil {
		h.respondError(w, fmt.Errorf("failed to load scenario %s: %w", s.ID, err))
		return
	}
	lots, err := h.store.ListLots(ctx, id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info().Str("scenario", s.ID).Int("lots", len(lots)).Int("requests", requests).Msg("scenario loaded")
	writeJSON(w, http.StatusCreated, LoadScenarioResponse{
		Scenario:   s.ID,
		EmployeeID: id,
		Lots:       len(lots),
		Requests:   requests,
	})
}

// =============================================================================
// LOADERS
// =============================================================================

// seed saves the employee and generates lots up to today.
func (h *Handler) seed(ctx context.Context, emp vacation.Employee, today generic.TimePoint) error {
	emp.Active = true
	if err := h.store.SaveEmployee(ctx, emp); err != nil {
		return err
	}
	_, err := h.generator.GenerateForEmployee(ctx, emp.ID, today)
	return err
}

// takeDays submits days of DAY leave from start and, when finalize is set,
// approves and finalizes them.
func (h *Handler) takeDays(ctx context.Context, employeeID string, start generic.TimePoint, days int, finalize bool) error {
	req, err := h.requests.Submit(ctx, vacation.SubmitInput{
		EmployeeID:   employeeID,
		StartDate:    start,
		EndDate:      start.AddDays(days - 1),
		Unit:         vacation.UnitDay,
		Reason:       "demo",
		SupervisorID: scenarioActor,
	})
	if err != nil {
		return err
	}
	if !finalize {
		return nil
	}
	_, err = h.requests.ApproveAndFinalize(ctx, req.ID, scenarioActor)
	return err
}

func loadNewHire(ctx context.Context, h *Handler, id string, today generic.TimePoint) (int, error) {
	return 0, h.seed(ctx, vacation.Employee{
		ID:             id,
		Name:           "新人 花子",
		EmployeeType:   "正社員",
		DefaultPattern: vacation.FullTime(),
		JoinDate:       today.AddMonths(-3),
	}, today)
}

func loadFullTimer(ctx context.Context, h *Handler, id string, today generic.TimePoint) (int, error) {
	err := h.seed(ctx, vacation.Employee{
		ID:             id,
		Name:           "山田 太郎",
		EmployeeType:   "正社員",
		DefaultPattern: vacation.FullTime(),
		JoinDate:       today.AddMonths(-32),
	}, today)
	if err != nil {
		return 0, err
	}
	if err := h.takeDays(ctx, id, today.AddDays(-26), 3, true); err != nil {
		return 0, err
	}
	if err := h.takeDays(ctx, id, today.AddDays(10), 1, false); err != nil {
		return 1, err
	}
	return 2, nil
}

func loadPartTimer(ctx context.Context, h *Handler, id string, today generic.TimePoint) (int, error) {
	pattern, err := vacation.PartTime(3)
	if err != nil {
		return 0, err
	}
	err = h.seed(ctx, vacation.Employee{
		ID:             id,
		Name:           "佐藤 美咲",
		EmployeeType:   "パート",
		WeeklyPattern:  3,
		DefaultPattern: pattern,
		JoinDate:       today.AddMonths(-19),
	}, today)
	if err != nil {
		return 0, err
	}
	if err := h.takeDays(ctx, id, today.AddDays(-14), 1, true); err != nil {
		return 0, err
	}
	return 1, nil
}

func loadFiveDayAlert(ctx context.Context, h *Handler, id string, today generic.TimePoint) (int, error) {
	return 0, h.seed(ctx, vacation.Employee{
		ID:             id,
		Name:           "鈴木 一郎",
		EmployeeType:   "正社員",
		DefaultPattern: vacation.FullTime(),
		JoinDate:       today.AddMonths(-16),
	}, today)
}

const hourlyConfigVersion = "demo-anniversary"

func loadHourly(ctx context.Context, h *Handler, id string, today generic.TimePoint) (int, error) {
	cfg, err := factory.LookupPreset(factory.PresetAnniversary)
	if err != nil {
		return 0, err
	}
	cfg.Version = hourlyConfigVersion
	if err := h.configs.Save(ctx, hourlyConfigVersion, &cfg, false); err != nil {
		return 0, err
	}
	err = h.seed(ctx, vacation.Employee{
		ID:             id,
		Name:           "田中 由美",
		EmployeeType:   "契約社員",
		DefaultPattern: vacation.FullTime(),
		JoinDate:       today.AddMonths(-14),
		ConfigVersion:  hourlyConfigVersion,
	}, today)
	if err != nil {
		return 0, err
	}

	start := today.AddDays(7)
	_, err = h.requests.Submit(ctx, vacation.SubmitInput{
		EmployeeID:   id,
		StartDate:    start,
		EndDate:      start,
		Unit:         vacation.UnitHour,
		HoursPerDay:  vacation.DefaultHoursPerDay,
		Requested:    decimal.NewFromInt(3),
		Reason:       "通院",
		SupervisorID: scenarioActor,
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}
