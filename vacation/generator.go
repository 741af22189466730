package vacation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
)

// AuditRecorder receives audit entries. Implementations live in package audit.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, AuditEntry) error { return nil }

// =============================================================================
// LOT GENERATOR
// =============================================================================

// GenerateResult counts what one employee's generation run changed.
type GenerateResult struct {
	EmployeeID        string
	Generated         int // lots created
	Updated           int // lots rewritten in place under the current version
	Removed           int // stale-version lots deleted (never consumed)
	Retired           int // stale-version lots zeroed (partly consumed)
	DeferredProcessed int // finalized requests settled after new lots appeared
}

// EmployeeFailure is one skipped employee in a batch.
type EmployeeFailure struct {
	EmployeeID string
	Err        error
}

// BatchResult aggregates a run over many employees.
type BatchResult struct {
	Employees int
	Generated int
	Updated   int
	Results   []GenerateResult
	Failures  []EmployeeFailure
}

func (b *BatchResult) add(r GenerateResult) {
	b.Results = append(b.Results, r)
	b.Generated += r.Generated
	b.Updated += r.Updated
}

// LotGenerator materializes grant lots from anchors and the employee's config.
type LotGenerator struct {
	store   Store
	configs *ConfigService
	audit   AuditRecorder
	logger  zerolog.Logger
}

func NewLotGenerator(store Store, configs *ConfigService, audit AuditRecorder, logger zerolog.Logger) *LotGenerator {
	if audit == nil {
		audit = nopAudit{}
	}
	return &LotGenerator{
		store:   store,
		configs: configs,
		audit:   audit,
		logger:  logger.With().Str("component", "generator").Logger(),
	}
}

// GenerateForEmployee creates or reconciles every lot for anchors up to until.
// Running it twice with the same inputs changes nothing the second time.
func (g *LotGenerator) GenerateForEmployee(ctx context.Context, employeeID string, until generic.TimePoint) (GenerateResult, error) {
	result := GenerateResult{EmployeeID: employeeID}

	emp, err := g.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return result, fmt.Errorf("failed to load employee %s: %w", employeeID, err)
	}
	if emp == nil {
		return result, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, employeeID)
	}
	if emp.JoinDate.IsZero() {
		return result, fmt.Errorf("employee %s: %w", employeeID, generic.ErrMissingJoinDate)
	}

	cfg := g.configs.Load(ctx, emp.ConfigVersion)
	if emp.ConfigVersion == "" {
		emp.ConfigVersion = cfg.Version
		if err := g.store.SaveEmployee(ctx, *emp); err != nil {
			return result, fmt.Errorf("failed to stamp config version on %s: %w", employeeID, err)
		}
	}
	pattern := EffectivePattern(*emp)

	err = g.store.WithTx(ctx, func(tx Store) error {
		for anchor := range Anchors(cfg, emp.JoinDate, until) {
			years := YearsSinceJoin(emp.JoinDate, anchor)
			days := ChooseGrantDays(cfg, pattern, years)
			if !days.IsPositive() {
				continue
			}
			expiry := ComputeExpiry(anchor, cfg.Expiry)
			key := DedupKey(emp.ID, anchor, days, expiry, cfg.Version)
			if err := g.reconcileAnchor(ctx, tx, emp.ID, cfg.Version, anchor, days, expiry, key, &result); err != nil {
				return fmt.Errorf("anchor %s: %w", anchor, err)
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	if result.Generated > 0 {
		result.DeferredProcessed = g.processDeferred(ctx, emp.ID)
	}

	g.logger.Debug().
		Str("employee_id", emp.ID).
		Str("config_version", cfg.Version).
		Int("generated", result.Generated).
		Int("updated", result.Updated).
		Int("removed", result.Removed).
		Int("retired", result.Retired).
		Msg("lots generated")
	return result, nil
}

func (g *LotGenerator) reconcileAnchor(
	ctx context.Context,
	tx Store,
	employeeID, version string,
	anchor generic.TimePoint,
	days decimal.Decimal,
	expiry generic.TimePoint,
	key string,
	result *GenerateResult,
) error {
	existing, err := tx.ListLotsByGrantDate(ctx, employeeID, anchor)
	if err != nil {
		return err
	}
	for _, lot := range existing {
		if lot.DedupKey == key {
			return nil
		}
	}

	now := time.Now().UTC()
	var current *GrantLot
	for i := range existing {
		lot := existing[i]
		if lot.ConfigVersion == version && current == nil {
			current = &existing[i]
			continue
		}

		consumed, err := consumedDays(ctx, tx, lot.ID)
		if err != nil {
			return err
		}
		if consumed.IsZero() {
			if err := tx.DeleteLot(ctx, lot.ID); err != nil {
				return err
			}
			result.Removed++
			continue
		}
		if lot.DaysRemaining.IsZero() {
			continue
		}
		lot.DaysRemaining = decimal.Zero
		lot.UpdatedAt = now
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return err
		}
		result.Retired++
	}

	if current != nil {
		consumed, err := consumedDays(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		lot := *current
		lot.DaysGranted = days
		lot.DaysRemaining = generic.NonNegative(days.Sub(consumed))
		lot.ExpiryDate = expiry
		lot.DedupKey = key
		lot.UpdatedAt = now
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return err
		}
		result.Updated++
		return nil
	}

	err = tx.CreateLot(ctx, GrantLot{
		ID:            generic.NewID(),
		EmployeeID:    employeeID,
		GrantDate:     anchor,
		DaysGranted:   days,
		DaysRemaining: days,
		ExpiryDate:    expiry,
		DedupKey:      key,
		ConfigVersion: version,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, generic.ErrDuplicateDedupKey) {
		return nil
	}
	if err != nil {
		return err
	}
	result.Generated++
	return nil
}

// processDeferred settles finalized requests that never got consumption rows,
// e.g. ones finalized before their lot existed. Each request is settled in its
// own transaction; failures are logged and skipped.
func (g *LotGenerator) processDeferred(ctx context.Context, employeeID string) int {
	requests, err := g.store.ListRequests(ctx, employeeID, StatusApproved)
	if err != nil {
		g.logger.Error().Err(err).Str("employee_id", employeeID).Msg("failed to list deferred requests")
		return 0
	}

	processed := 0
	for _, req := range requests {
		if !req.Finalized() {
			continue
		}
		cs, err := g.store.ListConsumptionsByRequest(ctx, req.ID)
		if err != nil {
			g.logger.Warn().Err(err).Str("employee_id", employeeID).Str("request_id", req.ID).Msg("failed to list consumptions for deferred request")
			continue
		}
		if len(cs) > 0 {
			continue
		}

		err = g.store.WithTx(ctx, func(tx Store) error {
			plan, err := ConsumeLIFO(ctx, tx, employeeID, req.TotalDays, req.StartDate)
			if err != nil {
				return err
			}
			if err := Commit(ctx, tx, req, plan); err != nil {
				return err
			}
			req.Breakdown = plan.Draws
			req.UpdatedAt = time.Now().UTC()
			return tx.SaveRequest(ctx, req)
		})
		if err != nil {
			g.logger.Warn().Err(err).Str("employee_id", employeeID).Str("request_id", req.ID).Msg("deferred consumption skipped")
			continue
		}
		processed++
		g.record(ctx, AuditEntry{
			EmployeeID: employeeID,
			Actor:      "system",
			Action:     AuditDeferredConsumption,
			EntityType: "TimeOffRequest",
			EntityID:   req.ID,
			Payload:    map[string]any{"totalDays": req.TotalDays.String(), "breakdown": breakdownPayload(req.Breakdown)},
		})
	}
	return processed
}

func (g *LotGenerator) record(ctx context.Context, entry AuditEntry) {
	entry.ID = generic.NewID()
	entry.CreatedAt = time.Now().UTC()
	if err := g.audit.Record(ctx, entry); err != nil {
		g.logger.Warn().Err(err).Str("action", string(entry.Action)).Msg("audit record failed")
	}
}

// GenerateForAll runs GenerateForEmployee for every active employee. A failure
// for one employee is logged and reported; the batch continues.
func (g *LotGenerator) GenerateForAll(ctx context.Context, until generic.TimePoint) (BatchResult, error) {
	employees, err := g.store.ListActiveEmployees(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list employees: %w", err)
	}
	return g.generateBatch(ctx, employees, until), nil
}

// GenerateDue generates through tomorrow for active employees whose next
// anchor is tomorrow.
func (g *LotGenerator) GenerateDue(ctx context.Context, today generic.TimePoint) (BatchResult, error) {
	employees, err := g.store.ListActiveEmployees(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list employees: %w", err)
	}
	tomorrow := today.AddDays(1)
	var due []Employee
	for _, emp := range employees {
		if emp.JoinDate.IsZero() {
			continue
		}
		cfg := g.configs.Load(ctx, emp.ConfigVersion)
		if next, ok := NextAnchor(cfg, emp.JoinDate, today); ok && next.Equal(tomorrow) {
			due = append(due, emp)
		}
	}
	return g.generateBatch(ctx, due, tomorrow), nil
}

func (g *LotGenerator) generateBatch(ctx context.Context, employees []Employee, until generic.TimePoint) BatchResult {
	batch := BatchResult{Employees: len(employees)}
	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			batch.Failures = append(batch.Failures, EmployeeFailure{EmployeeID: emp.ID, Err: err})
			continue
		}
		r, err := g.GenerateForEmployee(ctx, emp.ID, until)
		if err != nil {
			g.logger.Error().Err(err).Str("employee_id", emp.ID).Msg("lot generation failed")
			batch.Failures = append(batch.Failures, EmployeeFailure{EmployeeID: emp.ID, Err: err})
			continue
		}
		batch.add(r)
	}
	g.logger.Info().
		Int("employees", batch.Employees).
		Int("generated", batch.Generated).
		Int("updated", batch.Updated).
		Int("failed", len(batch.Failures)).
		Msg("lot generation batch finished")
	return batch
}

func breakdownPayload(draws []Draw) []map[string]any {
	out := make([]map[string]any, 0, len(draws))
	for _, d := range draws {
		out = append(out, map[string]any{"lotId": d.LotID, "days": d.Days.String()})
	}
	return out
}
