/*
requests.go - Leave request lifecycle

STATES:
  PENDING --approve--> APPROVED --finalize--> APPROVED (finalized, debited)
  PENDING --reject---> REJECTED
  APPROVED --reject--> REJECTED (debits restored when finalized)

  Approval is the supervisor's decision and moves no days. Finalization is
  the HR step that runs ConsumeLIFO and commits the debit. Only finalized
  requests hold consumption rows.

AVAILABILITY:
  Submit and Update refuse a request larger than
  remaining (unexpired lots) - held (other PENDING requests and APPROVED
  requests not yet finalized).

AUDIT:
  Every transition records an AuditEntry through the AuditRecorder.
*/
package vacation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
)

// SubmitInput is a new or edited leave request.
type SubmitInput struct {
	EmployeeID   string
	StartDate    generic.TimePoint
	EndDate      generic.TimePoint
	Unit         RequestUnit
	HoursPerDay  int
	Requested    decimal.Decimal
	Reason       string
	SupervisorID string
}

func (in SubmitInput) span() RequestSpan {
	unit := in.Unit
	if unit == "" {
		unit = UnitDay
	}
	return RequestSpan{
		Start:       in.StartDate,
		End:         in.EndDate,
		Unit:        unit,
		HoursPerDay: in.HoursPerDay,
		Requested:   in.Requested,
	}
}

type RequestService struct {
	store   Store
	configs *ConfigService
	audit   AuditRecorder
	logger  zerolog.Logger

	// Now is the clock used for timestamps and the availability check.
	Now func() time.Time

	// Admins may approve any request. Others may only approve requests that
	// name them as supervisor, or that name no supervisor.
	Admins map[string]bool
}

func NewRequestService(store Store, configs *ConfigService, audit AuditRecorder, logger zerolog.Logger) *RequestService {
	if audit == nil {
		audit = nopAudit{}
	}
	return &RequestService{
		store:   store,
		configs: configs,
		audit:   audit,
		logger:  logger.With().Str("component", "requests").Logger(),
		Now:     time.Now,
	}
}

// Get returns a request or generic.ErrRequestNotFound.
func (s *RequestService) Get(ctx context.Context, id string) (TimeOffRequest, error) {
	return s.get(ctx, s.store, id)
}

func (s *RequestService) get(ctx context.Context, store RequestStore, id string) (TimeOffRequest, error) {
	r, err := store.GetRequest(ctx, id)
	if err != nil {
		return TimeOffRequest{}, fmt.Errorf("failed to load request %s: %w", id, err)
	}
	if r == nil {
		return TimeOffRequest{}, fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
	}
	return *r, nil
}

// List returns the employee's requests, optionally filtered by status.
func (s *RequestService) List(ctx context.Context, employeeID string, statuses ...RequestStatus) ([]TimeOffRequest, error) {
	return s.store.ListRequests(ctx, employeeID, statuses...)
}

// Submit validates and stores a PENDING request.
func (s *RequestService) Submit(ctx context.Context, in SubmitInput) (TimeOffRequest, error) {
	emp, cfg, err := s.employeeAndConfig(ctx, in.EmployeeID)
	if err != nil {
		return TimeOffRequest{}, err
	}
	span := in.span()
	total, err := RequestTotalDays(span, cfg.Rounding)
	if err != nil {
		return TimeOffRequest{}, err
	}

	var out TimeOffRequest
	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := s.checkAvailable(ctx, tx, emp.ID, total, ""); err != nil {
			return err
		}

		now := s.Now().UTC()
		out = TimeOffRequest{
			ID:              generic.NewID(),
			EmployeeID:      emp.ID,
			StartDate:       span.Start,
			EndDate:         span.End,
			Unit:            span.Unit,
			HoursPerDay:     span.HoursPerDay,
			RequestedAmount: span.Requested,
			TotalDays:       total,
			Status:          StatusPending,
			Reason:          in.Reason,
			SupervisorID:    in.SupervisorID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.SaveRequest(ctx, out)
	})
	if err != nil {
		return TimeOffRequest{}, err
	}
	s.record(ctx, out, in.EmployeeID, AuditRequestSubmit, map[string]any{"totalDays": out.TotalDays.String()})
	return out, nil
}

// Update edits a PENDING request. The request's own days count as available.
func (s *RequestService) Update(ctx context.Context, id string, in SubmitInput, actor string) (TimeOffRequest, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return TimeOffRequest{}, err
	}
	_, cfg, err := s.employeeAndConfig(ctx, current.EmployeeID)
	if err != nil {
		return TimeOffRequest{}, err
	}
	span := in.span()
	total, err := RequestTotalDays(span, cfg.Rounding)
	if err != nil {
		return TimeOffRequest{}, err
	}

	var out TimeOffRequest
	err = s.store.WithTx(ctx, func(tx Store) error {
		req, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return &generic.TransitionError{RequestID: id, From: string(req.Status), Action: "edit"}
		}
		if err := s.checkAvailable(ctx, tx, req.EmployeeID, total, req.ID); err != nil {
			return err
		}

		req.StartDate = span.Start
		req.EndDate = span.End
		req.Unit = span.Unit
		req.HoursPerDay = span.HoursPerDay
		req.RequestedAmount = span.Requested
		req.TotalDays = total
		if in.Reason != "" {
			req.Reason = in.Reason
		}
		if in.SupervisorID != "" {
			req.SupervisorID = in.SupervisorID
		}
		req.UpdatedAt = s.Now().UTC()
		out = req
		return tx.SaveRequest(ctx, req)
	})
	if err != nil {
		return TimeOffRequest{}, err
	}
	s.record(ctx, out, actor, AuditRequestUpdate, map[string]any{"totalDays": out.TotalDays.String()})
	return out, nil
}

// Approve is the supervisor step: PENDING -> APPROVED, no debit.
func (s *RequestService) Approve(ctx context.Context, id, approver string) (TimeOffRequest, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return TimeOffRequest{}, err
	}
	_, cfg, err := s.employeeAndConfig(ctx, current.EmployeeID)
	if err != nil {
		return TimeOffRequest{}, err
	}

	var out TimeOffRequest
	err = s.store.WithTx(ctx, func(tx Store) error {
		req, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return &generic.TransitionError{RequestID: id, From: string(req.Status), Action: "approve"}
		}
		if req.SupervisorID != "" && approver != req.SupervisorID && !s.Admins[approver] {
			return fmt.Errorf("%w: %s is not the supervisor of request %s", generic.ErrNotApprover, approver, id)
		}
		if !req.TotalDays.IsPositive() {
			req.TotalDays = pendingDays(req, cfg)
		}
		now := s.Now().UTC()
		req.Status = StatusApproved
		req.ApprovedBy = approver
		req.ApprovedAt = &now
		req.UpdatedAt = now
		out = req
		return tx.SaveRequest(ctx, req)
	})
	if err != nil {
		return TimeOffRequest{}, err
	}
	s.record(ctx, out, approver, AuditRequestApprove, map[string]any{"totalDays": out.TotalDays.String()})
	return out, nil
}

// Finalize is the HR step: debit an APPROVED request LIFO as of its start
// date. Either every lot is debited or none is.
func (s *RequestService) Finalize(ctx context.Context, id, actor string) (TimeOffRequest, error) {
	var out TimeOffRequest
	err := s.store.WithTx(ctx, func(tx Store) error {
		req, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusApproved || req.Finalized() {
			from := string(req.Status)
			if req.Finalized() {
				from += "(finalized)"
			}
			return &generic.TransitionError{RequestID: id, From: from, Action: "finalize"}
		}
		plan, err := ConsumeLIFO(ctx, tx, req.EmployeeID, req.TotalDays, req.StartDate)
		if err != nil {
			return err
		}
		if err := Commit(ctx, tx, req, plan); err != nil {
			return err
		}
		now := s.Now().UTC()
		req.Breakdown = plan.Draws
		req.FinalizedBy = actor
		req.FinalizedAt = &now
		req.UpdatedAt = now
		out = req
		return tx.SaveRequest(ctx, req)
	})
	if err != nil {
		return TimeOffRequest{}, err
	}
	s.record(ctx, out, actor, AuditRequestFinalize, map[string]any{
		"totalDays": out.TotalDays.String(),
		"breakdown": breakdownPayload(out.Breakdown),
	})
	return out, nil
}

// ApproveAndFinalize runs both steps for callers that hold both roles.
func (s *RequestService) ApproveAndFinalize(ctx context.Context, id, actor string) (TimeOffRequest, error) {
	if _, err := s.Approve(ctx, id, actor); err != nil {
		return TimeOffRequest{}, err
	}
	return s.Finalize(ctx, id, actor)
}

// Reject refuses a PENDING or APPROVED request. Debited days are restored.
func (s *RequestService) Reject(ctx context.Context, id, actor, reason string) (TimeOffRequest, error) {
	var out TimeOffRequest
	restored := decimal.Zero
	err := s.store.WithTx(ctx, func(tx Store) error {
		req, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending && req.Status != StatusApproved {
			return &generic.TransitionError{RequestID: id, From: string(req.Status), Action: "reject"}
		}
		if req.Finalized() {
			if restored, err = restoreRequest(ctx, tx, req); err != nil {
				return err
			}
		}
		now := s.Now().UTC()
		req.Status = StatusRejected
		req.RejectedBy = actor
		req.RejectedAt = &now
		req.RejectionReason = reason
		req.UpdatedAt = now
		out = req
		return tx.SaveRequest(ctx, req)
	})
	if err != nil {
		return TimeOffRequest{}, err
	}
	s.record(ctx, out, actor, AuditRequestReject, map[string]any{"reason": reason, "restoredDays": restored.String()})
	return out, nil
}

// Delete removes a PENDING or APPROVED request, restoring any debit first.
// Rejected requests are kept.
func (s *RequestService) Delete(ctx context.Context, id, actor string) error {
	var deleted TimeOffRequest
	restored := decimal.Zero
	err := s.store.WithTx(ctx, func(tx Store) error {
		req, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Status == StatusRejected {
			return &generic.TransitionError{RequestID: id, From: string(req.Status), Action: "delete"}
		}
		if req.Finalized() {
			if restored, err = restoreRequest(ctx, tx, req); err != nil {
				return err
			}
		}
		deleted = req
		return tx.DeleteRequest(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, deleted, actor, AuditRequestDelete, map[string]any{"restoredDays": restored.String()})
	return nil
}

// Available is remaining days on unexpired lots minus days held by PENDING
// and approved-but-unfinalized requests.
func (s *RequestService) Available(ctx context.Context, employeeID string) (decimal.Decimal, error) {
	return s.available(ctx, s.store, employeeID, "")
}

func (s *RequestService) available(ctx context.Context, tx Store, employeeID, excludeID string) (decimal.Decimal, error) {
	today := generic.FromTime(s.Now())
	lots, err := tx.ListUsableLots(ctx, employeeID, today)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list lots: %w", err)
	}
	remaining := decimal.Zero
	for _, l := range lots {
		remaining = remaining.Add(l.DaysRemaining)
	}
	held, err := tx.ListRequests(ctx, employeeID, StatusPending, StatusApproved)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list open requests: %w", err)
	}
	for _, r := range held {
		if r.ID == excludeID || r.Finalized() {
			continue
		}
		remaining = remaining.Sub(r.TotalDays)
	}
	return remaining, nil
}

func (s *RequestService) checkAvailable(ctx context.Context, tx Store, employeeID string, total decimal.Decimal, excludeID string) error {
	available, err := s.available(ctx, tx, employeeID, excludeID)
	if err != nil {
		return err
	}
	if total.GreaterThan(available) {
		return &generic.InsufficientBalanceError{
			EmployeeID: employeeID,
			Available:  generic.NonNegative(available),
			Requested:  total,
			Shortfall:  total.Sub(generic.NonNegative(available)),
		}
	}
	return nil
}

// employeeAndConfig reads through the root store, so it must not be called
// from inside WithTx.
func (s *RequestService) employeeAndConfig(ctx context.Context, employeeID string) (Employee, AppConfig, error) {
	emp, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return Employee{}, AppConfig{}, fmt.Errorf("failed to load employee %s: %w", employeeID, err)
	}
	if emp == nil {
		return Employee{}, AppConfig{}, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, employeeID)
	}
	return *emp, s.configs.Load(ctx, emp.ConfigVersion), nil
}

// restoreRequest gives back a finalized request's debit against the lots of
// the employee's current config version.
func restoreRequest(ctx context.Context, tx Store, req TimeOffRequest) (decimal.Decimal, error) {
	emp, err := tx.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load employee %s: %w", req.EmployeeID, err)
	}
	version := ""
	if emp != nil {
		version = emp.ConfigVersion
	}
	return Restore(ctx, tx, req.ID, version)
}

func (s *RequestService) record(ctx context.Context, req TimeOffRequest, actor string, action AuditAction, payload map[string]any) {
	entry := AuditEntry{
		ID:         generic.NewID(),
		EmployeeID: req.EmployeeID,
		Actor:      actor,
		Action:     action,
		EntityType: "TimeOffRequest",
		EntityID:   req.ID,
		Payload:    payload,
		CreatedAt:  s.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID).Str("action", string(action)).Msg("audit record failed")
	}
}
