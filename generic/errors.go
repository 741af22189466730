/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The vacation package wraps these with context; the API maps them to
  HTTP status codes through the helpers at the bottom.

ERROR CATEGORIES:
  1. Lookup errors - missing employee, lot, request or config
  2. Validation errors - malformed input, illegal state transitions
  3. Balance errors - not enough unexpired leave
  4. Store errors - idempotency and optimistic-locking conflicts

USAGE:
    if errors.Is(err, generic.ErrInsufficientBalance) {
        var ib *generic.InsufficientBalanceError
        errors.As(err, &ib)
        ...
    }

SEE ALSO:
  - vacation/consumption.go: raises InsufficientBalanceError
  - store/sqlstore/sqlstore.go: raises ErrDuplicateDedupKey, ErrConcurrentModification
  - api/handlers.go: maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the parent of every lookup failure.
	ErrNotFound = errors.New("not found")

	// ErrEmployeeNotFound is returned when an employee id does not resolve.
	ErrEmployeeNotFound = fmt.Errorf("employee %w", ErrNotFound)

	// ErrRequestNotFound is returned when a leave request id does not resolve.
	ErrRequestNotFound = fmt.Errorf("request %w", ErrNotFound)

	// ErrLotNotFound is returned when a grant lot id does not resolve.
	ErrLotNotFound = fmt.Errorf("grant lot %w", ErrNotFound)

	// ErrConfigNotFound is returned when a config version does not exist.
	ErrConfigNotFound = fmt.Errorf("config %w", ErrNotFound)

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrPrecondition is returned when the data needed for an operation is
	// missing, e.g. an employee without a join date.
	ErrPrecondition = errors.New("precondition failed")

	// ErrMissingJoinDate is the precondition failure for lot generation.
	ErrMissingJoinDate = fmt.Errorf("%w: employee has no join date", ErrPrecondition)

	// ErrInvalidTransition is returned when a request is not in a state that
	// allows the requested action.
	ErrInvalidTransition = errors.New("invalid request state transition")

	// ErrInsufficientBalance is returned when consumption exceeds available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateDedupKey is returned when a lot with the same dedup key
	// already exists. Generation treats it as a no-op.
	ErrDuplicateDedupKey = errors.New("duplicate grant lot dedup key")

	// ErrConcurrentModification is returned when a guarded lot update finds
	// the remaining balance changed underneath it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrNotApprover is returned when someone other than the named supervisor
	// or an admin approves a request.
	ErrNotApprover = errors.New("actor may not approve this request")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  decimal.Decimal
	Requested  decimal.Decimal
	Shortfall  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// TransitionError names the state a request was in when an action was refused.
type TransitionError struct {
	RequestID string
	From      string
	Action    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in state %s", e.Action, e.RequestID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Validationf builds an ErrValidation with a message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPrecondition) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the error is a state or concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrDuplicateDedupKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
