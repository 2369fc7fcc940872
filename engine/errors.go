/*
errors.go - Centralized error types for the vacation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these onto status codes; nothing else in the
  engine inspects error strings.

ERROR CATEGORIES:
  1. Not-found errors - missing policy/grant/usage/request/employee
  2. Validation errors - malformed configuration or windows
  3. Balance errors - insufficient remaining entitlement
  4. Approval errors - workflow rule violations
  5. Store errors - optimistic-lock conflicts

USAGE:
  Callers match with errors.Is():

    if errors.Is(err, engine.ErrInsufficientBalance) { ... }

SEE ALSO:
  - api/handlers.go: maps these to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrGrantNotFound is returned when a referenced grant doesn't exist.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrUsageNotFound is returned when a referenced usage doesn't exist.
	ErrUsageNotFound = errors.New("usage not found")

	// ErrRequestNotFound is returned when a referenced approval request doesn't exist.
	ErrRequestNotFound = errors.New("approval request not found")

	// ErrTrackerNotFound is returned when a schedule tracker doesn't exist.
	ErrTrackerNotFound = errors.New("schedule tracker not found")

	// ErrEmployeeNotFound is returned when the directory doesn't know the employee.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrEmployeeInactive is returned for operations on a deactivated employee.
	ErrEmployeeInactive = errors.New("employee not active")

	// ErrInvalidConfiguration is returned when policy fields are inconsistent.
	// Nothing is persisted when configuration is rejected.
	ErrInvalidConfiguration = errors.New("invalid policy configuration")

	// ErrInsufficientBalance is returned when a usage exceeds the remaining
	// time across all eligible grants. No partial debit is made.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidWindow is returned for malformed or retroactive date windows.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrPolicyInUse is returned when a breaking edit targets a policy that
	// grants already reference.
	ErrPolicyInUse = errors.New("policy referenced by grants, core fields immutable")

	// ErrConcurrentModification is returned when optimistic locking detects a
	// conflicting debit on the same grant rows. Retryable.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Approval workflow rejections.
	ErrUnauthorizedApprover   = errors.New("approver not authorized for this request")
	ErrOutOfSequenceApproval  = errors.New("earlier approval slot still pending")
	ErrAlreadyDecided         = errors.New("approval slot already decided")
	ErrRejectionWithoutReason = errors.New("rejection requires a reason")
	ErrDuplicateApprover      = errors.New("duplicate approver in list")
	ErrNoApprovers            = errors.New("approver list must not be empty")
	ErrReasonRequired         = errors.New("reason required for requested leave")
	ErrRequestNotCancelable   = errors.New("request has recorded decisions, cannot cancel")
	ErrRequestClosed          = errors.New("request already finalized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the shortage when a debit cannot be covered.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Type       VacationType
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s: available %s, requested %s",
		e.EmployeeID, e.Type, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ConfigError reports which policy field violated which constraint.
type ConfigError struct {
	Field      string
	Constraint string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid policy configuration: %s %s", e.Field, e.Constraint)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrGrantNotFound) ||
		errors.Is(err, ErrUsageNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrTrackerNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrPolicyInUse) ||
		errors.Is(err, ErrEmployeeInactive) ||
		errors.Is(err, ErrUnauthorizedApprover) ||
		errors.Is(err, ErrOutOfSequenceApproval) ||
		errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, ErrRejectionWithoutReason) ||
		errors.Is(err, ErrDuplicateApprover) ||
		errors.Is(err, ErrNoApprovers) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrRequestNotCancelable) ||
		errors.Is(err, ErrRequestClosed)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
