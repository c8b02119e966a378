/*
errors.go - Centralized error types for the core engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every operation returns one of these as a typed result; nothing is
  recovered silently and the core never formats user-facing text.

ERROR CATEGORIES:
  1. Validation errors - Malformed input (end <= start, negative amounts)
  2. Conflict errors   - Overlapping reservation, removal with live bookings
  3. State errors      - Operation not legal for the current status
  4. Funds errors      - Renter balance below the reservation fee
  5. Persistence errors - Underlying store failures (retryable)

USAGE:
  Callers classify with errors.Is against the sentinels:

    if errors.Is(err, core.ErrConflict) {
        // surface a 409
    }

SEE ALSO:
  - ledger.go: Produces conflict and state errors
  - settlement.go: Produces funds and persistence errors
*/
package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all malformed-input errors.
	ErrValidation = errors.New("invalid input")

	// ErrConflict is returned when a reservation overlaps an existing one, or
	// when a slot with a live reservation would be removed.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientFunds is returned when the renter balance cannot cover the fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidState is returned when an operation is not legal for the
	// reservation's current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound is returned when a referenced space, slot, reservation or
	// account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCapacity is returned when a slot is added to a closed space.
	ErrCapacity = errors.New("space closed")

	// ErrPersistence is returned when the underlying store fails. The attempt
	// left no partial state behind, so the caller may retry.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports a booking overlap or a removal blocked by a live
// reservation. ReservationID names the existing reservation that conflicts.
type ConflictError struct {
	SlotNumber    string
	ReservationID ReservationID
	Message       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on slot %s: %s (reservation: %s)", e.SlotNumber, e.Message, e.ReservationID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InsufficientFundsError reports a balance shortfall on settlement.
type InsufficientFundsError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s: available %v, requested %v",
		e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall is the amount missing.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// InvalidStateError reports an operation that is not legal from the
// reservation's current status.
type InvalidStateError struct {
	ReservationID ReservationID
	Status        ReservationStatus
	Event         Event
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("event %q is not valid for reservation %s in status %q",
		e.Event, e.ReservationID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// NotFoundError reports a missing entity by kind and identifier.
type NotFoundError struct {
	Kind string // "space", "slot", "reservation", "account"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// CapacityError reports an AddSlot against a closed space.
type CapacityError struct {
	SpaceID SpaceID
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("space %s is closed to new slots", e.SpaceID)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// PersistenceError wraps a store failure. The operation that produced it is
// atomic: the prior state is preserved unchanged, so retrying is safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry. Only
// persistence failures qualify; business rejections are terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to the caller's input or the
// current state, rather than a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrCapacity)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for booking overlaps and blocked removals.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
