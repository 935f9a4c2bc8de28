/*
errors.go - Centralized error types for the audit engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these (or wrap them) so the HTTP layer can map
  any failure to a status code with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - Rejected before any write, no partial effect
  2. Persistence errors - Store failures; transactional paths roll back fully
  3. Not-found errors - Referenced item/column/report does not exist

USAGE:
    if errors.Is(err, generic.ErrValidation) {
        // incomplete batch, missing sign-off, conflicting transition...
    }

    var verr *generic.ValidationError
    if errors.As(err, &verr) {
        fmt.Println(verr.Code, verr.Field)
    }

SEE ALSO:
  - checklist/batch.go: Raises coverage and sign-off validation errors
  - checklist/ncr.go: Raises conflicting-transition errors
  - store/sqlstore: Maps driver unique violations to ErrDuplicateKey
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the category of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence is the category of every PersistenceError.
	ErrPersistence = errors.New("persistence failed")

	// ErrDuplicateKey is returned when a unique key (observation, NCR, value)
	// is violated. Upsert paths never hit this unless two writers race.
	ErrDuplicateKey = errors.New("duplicate key")

	ErrItemNotFound        = errors.New("checklist item not found")
	ErrObservationNotFound = errors.New("observation not found")
	ErrNCRNotFound         = errors.New("non-conformance report not found")
	ErrColumnNotFound      = errors.New("custom column not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Validation codes.
const (
	CodeRequired          = "required"
	CodeIncompleteBatch   = "incomplete_batch"
	CodeUnknownItem       = "unknown_item"
	CodeDuplicateItem     = "duplicate_item"
	CodeConflictingStatus = "conflicting_status"
	CodeInvalidStatus     = "invalid_status"
	CodeInvalidReading    = "invalid_reading"
	CodeMissingSignOff    = "missing_sign_off"
	CodeNCRRequired       = "ncr_required"
	CodeDayOverride       = "day_override"
	CodeRetiredColumn     = "retired_column"
	CodeFormMismatch      = "form_mismatch"
)

// ValidationError is raised before any write. The request has no effect.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a store failure. Where a transaction was open it has
// already been rolled back; the caller must resubmit the whole operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is lets errors.Is match both the category and the cause.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persist wraps err as a PersistenceError unless it already is a domain error
// the caller should see unchanged (validation, not-found).
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || IsNotFound(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the error is a unique-key violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrObservationNotFound) ||
		errors.Is(err, ErrNCRNotFound) ||
		errors.Is(err, ErrColumnNotFound)
}
