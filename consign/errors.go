/*
errors.go - Error kinds produced by the engine

PURPOSE:
  The engine produces four error kinds, none tied to any transport. The
  API boundary maps them to HTTP statuses; the engine itself only carries
  the kind plus a human-readable message.

ERROR KINDS:
  NotFoundError:          referenced entity does not exist
  ValidationError:        malformed or policy-violating input
  InsufficientStockError: a decrement would drive remaining stock negative
  ConflictError:          operation would violate a once-only guarantee

USAGE:
  Match by kind with the predicates:

    if consign.IsNotFound(err) { ... }

  or unwrap for details:

    var stockErr *consign.InsufficientStockError
    if errors.As(err, &stockErr) { ... stockErr.Remaining ... }

SEE ALSO:
  - deposit.go: the main producer of ConflictError
  - api/handlers.go: status-code mapping
*/
package consign

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the root of every NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrValidation is the root of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is the root of every InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConflict is the root of every ConflictError.
	ErrConflict = errors.New("conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity and, when relevant, the ids that
// could not be resolved.
type NotFoundError struct {
	Entity string // e.g. "seller", "stock batch", "line item"
	IDs    []int
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, joinIDs(e.IDs))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports malformed or policy-violating input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientStockError reports a decrement that would underflow a batch.
type InsufficientStockError struct {
	BatchID   int
	Remaining int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock on batch %d: remaining %d, requested %d",
		e.BatchID, e.Remaining, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ConflictError reports a violated once-only guarantee, e.g. re-depositing
// an already-deposited line item.
type ConflictError struct {
	Msg string
	IDs []int
}

func (e *ConflictError) Error() string {
	if len(e.IDs) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, joinIDs(e.IDs))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
func IsInsufficientStock(err error) bool { return errors.Is(err, ErrInsufficientStock) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConflict) }

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return IsNotFound(err) || IsValidation(err) || IsInsufficientStock(err) || IsConflict(err)
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
