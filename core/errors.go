/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Components return the structured types below; callers match them with
  errors.Is against the sentinels or errors.As for the details.

ERROR CATEGORIES:
  1. Validation      - malformed or incomplete input, fixable by the caller
  2. Transition      - state machine guard violations (stale UI or caller bug)
  3. Stock/allocation - business-rule violations during fulfilment; always
                       list the offending items so the caller can correct them
  4. Store           - not found, concurrent modification, duplicate keys

ZERO PRICES ARE NOT ERRORS:
  pricing.Engine.ComputePrice returns FinalPrice 0 with a Reason when no base
  price exists. A missing price is a configuration gap the UI has to flag.

USAGE:
  if errors.Is(err, core.ErrInvalidTransition) { ... }

  var gap *core.AllocationMismatchError
  if errors.As(err, &gap) {
      for _, item := range gap.Items { ... }
  }

SEE ALSO:
  - store.go: stores return ErrNotFound / ErrConcurrentModification
  - api/handlers.go: maps these errors to HTTP status codes
*/
package core

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or incomplete input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a workflow step is called out of order.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInsufficientStock is returned when a lot holds less than requested.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOverAllocation is returned when allocations would exceed the requested quantity.
	ErrOverAllocation = errors.New("over allocation")

	// ErrAllocationMismatch is returned when fulfilment finds unbalanced allocations.
	ErrAllocationMismatch = errors.New("allocation mismatch")

	// ErrIncompleteAssessment is returned when confirming an assessment too early.
	ErrIncompleteAssessment = errors.New("incomplete assessment")

	// ErrNotFound is returned when a referenced row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when a put carries a stale version.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateIdempotencyKey is returned when a history entry key is reused.
	// A replayed commit hits this instead of double-counting stock.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldProblem is one validation failure.
type FieldProblem struct {
	Field   string
	Message string
}

// ValidationError lists every problem found in one input.
type ValidationError struct {
	Problems []FieldProblem
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Problems: []FieldProblem{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}

func (e *ValidationError) Add(field, format string, args ...any) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns nil when no problem was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidTransitionError describes a rejected state machine step.
type InvalidTransitionError struct {
	Entity string // "buyback" or "sales"
	ID     string
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from status %s", e.Entity, e.ID, e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// StockShortage is one lot that can't cover a request.
type StockShortage struct {
	LotID     LotID
	Available int
	Requested int
}

// InsufficientStockError lists every short lot.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("lot %s has %d, requested %d", s.LotID, s.Available, s.Requested)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// OverAllocationError is returned by SelectAllocation.
type OverAllocationError struct {
	ItemID    ItemID
	Requested int
	Allocated int // total including the rejected selection
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("item %s: allocating %d exceeds requested %d", e.ItemID, e.Allocated, e.Requested)
}

func (e *OverAllocationError) Unwrap() error { return ErrOverAllocation }

// AllocationGap is one item whose allocations don't match its quantity.
type AllocationGap struct {
	ItemID    ItemID
	Requested int
	Allocated int
}

// AllocationMismatchError lists every unbalanced item.
type AllocationMismatchError struct {
	Items []AllocationGap
}

func (e *AllocationMismatchError) Error() string {
	parts := make([]string, len(e.Items))
	for i, g := range e.Items {
		parts[i] = fmt.Sprintf("item %s allocated %d of %d", g.ItemID, g.Allocated, g.Requested)
	}
	return "allocation mismatch: " + strings.Join(parts, "; ")
}

func (e *AllocationMismatchError) Unwrap() error { return ErrAllocationMismatch }

// IncompleteAssessmentError lists what is missing before confirmation.
type IncompleteAssessmentError struct {
	MissingAssessor bool
	UnrankedItems   []ItemID
	UnpricedItems   []ItemID
	UnnotedItems    []ItemID // rank C without condition notes
}

func (e *IncompleteAssessmentError) Error() string {
	var parts []string
	if e.MissingAssessor {
		parts = append(parts, "assessor not set")
	}
	if len(e.UnrankedItems) > 0 {
		parts = append(parts, fmt.Sprintf("items without rank: %v", e.UnrankedItems))
	}
	if len(e.UnpricedItems) > 0 {
		parts = append(parts, fmt.Sprintf("items without price: %v", e.UnpricedItems))
	}
	if len(e.UnnotedItems) > 0 {
		parts = append(parts, fmt.Sprintf("rank C items without condition notes: %v", e.UnnotedItems))
	}
	return "incomplete assessment: " + strings.Join(parts, "; ")
}

func (e *IncompleteAssessmentError) Unwrap() error { return ErrIncompleteAssessment }

// NotFoundError names the missing row.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if re-reading and re-submitting might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the caller has to correct its input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrOverAllocation) ||
		errors.Is(err, ErrAllocationMismatch) ||
		errors.Is(err, ErrIncompleteAssessment) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
