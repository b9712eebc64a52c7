package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the billing domain. Handlers match them with errors.Is
// to pick HTTP statuses; the richer struct types below carry details and
// unwrap to these sentinels.
var (
	// ErrValidation is returned for malformed or missing input, before any
	// state is touched.
	ErrValidation = errors.New("validation failed")

	// ErrOverpayment is returned when a proposed payment exceeds the
	// invoice's remaining balance.
	ErrOverpayment = errors.New("payment exceeds remaining balance")

	// ErrInconsistentState is returned when the stored payments sum to more
	// than the invoice total. This signals a persistence invariant breach;
	// callers must surface it, never clamp the balance.
	ErrInconsistentState = errors.New("paid amount exceeds invoice total")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStockInsuffisant is returned when a sale would drive stock negative.
	ErrStockInsuffisant = errors.New("insufficient stock")
)

// ValidationError carries the offending field and reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// OverpaymentError carries the authoritative remaining balance at the time
// of the check so callers can report it.
type OverpaymentError struct {
	Proposed  decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("overpayment: %s exceeds remaining balance %s", e.Proposed, e.Remaining)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// InconsistentStateError reports an invoice whose recorded payments exceed
// its total amount due.
type InconsistentStateError struct {
	InvoiceID uint
	Total     decimal.Decimal
	Paid      decimal.Decimal
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("invoice %d: paid %s exceeds total %s", e.InvoiceID, e.Paid, e.Total)
}

func (e *InconsistentStateError) Unwrap() error { return ErrInconsistentState }
