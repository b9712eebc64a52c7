package services

import (
	"github.com/shopspring/decimal"

	"github.com/diewo77/cave-gestion/internal/models"
)

// Settlement status of an invoice, derived from (total, paid). The three
// values are wire-compatible with the historical statut field.
const (
	StatusImpayee   = "impayee"
	StatusPartielle = "partielle"
	StatusPayee     = "payee"
)

// Balance is the reconciled payment state of an invoice.
type Balance struct {
	Paid      decimal.Decimal
	Remaining decimal.Decimal
	Status    string
}

// ComputeInvoiceTotal sums quantity × unit price over a set of unbilled
// consumption entries belonging to a single subscriber. It is pure: linking
// the entries and persisting the invoice is the invoice service's job.
//
// Fails with a ValidationError when the set is empty, spans more than one
// subscriber, or contains an entry already linked to an invoice.
func ComputeInvoiceTotal(entries []models.Consumption) (decimal.Decimal, error) {
	if len(entries) == 0 {
		return decimal.Zero, &ValidationError{Field: "consommations", Reason: "empty selection"}
	}
	subscriberID := entries[0].SubscriberID
	total := decimal.Zero
	for _, e := range entries {
		if e.SubscriberID != subscriberID {
			return decimal.Zero, &ValidationError{Field: "consommations", Reason: "entries span multiple subscribers"}
		}
		if e.Facturee() {
			return decimal.Zero, &ValidationError{Field: "consommations", Reason: "entry already invoiced"}
		}
		if e.Quantite <= 0 {
			return decimal.Zero, &ValidationError{Field: "quantite", Reason: "must be positive"}
		}
		if e.PrixUnitaire.IsNegative() {
			return decimal.Zero, &ValidationError{Field: "prix_unitaire", Reason: "must not be negative"}
		}
		total = total.Add(e.PrixUnitaire.Mul(decimal.NewFromInt(int64(e.Quantite))))
	}
	return total, nil
}

// ComputeRemainingBalance reconciles an invoice against the complete set of
// payments recorded against it. remaining = total − Σ payments.
//
// Fails with an InconsistentStateError when the payments sum to more than
// the total: that means the persistence invariant was broken server-side and
// must be surfaced, never silently clamped.
func ComputeRemainingBalance(inv *models.Invoice, payments []models.Payment) (Balance, error) {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Montant)
	}
	if paid.GreaterThan(inv.MontantTotal) {
		return Balance{}, &InconsistentStateError{InvoiceID: inv.ID, Total: inv.MontantTotal, Paid: paid}
	}
	return Balance{
		Paid:      paid,
		Remaining: inv.MontantTotal.Sub(paid),
		Status:    SettlementStatus(inv.MontantTotal, paid),
	}, nil
}

// SettlementStatus derives the three-valued status from (total, paid).
// It is recomputed on every read and never stored, so the status can never
// drift from the payment rows. paid == total resolves to payee.
func SettlementStatus(total, paid decimal.Decimal) string {
	switch {
	case paid.IsZero():
		return StatusImpayee
	case paid.LessThan(total):
		return StatusPartielle
	default:
		return StatusPayee
	}
}

// ValidatePayment accepts a proposed amount iff 0 < amount ≤ remaining.
// An amount equal to the remaining balance settles the invoice exactly.
//
// This check runs both before and inside the recording transaction: the
// in-transaction run is the authoritative one, since another session may
// have changed the balance since the caller's read.
func ValidatePayment(total, paid, proposed decimal.Decimal) error {
	if proposed.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "montant", Reason: "must be positive"}
	}
	remaining := total.Sub(paid)
	if proposed.GreaterThan(remaining) {
		return &OverpaymentError{Proposed: proposed, Remaining: remaining}
	}
	return nil
}
