package services

import (
	"context"
	"errors"
	"testing"

	"github.com/diewo77/cave-gestion/internal/models"
)

// newInvoiceOf5000 seeds one subscriber, one sale and one invoice of 5000.
func newInvoiceOf5000(t *testing.T, name string) (*PaymentService, *InvoiceService, uint) {
	t.Helper()
	db := setupTestDB(t, name)
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "5000", 10)
	e, err := NewConsumptionService(db).Create(ctx, CreateConsumptionInput{
		SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 1,
	})
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	isvc := NewInvoiceService(db)
	inv, err := isvc.Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: []uint{e.ID}})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	return NewPaymentService(db), isvc, inv.ID
}

func TestPaymentLifecycle(t *testing.T) {
	psvc, isvc, invID := newInvoiceOf5000(t, t.Name())
	ctx := context.Background()

	// partial payment
	_, bal, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("2000"), Mode: "especes"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if bal.Status != StatusPartielle || !bal.Remaining.Equal(d("3000")) {
		t.Fatalf("expected partielle/3000, got %s/%s", bal.Status, bal.Remaining)
	}

	// exact settlement
	_, bal, err = psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("3000"), Mode: "mobile_money"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if bal.Status != StatusPayee || !bal.Remaining.IsZero() {
		t.Fatalf("expected payee/0, got %s/%s", bal.Status, bal.Remaining)
	}

	// any further payment is an overpayment
	_, _, err = psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("1"), Mode: "especes"})
	if !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}

	iwb, err := isvc.Get(ctx, invID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if iwb.Balance.Status != StatusPayee {
		t.Fatalf("expected settled invoice, got %s", iwb.Balance.Status)
	}
}

func TestPaymentRejectsBadInput(t *testing.T) {
	psvc, _, invID := newInvoiceOf5000(t, t.Name())
	ctx := context.Background()

	if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("0"), Mode: "especes"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero amount: expected validation error, got %v", err)
	}
	if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("-10"), Mode: "especes"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative amount: expected validation error, got %v", err)
	}
	if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("10"), Mode: "bitcoin"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad mode: expected validation error, got %v", err)
	}
	if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: 999, Montant: d("10"), Mode: "especes"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing invoice: expected not found, got %v", err)
	}
	if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("5001"), Mode: "especes"}); !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}
}

func TestPaymentInconsistentStateSurfaced(t *testing.T) {
	psvc, isvc, invID := newInvoiceOf5000(t, t.Name())
	ctx := context.Background()

	// corrupt the store directly: payments exceeding the total
	if err := psvc.DB.Create(&models.Payment{InvoiceID: invID, Montant: d("6000"), Mode: "especes"}).Error; err != nil {
		t.Fatalf("seed corrupt payment: %v", err)
	}

	if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("1"), Mode: "especes"}); !errors.Is(err, ErrInconsistentState) {
		t.Fatalf("record: expected inconsistent state, got %v", err)
	}
	if _, err := isvc.Get(ctx, invID); !errors.Is(err, ErrInconsistentState) {
		t.Fatalf("get: expected inconsistent state, got %v", err)
	}
}

func TestPaymentUpdateRevalidates(t *testing.T) {
	psvc, _, invID := newInvoiceOf5000(t, t.Name())
	ctx := context.Background()

	p, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: invID, Montant: d("2000"), Mode: "especes"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	// raising to the full total is fine: the old amount is credited back
	amount := d("5000")
	if _, err := psvc.Update(ctx, p.ID, UpdatePaymentInput{Montant: &amount}); err != nil {
		t.Fatalf("update to total: %v", err)
	}

	over := d("5001")
	if _, err := psvc.Update(ctx, p.ID, UpdatePaymentInput{Montant: &over}); !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}
}
