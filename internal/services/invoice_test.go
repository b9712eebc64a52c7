package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestInvoiceCreateLinksEntries(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "500", 100)
	csvc := NewConsumptionService(db)
	var ids []uint
	for i := 0; i < 3; i++ {
		e, err := csvc.Create(ctx, CreateConsumptionInput{
			SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 2, Utilisateur: "test",
		})
		if err != nil {
			t.Fatalf("create consumption: %v", err)
		}
		ids = append(ids, e.ID)
	}

	svc := NewInvoiceService(db)
	inv, err := svc.Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: ids})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if !inv.MontantTotal.Equal(d("3000")) {
		t.Fatalf("expected total 3000, got %s", inv.MontantTotal)
	}
	prefix := "FAC-" + time.Now().Format("200601") + "-"
	if !strings.HasPrefix(inv.Numero, prefix) {
		t.Fatalf("bad numero %s", inv.Numero)
	}

	// entries are now linked and excluded from the unbilled pool
	pool, err := svc.UnbilledEntries(ctx, sub.ID)
	if err != nil {
		t.Fatalf("unbilled: %v", err)
	}
	if len(pool) != 0 {
		t.Fatalf("expected empty unbilled pool, got %d", len(pool))
	}

	// relinking the same entries must fail
	if _, err := svc.Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: ids}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error on relink, got %v", err)
	}
}

func TestInvoiceNumberSequence(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "100", 100)
	csvc := NewConsumptionService(db)
	svc := NewInvoiceService(db)

	var numeros []string
	for i := 0; i < 3; i++ {
		e, err := csvc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 1})
		if err != nil {
			t.Fatalf("consumption: %v", err)
		}
		inv, err := svc.Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: []uint{e.ID}})
		if err != nil {
			t.Fatalf("invoice: %v", err)
		}
		numeros = append(numeros, inv.Numero)
	}
	prefix := "FAC-" + time.Now().Format("200601") + "-"
	for i, n := range numeros {
		want := prefix + []string{"0001", "0002", "0003"}[i]
		if n != want {
			t.Fatalf("expected %s got %s", want, n)
		}
	}
}

func TestInvoiceCreateRejectsForeignEntries(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub1 := seedSubscriber(t, db, "ABN00001")
	sub2 := seedSubscriber(t, db, "ABN00002")
	prod := seedProduct(t, db, "PRD00001", "100", 100)
	csvc := NewConsumptionService(db)
	e, err := csvc.Create(ctx, CreateConsumptionInput{SubscriberID: sub2.ID, ProductID: prod.ID, Quantite: 1})
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	_, err = NewInvoiceService(db).Create(ctx, CreateInvoiceInput{SubscriberID: sub1.ID, ConsumptionIDs: []uint{e.ID}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInvoiceListDerivesStatus(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "5000", 100)
	csvc := NewConsumptionService(db)
	isvc := NewInvoiceService(db)
	psvc := NewPaymentService(db)

	e, err := csvc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 1})
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	inv, err := isvc.Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: []uint{e.ID}})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: inv.ID, Montant: d("2000"), Mode: "especes"}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	partial, err := isvc.List(ctx, InvoiceFilter{Statut: StatusPartielle})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(partial) != 1 || !partial[0].Balance.Remaining.Equal(d("3000")) {
		t.Fatalf("expected one partial invoice remaining 3000, got %+v", partial)
	}
	paid, err := isvc.List(ctx, InvoiceFilter{Statut: StatusPayee})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(paid) != 0 {
		t.Fatalf("expected no paid invoices")
	}
}

func TestInvoiceListFractionalAmountsStayExact(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "0.10", 100)
	csvc := NewConsumptionService(db)
	isvc := NewInvoiceService(db)
	psvc := NewPaymentService(db)

	// 3 × 0.10: amounts that drift under binary floating point
	e, err := csvc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 3})
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	inv, err := isvc.Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: []uint{e.ID}})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if !inv.MontantTotal.Equal(d("0.30")) {
		t.Fatalf("expected total 0.30, got %s", inv.MontantTotal)
	}
	for _, m := range []string{"0.10", "0.20"} {
		if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: inv.ID, Montant: d(m), Mode: "especes"}); err != nil {
			t.Fatalf("payment %s: %v", m, err)
		}
	}

	// exactly settled: List must derive payee, never a spurious
	// inconsistency from lossy aggregation
	all, err := isvc.List(ctx, InvoiceFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one invoice, got %d", len(all))
	}
	if all[0].Balance.Status != StatusPayee || !all[0].Balance.Remaining.IsZero() {
		t.Fatalf("expected payee/0, got %s/%s", all[0].Balance.Status, all[0].Balance.Remaining)
	}
	if !all[0].Balance.Paid.Equal(d("0.30")) {
		t.Fatalf("expected paid 0.30, got %s", all[0].Balance.Paid)
	}
}

func TestInvoiceDeleteDetachesEntries(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "100", 100)
	csvc := NewConsumptionService(db)
	isvc := NewInvoiceService(db)

	e, err := csvc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 1})
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	inv, err := isvc.Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: []uint{e.ID}})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if err := isvc.Delete(ctx, inv.ID, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	pool, err := isvc.UnbilledEntries(ctx, sub.ID)
	if err != nil {
		t.Fatalf("unbilled: %v", err)
	}
	if len(pool) != 1 {
		t.Fatalf("expected entry back in unbilled pool, got %d", len(pool))
	}
}

func TestInvoiceDeleteRefusedWithPayments(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "100", 100)
	csvc := NewConsumptionService(db)
	isvc := NewInvoiceService(db)
	psvc := NewPaymentService(db)

	e, err := csvc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 1})
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	inv, err := isvc.Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: []uint{e.ID}})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if _, _, err := psvc.Record(ctx, RecordPaymentInput{InvoiceID: inv.ID, Montant: d("50"), Mode: "especes"}); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if err := isvc.Delete(ctx, inv.ID, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
