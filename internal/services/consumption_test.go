package services

import (
	"context"
	"errors"
	"testing"

	"github.com/diewo77/cave-gestion/internal/models"
)

func TestConsumptionCreateDecrementsStock(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "750", 20)
	svc := NewConsumptionService(db)

	e, err := svc.Create(ctx, CreateConsumptionInput{
		SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 3, Utilisateur: "vendeur",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !e.MontantTotal.Equal(d("2250")) {
		t.Fatalf("expected 2250, got %s", e.MontantTotal)
	}

	var reloaded models.Product
	if err := db.First(&reloaded, prod.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Stock != 17 {
		t.Fatalf("expected stock 17, got %d", reloaded.Stock)
	}

	var mv models.StockMovement
	if err := db.Where("product_id = ?", prod.ID).First(&mv).Error; err != nil {
		t.Fatalf("movement: %v", err)
	}
	if mv.TypeMouvement != models.MouvementSortie || mv.StockAvant != 20 || mv.StockApres != 17 {
		t.Fatalf("bad movement %+v", mv)
	}
}

func TestConsumptionInsufficientStock(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "100", 2)
	svc := NewConsumptionService(db)

	_, err := svc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 5})
	if !errors.Is(err, ErrStockInsuffisant) {
		t.Fatalf("expected stock error, got %v", err)
	}

	// nothing persisted on failure
	var count int64
	db.Model(&models.Consumption{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no entries, got %d", count)
	}
	var reloaded models.Product
	db.First(&reloaded, prod.ID)
	if reloaded.Stock != 2 {
		t.Fatalf("stock must be untouched, got %d", reloaded.Stock)
	}
}

func TestConsumptionPriceOverride(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "1000", 10)
	svc := NewConsumptionService(db)

	negotiated := d("800")
	e, err := svc.Create(ctx, CreateConsumptionInput{
		SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 2, PrixUnitaire: &negotiated,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !e.MontantTotal.Equal(d("1600")) {
		t.Fatalf("expected 1600, got %s", e.MontantTotal)
	}
}

func TestConsumptionUpdateAdjustsStock(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "100", 10)
	svc := NewConsumptionService(db)

	e, err := svc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	q := 5
	updated, err := svc.Update(ctx, e.ID, UpdateConsumptionInput{Quantite: &q})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.MontantTotal.Equal(d("500")) {
		t.Fatalf("expected 500, got %s", updated.MontantTotal)
	}
	var reloaded models.Product
	db.First(&reloaded, prod.ID)
	if reloaded.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", reloaded.Stock)
	}
}

func TestConsumptionInvoicedEntryFrozen(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "100", 10)
	svc := NewConsumptionService(db)

	e, err := svc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := NewInvoiceService(db).Create(ctx, CreateInvoiceInput{SubscriberID: sub.ID, ConsumptionIDs: []uint{e.ID}}); err != nil {
		t.Fatalf("invoice: %v", err)
	}

	q := 3
	if _, err := svc.Update(ctx, e.ID, UpdateConsumptionInput{Quantite: &q}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected frozen entry, got %v", err)
	}
	if err := svc.Delete(ctx, e.ID, "test", 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected delete refusal, got %v", err)
	}

	// admin can still correct
	if _, err := svc.Update(ctx, e.ID, UpdateConsumptionInput{Quantite: &q, Admin: true}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
}

func TestConsumptionDeleteRestoresStock(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	sub := seedSubscriber(t, db, "ABN00001")
	prod := seedProduct(t, db, "PRD00001", "100", 10)
	svc := NewConsumptionService(db)

	e, err := svc.Create(ctx, CreateConsumptionInput{SubscriberID: sub.ID, ProductID: prod.ID, Quantite: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, e.ID, "test", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var reloaded models.Product
	db.First(&reloaded, prod.ID)
	if reloaded.Stock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", reloaded.Stock)
	}
	var entreeCount int64
	db.Model(&models.StockMovement{}).Where("type_mouvement = ?", models.MouvementEntree).Count(&entreeCount)
	if entreeCount != 1 {
		t.Fatalf("expected one compensating entree movement, got %d", entreeCount)
	}
}
