package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/diewo77/cave-gestion/internal/models"
)

func TestStockEntreeSortieAjustement(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	prod := seedProduct(t, db, "PRD00001", "100", 10)
	svc := NewStockService(db)

	mv, err := svc.Entree(ctx, MovementInput{ProductID: prod.ID, Quantite: 5, Utilisateur: "admin"})
	if err != nil {
		t.Fatalf("entree: %v", err)
	}
	if mv.StockAvant != 10 || mv.StockApres != 15 {
		t.Fatalf("bad entree %+v", mv)
	}
	if !strings.HasPrefix(mv.Reference, "ENT-") {
		t.Fatalf("bad reference %s", mv.Reference)
	}

	mv, err = svc.Sortie(ctx, MovementInput{ProductID: prod.ID, Quantite: 3, Commentaire: "casse"})
	if err != nil {
		t.Fatalf("sortie: %v", err)
	}
	if mv.StockApres != 12 || mv.Commentaire != "casse" {
		t.Fatalf("bad sortie %+v", mv)
	}

	mv, err = svc.Ajustement(ctx, MovementInput{ProductID: prod.ID, Quantite: -2})
	if err != nil {
		t.Fatalf("ajustement: %v", err)
	}
	if mv.StockApres != 10 || mv.Quantite != 2 {
		t.Fatalf("bad ajustement %+v", mv)
	}

	var reloaded models.Product
	db.First(&reloaded, prod.ID)
	if reloaded.Stock != 10 {
		t.Fatalf("expected stock 10, got %d", reloaded.Stock)
	}
}

func TestStockSortieBelowZeroRefused(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	prod := seedProduct(t, db, "PRD00001", "100", 2)
	svc := NewStockService(db)

	if _, err := svc.Sortie(ctx, MovementInput{ProductID: prod.ID, Quantite: 3}); !errors.Is(err, ErrStockInsuffisant) {
		t.Fatalf("expected stock error, got %v", err)
	}
	if _, err := svc.Sortie(ctx, MovementInput{ProductID: prod.ID, Quantite: 0}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Ajustement(ctx, MovementInput{ProductID: prod.ID, Quantite: 0}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStockAlertsListsCriticalProducts(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	low := seedProduct(t, db, "PRD00001", "100", 2)    // below alerte (5)
	seedProduct(t, db, "PRD00002", "100", 50)          // healthy
	inactive := seedProduct(t, db, "PRD00003", "100", 0)
	db.Model(inactive).Update("actif", false)

	products, err := NewStockService(db).Alerts(ctx)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(products) != 1 || products[0].ID != low.ID {
		t.Fatalf("expected only the low-stock active product, got %d", len(products))
	}
}

func TestStockValue(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	p1 := seedProduct(t, db, "PRD00001", "150", 10)
	db.Model(p1).Update("prix_achat", d("100"))
	p2 := seedProduct(t, db, "PRD00002", "20", 5)
	db.Model(p2).Update("prix_achat", d("10"))

	v, err := NewStockService(db).Value(ctx)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if !v.ValeurAchat.Equal(d("1050")) { // 10×100 + 5×10
		t.Fatalf("valeur_achat: %s", v.ValeurAchat)
	}
	if !v.ValeurVente.Equal(d("1600")) { // 10×150 + 5×20
		t.Fatalf("valeur_vente: %s", v.ValeurVente)
	}
	if !v.MargePotentielle.Equal(d("550")) {
		t.Fatalf("marge: %s", v.MargePotentielle)
	}
	if v.TotalProduits != 2 || v.TotalItems != 15 {
		t.Fatalf("counts: %d/%d", v.TotalProduits, v.TotalItems)
	}
}

func TestStockMovementsPagination(t *testing.T) {
	db := setupTestDB(t, t.Name())
	ctx := context.Background()
	prod := seedProduct(t, db, "PRD00001", "100", 0)
	svc := NewStockService(db)

	for i := 0; i < 5; i++ {
		if _, err := svc.Entree(ctx, MovementInput{ProductID: prod.ID, Quantite: 1}); err != nil {
			t.Fatalf("entree: %v", err)
		}
	}
	movements, total, err := svc.Movements(ctx, MovementFilter{ProductID: prod.ID, Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if total != 5 || len(movements) != 2 {
		t.Fatalf("expected total 5 page of 2, got %d/%d", total, len(movements))
	}
	filtered, _, err := svc.Movements(ctx, MovementFilter{TypeMouvement: models.MouvementSortie})
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected no sorties, got %d", len(filtered))
	}
}
