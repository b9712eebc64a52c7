package services

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/models"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Category{}, &models.Supplier{},
		&models.Subscriber{}, &models.Product{}, &models.Invoice{},
		&models.Consumption{}, &models.Payment{}, &models.StockMovement{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedSubscriber(t *testing.T, db *gorm.DB, numero string) *models.Subscriber {
	t.Helper()
	s := models.Subscriber{Numero: numero, Nom: "Diop", Prenom: "Awa", Telephone: "770000000", Actif: true}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("seed subscriber: %v", err)
	}
	return &s
}

func seedProduct(t *testing.T, db *gorm.DB, code string, prix string, stock int) *models.Product {
	t.Helper()
	pv, _ := decimal.NewFromString(prix)
	p := models.Product{Code: code, Nom: "Produit " + code, PrixVente: pv, Stock: stock, StockAlerte: 5, Unite: "bouteille", Actif: true}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return &p
}
