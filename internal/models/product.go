package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product domain models
type Category struct {
	ID          uint   `gorm:"primaryKey"`
	Nom         string `gorm:"not null;unique"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Supplier struct {
	ID        uint   `gorm:"primaryKey"`
	Nom       string `gorm:"not null;index"`
	Telephone string
	Adresse   string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID          uint            `gorm:"primaryKey"`
	Code        string          `gorm:"size:20;unique;not null;index"` // ex: PRD00017
	Nom         string          `gorm:"not null;index"`
	Type        string          // vin, bière, sucrerie...
	PrixAchat   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	PrixVente   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Stock       int             `gorm:"not null;default:0"`
	StockAlerte int             `gorm:"not null;default:10"`
	Unite       string          `gorm:"not null;default:'unité'"`
	Actif       bool            `gorm:"not null;default:true"`
	CategoryID  *uint           `gorm:"index"`
	Category    *Category       `gorm:"foreignKey:CategoryID"`
	SupplierID  *uint           `gorm:"index"`
	Supplier    *Supplier       `gorm:"foreignKey:SupplierID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Marge is the absolute margin (prix de vente - prix d'achat).
func (p *Product) Marge() decimal.Decimal {
	return p.PrixVente.Sub(p.PrixAchat)
}

// MargePourcentage returns the margin as a percentage of the purchase price,
// zero when the purchase price is zero.
func (p *Product) MargePourcentage() decimal.Decimal {
	if p.PrixAchat.IsZero() {
		return decimal.Zero
	}
	return p.Marge().Div(p.PrixAchat).Mul(decimal.NewFromInt(100)).Round(2)
}

// StockCritique reports whether the stock has reached the alert threshold.
func (p *Product) StockCritique() bool {
	return p.Stock <= p.StockAlerte
}
