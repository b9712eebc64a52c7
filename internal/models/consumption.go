package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Consumption is one sale/usage record for a subscriber. InvoiceID is null
// while the entry is unbilled; once linked to an invoice the entry is
// immutable and excluded from any future invoice-creation selection.
type Consumption struct {
	ID           uint            `gorm:"primaryKey"`
	SubscriberID uint            `gorm:"not null;index"`
	Subscriber   Subscriber      `gorm:"foreignKey:SubscriberID"`
	ProductID    uint            `gorm:"not null;index"`
	Product      Product         `gorm:"foreignKey:ProductID"`
	Quantite     int             `gorm:"not null"`
	PrixUnitaire decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	MontantTotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Date         time.Time       `gorm:"not null;index"`
	InvoiceID    *uint           `gorm:"index"`
	Note         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Facturee reports whether the entry is already linked to an invoice.
func (c *Consumption) Facturee() bool { return c.InvoiceID != nil }
