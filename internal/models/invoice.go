package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoicing models
//
// MontantTotal is fixed at creation from the linked consumption entries.
// The paid amount and the settlement status are NOT stored: both are derived
// from the payments on every read so they can never drift from the payment
// rows (see services.ComputeRemainingBalance).
type Invoice struct {
	ID           uint            `gorm:"primaryKey"`
	Numero       string          `gorm:"size:30;unique;not null;index"` // FAC-YYYYMM-NNNN
	SubscriberID uint            `gorm:"not null;index"`
	Subscriber   Subscriber      `gorm:"foreignKey:SubscriberID"`
	Entries      []Consumption   `gorm:"foreignKey:InvoiceID"`
	Payments     []Payment       `gorm:"foreignKey:InvoiceID"`
	MontantTotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DateEmission time.Time       `gorm:"not null;index"`
	DateEcheance time.Time
	Note         string
	CreatedByID  uint
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
