package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment tied to invoices. Created once; amount edits are admin-only and
// re-validated against the invoice balance by the payment service.
type Payment struct {
	ID           uint            `gorm:"primaryKey"`
	InvoiceID    uint            `gorm:"not null;index"`
	Montant      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Mode         string          `gorm:"not null"` // especes, mobile_money, cheque, carte, virement
	Reference    string
	RecuPar      string
	Note         string
	DatePaiement time.Time `gorm:"not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PaymentModes lists the accepted values for Payment.Mode with display labels.
func PaymentModes() []map[string]string {
	return []map[string]string{
		{"value": "especes", "label": "Espèces"},
		{"value": "mobile_money", "label": "Mobile Money"},
		{"value": "cheque", "label": "Chèque"},
		{"value": "carte", "label": "Carte bancaire"},
		{"value": "virement", "label": "Virement bancaire"},
	}
}

// ValidPaymentMode reports whether mode is one of the accepted values.
func ValidPaymentMode(mode string) bool {
	for _, m := range PaymentModes() {
		if m["value"] == mode {
			return true
		}
	}
	return false
}
