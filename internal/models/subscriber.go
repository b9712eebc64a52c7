package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Subscriber (abonné) is a billable customer identified by a unique
// subscriber number (ex: ABN00042). Deactivated instead of deleted.
type Subscriber struct {
	ID              uint            `gorm:"primaryKey"`
	Numero          string          `gorm:"size:20;unique;not null;index"`
	Nom             string          `gorm:"not null;index"`
	Prenom          string          `gorm:"index"`
	Telephone       string          `gorm:"not null"`
	Email           string
	Adresse         string
	LimiteCredit    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Actif           bool            `gorm:"not null;default:true"`
	DateInscription time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NomComplet joins Prenom and Nom, skipping empty parts.
func (s *Subscriber) NomComplet() string {
	return strings.TrimSpace(strings.TrimSpace(s.Prenom) + " " + strings.TrimSpace(s.Nom))
}
