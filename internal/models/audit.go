package models

import "time"

// Audit logging (journal des actions)
type AuditLog struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     uint   // qui a fait l'action
	EntityType string // ex: "Invoice", "Payment", "Consumption"
	EntityID   uint
	Action     string // ex: "create", "update", "delete"
	Detail     string
	Statut     string `gorm:"not null;default:'succes'"`
	CreatedAt  time.Time
}
