package services

import (
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/models"
)

// writeAudit appends a journal entry inside the caller's transaction.
func writeAudit(tx *gorm.DB, userID uint, entityType string, entityID uint, action, detail string) error {
	return tx.Create(&models.AuditLog{
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Detail:     detail,
		Statut:     "succes",
	}).Error
}
