package models

import "time"

// Stock movement types
const (
	MouvementEntree     = "entree"
	MouvementSortie     = "sortie"
	MouvementAjustement = "ajustement"
)

// StockMovement records every change to a product's stock, with the stock
// level before and after so the history can be audited.
type StockMovement struct {
	ID            uint      `gorm:"primaryKey"`
	ProductID     uint      `gorm:"not null;index"`
	Product       Product   `gorm:"foreignKey:ProductID"`
	TypeMouvement string    `gorm:"not null;index"` // entree, sortie, ajustement
	Quantite      int       `gorm:"not null"`
	StockAvant    int       `gorm:"not null"`
	StockApres    int       `gorm:"not null"`
	Utilisateur   string
	Commentaire   string
	Reference     string    `gorm:"index"`
	Date          time.Time `gorm:"not null;index"`
	CreatedAt     time.Time
}
