package models

import (
	"strings"
	"time"
)

const (
	RoleAdmin   = "admin"
	RoleVendeur = "vendeur"
)

// User & auth related models
type User struct {
	ID          uint   `gorm:"primaryKey"`
	Username    string `gorm:"unique;not null;index"`
	Password    string `gorm:"not null"` // hashé (bcrypt)
	NomComplet  string
	Role        string `gorm:"not null;default:'vendeur'"` // admin, vendeur
	Permissions string // domaines autorisés, CSV (ex: "abonnes,factures,paiements")
	Actif       bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// PermissionList splits the CSV permission field.
func (u *User) PermissionList() []string {
	if strings.TrimSpace(u.Permissions) == "" {
		return nil
	}
	parts := strings.Split(u.Permissions, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
