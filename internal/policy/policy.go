// Package policy wires the generic gate to the application's users: one
// policy per functional domain, mirroring the per-domain permission field on
// User. Admins can do everything; deletes are admin-only everywhere.
package policy

import (
	"context"

	"github.com/diewo77/cave-gestion/internal/gate"
	"github.com/diewo77/cave-gestion/internal/models"
)

// Functional domains a user can be granted.
const (
	DomainAbonnes       = "abonnes"
	DomainProduits      = "produits"
	DomainConsommations = "consommations"
	DomainFactures      = "factures"
	DomainPaiements     = "paiements"
	DomainStock         = "stock"
)

// New builds the application gate with one DomainPolicy per domain.
func New() *gate.Gate[*models.User] {
	g := gate.NewGate[*models.User]()
	for _, d := range []string{
		DomainAbonnes, DomainProduits, DomainConsommations,
		DomainFactures, DomainPaiements, DomainStock,
	} {
		g.Register(d, &DomainPolicy{Domain: d})
	}
	return g
}

// DomainPolicy grants view/create/update to users holding the domain in
// their permission list, and everything to admins.
type DomainPolicy struct {
	Domain string
}

func (p *DomainPolicy) Can(_ context.Context, u *models.User, action gate.Action, _ any) bool {
	if u == nil || !u.Actif {
		return false
	}
	if u.IsAdmin() {
		return true
	}
	if action == gate.ActionDelete {
		return false
	}
	for _, perm := range u.PermissionList() {
		if perm == p.Domain {
			return true
		}
	}
	return false
}
