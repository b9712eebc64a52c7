// Package gate holds the authorization checkpoint the API handlers call
// before touching a resource. One Policy is registered per business domain
// (abonnes, produits, factures, ...); internal/policy wires them up from the
// user's role and permission list. The package itself stays free of domain
// models so policies decide everything.
package gate

import "context"

// Gate is the central authorization checkpoint.
// U is the user/subject type (must be comparable for zero-value check).
type Gate[U comparable] struct {
	policies map[string]Policy[U]
}

// NewGate creates an empty Gate ready to register policies.
func NewGate[U comparable]() *Gate[U] {
	return &Gate[U]{policies: make(map[string]Policy[U])}
}

// Register adds a policy for a given resource domain (e.g., "factures").
// Overwrites any existing policy for that domain.
func (g *Gate[U]) Register(domain string, p Policy[U]) {
	g.policies[domain] = p
}

// Authorize checks authorization and returns an error if denied.
// Returns ErrUnauthorized for zero-value user or denied action;
// returns ErrNoPolicyDefined if domain has no registered policy.
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, domain string, resource any) error {
	var zero U
	if user == zero {
		return ErrUnauthorized
	}
	p, ok := g.policies[domain]
	if !ok {
		return ErrNoPolicyDefined
	}
	if !p.Can(ctx, user, action, resource) {
		return ErrUnauthorized
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate[U]) Can(ctx context.Context, user U, action Action, domain string, resource any) bool {
	return g.Authorize(ctx, user, action, domain, resource) == nil
}
