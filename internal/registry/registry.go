// Package registry maps the service's well-known account roles to
// concrete ledger accounts and resolves caller-supplied account
// references against them.
package registry

import (
	"fmt"

	"notegate/go-daemon/internal/fault"
	"notegate/go-daemon/internal/ledger"
)

type Role string

const (
	RoleBuyer        Role = "buyer"
	RoleSeller       Role = "seller"
	RoleEscrowHolder Role = "escrow-holder"
	RoleFaucet       Role = "faucet"
)

func knownRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleBuyer, RoleSeller, RoleEscrowHolder, RoleFaucet:
		return Role(s), true
	default:
		return "", false
	}
}

// Ref is a resolved account reference: either a role or a literal
// account id, never both. The zero value is invalid; construct refs
// with ByRole, ByID or Parse.
type Ref struct {
	role Role
	id   ledger.AccountID
}

func ByRole(role Role) Ref { return Ref{role: role} }

func ByID(id ledger.AccountID) Ref { return Ref{id: id} }

// Parse turns a caller-supplied string into a Ref. Role names win over
// identifiers, so a role name is never decoded as hex. Anything that is
// not a role must be a well-formed account id.
func Parse(s string) (Ref, error) {
	if role, ok := knownRole(s); ok {
		return ByRole(role), nil
	}
	id, err := ledger.ParseAccountID(s)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q: %v", fault.ErrDecode, s, err)
	}
	return ByID(id), nil
}

func (r Ref) String() string {
	if r.role != "" {
		return string(r.role)
	}
	return r.id.String()
}

// Registry records which ledger account holds each role. It is owned by
// the actor worker and is not safe for concurrent use.
type Registry struct {
	roles map[Role]ledger.AccountID
}

func New() *Registry {
	return &Registry{roles: make(map[Role]ledger.AccountID)}
}

// SetRole binds a role to an account id, replacing any previous
// binding.
func (g *Registry) SetRole(role Role, id ledger.AccountID) {
	g.roles[role] = id
}

// RoleID returns the account bound to a role.
func (g *Registry) RoleID(role Role) (ledger.AccountID, error) {
	id, ok := g.roles[role]
	if !ok {
		return ledger.AccountID{}, fmt.Errorf("%w: %s", fault.ErrNotInitialized, role)
	}
	return id, nil
}

// RoleOf reports which role, if any, an account id is bound to.
func (g *Registry) RoleOf(id ledger.AccountID) (Role, bool) {
	for role, bound := range g.roles {
		if bound == id {
			return role, true
		}
	}
	return "", false
}

// Resolve maps a Ref to the account id it names. Role refs fail with
// ErrNotInitialized until bootstrap has bound the role.
func (g *Registry) Resolve(ref Ref) (ledger.AccountID, error) {
	if ref.role != "" {
		return g.RoleID(ref.role)
	}
	if ref.id.IsZero() {
		return ledger.AccountID{}, fmt.Errorf("%w: empty reference", fault.ErrUnknownAccount)
	}
	return ref.id, nil
}

// ResolveString parses and resolves in one step.
func (g *Registry) ResolveString(s string) (ledger.AccountID, error) {
	ref, err := Parse(s)
	if err != nil {
		return ledger.AccountID{}, err
	}
	return g.Resolve(ref)
}
