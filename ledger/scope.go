package ledger

import "fmt"

// =============================================================================
// SCOPE - The granularity a balance is simulated at
// =============================================================================

type ScopeKind int

const (
	// ScopeAccount covers one account across all entities. Always enforced.
	ScopeAccount ScopeKind = iota
	// ScopeEntity covers one entity across all accounts. Stricter than the
	// account check; enforced only when configured.
	ScopeEntity
	// ScopePocket covers one specific (account, entity) pair; the tightest
	// and most commonly enforced scope.
	ScopePocket
)

type Scope struct {
	Kind    ScopeKind
	Account AccountID
	Entity  EntityID
}

func AccountScope(id AccountID) Scope { return Scope{Kind: ScopeAccount, Account: id} }
func EntityScope(id EntityID) Scope   { return Scope{Kind: ScopeEntity, Entity: id} }
func PocketScope(account AccountID, entity EntityID) Scope {
	return Scope{Kind: ScopePocket, Account: account, Entity: entity}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeAccount:
		return fmt.Sprintf("account %s", s.Account)
	case ScopeEntity:
		return fmt.Sprintf("entity %s", s.Entity)
	default:
		return fmt.Sprintf("pocket (%s, %s)", s.Account, s.Entity)
	}
}

// OnDestination reports whether the transaction's destination side falls
// inside this scope.
func (s Scope) OnDestination(t Transaction) bool {
	switch s.Kind {
	case ScopeAccount:
		return t.AccountDestination == s.Account
	case ScopeEntity:
		return t.EntityDestination == s.Entity
	default:
		return t.AccountDestination == s.Account && t.EntityDestination == s.Entity
	}
}

// OnSource reports whether the transaction's source side falls inside this
// scope.
func (s Scope) OnSource(t Transaction) bool {
	switch s.Kind {
	case ScopeAccount:
		return t.AccountSource == s.Account
	case ScopeEntity:
		return t.EntitySource == s.Entity
	default:
		return t.AccountSource == s.Account && t.EntitySource == s.Entity
	}
}

// Touches reports whether the transaction affects this scope on either side.
func (s Scope) Touches(t Transaction) bool {
	return s.OnSource(t) || s.OnDestination(t)
}
