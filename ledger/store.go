/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the boundary between the engine and the database. The transaction
  table is append-mostly: rows are inserted and only their ledger-state
  fields (status, hidden flag, reversal/deletion audit stamps) ever change
  afterwards. Economic fields have no update path at all.

KEY INTERFACES:
  Store:    transaction persistence plus the scope-shaped read queries the
            simulator and the LIFO guard need
  TxStore:  Store with an atomic WithTx wrapper; every mutating engine
            operation runs inside one
  Registry: account / entity records, including the lazily created
            Outside and Remittance singletons

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite, production shape
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Transaction persistence
// =============================================================================

type Store interface {
	// Append persists a row. The only way economic data enters the ledger.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists several rows atomically (a cross-currency parent
	// with its bridge legs, or a batch of reversal rows).
	AppendBatch(ctx context.Context, txs []Transaction) error

	Get(ctx context.Context, id TransactionID) (Transaction, error)

	// ByGroup returns the non-deleted members of a transfer group,
	// including hidden bridge legs, ordered by PostedAt.
	ByGroup(ctx context.Context, group GroupID) ([]Transaction, error)

	// ChildLegs returns the non-deleted hidden legs whose ParentID is the
	// given row.
	ChildLegs(ctx context.Context, parent TransactionID) ([]Transaction, error)

	// VisibleBefore returns visible rows touching the scope with date
	// strictly before cutoff, ordered by (date, posted_at, id).
	VisibleBefore(ctx context.Context, user UserID, scope Scope, cutoff Date) ([]Transaction, error)

	// VisibleSince returns visible rows touching the scope with
	// date >= start, ordered by (date, posted_at, id).
	VisibleSince(ctx context.Context, user UserID, scope Scope, start Date) ([]Transaction, error)

	// VisibleForScope returns the scope's full visible history.
	VisibleForScope(ctx context.Context, user UserID, scope Scope) ([]Transaction, error)

	// ListVisible returns the user's visible rows; ListAll is the audit
	// view over the unfiltered set. Both ordered by (date, posted_at, id).
	ListVisible(ctx context.Context, user UserID) ([]Transaction, error)
	ListAll(ctx context.Context, user UserID) ([]Transaction, error)

	// MaxSeq returns the highest SeqAccount over non-deleted,
	// non-reversal rows touching the account, or 0.
	MaxSeq(ctx context.Context, user UserID, account AccountID) (int64, error)

	// NewerThan returns non-deleted, non-reversal rows on the account with
	// SeqAccount > seq, most recent first, capped at limit.
	NewerThan(ctx context.Context, user UserID, account AccountID, seq int64, limit int) ([]Transaction, error)

	// Ledger-state mutations. These touch ONLY the state fields; economic
	// fields are immutable once appended.
	MarkReversed(ctx context.Context, id TransactionID, by UserID, at time.Time) error
	MarkDeleted(ctx context.Context, id TransactionID, by UserID, at time.Time) error
	SetHidden(ctx context.Context, ids []TransactionID, hidden bool) error

	// Restore returns a soft-deleted row to posted and clears its
	// reversal/deletion audit stamps.
	Restore(ctx context.Context, id TransactionID) error
}

// TxStore wraps Store with request-scoped atomicity. If fn returns an
// error the whole unit rolls back; there is no partial state and no retry
// path - contention blocks until the holder commits or rolls back.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// REGISTRY - Accounts and entities
// =============================================================================

type Registry interface {
	CreateAccount(ctx context.Context, a Account) error
	Account(ctx context.Context, id AccountID) (Account, error)
	ListAccounts(ctx context.Context, user UserID) ([]Account, error)

	CreateEntity(ctx context.Context, e Entity) error
	Entity(ctx context.Context, id EntityID) (Entity, error)
	ListEntities(ctx context.Context, user UserID) ([]Entity, error)

	// The synthetic singletons, created lazily and idempotently per user,
	// looked up by kind.
	EnsureOutsideAccount(ctx context.Context, user UserID) (Account, error)
	EnsureOutsideEntity(ctx context.Context, user UserID) (Entity, error)
	EnsureRemittanceAccount(ctx context.Context, user UserID) (Account, error)
	EnsureRemittanceEntity(ctx context.Context, user UserID) (Entity, error)
}
