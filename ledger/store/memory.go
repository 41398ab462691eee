/*
Package store provides the in-memory ledger store, used by tests and the
dev server.

Memory implements both ledger.TxStore and ledger.Registry. WithTx is
simulated with a full snapshot taken up front and restored if the unit
fails. Transaction state and the account/entity registry sit behind
separate locks: registry lookups happen inside WithTx units, and the
synthetic singletons are idempotent, so registry writes do not need to
roll back with the unit.
*/
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenfin/ledger-engine/ledger"
)

type Memory struct {
	mu  sync.RWMutex
	txs map[ledger.TransactionID]ledger.Transaction

	regMu    sync.RWMutex
	accounts map[ledger.AccountID]ledger.Account
	entities map[ledger.EntityID]ledger.Entity
}

func NewMemory() *Memory {
	return &Memory{
		txs:      make(map[ledger.TransactionID]ledger.Transaction),
		accounts: make(map[ledger.AccountID]ledger.Account),
		entities: make(map[ledger.EntityID]ledger.Entity),
	}
}

var _ ledger.TxStore = (*Memory)(nil)
var _ ledger.Registry = (*Memory)(nil)

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) Append(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) AppendBatch(_ context.Context, txs []ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if err := m.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(tx ledger.Transaction) error {
	m.txs[tx.ID] = tx
	return nil
}

func (m *Memory) Get(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id ledger.TransactionID) (ledger.Transaction, error) {
	tx, ok := m.txs[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	return tx, nil
}

func (m *Memory) ByGroup(_ context.Context, group ledger.GroupID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(func(t ledger.Transaction) bool {
		return t.GroupID == group && t.Status != ledger.StatusDeleted
	}), nil
}

func (m *Memory) ChildLegs(_ context.Context, parent ledger.TransactionID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(func(t ledger.Transaction) bool {
		return t.ParentID == parent && t.Status != ledger.StatusDeleted
	}), nil
}

func (m *Memory) VisibleBefore(_ context.Context, user ledger.UserID, scope ledger.Scope, cutoff ledger.Date) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && t.Visible() && scope.Touches(t) && t.Date.Before(cutoff)
	}), nil
}

func (m *Memory) VisibleSince(_ context.Context, user ledger.UserID, scope ledger.Scope, start ledger.Date) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && t.Visible() && scope.Touches(t) && !t.Date.Before(start)
	}), nil
}

func (m *Memory) VisibleForScope(_ context.Context, user ledger.UserID, scope ledger.Scope) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && t.Visible() && scope.Touches(t)
	}), nil
}

func (m *Memory) ListVisible(_ context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && t.Visible()
	}), nil
}

func (m *Memory) ListAll(_ context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user
	}), nil
}

func (m *Memory) MaxSeq(_ context.Context, user ledger.UserID, account ledger.AccountID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var max int64
	for _, t := range m.txs {
		if t.UserID != user || t.IsReversal || t.Status == ledger.StatusDeleted {
			continue
		}
		if touchesAccount(t, account) && t.SeqAccount > max {
			max = t.SeqAccount
		}
	}
	return max, nil
}

func (m *Memory) NewerThan(_ context.Context, user ledger.UserID, account ledger.AccountID, seq int64, limit int) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && !t.IsReversal && t.Status != ledger.StatusDeleted &&
			touchesAccount(t, account) && t.SeqAccount > seq
	})
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SeqAccount > rows[j].SeqAccount
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *Memory) MarkReversed(_ context.Context, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return ledger.ErrNotFound
	}
	tx.Status = ledger.StatusReversed
	tx.ReversedAt = at
	tx.ReversedBy = by
	m.txs[id] = tx
	return nil
}

func (m *Memory) MarkDeleted(_ context.Context, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return ledger.ErrNotFound
	}
	tx.Status = ledger.StatusDeleted
	tx.DeletedAt = at
	tx.DeletedBy = by
	m.txs[id] = tx
	return nil
}

func (m *Memory) Restore(_ context.Context, id ledger.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return ledger.ErrNotFound
	}
	tx.Status = ledger.StatusPosted
	tx.ReversedAt = time.Time{}
	tx.ReversedBy = ""
	tx.DeletedAt = time.Time{}
	tx.DeletedBy = ""
	m.txs[id] = tx
	return nil
}

func (m *Memory) SetHidden(_ context.Context, ids []ledger.TransactionID, hidden bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		tx, ok := m.txs[id]
		if !ok {
			return ledger.ErrNotFound
		}
		tx.Hidden = hidden
		m.txs[id] = tx
	}
	return nil
}

// selectLocked filters and returns rows ordered by (date, posted_at, id),
// the canonical replay order.
func (m *Memory) selectLocked(keep func(ledger.Transaction) bool) []ledger.Transaction {
	var out []ledger.Transaction
	for _, t := range m.txs {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.PostedAt.Equal(b.PostedAt) {
			return a.PostedAt.Before(b.PostedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func touchesAccount(t ledger.Transaction, account ledger.AccountID) bool {
	return t.AccountSource == account || t.AccountDestination == account
}

// =============================================================================
// TRANSACTIONAL WRAPPER
// =============================================================================

// WithTx simulates atomicity with a snapshot + rollback on error. The lock
// is held for the whole unit, so units serialize.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.txs = snapshot
		return err
	}
	return nil
}

func (m *Memory) snapshotLocked() map[ledger.TransactionID]ledger.Transaction {
	cp := make(map[ledger.TransactionID]ledger.Transaction, len(m.txs))
	for k, v := range m.txs {
		cp[k] = v
	}
	return cp
}

// txMemoryView is the Store handed to WithTx callbacks. The parent's lock
// is already held, so it delegates to the locked internals.
type txMemoryView struct {
	parent *Memory
}

var _ ledger.Store = (*txMemoryView)(nil)

func (tv *txMemoryView) Append(_ context.Context, tx ledger.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) AppendBatch(_ context.Context, txs []ledger.Transaction) error {
	for _, tx := range txs {
		if err := tv.parent.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Get(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) ByGroup(_ context.Context, group ledger.GroupID) ([]ledger.Transaction, error) {
	return tv.parent.selectLocked(func(t ledger.Transaction) bool {
		return t.GroupID == group && t.Status != ledger.StatusDeleted
	}), nil
}

func (tv *txMemoryView) ChildLegs(_ context.Context, parent ledger.TransactionID) ([]ledger.Transaction, error) {
	return tv.parent.selectLocked(func(t ledger.Transaction) bool {
		return t.ParentID == parent && t.Status != ledger.StatusDeleted
	}), nil
}

func (tv *txMemoryView) VisibleBefore(_ context.Context, user ledger.UserID, scope ledger.Scope, cutoff ledger.Date) ([]ledger.Transaction, error) {
	return tv.parent.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && t.Visible() && scope.Touches(t) && t.Date.Before(cutoff)
	}), nil
}

func (tv *txMemoryView) VisibleSince(_ context.Context, user ledger.UserID, scope ledger.Scope, start ledger.Date) ([]ledger.Transaction, error) {
	return tv.parent.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && t.Visible() && scope.Touches(t) && !t.Date.Before(start)
	}), nil
}

func (tv *txMemoryView) VisibleForScope(_ context.Context, user ledger.UserID, scope ledger.Scope) ([]ledger.Transaction, error) {
	return tv.parent.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && t.Visible() && scope.Touches(t)
	}), nil
}

func (tv *txMemoryView) ListVisible(_ context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	return tv.parent.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && t.Visible()
	}), nil
}

func (tv *txMemoryView) ListAll(_ context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	return tv.parent.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user
	}), nil
}

func (tv *txMemoryView) MaxSeq(_ context.Context, user ledger.UserID, account ledger.AccountID) (int64, error) {
	var max int64
	for _, t := range tv.parent.txs {
		if t.UserID != user || t.IsReversal || t.Status == ledger.StatusDeleted {
			continue
		}
		if touchesAccount(t, account) && t.SeqAccount > max {
			max = t.SeqAccount
		}
	}
	return max, nil
}

func (tv *txMemoryView) NewerThan(_ context.Context, user ledger.UserID, account ledger.AccountID, seq int64, limit int) ([]ledger.Transaction, error) {
	rows := tv.parent.selectLocked(func(t ledger.Transaction) bool {
		return t.UserID == user && !t.IsReversal && t.Status != ledger.StatusDeleted &&
			touchesAccount(t, account) && t.SeqAccount > seq
	})
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SeqAccount > rows[j].SeqAccount
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (tv *txMemoryView) MarkReversed(_ context.Context, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	tx, ok := tv.parent.txs[id]
	if !ok {
		return ledger.ErrNotFound
	}
	tx.Status = ledger.StatusReversed
	tx.ReversedAt = at
	tx.ReversedBy = by
	tv.parent.txs[id] = tx
	return nil
}

func (tv *txMemoryView) MarkDeleted(_ context.Context, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	tx, ok := tv.parent.txs[id]
	if !ok {
		return ledger.ErrNotFound
	}
	tx.Status = ledger.StatusDeleted
	tx.DeletedAt = at
	tx.DeletedBy = by
	tv.parent.txs[id] = tx
	return nil
}

func (tv *txMemoryView) Restore(_ context.Context, id ledger.TransactionID) error {
	tx, ok := tv.parent.txs[id]
	if !ok {
		return ledger.ErrNotFound
	}
	tx.Status = ledger.StatusPosted
	tx.ReversedAt = time.Time{}
	tx.ReversedBy = ""
	tx.DeletedAt = time.Time{}
	tx.DeletedBy = ""
	tv.parent.txs[id] = tx
	return nil
}

func (tv *txMemoryView) SetHidden(_ context.Context, ids []ledger.TransactionID, hidden bool) error {
	for _, id := range ids {
		tx, ok := tv.parent.txs[id]
		if !ok {
			return ledger.ErrNotFound
		}
		tx.Hidden = hidden
		tv.parent.txs[id] = tx
	}
	return nil
}

// =============================================================================
// REGISTRY
// =============================================================================

func (m *Memory) CreateAccount(_ context.Context, a ledger.Account) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) Account(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListAccounts(_ context.Context, user ledger.UserID) ([]ledger.Account, error) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	var out []ledger.Account
	for _, a := range m.accounts {
		if a.UserID == user {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CreateEntity(_ context.Context, e ledger.Entity) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	m.entities[e.ID] = e
	return nil
}

func (m *Memory) Entity(_ context.Context, id ledger.EntityID) (ledger.Entity, error) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return ledger.Entity{}, ledger.ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListEntities(_ context.Context, user ledger.UserID) ([]ledger.Entity, error) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	var out []ledger.Entity
	for _, e := range m.entities {
		if e.UserID == user {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) EnsureOutsideAccount(_ context.Context, user ledger.UserID) (ledger.Account, error) {
	return m.ensureAccount(user, ledger.AccountOutside, "Outside")
}

func (m *Memory) EnsureRemittanceAccount(_ context.Context, user ledger.UserID) (ledger.Account, error) {
	return m.ensureAccount(user, ledger.AccountRemittance, "Remittance")
}

func (m *Memory) ensureAccount(user ledger.UserID, kind ledger.AccountKind, name string) (ledger.Account, error) {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == user && a.Kind == kind {
			return a, nil
		}
	}
	a := ledger.Account{
		ID:     ledger.NewAccountID(),
		UserID: user,
		Name:   name,
		Kind:   kind,
	}
	m.accounts[a.ID] = a
	return a, nil
}

func (m *Memory) EnsureOutsideEntity(_ context.Context, user ledger.UserID) (ledger.Entity, error) {
	return m.ensureEntity(user, ledger.EntityOutsideKind, "Outside")
}

func (m *Memory) EnsureRemittanceEntity(_ context.Context, user ledger.UserID) (ledger.Entity, error) {
	return m.ensureEntity(user, ledger.EntityRemittanceBridged, "Remittance")
}

func (m *Memory) ensureEntity(user ledger.UserID, kind ledger.EntityKind, name string) (ledger.Entity, error) {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	for _, e := range m.entities {
		if e.UserID == user && e.Kind == kind {
			return e, nil
		}
	}
	e := ledger.Entity{
		ID:     ledger.NewEntityID(),
		UserID: user,
		Name:   name,
		Kind:   kind,
	}
	m.entities[e.ID] = e
	return e, nil
}
