/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.TxStore and ledger.Registry on one database. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-MOSTLY ENFORCEMENT:
  Economic columns on the transactions table are written once by INSERT
  and never updated. The only UPDATE statements touch the ledger-state
  columns (status, hidden, reversal/deletion stamps); there is no DELETE
  statement at all.

KEY TABLES:
  transactions: the ledger rows, including hidden bridge legs and reversals
  accounts:     money-holding containers, plus the synthetic singletons
  entities:     budget pockets

INDEXES:
  - idx_tx_user_date: replay queries (hot path)
  - idx_tx_group / idx_tx_parent: unit expansion
  - idx_tx_seq: the LIFO guard's newest-row lookups
  - one synthetic account/entity per (user, kind), enforced by partial
    unique indexes

CONCURRENCY:
  WAL mode; a mutex serializes WithTx units and top-level writes. Registry
  reads stay outside the mutex so lookups issued from inside a unit do not
  self-deadlock; registry writes happen outside units (the engine ensures
  singletons before opening one).
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/cenfin/ledger-engine/ledger"
)

// Store implements ledger.TxStore and ledger.Registry using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	regMu sync.Mutex
}

var _ ledger.TxStore = (*Store)(nil)
var _ ledger.Registry = (*Store)(nil)

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL DEFAULT '',
		parent_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		posted_at TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		account_source TEXT NOT NULL DEFAULT '',
		account_destination TEXT NOT NULL DEFAULT '',
		entity_source TEXT NOT NULL DEFAULT '',
		entity_destination TEXT NOT NULL DEFAULT '',
		tx_type TEXT NOT NULL,
		source_role TEXT NOT NULL,
		destination_role TEXT NOT NULL,
		source_asset TEXT NOT NULL,
		destination_asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		destination_amount TEXT,
		currency TEXT NOT NULL,
		seq_account INTEGER NOT NULL DEFAULT 0,
		hidden BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'posted',
		is_reversal BOOLEAN NOT NULL DEFAULT FALSE,
		reversed_transaction TEXT NOT NULL DEFAULT '',
		reversed_at TEXT,
		reversed_by TEXT NOT NULL DEFAULT '',
		deleted_at TEXT,
		deleted_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_tx_user_date
		ON transactions(user_id, date, posted_at);
	CREATE INDEX IF NOT EXISTS idx_tx_group
		ON transactions(group_id) WHERE group_id != '';
	CREATE INDEX IF NOT EXISTS idx_tx_parent
		ON transactions(parent_id) WHERE parent_id != '';
	CREATE INDEX IF NOT EXISTS idx_tx_seq
		ON transactions(user_id, seq_account DESC)
		WHERE is_reversal = FALSE AND status != 'deleted';
	CREATE INDEX IF NOT EXISTS idx_tx_accounts
		ON transactions(account_source, account_destination);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		visible BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- One Outside and one Remittance account per user.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_singleton
		ON accounts(user_id, kind) WHERE kind IN ('outside', 'remittance');
	CREATE INDEX IF NOT EXISTS idx_accounts_user
		ON accounts(user_id);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'fund',
		visible BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_singleton
		ON entities(user_id, kind) WHERE kind IN ('outside', 'remittance');
	CREATE INDEX IF NOT EXISTS idx_entities_user
		ON entities(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so the same statements serve both
// the top-level store and the WithTx view.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTION STORE (ledger.Store interface)
// =============================================================================

const txColumns = `id, group_id, parent_id, user_id, date, posted_at, description,
	account_source, account_destination, entity_source, entity_destination,
	tx_type, source_role, destination_role, source_asset, destination_asset,
	amount, destination_amount, currency, seq_account,
	hidden, status, is_reversal,
	reversed_transaction, reversed_at, reversed_by, deleted_at, deleted_by`

func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTx(ctx, s.db, tx)
}

func (s *Store) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func appendTx(ctx context.Context, q querier, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions (` + txColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var destAmount any
	if tx.DestinationAmount != nil {
		destAmount = tx.DestinationAmount.String()
	}

	_, err := q.ExecContext(ctx, query,
		tx.ID,
		tx.GroupID,
		tx.ParentID,
		tx.UserID,
		tx.Date.String(),
		tx.PostedAt.UTC().Format(time.RFC3339Nano),
		tx.Description,
		tx.AccountSource,
		tx.AccountDestination,
		tx.EntitySource,
		tx.EntityDestination,
		tx.Type,
		tx.SourceRole,
		tx.DestinationRole,
		tx.SourceAsset,
		tx.DestinationAsset,
		tx.Amount.String(),
		destAmount,
		tx.Currency,
		tx.SeqAccount,
		tx.Hidden,
		tx.Status,
		tx.IsReversal,
		tx.ReversedTransaction,
		nullTime(tx.ReversedAt),
		tx.ReversedBy,
		nullTime(tx.DeletedAt),
		tx.DeletedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	return getTx(ctx, s.db, id)
}

func getTx(ctx context.Context, q querier, id ledger.TransactionID) (ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	return scanTransaction(rows)
}

func (s *Store) ByGroup(ctx context.Context, group ledger.GroupID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, s.db, `
		SELECT `+txColumns+` FROM transactions
		WHERE group_id = ? AND status != 'deleted'
		ORDER BY posted_at, id`, group)
}

func (s *Store) ChildLegs(ctx context.Context, parent ledger.TransactionID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, s.db, `
		SELECT `+txColumns+` FROM transactions
		WHERE parent_id = ? AND status != 'deleted'
		ORDER BY posted_at, id`, parent)
}

// scopeClause builds the WHERE fragment matching rows the scope touches.
func scopeClause(scope ledger.Scope) (string, []any) {
	switch scope.Kind {
	case ledger.ScopeAccount:
		return "(account_source = ? OR account_destination = ?)",
			[]any{scope.Account, scope.Account}
	case ledger.ScopeEntity:
		return "(entity_source = ? OR entity_destination = ?)",
			[]any{scope.Entity, scope.Entity}
	default:
		return "((account_source = ? AND entity_source = ?) OR (account_destination = ? AND entity_destination = ?))",
			[]any{scope.Account, scope.Entity, scope.Account, scope.Entity}
	}
}

const visibleClause = "hidden = FALSE AND is_reversal = FALSE AND status = 'posted'"

func (s *Store) VisibleBefore(ctx context.Context, user ledger.UserID, scope ledger.Scope, cutoff ledger.Date) ([]ledger.Transaction, error) {
	return visibleBefore(ctx, s.db, user, scope, cutoff)
}

func visibleBefore(ctx context.Context, q querier, user ledger.UserID, scope ledger.Scope, cutoff ledger.Date) ([]ledger.Transaction, error) {
	clause, args := scopeClause(scope)
	args = append([]any{user}, args...)
	args = append(args, cutoff.String())
	return queryTransactions(ctx, q, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? AND `+visibleClause+` AND `+clause+` AND date < ?
		ORDER BY date, posted_at, id`, args...)
}

func (s *Store) VisibleSince(ctx context.Context, user ledger.UserID, scope ledger.Scope, start ledger.Date) ([]ledger.Transaction, error) {
	return visibleSince(ctx, s.db, user, scope, start)
}

func visibleSince(ctx context.Context, q querier, user ledger.UserID, scope ledger.Scope, start ledger.Date) ([]ledger.Transaction, error) {
	clause, args := scopeClause(scope)
	args = append([]any{user}, args...)
	args = append(args, start.String())
	return queryTransactions(ctx, q, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? AND `+visibleClause+` AND `+clause+` AND date >= ?
		ORDER BY date, posted_at, id`, args...)
}

func (s *Store) VisibleForScope(ctx context.Context, user ledger.UserID, scope ledger.Scope) ([]ledger.Transaction, error) {
	return visibleForScope(ctx, s.db, user, scope)
}

func visibleForScope(ctx context.Context, q querier, user ledger.UserID, scope ledger.Scope) ([]ledger.Transaction, error) {
	clause, args := scopeClause(scope)
	args = append([]any{user}, args...)
	return queryTransactions(ctx, q, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? AND `+visibleClause+` AND `+clause+`
		ORDER BY date, posted_at, id`, args...)
}

func (s *Store) ListVisible(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, s.db, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? AND `+visibleClause+`
		ORDER BY date, posted_at, id`, user)
}

func (s *Store) ListAll(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, s.db, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ?
		ORDER BY date, posted_at, id`, user)
}

func (s *Store) MaxSeq(ctx context.Context, user ledger.UserID, account ledger.AccountID) (int64, error) {
	return maxSeq(ctx, s.db, user, account)
}

func maxSeq(ctx context.Context, q querier, user ledger.UserID, account ledger.AccountID) (int64, error) {
	var max sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(seq_account) FROM transactions
		WHERE user_id = ? AND is_reversal = FALSE AND status != 'deleted'
		  AND (account_source = ? OR account_destination = ?)`,
		user, account, account).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max.Int64, nil
}

func (s *Store) NewerThan(ctx context.Context, user ledger.UserID, account ledger.AccountID, seq int64, limit int) ([]ledger.Transaction, error) {
	return newerThan(ctx, s.db, user, account, seq, limit)
}

func newerThan(ctx context.Context, q querier, user ledger.UserID, account ledger.AccountID, seq int64, limit int) ([]ledger.Transaction, error) {
	query := `
		SELECT ` + txColumns + ` FROM transactions
		WHERE user_id = ? AND is_reversal = FALSE AND status != 'deleted'
		  AND (account_source = ? OR account_destination = ?)
		  AND seq_account > ?
		ORDER BY seq_account DESC, posted_at DESC`
	args := []any{user, account, account, seq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryTransactions(ctx, q, query, args...)
}

func (s *Store) MarkReversed(ctx context.Context, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markReversed(ctx, s.db, id, by, at)
}

func markReversed(ctx context.Context, q querier, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	return updateState(ctx, q, `
		UPDATE transactions SET status = 'reversed', reversed_at = ?, reversed_by = ?
		WHERE id = ?`, at.UTC().Format(time.RFC3339Nano), by, id)
}

func (s *Store) MarkDeleted(ctx context.Context, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markDeleted(ctx, s.db, id, by, at)
}

func markDeleted(ctx context.Context, q querier, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	return updateState(ctx, q, `
		UPDATE transactions SET status = 'deleted', deleted_at = ?, deleted_by = ?
		WHERE id = ?`, at.UTC().Format(time.RFC3339Nano), by, id)
}

func (s *Store) Restore(ctx context.Context, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return restore(ctx, s.db, id)
}

func restore(ctx context.Context, q querier, id ledger.TransactionID) error {
	return updateState(ctx, q, `
		UPDATE transactions
		SET status = 'posted', reversed_at = NULL, reversed_by = '', deleted_at = NULL, deleted_by = ''
		WHERE id = ?`, id)
}

func (s *Store) SetHidden(ctx context.Context, ids []ledger.TransactionID, hidden bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setHidden(ctx, s.db, ids, hidden)
}

func setHidden(ctx context.Context, q querier, ids []ledger.TransactionID, hidden bool) error {
	for _, id := range ids {
		if err := updateState(ctx, q, `UPDATE transactions SET hidden = ? WHERE id = ?`, hidden, id); err != nil {
			return err
		}
	}
	return nil
}

func updateState(ctx context.Context, q querier, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var tx ledger.Transaction
	var date, postedAt, amount string
	var destAmount, reversedAt, deletedAt sql.NullString

	err := rows.Scan(
		&tx.ID,
		&tx.GroupID,
		&tx.ParentID,
		&tx.UserID,
		&date,
		&postedAt,
		&tx.Description,
		&tx.AccountSource,
		&tx.AccountDestination,
		&tx.EntitySource,
		&tx.EntityDestination,
		&tx.Type,
		&tx.SourceRole,
		&tx.DestinationRole,
		&tx.SourceAsset,
		&tx.DestinationAsset,
		&amount,
		&destAmount,
		&tx.Currency,
		&tx.SeqAccount,
		&tx.Hidden,
		&tx.Status,
		&tx.IsReversal,
		&tx.ReversedTransaction,
		&reversedAt,
		&tx.ReversedBy,
		&deletedAt,
		&tx.DeletedBy,
	)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Date, err = ledger.ParseDate(date); err != nil {
		return ledger.Transaction{}, fmt.Errorf("bad date %q: %w", date, err)
	}
	if tx.PostedAt, err = time.Parse(time.RFC3339Nano, postedAt); err != nil {
		return ledger.Transaction{}, fmt.Errorf("bad posted_at %q: %w", postedAt, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Transaction{}, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if destAmount.Valid {
		da, err := decimal.NewFromString(destAmount.String)
		if err != nil {
			return ledger.Transaction{}, fmt.Errorf("bad destination_amount %q: %w", destAmount.String, err)
		}
		tx.DestinationAmount = &da
	}
	if reversedAt.Valid {
		if tx.ReversedAt, err = time.Parse(time.RFC3339Nano, reversedAt.String); err != nil {
			return ledger.Transaction{}, err
		}
	}
	if deletedAt.Valid {
		if tx.DeletedAt, err = time.Parse(time.RFC3339Nano, deletedAt.String); err != nil {
			return ledger.Transaction{}, err
		}
	}
	return tx, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// =============================================================================
// TRANSACTIONAL WRAPPER
// =============================================================================

// WithTx executes fn within one database transaction. The mutex serializes
// units; SQLite's single writer would otherwise surface as busy errors.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the ledger.Store view handed to WithTx callbacks. Everything
// runs on the open *sql.Tx so the unit reads its own writes.
type txStore struct {
	tx *sql.Tx
}

var _ ledger.Store = (*txStore)(nil)

func (ts *txStore) Append(ctx context.Context, tx ledger.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	for _, tx := range txs {
		if err := appendTx(ctx, ts.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Get(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	return getTx(ctx, ts.tx, id)
}

func (ts *txStore) ByGroup(ctx context.Context, group ledger.GroupID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, ts.tx, `
		SELECT `+txColumns+` FROM transactions
		WHERE group_id = ? AND status != 'deleted'
		ORDER BY posted_at, id`, group)
}

func (ts *txStore) ChildLegs(ctx context.Context, parent ledger.TransactionID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, ts.tx, `
		SELECT `+txColumns+` FROM transactions
		WHERE parent_id = ? AND status != 'deleted'
		ORDER BY posted_at, id`, parent)
}

func (ts *txStore) VisibleBefore(ctx context.Context, user ledger.UserID, scope ledger.Scope, cutoff ledger.Date) ([]ledger.Transaction, error) {
	return visibleBefore(ctx, ts.tx, user, scope, cutoff)
}

func (ts *txStore) VisibleSince(ctx context.Context, user ledger.UserID, scope ledger.Scope, start ledger.Date) ([]ledger.Transaction, error) {
	return visibleSince(ctx, ts.tx, user, scope, start)
}

func (ts *txStore) VisibleForScope(ctx context.Context, user ledger.UserID, scope ledger.Scope) ([]ledger.Transaction, error) {
	return visibleForScope(ctx, ts.tx, user, scope)
}

func (ts *txStore) ListVisible(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, ts.tx, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? AND `+visibleClause+`
		ORDER BY date, posted_at, id`, user)
}

func (ts *txStore) ListAll(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, ts.tx, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ?
		ORDER BY date, posted_at, id`, user)
}

func (ts *txStore) MaxSeq(ctx context.Context, user ledger.UserID, account ledger.AccountID) (int64, error) {
	return maxSeq(ctx, ts.tx, user, account)
}

func (ts *txStore) NewerThan(ctx context.Context, user ledger.UserID, account ledger.AccountID, seq int64, limit int) ([]ledger.Transaction, error) {
	return newerThan(ctx, ts.tx, user, account, seq, limit)
}

func (ts *txStore) MarkReversed(ctx context.Context, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	return markReversed(ctx, ts.tx, id, by, at)
}

func (ts *txStore) MarkDeleted(ctx context.Context, id ledger.TransactionID, by ledger.UserID, at time.Time) error {
	return markDeleted(ctx, ts.tx, id, by, at)
}

func (ts *txStore) Restore(ctx context.Context, id ledger.TransactionID) error {
	return restore(ctx, ts.tx, id)
}

func (ts *txStore) SetHidden(ctx context.Context, ids []ledger.TransactionID, hidden bool) error {
	return setHidden(ctx, ts.tx, ids, hidden)
}

// =============================================================================
// REGISTRY (ledger.Registry interface)
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, kind, currency, visible, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Kind, a.Currency, a.Visible,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *Store) Account(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	var a ledger.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, kind, currency, visible FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.UserID, &a.Name, &a.Kind, &a.Currency, &a.Visible)
	if err == sql.ErrNoRows {
		return ledger.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, user ledger.UserID) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, kind, currency, visible FROM accounts
		WHERE user_id = ? ORDER BY name`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Kind, &a.Currency, &a.Visible); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateEntity(ctx context.Context, e ledger.Entity) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if e.Kind == "" {
		e.Kind = ledger.EntityFund
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, user_id, name, kind, visible, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Name, e.Kind, e.Visible,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

func (s *Store) Entity(ctx context.Context, id ledger.EntityID) (ledger.Entity, error) {
	var e ledger.Entity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, kind, visible FROM entities WHERE id = ?`, id).
		Scan(&e.ID, &e.UserID, &e.Name, &e.Kind, &e.Visible)
	if err == sql.ErrNoRows {
		return ledger.Entity{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Entity{}, err
	}
	return e, nil
}

func (s *Store) ListEntities(ctx context.Context, user ledger.UserID) ([]ledger.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, kind, visible FROM entities
		WHERE user_id = ? ORDER BY name`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entity
	for rows.Next() {
		var e ledger.Entity
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &e.Kind, &e.Visible); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EnsureOutsideAccount(ctx context.Context, user ledger.UserID) (ledger.Account, error) {
	return s.ensureAccount(ctx, user, ledger.AccountOutside, "Outside")
}

func (s *Store) EnsureRemittanceAccount(ctx context.Context, user ledger.UserID) (ledger.Account, error) {
	return s.ensureAccount(ctx, user, ledger.AccountRemittance, "Remittance")
}

func (s *Store) ensureAccount(ctx context.Context, user ledger.UserID, kind ledger.AccountKind, name string) (ledger.Account, error) {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	var a ledger.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, kind, currency, visible FROM accounts
		WHERE user_id = ? AND kind = ?`, user, kind).
		Scan(&a.ID, &a.UserID, &a.Name, &a.Kind, &a.Currency, &a.Visible)
	if err == nil {
		return a, nil
	}
	if err != sql.ErrNoRows {
		return ledger.Account{}, err
	}

	a = ledger.Account{ID: ledger.NewAccountID(), UserID: user, Name: name, Kind: kind}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, kind, currency, visible, created_at)
		VALUES (?, ?, ?, ?, '', FALSE, ?)`,
		a.ID, a.UserID, a.Name, a.Kind, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to create %s account: %w", kind, err)
	}
	return a, nil
}

func (s *Store) EnsureOutsideEntity(ctx context.Context, user ledger.UserID) (ledger.Entity, error) {
	return s.ensureEntity(ctx, user, ledger.EntityOutsideKind, "Outside")
}

func (s *Store) EnsureRemittanceEntity(ctx context.Context, user ledger.UserID) (ledger.Entity, error) {
	return s.ensureEntity(ctx, user, ledger.EntityRemittanceBridged, "Remittance")
}

func (s *Store) ensureEntity(ctx context.Context, user ledger.UserID, kind ledger.EntityKind, name string) (ledger.Entity, error) {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	var e ledger.Entity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, kind, visible FROM entities
		WHERE user_id = ? AND kind = ?`, user, kind).
		Scan(&e.ID, &e.UserID, &e.Name, &e.Kind, &e.Visible)
	if err == nil {
		return e, nil
	}
	if err != sql.ErrNoRows {
		return ledger.Entity{}, err
	}

	e = ledger.Entity{ID: ledger.NewEntityID(), UserID: user, Name: name, Kind: kind}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, user_id, name, kind, visible, created_at)
		VALUES (?, ?, ?, ?, FALSE, ?)`,
		e.ID, e.UserID, e.Name, e.Kind, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return ledger.Entity{}, fmt.Errorf("failed to create %s entity: %w", kind, err)
	}
	return e, nil
}
