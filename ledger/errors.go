/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All engine errors in one place. Every rejection carries structured detail
  so the calling layer can render an actionable message; nothing is
  swallowed at this layer and nothing is retried automatically - each error
  represents caller input that must change.

ERROR CATEGORIES:
  1. Classification errors - unknown transaction type
  2. Balance errors       - present or projected overdraft
  3. Ordering errors      - LIFO deletion guard
  4. Reversal guards      - idempotency / domain applicability

USAGE:
  if errors.Is(err, ledger.ErrNegativeBalance) {
      var nb *ledger.NegativeBalanceError
      errors.As(err, &nb)
      // nb.Violation carries scope, date, balance, suggested cover
  }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownTransactionType is returned on a classification miss.
	// Fatal for the operation; nothing is persisted.
	ErrUnknownTransactionType = errors.New("unknown transaction type")

	// ErrCurrencyMismatch is returned for a single-leg (non-transfer) row
	// whose source and destination accounts carry different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch between accounts")

	// ErrInsufficientFunds is the synchronous present-balance rejection at
	// creation time.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNegativeBalance is returned when the simulator finds a future
	// point where a scope would go negative.
	ErrNegativeBalance = errors.New("negative balance projection")

	// ErrLIFOViolation is returned when a deletion target is not the most
	// recent row on some account it touches.
	ErrLIFOViolation = errors.New("newer transactions exist on a touched account")

	// ErrAlreadyReversed guards the reversal path: a row is reversed at
	// most once.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrAlreadyDeleted guards repeat deletes.
	ErrAlreadyDeleted = errors.New("transaction already deleted")

	// ErrReversalNotApplicable is returned when reversing a type that
	// represents external capital injection (income, loan disbursement).
	ErrReversalNotApplicable = errors.New("reversal not applicable for this transaction type")

	// ErrNotDeleted guards undo: only a soft-deleted row can be restored.
	ErrNotDeleted = errors.New("transaction is not deleted")

	// ErrAmountNegative rejects rows created with a negative amount;
	// directionality comes from sides, never from sign.
	ErrAmountNegative = errors.New("amount must not be negative")

	// ErrNotFound is returned for missing transactions, accounts, or
	// entities.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type UnknownTransactionTypeError struct {
	Type TransactionType
}

func (e *UnknownTransactionTypeError) Error() string {
	return fmt.Sprintf("unknown transaction type %q", e.Type)
}

func (e *UnknownTransactionTypeError) Unwrap() error { return ErrUnknownTransactionType }

type CurrencyMismatchError struct {
	SourceAccount       AccountID
	DestinationAccount  AccountID
	SourceCurrency      string
	DestinationCurrency string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("accounts carry different currencies (%s vs %s); only transfers may cross currencies",
		e.SourceCurrency, e.DestinationCurrency)
}

func (e *CurrencyMismatchError) Unwrap() error { return ErrCurrencyMismatch }

type InsufficientFundsError struct {
	Account   AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
	Currency  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s %s, requested %s %s",
		e.Currency, e.Available.StringFixed(2), e.Currency, e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// NegativeBalanceError reports the first point on the simulated timeline
// where the scope's running balance dips below zero, plus the minimum
// additional amount that would have kept it non-negative.
type NegativeBalanceError struct {
	Violation Violation
}

func (e *NegativeBalanceError) Error() string {
	v := e.Violation
	return fmt.Sprintf(
		"%s would go negative on %s (projected balance %s %s); add at least %s %s before that date, or move the change later",
		v.Scope, v.Date, v.Currency, v.Balance.StringFixed(2),
		v.Currency, v.SuggestedCover.StringFixed(2))
}

func (e *NegativeBalanceError) Unwrap() error { return ErrNegativeBalance }

// LIFOBlocker lists, for one touched account, the newer rows (up to five,
// most recent first) preventing a deletion.
type LIFOBlocker struct {
	Account AccountID
	Newer   []BlockingRow
}

type BlockingRow struct {
	ID          TransactionID
	SeqAccount  int64
	Date        Date
	Description string
}

type LIFOViolationError struct {
	Blockers []LIFOBlocker
}

func (e *LIFOViolationError) Error() string {
	total := 0
	for _, b := range e.Blockers {
		total += len(b.Newer)
	}
	return fmt.Sprintf("deletion blocked on %d account(s): %d newer transaction(s) must be deleted first",
		len(e.Blockers), total)
}

func (e *LIFOViolationError) Unwrap() error { return ErrLIFOViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to caller input that must
// change, as opposed to an engine or storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownTransactionType) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNegativeBalance) ||
		errors.Is(err, ErrLIFOViolation) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrAlreadyDeleted) ||
		errors.Is(err, ErrReversalNotApplicable) ||
		errors.Is(err, ErrNotDeleted) ||
		errors.Is(err, ErrAmountNegative)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
