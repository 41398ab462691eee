/*
Package ledger implements the transaction ledger core of a personal
multi-entity, multi-currency finance tracker.

PURPOSE:
  The ledger is an append-mostly log of money movements between accounts
  (money-holding containers) and entities (budget pockets the money is
  earmarked for). The engine guarantees that no account, entity, or
  (account, entity) pocket balance ever dips below zero at any point on the
  timeline, that history is corrected by reverse-and-replace instead of
  in-place edits, and that rows can only be deleted newest-first per
  account.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: the sole persisted ledger row
  - Date: a day-granular point in time (ledger ordering key)
  - LedgerStatus: posted / reversed / deleted
  - Account, Entity: registry records the ledger references

DESIGN PRINCIPLES:
  1. Immutability: economic fields are never edited after creation; only the
     ledger-state fields (status, hidden, reversal/deletion audit stamps)
     change, and only through the engine.
  2. Precision: amounts use decimal.Decimal, fixed at two decimals.
  3. Directionality by sides: Amount is always >= 0; whether a row is an
     inflow or outflow follows from which side a scope sits on.
  4. Auditability: reversal and deletion rows stay in the table; they are
     the audit log.

SEE ALSO:
  - classify.go: transaction type -> role/asset-class derivation
  - simulate.go: running-balance simulation
  - correction.go, deletion.go, splitter.go: the mutation engines
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID string
type GroupID string
type AccountID string
type EntityID string
type UserID string

func NewTransactionID() TransactionID { return TransactionID(uuid.NewString()) }
func NewGroupID() GroupID             { return GroupID(uuid.NewString()) }
func NewAccountID() AccountID         { return AccountID(uuid.NewString()) }
func NewEntityID() EntityID           { return EntityID(uuid.NewString()) }

// =============================================================================
// DATE - Day-granular time point
// =============================================================================

// Date is the ledger's ordering key. Two rows sharing a Date are ordered by
// PostedAt, then ID.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AddDays(n int) Date            { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }
func (d Date) String() string                { return d.normalize().Format("2006-01-02") }

func MinDate(a, b Date) Date {
	if b.Before(a) {
		return b
	}
	return a
}

// ParseDate parses the "2006-01-02" form used across the API and stores.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// =============================================================================
// LEDGER STATE
// =============================================================================

// LedgerStatus is the consolidated row state. A row is in exactly one state;
// "is a system-generated audit row" is tracked separately via
// Transaction.IsReversal, and bridge legs are Hidden while still posted.
type LedgerStatus string

const (
	StatusPosted   LedgerStatus = "posted"
	StatusReversed LedgerStatus = "reversed"
	StatusDeleted  LedgerStatus = "deleted"
)

// =============================================================================
// TRANSACTION - The sole persisted ledger row
// =============================================================================

type Transaction struct {
	ID TransactionID
	// GroupID pairs every row composing one user-facing cross-currency
	// transfer (the visible parent and its hidden bridge legs).
	GroupID GroupID
	// ParentID links a hidden bridge leg (or a leg's reversal row) to its
	// visible parent.
	ParentID TransactionID
	UserID   UserID

	Date        Date
	PostedAt    time.Time
	Description string

	// Parties. Each side is optional; plain income/expense rows touch the
	// synthetic Outside account/entity on one side.
	AccountSource      AccountID
	AccountDestination AccountID
	EntitySource       EntityID
	EntityDestination  EntityID

	// Classification. The four role/asset fields are cache derived from
	// Type via Classify; they are overwritten on every save and never
	// user-set.
	Type             TransactionType
	SourceRole       FlowRole
	DestinationRole  FlowRole
	SourceAsset      AssetClass
	DestinationAsset AssetClass

	// Amount is always >= 0 and denominated in Currency.
	// DestinationAmount is set only when the source and destination
	// accounts carry different currencies; it is denominated in the
	// destination account's currency.
	Amount            decimal.Decimal
	DestinationAmount *decimal.Decimal
	Currency          string

	// SeqAccount is assigned once at creation: 1 + the highest sequence
	// already present on any account this row touches. Per-account monotone,
	// not globally monotone. Reversal rows carry 0 (they never participate
	// in the LIFO guard).
	SeqAccount int64

	Hidden     bool
	Status     LedgerStatus
	IsReversal bool

	ReversedTransaction TransactionID
	ReversedAt          time.Time
	ReversedBy          UserID
	DeletedAt           time.Time
	DeletedBy           UserID
}

// Visible reports whether the row participates in default balance views.
// Audit queries use the unfiltered set instead.
func (t Transaction) Visible() bool {
	return !t.Hidden && !t.IsReversal && t.Status == StatusPosted
}

// InflowAmount is the value a destination-side scope receives: the
// destination amount when the row crosses currencies, else the amount.
func (t Transaction) InflowAmount() decimal.Decimal {
	if t.DestinationAmount != nil {
		return *t.DestinationAmount
	}
	return t.Amount
}

// TouchedAccounts returns the distinct non-empty accounts on either side.
func (t Transaction) TouchedAccounts() []AccountID {
	var out []AccountID
	if t.AccountSource != "" {
		out = append(out, t.AccountSource)
	}
	if t.AccountDestination != "" && t.AccountDestination != t.AccountSource {
		out = append(out, t.AccountDestination)
	}
	return out
}

// =============================================================================
// REGISTRY RECORDS - Accounts and entities
// =============================================================================

type AccountKind string

const (
	AccountCash       AccountKind = "cash"
	AccountBank       AccountKind = "bank"
	AccountCredit     AccountKind = "credit"
	AccountOutside    AccountKind = "outside"
	AccountRemittance AccountKind = "remittance"
)

// Account is a money-holding container. Outside and Remittance are lazily
// created singletons per user; they carry no single currency of their own.
type Account struct {
	ID       AccountID
	UserID   UserID
	Name     string
	Kind     AccountKind
	Currency string
	Visible  bool
}

func (a Account) IsOutside() bool    { return a.Kind == AccountOutside }
func (a Account) IsRemittance() bool { return a.Kind == AccountRemittance }

// IsSynthetic reports whether the account represents the world outside the
// ledger or the cross-currency bridge; synthetic accounts are never
// simulated for overdrafts.
func (a Account) IsSynthetic() bool { return a.IsOutside() || a.IsRemittance() }

type EntityKind string

const (
	EntityFund              EntityKind = "fund"
	EntityOutsideKind       EntityKind = "outside"
	EntityRemittanceBridged EntityKind = "remittance"
)

// Entity is a budget pocket a balance is earmarked for, independent of which
// account holds the money.
type Entity struct {
	ID      EntityID
	UserID  UserID
	Name    string
	Kind    EntityKind
	Visible bool
}
