/*
service.go - The ledger service and the creation path

PURPOSE:
  Service is the single entry point for every mutation: create, correct,
  delete, bulk delete. It owns the wiring (store, registry, rate
  collaborator, enforcement config) and runs each operation as one atomic
  unit via TxStore.WithTx.

CREATION PATH:
  1. Normalize and classify (unknown type fails hard, nothing persisted)
  2. Infer currency from the relevant account / user base currency
  3. Reject single-leg rows whose accounts disagree on currency
  4. Present-balance funds check on the liquid source side
  5. Split cross-currency transfers through the Remittance bridge
  6. Simulate every enforced scope for future negative dips
  7. Assign per-account sequence numbers and append

SCOPE ENFORCEMENT:
  The account scope is always enforced. The pocket scope is enforced by
  default. The entity scope (strictly wider than pocket, stricter than
  account) is opt-in. AllowEntityCover lets an account-scope hit pass when
  the entity behind the hit stays liquid across all of its accounts.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cenfin/ledger-engine/rates"
)

// =============================================================================
// CONFIG
// =============================================================================

type Config struct {
	// EnforcePocket runs the (account, entity) pocket simulation on every
	// mutation. Default on.
	EnforcePocket bool

	// EnforceEntity runs the entity-wide simulation as a hard gate.
	// Stricter than the account check; off by default.
	EnforceEntity bool

	// AllowEntityCover rescues an account-scope violation when the entity
	// on the violating side keeps a non-negative liquid balance across all
	// of its accounts for the whole simulated window.
	AllowEntityCover bool

	// BaseCurrency is the user's fallback currency when no account can
	// supply one.
	BaseCurrency string
}

func DefaultConfig() Config {
	return Config{EnforcePocket: true, BaseCurrency: "USD"}
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store TxStore
	reg   Registry
	rates rates.Converter
	cfg   Config

	// OnDeleted, when set, is invoked synchronously for every member of a
	// deleted unit inside the deletion's atomic scope. Replaces implicit
	// deletion signals with an explicit, testable call.
	OnDeleted func(Transaction)

	now func() time.Time
}

func NewService(store TxStore, reg Registry, conv rates.Converter, cfg Config) *Service {
	return &Service{
		store: store,
		reg:   reg,
		rates: conv,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest is the structured mutation payload submitted by an external
// caller (form/view).
type CreateRequest struct {
	UserID      UserID
	Date        Date
	Description string
	Type        TransactionType

	AccountSource      AccountID
	AccountDestination AccountID
	EntitySource       EntityID
	EntityDestination  EntityID

	Amount            decimal.Decimal
	DestinationAmount *decimal.Decimal
	Currency          string
}

// Create validates, classifies, and persists a new transaction. For
// cross-currency transfers the visible parent and its two hidden bridge
// legs are persisted in the same atomic unit.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Transaction, error) {
	if err := s.ensureSynthetics(ctx, req.UserID); err != nil {
		return Transaction{}, err
	}
	var created Transaction
	err := s.store.WithTx(ctx, func(st Store) error {
		tx, err := s.createInTx(ctx, st, req, nil, Date{})
		if err != nil {
			return err
		}
		created = tx
		return nil
	})
	return created, err
}

// ensureSynthetics creates the user's Outside and Remittance singletons up
// front. They are idempotent, and creating them outside the WithTx unit
// keeps registry writes off the transaction's write path.
func (s *Service) ensureSynthetics(ctx context.Context, user UserID) error {
	if _, err := s.reg.EnsureOutsideEntity(ctx, user); err != nil {
		return err
	}
	if _, err := s.reg.EnsureOutsideAccount(ctx, user); err != nil {
		return err
	}
	if _, err := s.reg.EnsureRemittanceEntity(ctx, user); err != nil {
		return err
	}
	if _, err := s.reg.EnsureRemittanceAccount(ctx, user); err != nil {
		return err
	}
	return nil
}

// createInTx runs the full creation path against a transactional store.
// extraExcluded carries row ids the balance simulation must ignore, and a
// non-zero simStart widens the simulation window backwards (the correction
// path excludes the replaced row and simulates from the earlier of the two
// dates).
func (s *Service) createInTx(ctx context.Context, st Store, req CreateRequest, extraExcluded map[TransactionID]bool, simStart Date) (Transaction, error) {
	tx, err := s.buildTransaction(ctx, req)
	if err != nil {
		return Transaction{}, err
	}

	srcAcc, dstAcc, err := s.lookupAccounts(ctx, tx)
	if err != nil {
		return Transaction{}, err
	}

	cross := tx.Type == TypeTransfer &&
		srcAcc.ID != "" && dstAcc.ID != "" &&
		srcAcc.Currency != "" && dstAcc.Currency != "" &&
		srcAcc.Currency != dstAcc.Currency

	var legs []Transaction
	if cross {
		legs, err = s.splitCrossCurrency(ctx, &tx, srcAcc, dstAcc)
		if err != nil {
			return Transaction{}, err
		}
	} else if srcAcc.ID != "" && dstAcc.ID != "" &&
		srcAcc.Currency != "" && dstAcc.Currency != "" &&
		srcAcc.Currency != dstAcc.Currency {
		return Transaction{}, &CurrencyMismatchError{
			SourceAccount:       srcAcc.ID,
			DestinationAccount:  dstAcc.ID,
			SourceCurrency:      srcAcc.Currency,
			DestinationCurrency: dstAcc.Currency,
		}
	}

	if err := s.checkPresentFunds(ctx, st, tx, srcAcc); err != nil {
		return Transaction{}, err
	}

	start := tx.Date
	if !simStart.IsZero() {
		start = MinDate(start, simStart)
	}
	planned := append([]Transaction{tx}, legs...)
	if err := s.runScopeChecks(ctx, st, tx.UserID, scopesFor(s.cfg, tx), start, extraExcluded, planned); err != nil {
		return Transaction{}, err
	}

	if err := s.assignSequences(ctx, st, tx.UserID, planned); err != nil {
		return Transaction{}, err
	}
	tx = planned[0]

	if err := st.AppendBatch(ctx, planned); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// buildTransaction normalizes the request into a classified, unpersisted
// row. Nothing here touches storage except currency inference lookups.
func (s *Service) buildTransaction(ctx context.Context, req CreateRequest) (Transaction, error) {
	if req.Amount.IsNegative() {
		return Transaction{}, ErrAmountNegative
	}
	if req.DestinationAmount != nil && req.DestinationAmount.IsNegative() {
		return Transaction{}, ErrAmountNegative
	}

	date := req.Date
	if date.IsZero() {
		date = DateOf(s.now())
	}

	tx := Transaction{
		ID:                 NewTransactionID(),
		UserID:             req.UserID,
		Date:               date,
		PostedAt:           s.now(),
		Description:        req.Description,
		AccountSource:      req.AccountSource,
		AccountDestination: req.AccountDestination,
		EntitySource:       req.EntitySource,
		EntityDestination:  req.EntityDestination,
		Type:               req.Type,
		Amount:             req.Amount.Round(2),
		Currency:           req.Currency,
		Status:             StatusPosted,
	}
	if req.DestinationAmount != nil {
		da := req.DestinationAmount.Round(2)
		tx.DestinationAmount = &da
	}

	if err := tx.applyClassification(); err != nil {
		return Transaction{}, err
	}

	if tx.Currency == "" {
		cur, err := s.inferCurrency(ctx, tx)
		if err != nil {
			return Transaction{}, err
		}
		tx.Currency = cur
	}
	if !rates.Known(tx.Currency) {
		return Transaction{}, fmt.Errorf("unknown currency code %q", tx.Currency)
	}
	return tx, nil
}

// inferCurrency derives the row currency from the relevant account: the
// destination account for income, else source, else destination, falling
// back to the user's base currency.
func (s *Service) inferCurrency(ctx context.Context, tx Transaction) (string, error) {
	pick := func(id AccountID) string {
		if id == "" {
			return ""
		}
		acc, err := s.reg.Account(ctx, id)
		if err != nil {
			return ""
		}
		return acc.Currency
	}

	if tx.Type == TypeIncome {
		if c := pick(tx.AccountDestination); c != "" {
			return c, nil
		}
	}
	if c := pick(tx.AccountSource); c != "" {
		return c, nil
	}
	if c := pick(tx.AccountDestination); c != "" {
		return c, nil
	}
	if s.cfg.BaseCurrency != "" {
		return s.cfg.BaseCurrency, nil
	}
	return "", fmt.Errorf("no currency could be inferred for transaction")
}

func (s *Service) lookupAccounts(ctx context.Context, tx Transaction) (src, dst Account, err error) {
	if tx.AccountSource != "" {
		src, err = s.reg.Account(ctx, tx.AccountSource)
		if err != nil {
			return Account{}, Account{}, err
		}
	}
	if tx.AccountDestination != "" {
		dst, err = s.reg.Account(ctx, tx.AccountDestination)
		if err != nil {
			return Account{}, Account{}, err
		}
	}
	return src, dst, nil
}

// checkPresentFunds is the synchronous, present-day solvency check for
// simple cases. The full forward simulation still runs afterwards.
func (s *Service) checkPresentFunds(ctx context.Context, st Store, tx Transaction, srcAcc Account) error {
	if tx.SourceAsset != AssetLiquid || srcAcc.ID == "" || srcAcc.IsSynthetic() {
		return nil
	}
	// A same-account transfer only moves money between pockets.
	if tx.AccountSource == tx.AccountDestination {
		return nil
	}
	available, err := accountBalance(st, ctx, tx.UserID, srcAcc.ID)
	if err != nil {
		return err
	}
	if available.LessThan(tx.Amount) {
		return &InsufficientFundsError{
			Account:   srcAcc.ID,
			Available: available,
			Requested: tx.Amount,
			Currency:  srcAcc.Currency,
		}
	}
	return nil
}

// scopesFor lists the scopes a mutation touching tx must keep non-negative,
// per the enforcement config. Synthetic accounts are filtered inside the
// simulator.
func scopesFor(cfg Config, txs ...Transaction) []Scope {
	seen := make(map[Scope]bool)
	var out []Scope
	add := func(sc Scope) {
		if seen[sc] {
			return
		}
		seen[sc] = true
		out = append(out, sc)
	}
	for _, t := range txs {
		for _, acc := range t.TouchedAccounts() {
			add(AccountScope(acc))
		}
		if cfg.EnforcePocket {
			if t.AccountSource != "" && t.EntitySource != "" {
				add(PocketScope(t.AccountSource, t.EntitySource))
			}
			if t.AccountDestination != "" && t.EntityDestination != "" {
				add(PocketScope(t.AccountDestination, t.EntityDestination))
			}
		}
		if cfg.EnforceEntity {
			if t.EntitySource != "" {
				add(EntityScope(t.EntitySource))
			}
			if t.EntityDestination != "" {
				add(EntityScope(t.EntityDestination))
			}
		}
	}
	return out
}

// runScopeChecks simulates every scope from start forward and rejects on
// the first violation. An account-scope hit may be rescued by entity cover
// when configured.
func (s *Service) runScopeChecks(
	ctx context.Context,
	st Store,
	user UserID,
	scopes []Scope,
	start Date,
	excluded map[TransactionID]bool,
	planned []Transaction,
) error {
	sim := NewSimulator(st, s.reg)
	for _, sc := range scopes {
		v, err := sim.WouldGoNegative(ctx, user, sc, start, excluded, planned)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		if s.cfg.AllowEntityCover && sc.Kind == ScopeAccount {
			ent := coverEntity(v.Transaction, sc.Account)
			if ent != "" {
				cv, err := sim.WouldGoNegative(ctx, user, EntityScope(ent), start, excluded, planned)
				if err != nil {
					return err
				}
				if cv == nil {
					continue
				}
			}
		}
		return &NegativeBalanceError{Violation: *v}
	}
	return nil
}

// coverEntity picks the entity on the side of the violating row that faces
// the overdrawn account.
func coverEntity(t Transaction, account AccountID) EntityID {
	if t.AccountSource == account {
		return t.EntitySource
	}
	if t.AccountDestination == account {
		return t.EntityDestination
	}
	return ""
}

// assignSequences stamps SeqAccount on every row of one creation event.
// Rows created together share one value: 1 + the highest sequence already
// present on any account the batch touches. Reversal rows keep 0.
func (s *Service) assignSequences(ctx context.Context, st Store, user UserID, txs []Transaction) error {
	var max int64
	seen := make(map[AccountID]bool)
	for _, t := range txs {
		if t.IsReversal {
			continue
		}
		for _, acc := range t.TouchedAccounts() {
			if seen[acc] {
				continue
			}
			seen[acc] = true
			cur, err := st.MaxSeq(ctx, user, acc)
			if err != nil {
				return err
			}
			if cur > max {
				max = cur
			}
		}
	}
	for i := range txs {
		if txs[i].IsReversal {
			continue
		}
		txs[i].SeqAccount = max + 1
	}
	return nil
}
