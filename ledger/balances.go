/*
balances.go - The outbound read API

PURPOSE:
  Balance queries consumed by reporting and UI collaborators. Every value
  is computed by summing the full visible history, never a cached running
  total, so the numbers stay correct after any correction or reversal.

RULES:
  - Account balance counts every visible row touching the account: inflow
    prefers the destination amount when present, outflow uses the amount.
  - Entity and pocket balances count only the liquid sides, per the
    classification table.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountBalance returns the account's current balance over its visible
// history.
func (s *Service) AccountBalance(ctx context.Context, user UserID, id AccountID) (decimal.Decimal, error) {
	return accountBalance(s.store, ctx, user, id)
}

func accountBalance(st Store, ctx context.Context, user UserID, id AccountID) (decimal.Decimal, error) {
	rows, err := st.VisibleForScope(ctx, user, AccountScope(id))
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range rows {
		if t.AccountDestination == id {
			total = total.Add(t.InflowAmount())
		}
		if t.AccountSource == id {
			total = total.Sub(t.Amount)
		}
	}
	return total, nil
}

// EntityBalance returns the entity's liquid balance across all accounts.
func (s *Service) EntityBalance(ctx context.Context, user UserID, id EntityID) (decimal.Decimal, error) {
	rows, err := s.store.VisibleForScope(ctx, user, EntityScope(id))
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range rows {
		if t.EntityDestination == id && t.DestinationAsset == AssetLiquid {
			total = total.Add(t.InflowAmount())
		}
		if t.EntitySource == id && t.SourceAsset == AssetLiquid {
			total = total.Sub(t.Amount)
		}
	}
	return total, nil
}

// PocketBalance returns the liquid balance of one (account, entity) pair.
func (s *Service) PocketBalance(ctx context.Context, user UserID, account AccountID, entity EntityID) (decimal.Decimal, error) {
	rows, err := s.store.VisibleForScope(ctx, user, PocketScope(account, entity))
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range rows {
		if t.AccountDestination == account && t.EntityDestination == entity && t.DestinationAsset == AssetLiquid {
			total = total.Add(t.InflowAmount())
		}
		if t.AccountSource == account && t.EntitySource == entity && t.SourceAsset == AssetLiquid {
			total = total.Sub(t.Amount)
		}
	}
	return total, nil
}

// Transactions returns the user's visible rows; the audit flag switches to
// the unfiltered set (reversal and deletion rows included).
func (s *Service) Transactions(ctx context.Context, user UserID, audit bool) ([]Transaction, error) {
	if audit {
		return s.store.ListAll(ctx, user)
	}
	return s.store.ListVisible(ctx, user)
}

// Transaction returns one row by id, hidden or not.
func (s *Service) Transaction(ctx context.Context, id TransactionID) (Transaction, error) {
	return s.store.Get(ctx, id)
}

// TransactionGroup returns every row sharing a group id, hidden legs
// included.
func (s *Service) TransactionGroup(ctx context.Context, group GroupID) ([]Transaction, error) {
	return s.store.ByGroup(ctx, group)
}
