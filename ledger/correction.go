/*
correction.go - Reverse-and-replace correction engine

PURPOSE:
  A posted row is never edited in place. Correcting one writes a hidden
  reversal for it (and its bridge legs), marks the old rows reversed and
  hidden, and posts a fresh replacement through the normal creation path.
  Cross-currency bridge legs are regenerated from the replacement, never
  patched.

ORDERING:
  The cancellation happens first, inside the same transaction as the
  replacement, so the solvency simulation sees the books as if the old row
  never existed. The simulation window starts at the earlier of the two
  dates; when the correction moves accounts, the vacated side is re-checked
  too. Any failure rolls the whole correction back.
*/
package ledger

import (
	"context"
	"fmt"
)

// Correct replaces a posted transaction with a corrected version. Empty
// replacement fields default to the original's values. Returns the
// replacement row.
func (s *Service) Correct(ctx context.Context, originalID TransactionID, repl CreateRequest, actor UserID) (Transaction, error) {
	owner := repl.UserID
	if owner == "" {
		owner = actor
	}
	if err := s.ensureSynthetics(ctx, owner); err != nil {
		return Transaction{}, err
	}
	var created Transaction
	err := s.store.WithTx(ctx, func(st Store) error {
		original, err := st.Get(ctx, originalID)
		if err != nil {
			return err
		}
		if original.Status == StatusDeleted {
			return ErrAlreadyDeleted
		}
		if original.IsReversal || original.Status == StatusReversed {
			return ErrAlreadyReversed
		}
		if original.ParentID != "" {
			return fmt.Errorf("bridge leg %s cannot be corrected directly, correct its parent", original.ID)
		}

		req := withCorrectionDefaults(repl, original)

		if err := s.reverseAndHide(ctx, st, original, actor); err != nil {
			return err
		}

		excluded := map[TransactionID]bool{original.ID: true}
		legs, err := st.ChildLegs(ctx, original.ID)
		if err != nil {
			return err
		}
		for _, l := range legs {
			excluded[l.ID] = true
		}

		created, err = s.createInTx(ctx, st, req, excluded, original.Date)
		if err != nil {
			return err
		}

		// Moving a row between accounts drains the side it left; the
		// creation path only checks the scopes the replacement touches.
		if !sameSides(original, created) {
			start := MinDate(original.Date, created.Date)
			if err := s.runScopeChecks(ctx, st, original.UserID, scopesFor(s.cfg, original), start, excluded, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return created, nil
}

// withCorrectionDefaults fills the replacement request from the original
// so callers only send the fields that change. Accounts and entities are
// copied as a block: a request naming no account keeps all four sides.
func withCorrectionDefaults(req CreateRequest, original Transaction) CreateRequest {
	if req.UserID == "" {
		req.UserID = original.UserID
	}
	if req.Date.IsZero() {
		req.Date = original.Date
	}
	if req.Type == "" {
		req.Type = original.Type
	}
	if req.Description == "" {
		req.Description = original.Description
	}
	if req.AccountSource == "" && req.AccountDestination == "" {
		req.AccountSource = original.AccountSource
		req.AccountDestination = original.AccountDestination
		req.EntitySource = original.EntitySource
		req.EntityDestination = original.EntityDestination
	}
	if req.Currency == "" {
		req.Currency = original.Currency
	}
	return req
}

func sameSides(a, b Transaction) bool {
	return a.AccountSource == b.AccountSource &&
		a.AccountDestination == b.AccountDestination &&
		a.EntitySource == b.EntitySource &&
		a.EntityDestination == b.EntityDestination
}
