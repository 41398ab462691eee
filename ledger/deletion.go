/*
deletion.go - Reversal mechanics and the LIFO deletion engine

PURPOSE:
  History is never physically deleted. A deletion soft-deletes the unit
  (single row, or every row sharing its GroupID), optionally after writing
  reversal rows; a correction reverse-and-hides the old row. The LIFO guard
  keeps deletions from punching holes in an account's timeline: only the
  most recent row on every touched account may go.

REVERSAL MECHANICS:
  A reversal row mechanically swaps source and destination (accounts,
  entities, and the two amounts). Amounts stay non-negative; the swap alone
  cancels the original's effect. Reversal rows are hidden, carry no
  sequence number, and never participate in the LIFO guard.

LIFO GUARD:
  A member may be deleted when no non-deleted row on any account it touches
  carries a higher SeqAccount - except rows deleted in the same batch,
  which makes it legal to jointly delete rows whose individual deletions
  would each block the other.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// DELETE MODES
// =============================================================================

type DeleteMode string

const (
	// DeleteUnitOnly soft-deletes the unit without reversal rows.
	DeleteUnitOnly DeleteMode = "delete_unit_only"
	// ReverseDeleteUnit writes reversal rows for each member, then
	// soft-deletes. Not applicable to reversal-exempt types.
	ReverseDeleteUnit DeleteMode = "reverse_delete_unit"
)

func ParseDeleteMode(s string) (DeleteMode, error) {
	switch DeleteMode(s) {
	case DeleteUnitOnly, ReverseDeleteUnit:
		return DeleteMode(s), nil
	case "":
		return DeleteUnitOnly, nil
	default:
		return "", fmt.Errorf("unknown delete mode %q", s)
	}
}

// =============================================================================
// DELETE - Single unit
// =============================================================================

// Delete removes a unit (a transaction, or the rows sharing its GroupID)
// subject to the LIFO guard. Returns the reversal rows written, if any.
func (s *Service) Delete(ctx context.Context, id TransactionID, mode DeleteMode, actor UserID) ([]Transaction, error) {
	var reversals []Transaction
	err := s.store.WithTx(ctx, func(st Store) error {
		unit, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		if unit.Status == StatusDeleted {
			return ErrAlreadyDeleted
		}
		if mode == ReverseDeleteUnit {
			if unit.IsReversal || unit.Status == StatusReversed {
				return ErrAlreadyReversed
			}
			if ReversalExempt(unit.Type) {
				return ErrReversalNotApplicable
			}
		}

		members, err := s.unitMembers(ctx, st, unit)
		if err != nil {
			return err
		}
		blockers, err := s.checkLIFO(ctx, st, unit.UserID, members)
		if err != nil {
			return err
		}
		if len(blockers) > 0 {
			return &LIFOViolationError{Blockers: blockers}
		}

		// The LIFO gate alone is not enough under entity enforcement: a row
		// rescued by entity cover may lean on an income in another account,
		// and deleting that income passes LIFO on its own account.
		if err := s.runScopeChecks(ctx, st, unit.UserID, scopesFor(s.cfg, members...), earliestDate(members), idSet(members), nil); err != nil {
			return err
		}

		if mode == ReverseDeleteUnit {
			reversals, err = s.reverseMembers(ctx, st, members, actor)
			if err != nil {
				return err
			}
		}
		return s.finishDelete(ctx, st, members, actor)
	})
	if err != nil {
		return nil, err
	}
	return reversals, nil
}

// =============================================================================
// DELETE BATCH - Joint atomic unit
// =============================================================================

// DeleteBatch deletes several units as one atomic unit. The LIFO guard and
// the overdraft simulation both evaluate the batch jointly: a member whose
// newer rows are all inside the batch passes, and the projection excludes
// every batch member at once. All-or-nothing.
func (s *Service) DeleteBatch(ctx context.Context, ids []TransactionID, mode DeleteMode, actor UserID) ([]Transaction, error) {
	var reversals []Transaction
	err := s.store.WithTx(ctx, func(st Store) error {
		var members []Transaction
		seen := make(map[TransactionID]bool)
		for _, id := range ids {
			unit, err := st.Get(ctx, id)
			if err != nil {
				return err
			}
			// Already-processed rows are skipped, not errors: a batch may
			// name both legs of a unit.
			if unit.Status == StatusDeleted || unit.IsReversal || seen[unit.ID] {
				continue
			}
			ms, err := s.unitMembers(ctx, st, unit)
			if err != nil {
				return err
			}
			for _, m := range ms {
				if !seen[m.ID] {
					seen[m.ID] = true
					members = append(members, m)
				}
			}
		}
		if len(members) == 0 {
			return nil
		}
		user := members[0].UserID

		blockers, err := s.checkLIFO(ctx, st, user, members)
		if err != nil {
			return err
		}
		if len(blockers) > 0 {
			return &LIFOViolationError{Blockers: blockers}
		}

		if err := s.runScopeChecks(ctx, st, user, scopesFor(s.cfg, members...), earliestDate(members), idSet(members), nil); err != nil {
			return err
		}

		if mode == ReverseDeleteUnit {
			var toReverse []Transaction
			for _, m := range members {
				// Exempt types are soft-deleted without a reversal row
				// rather than failing the whole batch.
				if ReversalExempt(m.Type) || m.Status == StatusReversed {
					continue
				}
				toReverse = append(toReverse, m)
			}
			reversals, err = s.reverseMembers(ctx, st, toReverse, actor)
			if err != nil {
				return err
			}
		}
		return s.finishDelete(ctx, st, members, actor)
	})
	if err != nil {
		return nil, err
	}
	return reversals, nil
}

func (s *Service) finishDelete(ctx context.Context, st Store, members []Transaction, actor UserID) error {
	now := s.now()
	for _, m := range members {
		if err := st.MarkDeleted(ctx, m.ID, actor, now); err != nil {
			return err
		}
	}
	if s.OnDeleted != nil {
		for _, m := range members {
			s.OnDeleted(m)
		}
	}
	return nil
}

// =============================================================================
// UNDO DELETE
// =============================================================================

// UndoDelete restores a soft-deleted unit: every deleted member returns to
// posted, and any reversal rows the delete wrote are themselves
// soft-deleted so their effect disappears from balance views. The restored
// timeline is re-simulated first; an undo that would leave a scope
// negative is rejected whole.
func (s *Service) UndoDelete(ctx context.Context, id TransactionID, actor UserID) (Transaction, error) {
	var restored Transaction
	err := s.store.WithTx(ctx, func(st Store) error {
		unit, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		if unit.IsReversal {
			return fmt.Errorf("row %s is a reversal and cannot be restored: %w", unit.ID, ErrNotDeleted)
		}
		if unit.ParentID != "" {
			return fmt.Errorf("row %s is a leg of %s; restore the parent: %w", unit.ID, unit.ParentID, ErrNotDeleted)
		}
		if unit.Status != StatusDeleted {
			return ErrNotDeleted
		}

		// ByGroup and ChildLegs hide deleted rows, so the members come
		// from the audit set.
		all, err := st.ListAll(ctx, unit.UserID)
		if err != nil {
			return err
		}
		var members []Transaction
		for _, t := range all {
			if t.IsReversal || t.Status != StatusDeleted {
				continue
			}
			sameGroup := unit.GroupID != "" && t.GroupID == unit.GroupID
			if sameGroup || t.ID == unit.ID || t.ParentID == unit.ID {
				members = append(members, t)
			}
		}
		inUnit := idSet(members)

		// Replay with the members back on the timeline before touching
		// state. Deleted rows are invisible to the stream, so the copies go
		// in as planned rows.
		planned := make([]Transaction, 0, len(members))
		for _, m := range members {
			p := m
			p.Status = StatusPosted
			planned = append(planned, p)
		}
		if err := s.runScopeChecks(ctx, st, unit.UserID, scopesFor(s.cfg, members...), earliestDate(members), nil, planned); err != nil {
			return err
		}

		now := s.now()
		for _, t := range all {
			if t.IsReversal && inUnit[t.ReversedTransaction] && t.Status != StatusDeleted {
				if err := st.MarkDeleted(ctx, t.ID, actor, now); err != nil {
					return err
				}
			}
		}
		for _, m := range members {
			if err := st.Restore(ctx, m.ID); err != nil {
				return err
			}
		}
		restored, err = st.Get(ctx, unit.ID)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return restored, nil
}

// =============================================================================
// UNIT EXPANSION & LIFO GUARD
// =============================================================================

// unitMembers returns the posted rows composing a unit: the group members
// (a cross-currency parent and its bridge legs) or the row plus its child
// legs.
func (s *Service) unitMembers(ctx context.Context, st Store, unit Transaction) ([]Transaction, error) {
	var raw []Transaction
	if unit.GroupID != "" {
		var err error
		raw, err = st.ByGroup(ctx, unit.GroupID)
		if err != nil {
			return nil, err
		}
	} else {
		legs, err := st.ChildLegs(ctx, unit.ID)
		if err != nil {
			return nil, err
		}
		raw = append([]Transaction{unit}, legs...)
	}
	var members []Transaction
	for _, t := range raw {
		if t.IsReversal || t.Status == StatusDeleted {
			continue
		}
		members = append(members, t)
	}
	return members, nil
}

// checkLIFO verifies every member is the newest row on each account it
// touches, discounting rows that are members themselves. Returns up to
// five blockers per account, most recent first.
func (s *Service) checkLIFO(ctx context.Context, st Store, user UserID, members []Transaction) ([]LIFOBlocker, error) {
	inUnit := idSet(members)
	var blockers []LIFOBlocker
	seenAccount := make(map[AccountID]bool)
	for _, m := range members {
		for _, acc := range m.TouchedAccounts() {
			if seenAccount[acc] {
				continue
			}
			newer, err := st.NewerThan(ctx, user, acc, m.SeqAccount, 0)
			if err != nil {
				return nil, err
			}
			var rows []BlockingRow
			for _, n := range newer {
				if inUnit[n.ID] {
					continue
				}
				rows = append(rows, BlockingRow{
					ID:          n.ID,
					SeqAccount:  n.SeqAccount,
					Date:        n.Date,
					Description: n.Description,
				})
				if len(rows) == 5 {
					break
				}
			}
			if len(rows) > 0 {
				seenAccount[acc] = true
				blockers = append(blockers, LIFOBlocker{Account: acc, Newer: rows})
			}
		}
	}
	return blockers, nil
}

func earliestDate(txs []Transaction) Date {
	start := txs[0].Date
	for _, t := range txs[1:] {
		start = MinDate(start, t.Date)
	}
	return start
}

func idSet(txs []Transaction) map[TransactionID]bool {
	out := make(map[TransactionID]bool, len(txs))
	for _, t := range txs {
		out[t.ID] = true
	}
	return out
}

// =============================================================================
// REVERSAL MECHANICS
// =============================================================================

// reverseMembers writes one reversal row per member and marks each member
// reversed. The first member's reversal becomes the parent of the leg
// reversals so the audit trail keeps its shape.
func (s *Service) reverseMembers(ctx context.Context, st Store, members []Transaction, actor UserID) ([]Transaction, error) {
	if len(members) == 0 {
		return nil, nil
	}
	now := s.now()
	today := DateOf(now)

	var reversals []Transaction
	var parentReversal TransactionID
	for _, m := range members {
		if m.IsReversal || m.Status == StatusReversed {
			continue
		}
		rev, err := reverseTransaction(m, today, now)
		if err != nil {
			return nil, err
		}
		if m.ParentID == "" && parentReversal == "" {
			parentReversal = rev.ID
		} else if m.ParentID != "" {
			rev.ParentID = parentReversal
		}
		reversals = append(reversals, rev)
	}
	if len(reversals) == 0 {
		return nil, nil
	}
	if err := st.AppendBatch(ctx, reversals); err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.IsReversal || m.Status == StatusReversed {
			continue
		}
		if err := st.MarkReversed(ctx, m.ID, actor, now); err != nil {
			return nil, err
		}
	}
	return reversals, nil
}

// reverseAndHide is the correction path's cancellation step: reverse the
// row and its child legs, then hide all of them. Idempotent - reversal
// rows and already-reversed rows are left alone.
func (s *Service) reverseAndHide(ctx context.Context, st Store, txn Transaction, actor UserID) error {
	if txn.IsReversal || txn.Status == StatusReversed {
		return nil
	}
	legs, err := st.ChildLegs(ctx, txn.ID)
	if err != nil {
		return err
	}
	members := append([]Transaction{txn}, legs...)
	if _, err := s.reverseMembers(ctx, st, members, actor); err != nil {
		return err
	}
	ids := make([]TransactionID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return st.SetHidden(ctx, ids, true)
}

// reverseTransaction builds the row that cancels a posted row: sides
// swapped, amounts swapped when the original crossed currencies, hidden,
// flagged as a system reversal. SeqAccount stays 0.
func reverseTransaction(original Transaction, date Date, postedAt time.Time) (Transaction, error) {
	rev := Transaction{
		ID:                  NewTransactionID(),
		GroupID:             original.GroupID,
		UserID:              original.UserID,
		Date:                date,
		PostedAt:            postedAt,
		Description:         "Reversal of " + original.Description,
		AccountSource:       original.AccountDestination,
		AccountDestination:  original.AccountSource,
		EntitySource:        original.EntityDestination,
		EntityDestination:   original.EntitySource,
		Type:                original.Type,
		Currency:            original.Currency,
		Hidden:              true,
		Status:              StatusPosted,
		IsReversal:          true,
		ReversedTransaction: original.ID,
	}
	if original.DestinationAmount != nil {
		rev.Amount = *original.DestinationAmount
		da := original.Amount
		rev.DestinationAmount = &da
	} else {
		rev.Amount = original.Amount
	}
	if err := rev.applyClassification(); err != nil {
		return Transaction{}, err
	}
	return rev, nil
}
