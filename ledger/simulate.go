/*
simulate.go - Future balance validation

PURPOSE:
  Answers one question: if the ledger looked like <history minus excluded
  rows plus planned rows>, would this scope's running balance dip below
  zero at any point from a start date forward?

  The correction, deletion, and creation paths all reuse this walk at three
  granularities (account, entity, pocket); only the scope differs.

SIMULATION PROCESS:
  1. Balance-before: sum the scope's visible liquid deltas strictly before
     the start date.
  2. Forward replay: fetch visible rows with date >= start, drop the
     excluded ids (the rows being corrected or deleted), merge in the
     planned rows (the proposed replacement, not yet persisted), and sort
     by (date, planned-before-persisted, posted_at, id). Planned rows sort
     before persisted rows sharing a date so the tightest ordering is the
     one simulated.
  3. Walk forward accumulating the running total. The first dip below zero
     is the violation; the minimum of the running balance over the whole
     walk yields the smallest cover amount that would have prevented it.

DELTA RULE (relative to the scope):
  +InflowAmount when the scope sits on the destination side and the
  destination asset class is liquid - unless the row is a transfer whose
  destination account is the synthetic Outside account (outside-bound
  transfers do not count against a pocket's own balance). Symmetric
  outflow on the source side. Synthetic accounts are never simulated as a
  scope at all.
*/
package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SIMULATOR
// =============================================================================

type Simulator struct {
	Store    Store
	Registry Registry

	// synthetic caches Account.IsSynthetic lookups for one simulation run.
	synthetic map[AccountID]bool
}

func NewSimulator(store Store, reg Registry) *Simulator {
	return &Simulator{Store: store, Registry: reg, synthetic: make(map[AccountID]bool)}
}

// Violation reports the first point where the running balance goes
// negative.
type Violation struct {
	Scope Scope
	// Transaction is the triggering row. A planned (unpersisted) row has an
	// empty ID.
	Transaction Transaction
	Date        Date
	Balance     decimal.Decimal
	// SuggestedCover is the minimum additional amount, available from the
	// start date, that would have kept the running balance non-negative.
	SuggestedCover decimal.Decimal
	Currency       string
}

// WouldGoNegative simulates the scope from start forward and returns the
// first violation, or nil when the timeline never dips below zero.
//
// excluded names persisted rows to drop from the replay (the rows being
// corrected or deleted); planned rows are merged in as if already saved.
// Planned rows must be fully classified.
func (sim *Simulator) WouldGoNegative(
	ctx context.Context,
	user UserID,
	scope Scope,
	start Date,
	excluded map[TransactionID]bool,
	planned []Transaction,
) (*Violation, error) {
	if scope.Kind != ScopeEntity {
		synthetic, err := sim.isSynthetic(ctx, scope.Account)
		if err != nil {
			return nil, err
		}
		if synthetic {
			return nil, nil
		}
	}

	running, err := sim.balanceBefore(ctx, user, scope, start)
	if err != nil {
		return nil, err
	}

	stream, err := sim.Store.VisibleSince(ctx, user, scope, start)
	if err != nil {
		return nil, err
	}

	merged := make([]simRow, 0, len(stream)+len(planned))
	for _, t := range stream {
		if excluded[t.ID] {
			continue
		}
		merged = append(merged, simRow{tx: t, planned: false})
	}
	for _, t := range planned {
		// Planned rows obey the same visibility rule as persisted ones:
		// hidden bridge legs never replay, the parent carries the whole
		// economic effect.
		if !t.Visible() || t.Date.Before(start) || !scope.Touches(t) {
			continue
		}
		merged = append(merged, simRow{tx: t, planned: true})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.tx.Date.Equal(b.tx.Date) {
			return a.tx.Date.Before(b.tx.Date)
		}
		if a.planned != b.planned {
			return a.planned
		}
		if !a.tx.PostedAt.Equal(b.tx.PostedAt) {
			return a.tx.PostedAt.Before(b.tx.PostedAt)
		}
		return a.tx.ID < b.tx.ID
	})

	var violation *Violation
	minRunning := running
	for _, row := range merged {
		delta, err := sim.delta(ctx, scope, row.tx)
		if err != nil {
			return nil, err
		}
		running = running.Add(delta)
		if running.LessThan(minRunning) {
			minRunning = running
		}
		if violation == nil && running.IsNegative() {
			v := Violation{
				Scope:       scope,
				Transaction: row.tx,
				Date:        row.tx.Date,
				Balance:     running,
				Currency:    row.tx.Currency,
			}
			violation = &v
		}
	}

	if violation != nil {
		violation.SuggestedCover = minRunning.Neg()
	}
	return violation, nil
}

type simRow struct {
	tx      Transaction
	planned bool
}

// balanceBefore sums the scope's liquid deltas over visible rows strictly
// before the cutoff.
func (sim *Simulator) balanceBefore(ctx context.Context, user UserID, scope Scope, cutoff Date) (decimal.Decimal, error) {
	rows, err := sim.Store.VisibleBefore(ctx, user, scope, cutoff)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range rows {
		delta, err := sim.delta(ctx, scope, t)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(delta)
	}
	return total, nil
}

// delta computes the signed liquid effect of one row on the scope.
func (sim *Simulator) delta(ctx context.Context, scope Scope, t Transaction) (decimal.Decimal, error) {
	d := decimal.Zero
	if scope.OnDestination(t) && t.DestinationAsset == AssetLiquid {
		outside, err := sim.isOutside(ctx, t.AccountDestination)
		if err != nil {
			return decimal.Zero, err
		}
		if !(t.Type == TypeTransfer && outside) {
			d = d.Add(t.InflowAmount())
		}
	}
	if scope.OnSource(t) && t.SourceAsset == AssetLiquid {
		outside, err := sim.isOutside(ctx, t.AccountSource)
		if err != nil {
			return decimal.Zero, err
		}
		if !(t.Type == TypeTransfer && outside) {
			d = d.Sub(t.Amount)
		}
	}
	return d, nil
}

func (sim *Simulator) isOutside(ctx context.Context, id AccountID) (bool, error) {
	if id == "" {
		return false, nil
	}
	acc, err := sim.Registry.Account(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return acc.IsOutside(), nil
}

func (sim *Simulator) isSynthetic(ctx context.Context, id AccountID) (bool, error) {
	if id == "" {
		return false, nil
	}
	if v, ok := sim.synthetic[id]; ok {
		return v, nil
	}
	acc, err := sim.Registry.Account(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	sim.synthetic[id] = acc.IsSynthetic()
	return acc.IsSynthetic(), nil
}
