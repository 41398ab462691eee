package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenfin/ledger-engine/ledger"
	"github.com/cenfin/ledger-engine/store/sqlite"
)

const testUser = ledger.UserID("u-sql")

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleTx(id string, d ledger.Date, seq int64) ledger.Transaction {
	da := decimal.NewFromInt(40)
	return ledger.Transaction{
		ID:                 ledger.TransactionID(id),
		UserID:             testUser,
		Date:               d,
		PostedAt:           time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Description:        "row " + id,
		AccountSource:      "acc-src",
		AccountDestination: "acc-dst",
		EntitySource:       "ent-src",
		EntityDestination:  "ent-dst",
		Type:               ledger.TypeTransfer,
		SourceRole:         ledger.RoleTransfer,
		DestinationRole:    ledger.RoleTransfer,
		SourceAsset:        ledger.AssetLiquid,
		DestinationAsset:   ledger.AssetLiquid,
		Amount:             decimal.NewFromInt(1000),
		DestinationAmount:  &da,
		Currency:           "KRW",
		SeqAccount:         seq,
		Status:             ledger.StatusPosted,
	}
}

func TestStore_AppendAndGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	want := sampleTx("tx-1", ledger.NewDate(2025, time.June, 3), 1)
	require.NoError(t, st.Append(ctx, want))

	got, err := st.Get(ctx, want.ID)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Date, got.Date)
	assert.True(t, want.PostedAt.Equal(got.PostedAt))
	assert.Equal(t, want.AccountSource, got.AccountSource)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.SourceAsset, got.SourceAsset)
	assert.True(t, want.Amount.Equal(got.Amount))
	require.NotNil(t, got.DestinationAmount)
	assert.True(t, want.DestinationAmount.Equal(*got.DestinationAmount))
	assert.Equal(t, want.SeqAccount, got.SeqAccount)
	assert.Equal(t, ledger.StatusPosted, got.Status)
	assert.False(t, got.Hidden)
}

func TestStore_GetUnknownIsNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Get(context.Background(), "no-such-row")
	assert.True(t, ledger.IsNotFound(err), "got %v", err)
}

func TestStore_ScopeQueriesFilterAndSort(t *testing.T) {
	// Three rows across two dates; the account scope must return only rows
	// touching the account, oldest first, and respect the date windows.

	st := newTestStore(t)
	ctx := context.Background()

	t1 := sampleTx("tx-1", ledger.NewDate(2025, time.June, 1), 1)
	t2 := sampleTx("tx-2", ledger.NewDate(2025, time.June, 5), 2)
	t3 := sampleTx("tx-3", ledger.NewDate(2025, time.June, 9), 3)
	t3.AccountSource = "elsewhere"
	t3.AccountDestination = "elsewhere-2"
	require.NoError(t, st.AppendBatch(ctx, []ledger.Transaction{t1, t2, t3}))

	scope := ledger.AccountScope("acc-src")

	rows, err := st.VisibleForScope(ctx, testUser, scope)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, t1.ID, rows[0].ID, "oldest first")
	assert.Equal(t, t2.ID, rows[1].ID)

	before, err := st.VisibleBefore(ctx, testUser, scope, ledger.NewDate(2025, time.June, 5))
	require.NoError(t, err)
	require.Len(t, before, 1, "cutoff is exclusive")
	assert.Equal(t, t1.ID, before[0].ID)

	since, err := st.VisibleSince(ctx, testUser, scope, ledger.NewDate(2025, time.June, 5))
	require.NoError(t, err)
	require.Len(t, since, 1, "start is inclusive")
	assert.Equal(t, t2.ID, since[0].ID)

	// Pocket scope needs both sides to match.
	pocket, err := st.VisibleForScope(ctx, testUser, ledger.PocketScope("acc-src", "ent-src"))
	require.NoError(t, err)
	assert.Len(t, pocket, 2)
	pocket, err = st.VisibleForScope(ctx, testUser, ledger.PocketScope("acc-src", "ent-dst"))
	require.NoError(t, err)
	assert.Empty(t, pocket)
}

func TestStore_SequenceQueries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"tx-1", "tx-2", "tx-3"} {
		require.NoError(t, st.Append(ctx, sampleTx(id, ledger.NewDate(2025, time.June, i+1), int64(i+1))))
	}

	max, err := st.MaxSeq(ctx, testUser, "acc-src")
	require.NoError(t, err)
	assert.Equal(t, int64(3), max)

	max, err = st.MaxSeq(ctx, testUser, "untouched")
	require.NoError(t, err)
	assert.Equal(t, int64(0), max, "empty account reads as zero")

	newer, err := st.NewerThan(ctx, testUser, "acc-src", 1, 0)
	require.NoError(t, err)
	require.Len(t, newer, 2)
	assert.Equal(t, ledger.TransactionID("tx-3"), newer[0].ID, "descending by sequence")
	assert.Equal(t, ledger.TransactionID("tx-2"), newer[1].ID)

	newer, err = st.NewerThan(ctx, testUser, "acc-src", 1, 1)
	require.NoError(t, err)
	require.Len(t, newer, 1, "limit caps the result")
}

func TestStore_GroupAndLegLookups(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	parent := sampleTx("tx-p", ledger.NewDate(2025, time.June, 1), 1)
	parent.GroupID = "grp-1"
	leg := sampleTx("tx-l", ledger.NewDate(2025, time.June, 1), 1)
	leg.GroupID = "grp-1"
	leg.ParentID = parent.ID
	leg.Hidden = true
	require.NoError(t, st.AppendBatch(ctx, []ledger.Transaction{parent, leg}))

	group, err := st.ByGroup(ctx, "grp-1")
	require.NoError(t, err)
	assert.Len(t, group, 2, "hidden members included")

	legs, err := st.ChildLegs(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, leg.ID, legs[0].ID)
}

func TestStore_StateTransitions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	tx := sampleTx("tx-1", ledger.NewDate(2025, time.June, 1), 1)
	require.NoError(t, st.Append(ctx, tx))

	require.NoError(t, st.MarkReversed(ctx, tx.ID, testUser, at))
	got, err := st.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReversed, got.Status)
	assert.Equal(t, testUser, got.ReversedBy)
	assert.True(t, at.Equal(got.ReversedAt))

	require.NoError(t, st.SetHidden(ctx, []ledger.TransactionID{tx.ID}, true))
	got, err = st.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.Hidden)

	require.NoError(t, st.MarkDeleted(ctx, tx.ID, testUser, at))
	got, err = st.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDeleted, got.Status)
	assert.Equal(t, testUser, got.DeletedBy)

	// Reversed and deleted rows vanish from the visible list but not the
	// audit list.
	visible, err := st.ListVisible(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := st.ListAll(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Restore clears both sets of audit stamps and returns the row to
	// posted. Hidden is left alone.
	require.NoError(t, st.Restore(ctx, tx.ID))
	got, err = st.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, got.Status)
	assert.True(t, got.ReversedAt.IsZero())
	assert.Empty(t, got.ReversedBy)
	assert.True(t, got.DeletedAt.IsZero())
	assert.Empty(t, got.DeletedBy)
	assert.True(t, got.Hidden)

	err = st.MarkDeleted(ctx, "no-such-row", testUser, at)
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(s ledger.Store) error {
		if err := s.Append(ctx, sampleTx("tx-1", ledger.NewDate(2025, time.June, 1), 1)); err != nil {
			return err
		}
		// The transactional view reads its own writes.
		if _, err := s.Get(ctx, "tx-1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Get(ctx, "tx-1")
	assert.True(t, ledger.IsNotFound(err), "rollback discards the append")
}

func TestStore_WithTxCommits(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(s ledger.Store) error {
		return s.Append(ctx, sampleTx("tx-1", ledger.NewDate(2025, time.June, 1), 1))
	})
	require.NoError(t, err)

	_, err = st.Get(ctx, "tx-1")
	assert.NoError(t, err)
}

func TestStore_RegistryRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	acc := ledger.Account{
		ID: "acc-1", UserID: testUser, Name: "Checking",
		Kind: ledger.AccountBank, Currency: "USD", Visible: true,
	}
	require.NoError(t, st.CreateAccount(ctx, acc))
	got, err := st.Account(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc, got)

	ent := ledger.Entity{
		ID: "ent-1", UserID: testUser, Name: "Living",
		Kind: ledger.EntityFund, Visible: true,
	}
	require.NoError(t, st.CreateEntity(ctx, ent))
	gotEnt, err := st.Entity(ctx, ent.ID)
	require.NoError(t, err)
	assert.Equal(t, ent, gotEnt)

	accounts, err := st.ListAccounts(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	_, err = st.Account(ctx, "nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_SyntheticSingletonsAreIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a1, err := st.EnsureOutsideAccount(ctx, testUser)
	require.NoError(t, err)
	a2, err := st.EnsureOutsideAccount(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID, "one Outside account per user")
	assert.True(t, a1.IsSynthetic())

	r1, err := st.EnsureRemittanceAccount(ctx, testUser)
	require.NoError(t, err)
	assert.NotEqual(t, a1.ID, r1.ID)

	e1, err := st.EnsureOutsideEntity(ctx, testUser)
	require.NoError(t, err)
	e2, err := st.EnsureOutsideEntity(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, e1.ID, e2.ID)

	// Another user gets their own singletons.
	other, err := st.EnsureOutsideAccount(ctx, ledger.UserID("u-other"))
	require.NoError(t, err)
	assert.NotEqual(t, a1.ID, other.ID)
}
