package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenfin/ledger-engine/ledger"
	memstore "github.com/cenfin/ledger-engine/ledger/store"
)

func amtPtr(v float64) *decimal.Decimal {
	d := amt(v)
	return &d
}

func crossCurrencyFixture(t *testing.T) (*ledger.Service, *memstore.Memory, ledger.Account, ledger.Account, ledger.Entity) {
	t.Helper()
	svc, mem := newTestService(t)
	seoul := makeAccount(t, mem, "Seoul Bank", "KRW")
	manila := makeAccount(t, mem, "Manila Bank", "PHP")
	ent := makeEntity(t, mem, "Family Support")

	_, err := svc.Create(context.Background(), income(seoul.ID, ent.ID, day(1), 2500000, "Salary"))
	require.NoError(t, err)
	return svc, mem, seoul, manila, ent
}

func TestCrossCurrencyTransfer_SplitsIntoHiddenBridgeLegs(t *testing.T) {
	// GIVEN: KRW and PHP accounts
	// WHEN: transferring 1,000,000 KRW with an explicit 40,000 PHP received
	// THEN: one visible parent carries both amounts, two hidden legs route
	//       the money through the remittance bridge, one per currency

	svc, _, seoul, manila, ent := crossCurrencyFixture(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(5), Description: "Send home", Type: ledger.TypeTransfer,
		AccountSource: seoul.ID, AccountDestination: manila.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount:            amt(1000000),
		DestinationAmount: amtPtr(40000),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, parent.GroupID)
	assert.Equal(t, "KRW", parent.Currency, "parent posts in the source currency")
	require.NotNil(t, parent.DestinationAmount)
	assert.True(t, parent.DestinationAmount.Equal(amt(40000)))

	group, err := svc.TransactionGroup(ctx, parent.GroupID)
	require.NoError(t, err)
	require.Len(t, group, 3, "parent plus two bridge legs")

	var legs []ledger.Transaction
	for _, g := range group {
		if g.ID != parent.ID {
			legs = append(legs, g)
		}
	}
	require.Len(t, legs, 2)
	for _, leg := range legs {
		assert.True(t, leg.Hidden)
		assert.Equal(t, parent.ID, leg.ParentID)
		assert.Equal(t, parent.GroupID, leg.GroupID)
		assert.Equal(t, ledger.TypeTransfer, leg.Type)
		assert.Nil(t, leg.DestinationAmount, "a single-currency leg carries only Amount")
	}

	// One leg leaves the source in KRW, the other lands in PHP.
	currencies := map[string]bool{legs[0].Currency: true, legs[1].Currency: true}
	assert.True(t, currencies["KRW"] && currencies["PHP"], "each leg stays single-currency")

	// Visible history shows only the parent.
	visible, err := svc.Transactions(ctx, testUser, false)
	require.NoError(t, err)
	require.Len(t, visible, 2, "the salary and the parent transfer")
}

func TestCrossCurrencyTransfer_BalancesUseEachSidesOwnAmount(t *testing.T) {
	svc, _, seoul, manila, ent := crossCurrencyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(5), Description: "Send home", Type: ledger.TypeTransfer,
		AccountSource: seoul.ID, AccountDestination: manila.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount:            amt(1000000),
		DestinationAmount: amtPtr(40000),
	})
	require.NoError(t, err)

	seoulBal, err := svc.AccountBalance(ctx, testUser, seoul.ID)
	require.NoError(t, err)
	assert.True(t, seoulBal.Equal(amt(1500000)), "seoul holds %s", seoulBal)

	manilaBal, err := svc.AccountBalance(ctx, testUser, manila.ID)
	require.NoError(t, err)
	assert.True(t, manilaBal.Equal(amt(40000)), "manila holds %s", manilaBal)
}

func TestCrossCurrencyTransfer_UsesTheRateWhenNoAmountGiven(t *testing.T) {
	// The static table carries KRW/PHP = 0.04.

	svc, _, seoul, manila, ent := crossCurrencyFixture(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(5), Description: "Send home", Type: ledger.TypeTransfer,
		AccountSource: seoul.ID, AccountDestination: manila.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount: amt(1000000),
	})
	require.NoError(t, err)

	require.NotNil(t, parent.DestinationAmount)
	assert.True(t, parent.DestinationAmount.Equal(amt(40000)), "1,000,000 at 0.04")
}

func TestCrossCurrencyTransfer_MissingRateFails(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	seoul := makeAccount(t, mem, "Seoul Bank", "KRW")
	zurich := makeAccount(t, mem, "Zurich Bank", "CHF")
	ent := makeEntity(t, mem, "Main")

	_, err := svc.Create(ctx, income(seoul.ID, ent.ID, day(1), 1000000, "Salary"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(2), Description: "No rate", Type: ledger.TypeTransfer,
		AccountSource: seoul.ID, AccountDestination: zurich.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount: amt(100),
	})
	require.Error(t, err, "a missing rate must never fall back to 1:1")
}

func TestCrossCurrencyTransfer_CorrectionRegeneratesTheLegs(t *testing.T) {
	// Correcting the parent reverses the whole unit and cuts fresh legs from
	// the replacement; the old legs survive only in the audit trail.

	svc, _, seoul, manila, ent := crossCurrencyFixture(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(5), Description: "Send home", Type: ledger.TypeTransfer,
		AccountSource: seoul.ID, AccountDestination: manila.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount:            amt(1000000),
		DestinationAmount: amtPtr(40000),
	})
	require.NoError(t, err)

	oldGroup, err := svc.TransactionGroup(ctx, parent.GroupID)
	require.NoError(t, err)
	require.Len(t, oldGroup, 3)

	corrected, err := svc.Correct(ctx, parent.ID, ledger.CreateRequest{
		UserID:            testUser,
		Amount:            amt(900000),
		DestinationAmount: amtPtr(36000),
	}, testUser)
	require.NoError(t, err)

	newGroup, err := svc.TransactionGroup(ctx, corrected.GroupID)
	require.NoError(t, err)
	var freshLegs int
	for _, g := range newGroup {
		if g.ParentID == corrected.ID {
			freshLegs++
			assert.True(t, g.Hidden)
		}
	}
	assert.Equal(t, 2, freshLegs, "the replacement cuts its own legs")

	for _, old := range oldGroup {
		stored, err := svc.Transaction(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusReversed, stored.Status)
		assert.True(t, stored.Hidden)
	}

	manilaBal, err := svc.AccountBalance(ctx, testUser, manila.ID)
	require.NoError(t, err)
	assert.True(t, manilaBal.Equal(amt(36000)))
}

func TestCrossCurrencyTransfer_BridgeLegCannotBeDeletedAlone(t *testing.T) {
	// Deleting any group member expands to the whole unit.

	svc, _, seoul, manila, ent := crossCurrencyFixture(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(5), Description: "Send home", Type: ledger.TypeTransfer,
		AccountSource: seoul.ID, AccountDestination: manila.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount:            amt(1000000),
		DestinationAmount: amtPtr(40000),
	})
	require.NoError(t, err)

	group, err := svc.TransactionGroup(ctx, parent.GroupID)
	require.NoError(t, err)
	var leg ledger.Transaction
	for _, g := range group {
		if g.ParentID == parent.ID {
			leg = g
			break
		}
	}
	require.NotEmpty(t, leg.ID)

	_, err = svc.Delete(ctx, leg.ID, ledger.DeleteUnitOnly, testUser)
	require.NoError(t, err)

	storedParent, err := svc.Transaction(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDeleted, storedParent.Status, "the whole unit goes together")
}

func TestCrossCurrencyTransfer_UndoDeleteRestoresTheWholeGroup(t *testing.T) {
	// GIVEN: a deleted cross-currency unit (parent plus two bridge legs)
	// WHEN: undoing the deletion
	// THEN: only the parent is a valid undo target, and restoring it brings
	//       every group member back

	svc, _, seoul, manila, ent := crossCurrencyFixture(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(5), Description: "Send home", Type: ledger.TypeTransfer,
		AccountSource: seoul.ID, AccountDestination: manila.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount:            amt(1000000),
		DestinationAmount: amtPtr(40000),
	})
	require.NoError(t, err)

	group, err := svc.TransactionGroup(ctx, parent.GroupID)
	require.NoError(t, err)
	var leg ledger.Transaction
	for _, g := range group {
		if g.ParentID == parent.ID {
			leg = g
			break
		}
	}
	require.NotEmpty(t, leg.ID)

	_, err = svc.Delete(ctx, parent.ID, ledger.DeleteUnitOnly, testUser)
	require.NoError(t, err)

	_, err = svc.UndoDelete(ctx, leg.ID, testUser)
	assert.ErrorIs(t, err, ledger.ErrNotDeleted, "legs point at their parent")

	restored, err := svc.UndoDelete(ctx, parent.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, restored.Status)

	for _, g := range group {
		stored, err := svc.Transaction(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusPosted, stored.Status)
	}

	manilaBal, err := svc.AccountBalance(ctx, testUser, manila.ID)
	require.NoError(t, err)
	assert.True(t, manilaBal.Equal(amt(40000)))
}
