package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenfin/ledger-engine/ledger"
	memstore "github.com/cenfin/ledger-engine/ledger/store"
	"github.com/cenfin/ledger-engine/rates"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testUser = ledger.UserID("u-1")

func newTestService(t *testing.T) (*ledger.Service, *memstore.Memory) {
	t.Helper()
	mem := memstore.NewMemory()
	conv, err := rates.NewStatic(map[string]decimal.Decimal{
		"KRW/PHP": decimal.NewFromFloat(0.04),
	})
	require.NoError(t, err)
	svc := ledger.NewService(mem, mem, conv, ledger.DefaultConfig())
	return svc, mem
}

func makeAccount(t *testing.T, mem *memstore.Memory, name, currency string) ledger.Account {
	t.Helper()
	a := ledger.Account{
		ID:       ledger.NewAccountID(),
		UserID:   testUser,
		Name:     name,
		Kind:     ledger.AccountBank,
		Currency: currency,
		Visible:  true,
	}
	require.NoError(t, mem.CreateAccount(context.Background(), a))
	return a
}

func makeEntity(t *testing.T, mem *memstore.Memory, name string) ledger.Entity {
	t.Helper()
	e := ledger.Entity{
		ID:      ledger.NewEntityID(),
		UserID:  testUser,
		Name:    name,
		Kind:    ledger.EntityFund,
		Visible: true,
	}
	require.NoError(t, mem.CreateEntity(context.Background(), e))
	return e
}

func day(n int) ledger.Date {
	return ledger.NewDate(2025, time.June, n)
}

func amt(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func income(acc ledger.AccountID, ent ledger.EntityID, d ledger.Date, v float64, desc string) ledger.CreateRequest {
	return ledger.CreateRequest{
		UserID: testUser, Date: d, Description: desc, Type: ledger.TypeIncome,
		AccountDestination: acc, EntityDestination: ent,
		Amount: amt(v),
	}
}

func expense(acc ledger.AccountID, ent ledger.EntityID, d ledger.Date, v float64, desc string) ledger.CreateRequest {
	return ledger.CreateRequest{
		UserID: testUser, Date: d, Description: desc, Type: ledger.TypeExpense,
		AccountSource: acc, EntitySource: ent,
		Amount: amt(v),
	}
}

// =============================================================================
// CREATION PATH
// =============================================================================

func TestCreate_AssignsDerivedFieldsAndSequence(t *testing.T) {
	// GIVEN: a fresh account and entity
	// WHEN: posting income, then an expense
	// THEN: both rows carry the classification tuple and monotone sequences

	svc, mem := newTestService(t)
	ctx := context.Background()
	acc := makeAccount(t, mem, "Checking", "USD")
	ent := makeEntity(t, mem, "Living")

	in, err := svc.Create(ctx, income(acc.ID, ent.ID, day(1), 100, "Salary"))
	require.NoError(t, err)
	assert.Equal(t, ledger.RoleIncome, in.DestinationRole)
	assert.Equal(t, ledger.AssetLiquid, in.DestinationAsset)
	assert.Equal(t, ledger.StatusPosted, in.Status)
	assert.Equal(t, int64(1), in.SeqAccount)
	assert.Equal(t, "USD", in.Currency, "currency inferred from the destination account")

	out, err := svc.Create(ctx, expense(acc.ID, ent.ID, day(2), 40, "Groceries"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.SeqAccount)

	bal, err := svc.AccountBalance(ctx, testUser, acc.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(amt(60)), "balance is %s", bal)
}

func TestCreate_NegativeAmountRejected(t *testing.T) {
	svc, mem := newTestService(t)
	acc := makeAccount(t, mem, "Checking", "USD")
	ent := makeEntity(t, mem, "Living")

	req := income(acc.ID, ent.ID, day(1), 100, "Salary")
	req.Amount = decimal.NewFromInt(-5)
	_, err := svc.Create(context.Background(), req)

	assert.ErrorIs(t, err, ledger.ErrAmountNegative)
}

func TestCreate_UnknownTypeRejected(t *testing.T) {
	svc, mem := newTestService(t)
	acc := makeAccount(t, mem, "Checking", "USD")
	ent := makeEntity(t, mem, "Living")

	req := income(acc.ID, ent.ID, day(1), 100, "Salary")
	req.Type = "dividend"
	_, err := svc.Create(context.Background(), req)

	assert.ErrorIs(t, err, ledger.ErrUnknownTransactionType)
}

func TestCreate_InsufficientFundsRejected(t *testing.T) {
	// GIVEN: 100 in the account
	// WHEN: spending 150 today
	// THEN: rejected with the available/requested amounts, nothing persisted

	svc, mem := newTestService(t)
	ctx := context.Background()
	acc := makeAccount(t, mem, "Checking", "USD")
	ent := makeEntity(t, mem, "Living")

	_, err := svc.Create(ctx, income(acc.ID, ent.ID, day(1), 100, "Salary"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, expense(acc.ID, ent.ID, day(2), 150, "Laptop"))
	require.Error(t, err)

	var insufficientErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.True(t, insufficientErr.Available.Equal(amt(100)))
	assert.True(t, insufficientErr.Requested.Equal(amt(150)))

	txs, err := svc.Transactions(ctx, testUser, false)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "the failed expense must not persist")
}

func TestCreate_PocketOverdraftRejected(t *testing.T) {
	// GIVEN: 100 earmarked for Living in one account and nothing for Travel
	// WHEN: spending 50 from the Travel pocket of the same account
	// THEN: the account could pay, but the pocket projection rejects it

	svc, mem := newTestService(t)
	ctx := context.Background()
	acc := makeAccount(t, mem, "Checking", "USD")
	living := makeEntity(t, mem, "Living")
	travel := makeEntity(t, mem, "Travel")

	_, err := svc.Create(ctx, income(acc.ID, living.ID, day(1), 100, "Salary"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, expense(acc.ID, travel.ID, day(2), 50, "Flights"))
	require.Error(t, err)

	var nbErr *ledger.NegativeBalanceError
	require.ErrorAs(t, err, &nbErr)
	assert.Equal(t, ledger.ScopePocket, nbErr.Violation.Scope.Kind)
	assert.True(t, nbErr.Violation.Balance.Equal(amt(-50)))
	assert.True(t, nbErr.Violation.SuggestedCover.Equal(amt(50)))
}

func TestCreate_CurrencyMismatchOnNonTransfer(t *testing.T) {
	// Only plain transfers may bridge currencies; any other cross-currency
	// pairing is a hard error.

	svc, mem := newTestService(t)
	ctx := context.Background()
	krw := makeAccount(t, mem, "Seoul", "KRW")
	php := makeAccount(t, mem, "Manila", "PHP")
	ent := makeEntity(t, mem, "Assets")

	_, err := svc.Create(ctx, income(krw.ID, ent.ID, day(1), 1000000, "Salary"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(2), Description: "Buy abroad", Type: ledger.TypeBuyAcquisition,
		AccountSource: krw.ID, AccountDestination: php.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount: amt(500000),
	})
	require.Error(t, err)

	var mismatchErr *ledger.CurrencyMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	assert.Equal(t, "KRW", mismatchErr.SourceCurrency)
	assert.Equal(t, "PHP", mismatchErr.DestinationCurrency)
}

func TestCreate_SameAccountTransferMovesBetweenPockets(t *testing.T) {
	// GIVEN: 100 in the Living pocket
	// WHEN: transferring 30 to the Travel pocket inside the same account
	// THEN: the account total is unchanged, the pockets moved

	svc, mem := newTestService(t)
	ctx := context.Background()
	acc := makeAccount(t, mem, "Checking", "USD")
	living := makeEntity(t, mem, "Living")
	travel := makeEntity(t, mem, "Travel")

	_, err := svc.Create(ctx, income(acc.ID, living.ID, day(1), 100, "Salary"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(2), Description: "Earmark travel", Type: ledger.TypeTransfer,
		AccountSource: acc.ID, AccountDestination: acc.ID,
		EntitySource: living.ID, EntityDestination: travel.ID,
		Amount: amt(30),
	})
	require.NoError(t, err)

	accBal, err := svc.AccountBalance(ctx, testUser, acc.ID)
	require.NoError(t, err)
	assert.True(t, accBal.Equal(amt(100)), "account total unchanged, got %s", accBal)

	livingBal, err := svc.PocketBalance(ctx, testUser, acc.ID, living.ID)
	require.NoError(t, err)
	assert.True(t, livingBal.Equal(amt(70)))

	travelBal, err := svc.PocketBalance(ctx, testUser, acc.ID, travel.ID)
	require.NoError(t, err)
	assert.True(t, travelBal.Equal(amt(30)))
}

func TestCreate_BuyAcquisitionExcludedFromLiquidBalances(t *testing.T) {
	// A buy_acquisition keeps the account-level money trail but removes the
	// amount from the entity's liquid balance.

	svc, mem := newTestService(t)
	ctx := context.Background()
	cash := makeAccount(t, mem, "Cash", "USD")
	vault := makeAccount(t, mem, "Gold Vault", "USD")
	ent := makeEntity(t, mem, "Assets")

	_, err := svc.Create(ctx, income(cash.ID, ent.ID, day(1), 1000, "Salary"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(2), Description: "Buy gold", Type: ledger.TypeBuyAcquisition,
		AccountSource: cash.ID, AccountDestination: vault.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount: amt(400),
	})
	require.NoError(t, err)

	entBal, err := svc.EntityBalance(ctx, testUser, ent.ID)
	require.NoError(t, err)
	assert.True(t, entBal.Equal(amt(600)), "liquid entity balance is %s", entBal)

	vaultBal, err := svc.AccountBalance(ctx, testUser, vault.ID)
	require.NoError(t, err)
	assert.True(t, vaultBal.Equal(amt(400)), "account trail still shows the gold")
}

func TestCreate_SequencesSharedAcrossTouchedAccounts(t *testing.T) {
	// A transfer touches two accounts and takes one sequence above both.

	svc, mem := newTestService(t)
	ctx := context.Background()
	a := makeAccount(t, mem, "A", "USD")
	b := makeAccount(t, mem, "B", "USD")
	ent := makeEntity(t, mem, "Main")

	first, err := svc.Create(ctx, income(a.ID, ent.ID, day(1), 100, "Seed A"))
	require.NoError(t, err)
	second, err := svc.Create(ctx, income(b.ID, ent.ID, day(1), 100, "Seed B"))
	require.NoError(t, err)

	tr, err := svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Date: day(2), Description: "Move", Type: ledger.TypeTransfer,
		AccountSource: a.ID, AccountDestination: b.ID,
		EntitySource: ent.ID, EntityDestination: ent.ID,
		Amount: amt(10),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.SeqAccount)
	assert.Equal(t, int64(2), second.SeqAccount)
	assert.Equal(t, int64(3), tr.SeqAccount, "one above the max over both accounts")
}

func TestCreate_DefaultsDateAndBaseCurrency(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	ent := makeEntity(t, mem, "Living")
	acc := makeAccount(t, mem, "NoCurrency", "")

	tx, err := svc.Create(ctx, ledger.CreateRequest{
		UserID: testUser, Description: "Untagged income", Type: ledger.TypeIncome,
		AccountDestination: acc.ID, EntityDestination: ent.ID,
		Amount: amt(10),
	})
	require.NoError(t, err)
	assert.False(t, tx.Date.IsZero(), "date defaults to today")
	assert.Equal(t, "USD", tx.Currency, "falls back to the base currency")
}
