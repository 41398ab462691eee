package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenfin/ledger-engine/ledger"
)

// =============================================================================
// CLASSIFICATION TABLE TESTS
// =============================================================================

func TestClassify_EveryTypeHasATuple(t *testing.T) {
	// GIVEN: the closed set of transaction types
	// WHEN: classifying each one
	// THEN: every type yields a tuple without error

	for _, tt := range ledger.AllTransactionTypes() {
		cls, err := ledger.Classify(tt)
		require.NoError(t, err, "type %s must classify", tt)
		assert.NotEmpty(t, cls.SourceRole, "type %s", tt)
		assert.NotEmpty(t, cls.DestinationRole, "type %s", tt)
		assert.NotEmpty(t, cls.SourceAsset, "type %s", tt)
		assert.NotEmpty(t, cls.DestinationAsset, "type %s", tt)
	}
}

func TestClassify_LiquiditySides(t *testing.T) {
	// The asset classes drive the overdraft checks, so pin the full table.

	cases := []struct {
		tt       ledger.TransactionType
		srcAsset ledger.AssetClass
		dstAsset ledger.AssetClass
	}{
		{ledger.TypeIncome, ledger.AssetOutside, ledger.AssetLiquid},
		{ledger.TypeExpense, ledger.AssetLiquid, ledger.AssetOutside},
		{ledger.TypeTransfer, ledger.AssetLiquid, ledger.AssetLiquid},
		{ledger.TypeBuyAcquisition, ledger.AssetLiquid, ledger.AssetNonLiquid},
		{ledger.TypeSellAcquisition, ledger.AssetNonLiquid, ledger.AssetLiquid},
		{ledger.TypeLoanDisbursement, ledger.AssetOutside, ledger.AssetLiquid},
		{ledger.TypeLoanRepayment, ledger.AssetLiquid, ledger.AssetOutside},
		{ledger.TypePremiumPayment, ledger.AssetLiquid, ledger.AssetOutside},
		{ledger.TypeCCPurchase, ledger.AssetCredit, ledger.AssetOutside},
		{ledger.TypeCCPayment, ledger.AssetLiquid, ledger.AssetCredit},
	}
	for _, c := range cases {
		cls, err := ledger.Classify(c.tt)
		require.NoError(t, err)
		assert.Equal(t, c.srcAsset, cls.SourceAsset, "source asset for %s", c.tt)
		assert.Equal(t, c.dstAsset, cls.DestinationAsset, "destination asset for %s", c.tt)
	}
}

func TestClassify_UnknownTypeRejected(t *testing.T) {
	_, err := ledger.Classify("dividend")

	require.Error(t, err)
	var unknownErr *ledger.UnknownTransactionTypeError
	assert.ErrorAs(t, err, &unknownErr)
	assert.ErrorIs(t, err, ledger.ErrUnknownTransactionType)
}

func TestParseTransactionType_NormalizesInput(t *testing.T) {
	for input, want := range map[string]ledger.TransactionType{
		"income":           ledger.TypeIncome,
		"Buy Acquisition":  ledger.TypeBuyAcquisition,
		"  CC Purchase  ":  ledger.TypeCCPurchase,
		"loan_repayment":   ledger.TypeLoanRepayment,
		"SELL ACQUISITION": ledger.TypeSellAcquisition,
	} {
		got, err := ledger.ParseTransactionType(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}

	_, err := ledger.ParseTransactionType("withdrawal")
	assert.ErrorIs(t, err, ledger.ErrUnknownTransactionType)
}

func TestReversalExempt(t *testing.T) {
	assert.True(t, ledger.ReversalExempt(ledger.TypeIncome))
	assert.True(t, ledger.ReversalExempt(ledger.TypeLoanDisbursement))
	assert.False(t, ledger.ReversalExempt(ledger.TypeExpense))
	assert.False(t, ledger.ReversalExempt(ledger.TypeTransfer))
	assert.False(t, ledger.ReversalExempt(ledger.TypeCCPayment))
}

func TestTypeLabel(t *testing.T) {
	assert.Equal(t, "Income", ledger.TypeIncome.Label())
	assert.Equal(t, "Buy Acquisition", ledger.TypeBuyAcquisition.Label())
	assert.Equal(t, "CC Purchase", ledger.TypeCCPurchase.Label())
	assert.Equal(t, "Loan Disbursement", ledger.TypeLoanDisbursement.Label())
}
