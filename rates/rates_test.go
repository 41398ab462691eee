package rates_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenfin/ledger-engine/rates"
)

func TestStatic_Rate(t *testing.T) {
	conv, err := rates.NewStatic(map[string]decimal.Decimal{
		"KRW/PHP": decimal.NewFromFloat(0.04),
	})
	require.NoError(t, err)
	ctx := context.Background()

	// Same currency is always 1, table or not.
	r, err := conv.Rate(ctx, "USD", "USD")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))

	// Direct quote.
	r, err = conv.Rate(ctx, "KRW", "PHP")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromFloat(0.04)))

	// Inverse falls back to 1/r.
	r, err = conv.Rate(ctx, "PHP", "KRW")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(25)))
}

func TestStatic_MissingRate(t *testing.T) {
	conv, err := rates.NewStatic(nil)
	require.NoError(t, err)

	_, err = conv.Rate(context.Background(), "KRW", "CHF")
	require.Error(t, err)

	var missing *rates.MissingRateError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "KRW", missing.From)
	assert.Equal(t, "CHF", missing.To)
	assert.ErrorIs(t, err, rates.ErrMissingRate)
}

func TestNewStatic_RejectsBadTables(t *testing.T) {
	// Unknown currency in the key.
	_, err := rates.NewStatic(map[string]decimal.Decimal{
		"XXY/PHP": decimal.NewFromInt(1),
	})
	assert.Error(t, err)

	// Non-positive rate.
	_, err = rates.NewStatic(map[string]decimal.Decimal{
		"KRW/PHP": decimal.Zero,
	})
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	assert.True(t, rates.Known("USD"))
	assert.True(t, rates.Known("KRW"))
	assert.False(t, rates.Known("BTC-ISH"))
	assert.False(t, rates.Known(""))
}

func TestFormat(t *testing.T) {
	// Two minor digits for PHP, zero for KRW.
	assert.Equal(t, "₱1,234.50", rates.Format(decimal.NewFromFloat(1234.5), "PHP"))
	assert.Equal(t, "₩1,000", rates.Format(decimal.NewFromInt(1000), "KRW"))

	// Unknown codes degrade to a plain suffix form.
	assert.Equal(t, "12.30 ZZZ", rates.Format(decimal.NewFromFloat(12.3), "ZZZ"))
	assert.Equal(t, "12.30", rates.Format(decimal.NewFromFloat(12.3), ""))
}
