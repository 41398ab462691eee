/*
Package rates resolves exchange rates for cross-currency transfers and
validates currency codes.

The ledger only needs a rate when a transfer crosses currencies and the
caller did not state the destination amount. The Converter interface keeps
the source pluggable; the Static implementation serves a fixed table and is
what the server and the tests use. Currency codes are validated against the
ISO 4217 registry shipped with go-money.
*/
package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ErrMissingRate reports that no rate is available for a currency pair.
var ErrMissingRate = errors.New("no exchange rate available")

type MissingRateError struct {
	From string
	To   string
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("no exchange rate available for %s/%s", e.From, e.To)
}

func (e *MissingRateError) Unwrap() error { return ErrMissingRate }

// Converter supplies the rate that turns one unit of From into To.
type Converter interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Known reports whether code is a registered ISO 4217 currency.
func Known(code string) bool {
	return money.GetCurrency(code) != nil
}

// Format renders an amount with the currency's own symbol and minor-unit
// convention, e.g. "₱1,234.50" or "₩1,000".
func Format(amount decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		if code == "" {
			return amount.StringFixed(2)
		}
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), code).Display()
}

// =============================================================================
// STATIC TABLE
// =============================================================================

// Static is a fixed-table Converter. Same-currency pairs resolve to 1, a
// missing direct rate falls back to the inverse pair.
type Static struct {
	table map[pair]decimal.Decimal
}

type pair struct{ from, to string }

// NewStatic builds a Static converter. Keys are "FROM/TO", e.g. "KRW/PHP".
func NewStatic(quotes map[string]decimal.Decimal) (*Static, error) {
	s := &Static{table: make(map[pair]decimal.Decimal, len(quotes))}
	for k, rate := range quotes {
		var from, to string
		if _, err := fmt.Sscanf(k, "%3s/%3s", &from, &to); err != nil {
			return nil, fmt.Errorf("malformed rate key %q: want FROM/TO", k)
		}
		if !Known(from) || !Known(to) {
			return nil, fmt.Errorf("rate key %q names an unknown currency", k)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %q must be positive", k)
		}
		s.table[pair{from, to}] = rate
	}
	return s, nil
}

func (s *Static) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := s.table[pair{from, to}]; ok {
		return r, nil
	}
	if r, ok := s.table[pair{to, from}]; ok {
		return decimal.NewFromInt(1).Div(r), nil
	}
	return decimal.Decimal{}, &MissingRateError{From: from, To: to}
}
