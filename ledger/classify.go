/*
classify.go - Transaction type classification

PURPOSE:
  Every transaction type maps to a fixed 4-tuple: the flow role of each side
  plus the asset class of each side. The tuple is the single source of truth
  for which side of a row is liquid (cash-like, counted for overdraft
  checks) versus non-liquid / outside / credit (excluded).

  The mapping is a closed, exhaustive switch rather than a lookup table so
  that adding a transaction type without classifying it is caught at the
  switch, not as a runtime map miss.

DERIVED FIELDS:
  Transaction.SourceRole, DestinationRole, SourceAsset, DestinationAsset are
  overwritten from this mapping every time a row is built or rebuilt. They
  are cache, never independent state.
*/
package ledger

import (
	"strings"
)

// =============================================================================
// CLOSED ENUMS
// =============================================================================

type TransactionType string

const (
	TypeIncome           TransactionType = "income"
	TypeExpense          TransactionType = "expense"
	TypeTransfer         TransactionType = "transfer"
	TypeBuyAcquisition   TransactionType = "buy_acquisition"
	TypeSellAcquisition  TransactionType = "sell_acquisition"
	TypeLoanDisbursement TransactionType = "loan_disbursement"
	TypeLoanRepayment    TransactionType = "loan_repayment"
	TypePremiumPayment   TransactionType = "premium_payment"
	TypeCCPurchase       TransactionType = "cc_purchase"
	TypeCCPayment        TransactionType = "cc_payment"
)

// FlowRole describes what a side of a transaction means economically.
type FlowRole string

const (
	RoleOutside          FlowRole = "outside"
	RoleIncome           FlowRole = "income"
	RoleExpense          FlowRole = "expense"
	RoleTransfer         FlowRole = "transfer"
	RoleBuyAcquisition   FlowRole = "buy_acquisition"
	RoleLoanDisbursement FlowRole = "loan_disbursement"
)

// AssetClass decides whether a side counts toward overdraft checks.
type AssetClass string

const (
	AssetLiquid    AssetClass = "liquid"
	AssetNonLiquid AssetClass = "non_liquid"
	AssetOutside   AssetClass = "outside"
	AssetCredit    AssetClass = "credit"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

type Classification struct {
	SourceRole       FlowRole
	DestinationRole  FlowRole
	SourceAsset      AssetClass
	DestinationAsset AssetClass
}

// Classify returns the derived 4-tuple for a transaction type. An unknown
// type is a hard classification error; callers must not persist anything.
func Classify(t TransactionType) (Classification, error) {
	switch t {
	case TypeIncome:
		return Classification{RoleOutside, RoleIncome, AssetOutside, AssetLiquid}, nil
	case TypeExpense:
		return Classification{RoleExpense, RoleOutside, AssetLiquid, AssetOutside}, nil
	case TypeTransfer:
		return Classification{RoleTransfer, RoleTransfer, AssetLiquid, AssetLiquid}, nil
	case TypeBuyAcquisition:
		return Classification{RoleTransfer, RoleBuyAcquisition, AssetLiquid, AssetNonLiquid}, nil
	case TypeSellAcquisition:
		return Classification{RoleBuyAcquisition, RoleTransfer, AssetNonLiquid, AssetLiquid}, nil
	case TypeLoanDisbursement:
		return Classification{RoleOutside, RoleLoanDisbursement, AssetOutside, AssetLiquid}, nil
	case TypeLoanRepayment:
		return Classification{RoleExpense, RoleOutside, AssetLiquid, AssetOutside}, nil
	case TypePremiumPayment:
		return Classification{RoleExpense, RoleOutside, AssetLiquid, AssetOutside}, nil
	case TypeCCPurchase:
		return Classification{RoleExpense, RoleOutside, AssetCredit, AssetOutside}, nil
	case TypeCCPayment:
		return Classification{RoleTransfer, RoleTransfer, AssetLiquid, AssetCredit}, nil
	default:
		return Classification{}, &UnknownTransactionTypeError{Type: t}
	}
}

// ParseTransactionType normalizes a user-supplied type key (space or
// underscore separated, any case) and validates it against the closed set.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_"))
	if _, err := Classify(t); err != nil {
		return "", err
	}
	return t, nil
}

// ReversalExempt reports whether a type represents external capital
// injection that cannot sensibly be cancelled by a reversal row.
func ReversalExempt(t TransactionType) bool {
	return t == TypeIncome || t == TypeLoanDisbursement
}

// Label returns the human-friendly form of a type key: underscores become
// spaces, "cc" is upper-cased, remaining words are title-cased.
func (t TransactionType) Label() string {
	if t == "" {
		return ""
	}
	parts := strings.Split(string(t), "_")
	for i, p := range parts {
		if p == "cc" {
			parts[i] = "CC"
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// applyClassification overwrites the four derived fields from the mapping.
func (t *Transaction) applyClassification() error {
	cls, err := Classify(t.Type)
	if err != nil {
		return err
	}
	t.SourceRole = cls.SourceRole
	t.DestinationRole = cls.DestinationRole
	t.SourceAsset = cls.SourceAsset
	t.DestinationAsset = cls.DestinationAsset
	return nil
}

// AllTransactionTypes lists the closed enumeration, in display order.
func AllTransactionTypes() []TransactionType {
	return []TransactionType{
		TypeIncome, TypeExpense, TypeTransfer,
		TypeBuyAcquisition, TypeSellAcquisition,
		TypeLoanDisbursement, TypeLoanRepayment,
		TypePremiumPayment, TypeCCPurchase, TypeCCPayment,
	}
}
