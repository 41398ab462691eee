/*
splitter.go - Cross-currency transfer splitting

PURPOSE:
  A transfer between accounts of different currencies cannot post as one
  row without mixing currencies inside a single leg. Instead the visible
  parent row carries both amounts, and two hidden bridge legs route the
  money through a synthetic per-user Remittance account/entity so each leg
  stays single-currency:

    leg A: real source      -> Remittance   (source currency)
    leg B: Remittance       -> real dest    (dest currency)

  Both legs share the parent's GroupID and point at it via ParentID. They
  are derived state: a correction of the parent reverses and regenerates
  them, never edits them.

RATES:
  When the caller supplies no destination amount the conversion collaborator
  must provide a rate; a missing rate is a hard failure, never a silent 1:1.
*/
package ledger

import (
	"context"
)

// splitCrossCurrency finalizes the parent row of a cross-currency transfer
// and returns its two hidden bridge legs, unpersisted.
func (s *Service) splitCrossCurrency(ctx context.Context, tx *Transaction, srcAcc, dstAcc Account) ([]Transaction, error) {
	destAmt := tx.DestinationAmount
	if destAmt == nil {
		rate, err := s.rates.Rate(ctx, srcAcc.Currency, dstAcc.Currency)
		if err != nil {
			return nil, err
		}
		v := tx.Amount.Mul(rate).Round(2)
		destAmt = &v
	}

	// The parent posts in the source account's currency so the legs'
	// currencies line up with their accounts.
	tx.Currency = srcAcc.Currency
	tx.DestinationAmount = destAmt
	if tx.GroupID == "" {
		tx.GroupID = NewGroupID()
	}

	remEnt, err := s.reg.EnsureRemittanceEntity(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}
	remAcc, err := s.reg.EnsureRemittanceAccount(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}

	legA := Transaction{
		ID:                 NewTransactionID(),
		GroupID:            tx.GroupID,
		ParentID:           tx.ID,
		UserID:             tx.UserID,
		Date:               tx.Date,
		PostedAt:           s.now(),
		Description:        tx.Description,
		AccountSource:      tx.AccountSource,
		AccountDestination: remAcc.ID,
		EntitySource:       tx.EntitySource,
		EntityDestination:  remEnt.ID,
		Type:               TypeTransfer,
		Amount:             tx.Amount,
		Currency:           srcAcc.Currency,
		Hidden:             true,
		Status:             StatusPosted,
	}
	legB := Transaction{
		ID:                 NewTransactionID(),
		GroupID:            tx.GroupID,
		ParentID:           tx.ID,
		UserID:             tx.UserID,
		Date:               tx.Date,
		PostedAt:           s.now(),
		Description:        tx.Description,
		AccountSource:      remAcc.ID,
		AccountDestination: dstAcc.ID,
		EntitySource:       remEnt.ID,
		EntityDestination:  tx.EntityDestination,
		Type:               TypeTransfer,
		Amount:             *destAmt,
		Currency:           dstAcc.Currency,
		Hidden:             true,
		Status:             StatusPosted,
	}
	if err := legA.applyClassification(); err != nil {
		return nil, err
	}
	if err := legB.applyClassification(); err != nil {
		return nil, err
	}
	return []Transaction{legA, legB}, nil
}
