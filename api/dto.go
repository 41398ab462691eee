/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/cenfin/ledger-engine/ledger"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents one ledger row in API responses. Hidden bridge
// legs and reversal rows only appear in the audit view.
type TransactionDTO struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	Date        string `json:"date"`
	Description string `json:"description"`

	AccountSource      string `json:"account_source,omitempty"`
	AccountDestination string `json:"account_destination,omitempty"`
	EntitySource       string `json:"entity_source,omitempty"`
	EntityDestination  string `json:"entity_destination,omitempty"`

	Type      string `json:"type"`
	TypeLabel string `json:"type_label"`

	Amount            string  `json:"amount"`
	DestinationAmount *string `json:"destination_amount,omitempty"`
	Currency          string  `json:"currency"`
	AmountDisplay     string  `json:"amount_display"`

	Status     string `json:"status"`
	Hidden     bool   `json:"hidden,omitempty"`
	IsReversal bool   `json:"is_reversal,omitempty"`
	SeqAccount int64  `json:"seq_account,omitempty"`
}

// CreateTransactionRequest is the request to post a new transaction.
type CreateTransactionRequest struct {
	UserID      string `json:"user_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Type        string `json:"type"`

	AccountSource      string `json:"account_source,omitempty"`
	AccountDestination string `json:"account_destination,omitempty"`
	EntitySource       string `json:"entity_source,omitempty"`
	EntityDestination  string `json:"entity_destination,omitempty"`

	Amount            string  `json:"amount"`
	DestinationAmount *string `json:"destination_amount,omitempty"`
	Currency          string  `json:"currency,omitempty"`
}

// CorrectTransactionRequest replaces a posted transaction. Empty fields
// keep the original's values.
type CorrectTransactionRequest struct {
	CreateTransactionRequest
	ActorID string `json:"actor_id,omitempty"`
}

// DeleteTransactionRequest selects the deletion mode.
type DeleteTransactionRequest struct {
	Mode    string `json:"mode,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

// UndoDeleteRequest restores a soft-deleted transaction.
type UndoDeleteRequest struct {
	ActorID string `json:"actor_id,omitempty"`
}

// BulkDeleteRequest deletes several units as one atomic batch.
type BulkDeleteRequest struct {
	IDs     []string `json:"ids"`
	Mode    string   `json:"mode,omitempty"`
	ActorID string   `json:"actor_id,omitempty"`
}

// =============================================================================
// ACCOUNTS / ENTITIES
// =============================================================================

type AccountDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Currency string `json:"currency,omitempty"`
	Balance  string `json:"balance,omitempty"`
}

type CreateAccountRequest struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Currency string `json:"currency"`
}

type EntityDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Balance string `json:"balance,omitempty"`
}

type CreateEntityRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// BalanceDTO reports one scope's balance.
type BalanceDTO struct {
	Scope    string `json:"scope"`
	Balance  string `json:"balance"`
	Currency string `json:"currency,omitempty"`
	Display  string `json:"display,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error envelope. Violation and Blockers are
// populated for overdraft and LIFO rejections respectively.
type ErrorResponse struct {
	Error     string             `json:"error"`
	Details   string             `json:"details,omitempty"`
	Violation *ViolationDTO      `json:"violation,omitempty"`
	Blockers  []LIFOBlockerDTO   `json:"blockers,omitempty"`
}

// ViolationDTO describes the first projected dip below zero.
type ViolationDTO struct {
	Scope          string `json:"scope"`
	TransactionID  string `json:"transaction_id,omitempty"`
	Date           string `json:"date"`
	Balance        string `json:"balance"`
	SuggestedCover string `json:"suggested_cover"`
	Currency       string `json:"currency,omitempty"`
}

// LIFOBlockerDTO lists newer rows preventing a deletion on one account.
type LIFOBlockerDTO struct {
	Account string           `json:"account"`
	Newer   []BlockingRowDTO `json:"newer"`
}

type BlockingRowDTO struct {
	ID          string `json:"id"`
	SeqAccount  int64  `json:"seq_account"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toTransactionDTO(t ledger.Transaction, display string) TransactionDTO {
	dto := TransactionDTO{
		ID:                 string(t.ID),
		GroupID:            string(t.GroupID),
		ParentID:           string(t.ParentID),
		Date:               t.Date.String(),
		Description:        t.Description,
		AccountSource:      string(t.AccountSource),
		AccountDestination: string(t.AccountDestination),
		EntitySource:       string(t.EntitySource),
		EntityDestination:  string(t.EntityDestination),
		Type:               string(t.Type),
		TypeLabel:          t.Type.Label(),
		Amount:             t.Amount.StringFixed(2),
		Currency:           t.Currency,
		AmountDisplay:      display,
		Status:             string(t.Status),
		Hidden:             t.Hidden,
		IsReversal:         t.IsReversal,
		SeqAccount:         t.SeqAccount,
	}
	if t.DestinationAmount != nil {
		da := t.DestinationAmount.StringFixed(2)
		dto.DestinationAmount = &da
	}
	return dto
}

func toViolationDTO(v ledger.Violation) *ViolationDTO {
	dto := &ViolationDTO{
		Scope:          v.Scope.String(),
		Date:           v.Date.String(),
		Balance:        v.Balance.StringFixed(2),
		SuggestedCover: v.SuggestedCover.StringFixed(2),
		Currency:       v.Currency,
	}
	if v.Transaction.ID != "" {
		dto.TransactionID = string(v.Transaction.ID)
	}
	return dto
}

func toBlockerDTOs(blockers []ledger.LIFOBlocker) []LIFOBlockerDTO {
	out := make([]LIFOBlockerDTO, len(blockers))
	for i, b := range blockers {
		rows := make([]BlockingRowDTO, len(b.Newer))
		for j, n := range b.Newer {
			rows[j] = BlockingRowDTO{
				ID:          string(n.ID),
				SeqAccount:  n.SeqAccount,
				Date:        n.Date.String(),
				Description: n.Description,
			}
		}
		out[i] = LIFOBlockerDTO{Account: string(b.Account), Newer: rows}
	}
	return out
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
