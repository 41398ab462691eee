/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine.

ENDPOINTS:
  Transactions:
    GET    /api/transactions                List visible rows (?audit=true for all)
    POST   /api/transactions                Post a new transaction
    GET    /api/transactions/{id}           Get one row
    POST   /api/transactions/{id}/correct   Reverse-and-replace
    DELETE /api/transactions/{id}           Delete a unit (?mode=...)
    POST   /api/transactions/bulk-delete    Joint atomic batch deletion

  Accounts:
    GET    /api/accounts                    List accounts with balances
    POST   /api/accounts                    Create account
    GET    /api/accounts/{id}/balance       Account (or pocket) balance

  Entities:
    GET    /api/entities                    List entities with balances
    POST   /api/entities                    Create entity
    GET    /api/entities/{id}/balance       Entity balance

  Scenarios:
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Ledger-state conflicts (overdraft, LIFO, already reversed)
  - 500: Internal errors
  Overdraft rejections carry the projected violation (date, balance,
  suggested cover); LIFO rejections carry the blocking rows.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/service.go: The engine behind every mutation
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cenfin/ledger-engine/ledger"
	"github.com/cenfin/ledger-engine/rates"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *ledger.Service
	Registry ledger.Registry

	currentScenario string
}

func NewHandler(svc *ledger.Service, reg ledger.Registry) *Handler {
	return &Handler{Service: svc, Registry: reg}
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns the user's rows. The default view hides bridge
// legs, reversal rows, and anything reversed or deleted; ?audit=true
// returns the unfiltered table.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(r.URL.Query().Get("user_id"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	audit := r.URL.Query().Get("audit") == "true" || r.URL.Query().Get("audit") == "1"

	txs, err := h.Service.Transactions(r.Context(), user, audit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t, rates.Format(t.Amount, t.Currency))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTransaction returns one row by id, including hidden and reversed rows.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	tx, err := h.Service.Transaction(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx, rates.Format(tx.Amount, tx.Currency)))
}

// CreateTransaction posts a new row through the full validation pipeline.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	createReq, err := h.toCreateRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	tx, err := h.Service.Create(r.Context(), createReq)
	if err != nil {
		h.writeLedgerError(w, "Failed to create transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx, rates.Format(tx.Amount, tx.Currency)))
}

// CorrectTransaction replaces a posted row by reverse-and-replace.
func (h *Handler) CorrectTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	var req CorrectTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	createReq, err := h.toCreateRequest(req.CreateTransactionRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	actor := ledger.UserID(req.ActorID)
	if actor == "" {
		actor = createReq.UserID
	}

	tx, err := h.Service.Correct(r.Context(), id, createReq, actor)
	if err != nil {
		h.writeLedgerError(w, "Failed to correct transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx, rates.Format(tx.Amount, tx.Currency)))
}

// DeleteTransaction removes a unit, subject to the LIFO guard. Mode comes
// from the query string or an optional JSON body.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	var req DeleteTransactionRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // body is optional
	}
	if q := r.URL.Query().Get("mode"); q != "" {
		req.Mode = q
	}

	mode, err := ledger.ParseDeleteMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delete mode", err)
		return
	}

	reversals, err := h.Service.Delete(r.Context(), id, mode, ledger.UserID(req.ActorID))
	if err != nil {
		h.writeLedgerError(w, "Failed to delete transaction", err)
		return
	}

	dtos := make([]TransactionDTO, len(reversals))
	for i, t := range reversals {
		dtos[i] = toTransactionDTO(t, rates.Format(t.Amount, t.Currency))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":   string(id),
		"mode":      string(mode),
		"reversals": dtos,
	})
}

// UndoDeleteTransaction restores a soft-deleted unit and retires the
// reversal rows the deletion wrote.
func (h *Handler) UndoDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	var req UndoDeleteRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // body is optional
	}

	tx, err := h.Service.UndoDelete(r.Context(), id, ledger.UserID(req.ActorID))
	if err != nil {
		h.writeLedgerError(w, "Failed to undo deletion", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx, rates.Format(tx.Amount, tx.Currency)))
}

// BulkDeleteTransactions deletes several units as one atomic batch.
func (h *Handler) BulkDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required", nil)
		return
	}

	mode, err := ledger.ParseDeleteMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delete mode", err)
		return
	}

	ids := make([]ledger.TransactionID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = ledger.TransactionID(id)
	}

	reversals, err := h.Service.DeleteBatch(r.Context(), ids, mode, ledger.UserID(req.ActorID))
	if err != nil {
		h.writeLedgerError(w, "Failed to delete transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(reversals))
	for i, t := range reversals {
		dtos[i] = toTransactionDTO(t, rates.Format(t.Amount, t.Currency))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":   req.IDs,
		"mode":      string(mode),
		"reversals": dtos,
	})
}

func (h *Handler) toCreateRequest(req CreateTransactionRequest) (ledger.CreateRequest, error) {
	out := ledger.CreateRequest{
		UserID:             ledger.UserID(req.UserID),
		Description:        req.Description,
		AccountSource:      ledger.AccountID(req.AccountSource),
		AccountDestination: ledger.AccountID(req.AccountDestination),
		EntitySource:       ledger.EntityID(req.EntitySource),
		EntityDestination:  ledger.EntityID(req.EntityDestination),
		Currency:           req.Currency,
	}

	if req.Type != "" {
		t, err := ledger.ParseTransactionType(req.Type)
		if err != nil {
			return ledger.CreateRequest{}, err
		}
		out.Type = t
	}
	if req.Date != "" {
		d, err := ledger.ParseDate(req.Date)
		if err != nil {
			return ledger.CreateRequest{}, err
		}
		out.Date = d
	}
	if req.Amount != "" {
		a, err := parseAmount(req.Amount)
		if err != nil {
			return ledger.CreateRequest{}, err
		}
		out.Amount = a
	}
	if req.DestinationAmount != nil {
		da, err := parseAmount(*req.DestinationAmount)
		if err != nil {
			return ledger.CreateRequest{}, err
		}
		out.DestinationAmount = &da
	}
	return out, nil
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(r.URL.Query().Get("user_id"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	accounts, err := h.Registry.ListAccounts(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		if a.IsSynthetic() {
			continue
		}
		bal, err := h.Service.AccountBalance(r.Context(), user, a.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
			return
		}
		dtos = append(dtos, AccountDTO{
			ID:       string(a.ID),
			Name:     a.Name,
			Kind:     string(a.Kind),
			Currency: a.Currency,
			Balance:  bal.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "user_id and name are required", nil)
		return
	}
	if req.Currency != "" && !rates.Known(req.Currency) {
		writeError(w, http.StatusBadRequest, "Unknown currency code", nil)
		return
	}

	kind := ledger.AccountKind(req.Kind)
	switch kind {
	case "":
		kind = ledger.AccountBank
	case ledger.AccountCash, ledger.AccountBank, ledger.AccountCredit:
	default:
		writeError(w, http.StatusBadRequest, "Invalid account kind", nil)
		return
	}

	a := ledger.Account{
		ID:       ledger.NewAccountID(),
		UserID:   ledger.UserID(req.UserID),
		Name:     req.Name,
		Kind:     kind,
		Currency: req.Currency,
		Visible:  true,
	}
	if err := h.Registry.CreateAccount(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, AccountDTO{
		ID:       string(a.ID),
		Name:     a.Name,
		Kind:     string(a.Kind),
		Currency: a.Currency,
	})
}

// GetAccountBalance returns the account balance, or the (account, entity)
// pocket balance when ?entity_id= is given.
func (h *Handler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))
	user := ledger.UserID(r.URL.Query().Get("user_id"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	acc, err := h.Registry.Account(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, "Failed to get account", err)
		return
	}

	entity := ledger.EntityID(r.URL.Query().Get("entity_id"))
	var dto BalanceDTO
	if entity != "" {
		bal, err := h.Service.PocketBalance(r.Context(), user, id, entity)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
			return
		}
		dto = BalanceDTO{
			Scope:    ledger.PocketScope(id, entity).String(),
			Balance:  bal.StringFixed(2),
			Currency: acc.Currency,
			Display:  rates.Format(bal, acc.Currency),
		}
	} else {
		bal, err := h.Service.AccountBalance(r.Context(), user, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
			return
		}
		dto = BalanceDTO{
			Scope:    ledger.AccountScope(id).String(),
			Balance:  bal.StringFixed(2),
			Currency: acc.Currency,
			Display:  rates.Format(bal, acc.Currency),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ENTITY HANDLERS
// =============================================================================

func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(r.URL.Query().Get("user_id"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	entities, err := h.Registry.ListEntities(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entities", err)
		return
	}

	dtos := make([]EntityDTO, 0, len(entities))
	for _, e := range entities {
		if e.Kind != ledger.EntityFund {
			continue
		}
		bal, err := h.Service.EntityBalance(r.Context(), user, e.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
			return
		}
		dtos = append(dtos, EntityDTO{
			ID:      string(e.ID),
			Name:    e.Name,
			Kind:    string(e.Kind),
			Balance: bal.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "user_id and name are required", nil)
		return
	}

	e := ledger.Entity{
		ID:      ledger.NewEntityID(),
		UserID:  ledger.UserID(req.UserID),
		Name:    req.Name,
		Kind:    ledger.EntityFund,
		Visible: true,
	}
	if err := h.Registry.CreateEntity(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create entity", err)
		return
	}
	writeJSON(w, http.StatusCreated, EntityDTO{
		ID:   string(e.ID),
		Name: e.Name,
		Kind: string(e.Kind),
	})
}

func (h *Handler) GetEntityBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntityID(chi.URLParam(r, "id"))
	user := ledger.UserID(r.URL.Query().Get("user_id"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	bal, err := h.Service.EntityBalance(r.Context(), user, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		Scope:   ledger.EntityScope(id).String(),
		Balance: bal.StringFixed(2),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeLedgerError maps engine errors onto HTTP statuses and enriches the
// envelope with the structured violation or blocker payloads.
func (h *Handler) writeLedgerError(w http.ResponseWriter, message string, err error) {
	var nb *ledger.NegativeBalanceError
	if errors.As(err, &nb) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     message,
			Details:   err.Error(),
			Violation: toViolationDTO(nb.Violation),
		})
		return
	}

	var lifo *ledger.LIFOViolationError
	if errors.As(err, &lifo) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:    message,
			Details:  err.Error(),
			Blockers: toBlockerDTOs(lifo.Blockers),
		})
		return
	}

	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrAlreadyDeleted),
		errors.Is(err, ledger.ErrReversalNotApplicable),
		errors.Is(err, ledger.ErrNotDeleted),
		errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
