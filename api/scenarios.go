/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the ledger with small, self-contained datasets so the API can be
  explored without manual setup. Each scenario creates its own user,
  accounts, and entities, and posts rows through the normal engine path -
  the loaders never write to the store directly.

SCENARIOS:
  basic-month:    salary in, rent and groceries out, a savings transfer
  cross-currency: a KRW account remitting to a PHP account through the
                  hidden bridge legs

SEE ALSO:
  - handlers.go: LoadScenario / ListScenarios endpoints
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cenfin/ledger-engine/ledger"
)

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-month",
		Name:        "A basic month",
		Description: "Salary income, rent and groceries, and a transfer into savings.",
	},
	{
		ID:          "cross-currency",
		Name:        "Cross-currency remittance",
		Description: "A transfer from a KRW account to a PHP account, split through the remittance bridge.",
	},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": scenarios,
		"current":   h.currentScenario,
	})
}

// LoadScenario seeds one scenario and reports the ids it created.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var created map[string]string
	var err error
	switch req.ID {
	case "basic-month":
		created, err = h.loadBasicMonth(r.Context())
	case "cross-currency":
		created, err = h.loadCrossCurrency(r.Context())
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario %q", req.ID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ID
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario": req.ID,
		"created":  created,
	})
}

func (h *Handler) loadBasicMonth(ctx context.Context) (map[string]string, error) {
	user := ledger.UserID(fmt.Sprintf("demo-%d", time.Now().UnixNano()))

	checking := ledger.Account{
		ID: ledger.NewAccountID(), UserID: user,
		Name: "Checking", Kind: ledger.AccountBank, Currency: "USD", Visible: true,
	}
	savings := ledger.Account{
		ID: ledger.NewAccountID(), UserID: user,
		Name: "Savings", Kind: ledger.AccountBank, Currency: "USD", Visible: true,
	}
	for _, a := range []ledger.Account{checking, savings} {
		if err := h.Registry.CreateAccount(ctx, a); err != nil {
			return nil, err
		}
	}

	living := ledger.Entity{
		ID: ledger.NewEntityID(), UserID: user,
		Name: "Living", Kind: ledger.EntityFund, Visible: true,
	}
	emergency := ledger.Entity{
		ID: ledger.NewEntityID(), UserID: user,
		Name: "Emergency Fund", Kind: ledger.EntityFund, Visible: true,
	}
	for _, e := range []ledger.Entity{living, emergency} {
		if err := h.Registry.CreateEntity(ctx, e); err != nil {
			return nil, err
		}
	}

	base := ledger.Today().AddDays(-28)
	rows := []ledger.CreateRequest{
		{
			UserID: user, Date: base, Description: "Salary", Type: ledger.TypeIncome,
			AccountDestination: checking.ID, EntityDestination: living.ID,
			Amount: decimal.NewFromInt(4200),
		},
		{
			UserID: user, Date: base.AddDays(2), Description: "Rent", Type: ledger.TypeExpense,
			AccountSource: checking.ID, EntitySource: living.ID,
			Amount: decimal.NewFromInt(1500),
		},
		{
			UserID: user, Date: base.AddDays(5), Description: "Groceries", Type: ledger.TypeExpense,
			AccountSource: checking.ID, EntitySource: living.ID,
			Amount: decimal.NewFromFloat(231.48),
		},
		{
			UserID: user, Date: base.AddDays(10), Description: "Monthly savings", Type: ledger.TypeTransfer,
			AccountSource: checking.ID, AccountDestination: savings.ID,
			EntitySource: living.ID, EntityDestination: emergency.ID,
			Amount: decimal.NewFromInt(800),
		},
	}
	for _, req := range rows {
		if _, err := h.Service.Create(ctx, req); err != nil {
			return nil, err
		}
	}

	return map[string]string{
		"user_id":  string(user),
		"checking": string(checking.ID),
		"savings":  string(savings.ID),
		"living":   string(living.ID),
	}, nil
}

func (h *Handler) loadCrossCurrency(ctx context.Context) (map[string]string, error) {
	user := ledger.UserID(fmt.Sprintf("demo-%d", time.Now().UnixNano()))

	seoul := ledger.Account{
		ID: ledger.NewAccountID(), UserID: user,
		Name: "Seoul Bank", Kind: ledger.AccountBank, Currency: "KRW", Visible: true,
	}
	manila := ledger.Account{
		ID: ledger.NewAccountID(), UserID: user,
		Name: "Manila Bank", Kind: ledger.AccountBank, Currency: "PHP", Visible: true,
	}
	for _, a := range []ledger.Account{seoul, manila} {
		if err := h.Registry.CreateAccount(ctx, a); err != nil {
			return nil, err
		}
	}

	family := ledger.Entity{
		ID: ledger.NewEntityID(), UserID: user,
		Name: "Family Support", Kind: ledger.EntityFund, Visible: true,
	}
	if err := h.Registry.CreateEntity(ctx, family); err != nil {
		return nil, err
	}

	base := ledger.Today().AddDays(-7)
	if _, err := h.Service.Create(ctx, ledger.CreateRequest{
		UserID: user, Date: base, Description: "Salary", Type: ledger.TypeIncome,
		AccountDestination: seoul.ID, EntityDestination: family.ID,
		Amount: decimal.NewFromInt(2500000),
	}); err != nil {
		return nil, err
	}

	destAmount := decimal.NewFromInt(40000)
	if _, err := h.Service.Create(ctx, ledger.CreateRequest{
		UserID: user, Date: base.AddDays(3), Description: "Remit to Manila", Type: ledger.TypeTransfer,
		AccountSource: seoul.ID, AccountDestination: manila.ID,
		EntitySource: family.ID, EntityDestination: family.ID,
		Amount:            decimal.NewFromInt(1000000),
		DestinationAmount: &destAmount,
	}); err != nil {
		return nil, err
	}

	return map[string]string{
		"user_id": string(user),
		"seoul":   string(seoul.ID),
		"manila":  string(manila.ID),
		"family":  string(family.ID),
	}, nil
}
