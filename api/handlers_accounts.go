/*
handlers_accounts.go - Account management endpoints

ENDPOINTS:
  GET    /api/accounts               List caller's accounts (paged)
  POST   /api/accounts               Create account
  GET    /api/accounts/{id}          Get account
  PUT    /api/accounts/{id}          Update mutable fields
  DELETE /api/accounts/{id}          Delete account (only without history)
  PUT    /api/accounts/{id}/balance  Set balance directly

OWNERSHIP:
  Every operation runs as the authenticated user. The domain layer
  rejects access to accounts the caller does not own; handlers never
  make ownership decisions themselves.
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian/ledger-core/ledger"
)

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Balance == nil {
		badRequest(w, "balance is required")
		return
	}
	// Accounts are always created for the caller. A mismatched ownerId in
	// the body is rejected rather than silently overridden.
	if req.OwnerID != "" && req.OwnerID != caller(r) {
		writeError(w, ledger.ErrNotOwner)
		return
	}

	acc, err := h.Accounts.Create(r.Context(), caller(r), ledger.NewAccountInput{
		Type:         ledger.AccountType(req.AccountType),
		Balance:      *req.Balance,
		Currency:     req.Currency,
		InterestRate: req.InterestRate,
		CreditLimit:  req.CreditLimit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acc))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Accounts.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acc))
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, ledger.AccountSortFields)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := ledger.AccountFilter{
		OwnerID: r.URL.Query().Get("ownerId"),
		Type:    ledger.AccountType(r.URL.Query().Get("accountType")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		badRequest(w, "unknown account type")
		return
	}

	result, err := h.Accounts.List(r.Context(), caller(r), filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(result, toAccountDTO))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	in := ledger.UpdateAccountInput{
		Balance:      req.Balance,
		InterestRate: req.InterestRate,
		CreditLimit:  req.CreditLimit,
	}
	if req.Status != nil {
		status := ledger.AccountStatus(*req.Status)
		in.Status = &status
	}

	acc, err := h.Accounts.Update(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acc))
}

func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	var req SetBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Balance == nil {
		badRequest(w, "balance is required")
		return
	}

	acc, err := h.Accounts.SetBalance(r.Context(), caller(r), chi.URLParam(r, "id"), *req.Balance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acc))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
