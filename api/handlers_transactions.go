/*
handlers_transactions.go - Transaction, reversal, and statistics endpoints

ENDPOINTS:
  POST /api/transactions/deposit                     Credit an account
  POST /api/transactions/withdraw                    Debit an account
  POST /api/transactions/transfer                    Move between accounts
  GET  /api/transactions                             Caller's history (paged, filterable)
  GET  /api/transactions/limits                      Effective limit policy
  GET  /api/transactions/{id}                        Single transaction
  POST /api/transactions/{id}/reverse                Compensate a completed transaction
  GET  /api/transactions/{id}/reversals              Reversals of a transaction
  GET  /api/transactions/reversals                   All reversals across caller's accounts
  GET  /api/transactions/account/{accountId}         Per-account history (paged)
  GET  /api/transactions/account/{accountId}/stats   Per-account statistics
  GET  /api/transactions/account/{accountId}/reversals  Per-account reversals
  GET  /api/transactions/user/stats                  Statistics across caller's accounts
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian/ledger-core/ledger"
)

// =============================================================================
// MOVEMENTS
// =============================================================================

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Amount == nil {
		badRequest(w, "amount is required")
		return
	}

	tx, err := h.Processor.Deposit(r.Context(), caller(r), req.AccountID, *req.Amount, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Amount == nil {
		badRequest(w, "amount is required")
		return
	}

	tx, err := h.Processor.Withdraw(r.Context(), caller(r), req.AccountID, *req.Amount, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Amount == nil {
		badRequest(w, "amount is required")
		return
	}

	tx, err := h.Processor.Transfer(r.Context(), caller(r), req.FromAccountID, req.ToAccountID, *req.Amount, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// =============================================================================
// QUERIES
// =============================================================================

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Processor.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, ledger.TransactionSortFields)
	if err != nil {
		writeError(w, err)
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := ledger.ListFilter{
		Type: ledger.TransactionType(r.URL.Query().Get("type")),
		From: from,
		To:   to,
	}

	result, err := h.Processor.List(r.Context(), caller(r), filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(result, toTransactionDTO))
}

func (h *Handler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, ledger.TransactionSortFields)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Processor.ListForAccount(r.Context(), caller(r), chi.URLParam(r, "accountId"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(result, toTransactionDTO))
}

func (h *Handler) GetLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := h.Processor.GetLimits(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LimitsDTO{
		DailyLimit:             limits.DailyLimit,
		MonthlyLimit:           limits.MonthlyLimit,
		SingleTransactionLimit: limits.SingleTransactionLimit,
		Currency:               limits.Currency,
	})
}

// =============================================================================
// REVERSALS
// =============================================================================

func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	rev, err := h.Reversals.Reverse(r.Context(), caller(r), chi.URLParam(r, "id"), req.Reason, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReversalDTO(rev))
}

func (h *Handler) ListTransactionReversals(w http.ResponseWriter, r *http.Request) {
	revs, err := h.Reversals.ListForTransaction(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReversalDTOs(revs))
}

func (h *Handler) ListAccountReversals(w http.ResponseWriter, r *http.Request) {
	revs, err := h.Reversals.ListForAccount(r.Context(), caller(r), chi.URLParam(r, "accountId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReversalDTOs(revs))
}

func (h *Handler) ListOwnerReversals(w http.ResponseWriter, r *http.Request) {
	revs, err := h.Reversals.ListForOwner(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReversalDTOs(revs))
}

// =============================================================================
// STATISTICS
// =============================================================================

func (h *Handler) AccountStats(w http.ResponseWriter, r *http.Request) {
	window, err := parseStatsWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.Stats.AccountStats(r.Context(), caller(r), chi.URLParam(r, "accountId"), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsDTO(stats))
}

func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	window, err := parseStatsWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.Stats.UserStats(r.Context(), caller(r), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsDTO(stats))
}

func parseStatsWindow(r *http.Request) (ledger.StatsWindow, error) {
	from, to, err := parseDateRange(r)
	if err != nil {
		return ledger.StatsWindow{}, err
	}
	return ledger.StatsWindow{From: from, To: to}, nil
}
