/*
handlers.go - Handler struct and shared request parsing

PURPOSE:
  Exposes the ledger engine via REST API. This file holds the Handler
  struct with its dependencies plus the query-string parsing shared by
  the list endpoints. The endpoint implementations live in:
    - handlers_auth.go:         registration and login
    - handlers_accounts.go:     account CRUD and balance updates
    - handlers_transactions.go: movements, reversals, statistics

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (manager, processor, reversal engine, aggregator)
  4. Serialize response
  5. Map errors to status codes (respond.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - respond.go: JSON writers and error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/meridian/ledger-core/auth"
	"github.com/meridian/ledger-core/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Accounts  *ledger.AccountManager
	Processor *ledger.Processor
	Reversals *ledger.ReversalEngine
	Stats     *ledger.Aggregator
	Auth      *auth.Service
	Store     ledger.Store
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(store ledger.Store, accounts *ledger.AccountManager, processor *ledger.Processor, reversals *ledger.ReversalEngine, stats *ledger.Aggregator, authSvc *auth.Service) *Handler {
	return &Handler{
		Accounts:  accounts,
		Processor: processor,
		Reversals: reversals,
		Stats:     stats,
		Auth:      authSvc,
		Store:     store,
	}
}

// Health reports liveness. It pings the store so a wedged database
// shows up in probes instead of only in request errors.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller returns the authenticated user id from the request context.
func caller(r *http.Request) string {
	return auth.SubjectFromContext(r.Context())
}

// =============================================================================
// QUERY PARSING
// =============================================================================

// parsePage reads page/size/sort query parameters. Sort fields are
// validated against the allowed set so callers cannot probe column names.
func parsePage(r *http.Request, allowed map[string]bool) (ledger.PageRequest, error) {
	q := r.URL.Query()
	req := ledger.PageRequest{}

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return req, &ledger.ValidationError{Field: "page", Reason: "must be a non-negative integer"}
		}
		req.Number = n
	}
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return req, &ledger.ValidationError{Field: "size", Reason: "must be a positive integer"}
		}
		req.Size = n
	}
	for _, raw := range q["sort"] {
		sorts, err := ledger.ParseSort(raw, allowed)
		if err != nil {
			return req, err
		}
		req.Sort = append(req.Sort, sorts...)
	}
	return req.Normalize(), nil
}

// parseDateRange reads optional fromDate/toDate query parameters.
// Accepts RFC 3339 timestamps or bare dates (treated as UTC midnight).
func parseDateRange(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("fromDate"); raw != "" {
		t, perr := parseTimestamp(raw)
		if perr != nil {
			return nil, nil, &ledger.ValidationError{Field: "fromDate", Reason: perr.Error()}
		}
		from = &t
	}
	if raw := q.Get("toDate"); raw != "" {
		t, perr := parseTimestamp(raw)
		if perr != nil {
			return nil, nil, &ledger.ValidationError{Field: "toDate", Reason: perr.Error()}
		}
		to = &t
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, &ledger.ValidationError{Field: "fromDate", Reason: "must not be after toDate"}
	}
	return from, to, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("expected RFC 3339 timestamp or YYYY-MM-DD date, got %q", raw)
}
