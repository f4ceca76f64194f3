/*
respond.go - JSON response and error mapping helpers

PURPOSE:
  The single place where domain errors become HTTP statuses. Handlers
  return ledger errors; this file classifies them. Internal failures are
  logged with their cause but never exposed verbatim to clients.

MAPPING:
  validation / malformed id / invalid sort      400
  insufficient funds / limit / already reversed 400
  closed account / currency mismatch            400
  bad credentials                               401
  wrong owner                                   403
  missing row                                   404
  duplicate registration / blocked delete       409
  everything else                               500
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/meridian/ledger-core/auth"
	"github.com/meridian/ledger-core/ledger"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a domain error to its HTTP status and a safe message.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrBadCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case ledger.IsForbidden(err):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case ledger.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case ledger.IsConflict(err), errors.Is(err, ledger.ErrAccountHasHistory):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		// Store and infrastructure failures stay server-side.
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// badRequest writes a 400 with the given message.
func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}
