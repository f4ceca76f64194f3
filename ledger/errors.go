/*
errors.go - Centralized error taxonomy for the ledger core

PURPOSE:
  All domain error types in one place. The API layer maps these to HTTP
  statuses in exactly one function; engines never reference HTTP.

ERROR CATEGORIES:
  Validation   - missing/malformed/out-of-range input (client, 400)
  Authorization- valid caller, wrong owner (403)
  NotFound     - well-formed id with no row behind it (404)
  Conflict     - duplicate registration, already reversed (409/400)
  Business     - insufficient funds, limit exceeded, closed account (400)
  Internal     - store failures, never exposed verbatim to clients

USAGE:
  Engines return sentinels directly or structured errors that Unwrap to a
  sentinel, so callers can use errors.Is across the board:

    if errors.Is(err, ledger.ErrInsufficientFunds) { ... }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when a well-formed account id has no row.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when a transaction id has no row.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrMalformedID is returned when an id fails well-formedness checks.
	// Distinct from not-found: the id could never name a row.
	ErrMalformedID = errors.New("malformed id")

	// ErrNotOwner is returned when an authenticated caller targets an
	// account owned by someone else.
	ErrNotOwner = errors.New("caller does not own this account")

	// ErrInsufficientFunds is returned when a withdrawal or transfer would
	// take a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLimitExceeded is returned when an amount breaches the single,
	// daily, or monthly transaction limit.
	ErrLimitExceeded = errors.New("transaction limit exceeded")

	// ErrAlreadyReversed is returned when a reversal already exists for the
	// original transaction. Exactly one concurrent attempt ever wins.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrAccountClosed is returned when an operation targets a CLOSED account.
	ErrAccountClosed = errors.New("account is closed")

	// ErrAccountHasHistory blocks deletion of accounts with transactions.
	ErrAccountHasHistory = errors.New("account has transaction history")

	// ErrDuplicateUser is returned when a username is already registered.
	ErrDuplicateUser = errors.New("username already registered")

	// ErrConcurrentModification is returned when the optimistic version
	// check loses the write. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidSort is returned when a sort field or direction is unknown.
	ErrInvalidSort = errors.New("invalid sort")

	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrCurrencyMismatch is returned when a transaction's currency does
	// not match the account's tag.
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientFundsError reports the shortfall.
type InsufficientFundsError struct {
	AccountID string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s",
		e.Available.String(), e.Requested.String())
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// LimitScope identifies which ceiling was breached.
type LimitScope string

const (
	LimitSingle  LimitScope = "single-transaction"
	LimitDaily   LimitScope = "daily"
	LimitMonthly LimitScope = "monthly"
)

// LimitExceededError reports which limit was breached and by how much.
type LimitExceededError struct {
	Scope     LimitScope
	Limit     decimal.Decimal
	Requested decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: limit %s, requested %s",
		e.Scope, e.Limit.String(), e.Requested.String())
}

func (e *LimitExceededError) Unwrap() error { return ErrLimitExceeded }

// InvalidSortError names the rejected sort parameter.
type InvalidSortError struct {
	Field     string
	Direction string
}

func (e *InvalidSortError) Error() string {
	if e.Direction != "" {
		return fmt.Sprintf("invalid sort direction %q for field %q", e.Direction, e.Field)
	}
	return fmt.Sprintf("invalid sort field %q", e.Field)
}

func (e *InvalidSortError) Unwrap() error { return ErrInvalidSort }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsClientError reports whether the error is a 4xx-class failure caused by
// the request, safe to retry after correcting input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrAccountClosed) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidSort) ||
		errors.Is(err, ErrMalformedID)
}

// IsNotFound reports whether the error names a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsForbidden reports whether the error is an ownership violation.
func IsForbidden(err error) bool { return errors.Is(err, ErrNotOwner) }

// IsConflict reports whether the error is a uniqueness conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrDuplicateUser) }

// IsRetryable reports whether the operation might succeed if replayed
// unchanged.
func IsRetryable(err error) bool { return errors.Is(err, ErrConcurrentModification) }
