/*
store.go - Persistence interfaces for the ledger core

PURPOSE:
  Defines the contract between the engines and the database. The store is
  the only shared mutable resource in the system; every component reaches
  Account and Transaction rows exclusively through these interfaces.

KEY INTERFACES:
  AccountStore:     Account rows with optimistic version CAS on balance
  TransactionStore: Append-only transaction rows plus the single allowed
                    COMPLETED -> REVERSED transition
  ReversalStore:    Reversal links, one per original transaction
  Store:            All of the above plus WithTx for atomic multi-row units

MUTATION CONTRACT:
  - Transaction rows are append-only. No update except MarkReversed, no
    delete. Failed attempts are never written at all.
  - ApplyBalance is a compare-and-set: the write commits only if the
    caller's version is still current, otherwise ErrConcurrentModification.
  - WithTx gives all-or-nothing semantics for transfer (two balance writes
    plus one transaction row) and reversal (balance write, reversal row,
    status transition).

IMPLEMENTATIONS:
  - store/sqlite: production store (WAL mode, unique indexes)
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// AccountFilter narrows ListAccounts. Both fields are conjunctive when set.
type AccountFilter struct {
	OwnerID string
	Type    AccountType
}

type AccountStore interface {
	// CreateAccount persists a new account row.
	CreateAccount(ctx context.Context, acc Account) error

	// GetAccount returns the account or ErrAccountNotFound.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// ListAccounts returns a page of accounts matching the filter plus the
	// total matching count.
	ListAccounts(ctx context.Context, filter AccountFilter, page PageRequest) ([]Account, int64, error)

	// UpdateAccount rewrites the mutable non-balance fields (status,
	// subtype payload). Returns ErrAccountNotFound if absent.
	UpdateAccount(ctx context.Context, acc Account) error

	// ApplyBalance commits a new balance iff version is still current.
	// On success the row's version is incremented and updated_at refreshed.
	// Returns ErrConcurrentModification when the version is stale and
	// ErrAccountNotFound when the row is absent.
	ApplyBalance(ctx context.Context, id string, balance decimal.Decimal, version int64, at time.Time) error

	// DeleteAccount removes the row. Returns ErrAccountNotFound if absent:
	// deletion is a genuine state transition, a second delete fails.
	DeleteAccount(ctx context.Context, id string) error
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

// TransactionFilter narrows transaction listings. All set fields are
// conjunctive. AccountID matches any side of a transfer. OwnerID scopes to
// accounts owned by that user.
type TransactionFilter struct {
	AccountID string
	OwnerID   string
	Type      TransactionType
	From      *time.Time
	To        *time.Time
}

type TransactionStore interface {
	// AppendTransaction persists a completed transaction. Append-only.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns the transaction or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// ListTransactions returns a page of transactions plus the total count.
	ListTransactions(ctx context.Context, filter TransactionFilter, page PageRequest) ([]Transaction, int64, error)

	// AllTransactions returns every transaction matching the filter in
	// chronological order. Used by the statistics aggregator, which
	// replays history rather than paging it.
	AllTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// SumAmounts returns the sum of completed DEPOSIT/WITHDRAWAL/TRANSFER
	// amounts for the owner's accounts in [from, to). REVERSAL rows are
	// excluded. Used for daily/monthly limit consumption.
	SumAmounts(ctx context.Context, ownerID string, from, to time.Time) (decimal.Decimal, error)

	// MarkReversed performs the single allowed status transition
	// COMPLETED -> REVERSED. Returns ErrAlreadyReversed if the row is no
	// longer COMPLETED and ErrTransactionNotFound if absent.
	MarkReversed(ctx context.Context, id string, at time.Time) error

	// HasTransactions reports whether any transaction references the
	// account. Used to block deletion of accounts with history.
	HasTransactions(ctx context.Context, accountID string) (bool, error)
}

// =============================================================================
// REVERSAL STORE
// =============================================================================

// ReversalFilter narrows reversal listings.
type ReversalFilter struct {
	OriginalTransactionID string
	AccountID             string
	OwnerID               string
}

type ReversalStore interface {
	// AppendReversal persists a reversal link. The store enforces
	// uniqueness on the original transaction id: a second insert for the
	// same original returns ErrAlreadyReversed.
	AppendReversal(ctx context.Context, rev Reversal) error

	// ListReversals returns reversals matching the filter, newest first.
	ListReversals(ctx context.Context, filter ReversalFilter) ([]Reversal, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface required by the engines.
type Store interface {
	AccountStore
	TransactionStore
	ReversalStore

	// WithTx executes fn within a single database transaction. If fn
	// returns an error the whole unit rolls back; no partial write is ever
	// observable.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
