/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store plus the auth user registry using SQLite. The
  same patterns apply to PostgreSQL in production - only minor SQL dialect
  differences.

MUTATION CONTRACT:
  transactions: append-only, except the single COMPLETED -> REVERSED
                transition through MarkReversed
  accounts:     balance writes go through a version compare-and-set;
                a stale version returns ledger.ErrConcurrentModification
  reversals:    insert-only, uniqueness on original_transaction_id is the
                one-reversal-per-transaction guarantee
  users:        insert-only, uniqueness on username

WAL MODE:
  The database opens with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

CONCURRENCY:
  A sync.RWMutex serializes writers in-process on top of the row-level
  version checks. With PostgreSQL, database-level concurrency control
  replaces the mutex; the CAS stays.

SEE ALSO:
  - ledger/store.go: Interface definitions and the mutation contract
  - accounts.go, transactions.go, reversals.go, users.go: row operations
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian/ledger-core/ledger"
)

// Store implements ledger.Store and the auth user registry over SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx abstracts *sql.DB and *sql.Tx so row operations run unchanged
// inside and outside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate() error {
	schema := `
	-- Accounts: current balance state. The version column is the
	-- optimistic concurrency token; every committed balance write
	-- increments it.
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		account_type TEXT NOT NULL,
		balance TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		interest_rate TEXT,
		credit_limit TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_owner_type ON accounts(owner_id, account_type);

	-- Transactions: append-only record of committed movements. Failed
	-- attempts are never written. The only update ever issued is the
	-- COMPLETED -> REVERSED status transition.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		tx_type TEXT NOT NULL,
		account_id TEXT,
		from_account_id TEXT,
		to_account_id TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(tx_type);

	-- Reversals: the unique index on original_transaction_id is the
	-- mutual-exclusion point for concurrent reversal attempts.
	CREATE TABLE IF NOT EXISTS reversals (
		id TEXT PRIMARY KEY,
		original_transaction_id TEXT NOT NULL,
		reversal_transaction_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_reversals_original
		ON reversals(original_transaction_id);

	-- Users: identity registry backing token issuance. Username
	-- uniqueness resolves concurrent duplicate registrations.
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL SESSION (ledger.Store WithTx)
// =============================================================================

// WithTx executes fn inside a single database transaction. The write
// mutex is held for the duration so the whole unit is serialized against
// other writers.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txSession{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txSession is the store view inside WithTx. It reuses the same row
// operations bound to the open *sql.Tx.
type txSession struct {
	tx *sql.Tx
}

// WithTx inside an open transaction joins it rather than nesting.
func (ts *txSession) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return fn(ts)
}

func (ts *txSession) Ping(ctx context.Context) error { return nil }

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isReversalUniquenessError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "reversals.original_transaction_id")
}
