/*
accounts.go - Account row operations

The balance column stores exact decimal strings, never REAL. ApplyBalance
is the only statement that writes balance, and it is a compare-and-set on
the version column: zero rows affected with an existing row means the
caller lost the race.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/ledger-core/ledger"
)

const accountColumns = `id, owner_id, account_type, balance, currency, status,
	interest_rate, credit_limit, version, created_at, updated_at`

// Column whitelist for account sorting. Keys match the API-level sort
// field names.
var accountSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"balance":     "CAST(balance AS REAL)",
	"accountType": "account_type",
	"id":          "id",
}

// =============================================================================
// STORE METHODS
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, acc ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAccount(ctx, s.db, acc)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func (s *Store) ListAccounts(ctx context.Context, filter ledger.AccountFilter, page ledger.PageRequest) ([]ledger.Account, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccounts(ctx, s.db, filter, page)
}

func (s *Store) UpdateAccount(ctx context.Context, acc ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAccount(ctx, s.db, acc)
}

func (s *Store) ApplyBalance(ctx context.Context, id string, balance decimal.Decimal, version int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyBalance(ctx, s.db, id, balance, version, at)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAccount(ctx, s.db, id)
}

func (ts *txSession) CreateAccount(ctx context.Context, acc ledger.Account) error {
	return createAccount(ctx, ts.tx, acc)
}

func (ts *txSession) GetAccount(ctx context.Context, id string) (*ledger.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txSession) ListAccounts(ctx context.Context, filter ledger.AccountFilter, page ledger.PageRequest) ([]ledger.Account, int64, error) {
	return listAccounts(ctx, ts.tx, filter, page)
}

func (ts *txSession) UpdateAccount(ctx context.Context, acc ledger.Account) error {
	return updateAccount(ctx, ts.tx, acc)
}

func (ts *txSession) ApplyBalance(ctx context.Context, id string, balance decimal.Decimal, version int64, at time.Time) error {
	return applyBalance(ctx, ts.tx, id, balance, version, at)
}

func (ts *txSession) DeleteAccount(ctx context.Context, id string) error {
	return deleteAccount(ctx, ts.tx, id)
}

// =============================================================================
// ROW OPERATIONS
// =============================================================================

func createAccount(ctx context.Context, db dbtx, acc ledger.Account) error {
	query := `
		INSERT INTO accounts
		(id, owner_id, account_type, balance, currency, status,
		 interest_rate, credit_limit, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		acc.ID,
		acc.OwnerID,
		string(acc.Type),
		acc.Balance.String(),
		acc.Currency,
		string(acc.Status),
		decimalPtrString(acc.InterestRate),
		decimalPtrString(acc.CreditLimit),
		acc.Version,
		acc.CreatedAt.UTC().Format(time.RFC3339Nano),
		acc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func getAccount(ctx context.Context, db dbtx, id string) (*ledger.Account, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	acc, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func listAccounts(ctx context.Context, db dbtx, filter ledger.AccountFilter, page ledger.PageRequest) ([]ledger.Account, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.OwnerID != "" {
		where += " AND owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	if filter.Type != "" {
		where += " AND account_type = ?"
		args = append(args, string(filter.Type))
	}

	var total int64
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	order := orderClause(page.Sort, accountSortColumns, "created_at ASC")
	page = page.Normalize()
	query := fmt.Sprintf("SELECT %s FROM accounts %s ORDER BY %s LIMIT ? OFFSET ?",
		accountColumns, where, order)
	args = append(args, page.Size, page.Offset())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, total, rows.Err()
}

func updateAccount(ctx context.Context, db dbtx, acc ledger.Account) error {
	query := `
		UPDATE accounts
		SET status = ?, interest_rate = ?, credit_limit = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		string(acc.Status),
		decimalPtrString(acc.InterestRate),
		decimalPtrString(acc.CreditLimit),
		acc.UpdatedAt.UTC().Format(time.RFC3339Nano),
		acc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// applyBalance is the compare-and-set. The WHERE clause requires the
// caller's version to still be current.
func applyBalance(ctx context.Context, db dbtx, id string, balance decimal.Decimal, version int64, at time.Time) error {
	query := `
		UPDATE accounts
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := db.ExecContext(ctx, query,
		balance.String(),
		at.UTC().Format(time.RFC3339Nano),
		id,
		version,
	)
	if err != nil {
		return fmt.Errorf("failed to apply balance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing row from a lost race.
		if _, err := getAccount(ctx, db, id); err != nil {
			return err
		}
		return ledger.ErrConcurrentModification
	}
	return nil
}

func deleteAccount(ctx context.Context, db dbtx, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// =============================================================================
// SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var (
		acc          ledger.Account
		accountType  string
		balance      string
		status       string
		interestRate sql.NullString
		creditLimit  sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(
		&acc.ID, &acc.OwnerID, &accountType, &balance, &acc.Currency, &status,
		&interestRate, &creditLimit, &acc.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	acc.Type = ledger.AccountType(accountType)
	acc.Status = ledger.AccountStatus(status)
	if acc.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("failed to parse balance %q: %w", balance, err)
	}
	if interestRate.Valid {
		rate, err := decimal.NewFromString(interestRate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse interest rate: %w", err)
		}
		acc.InterestRate = &rate
	}
	if creditLimit.Valid {
		limit, err := decimal.NewFromString(creditLimit.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credit limit: %w", err)
		}
		acc.CreditLimit = &limit
	}
	acc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	acc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &acc, nil
}

func decimalPtrString(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// orderClause builds an ORDER BY from parsed sorts against a column
// whitelist. Unknown fields were rejected upstream; an empty sort falls
// back to the default.
func orderClause(sorts []ledger.Sort, columns map[string]string, fallback string) string {
	if len(sorts) == 0 {
		return fallback
	}
	clause := ""
	for i, s := range sorts {
		col, ok := columns[s.Field]
		if !ok {
			return fallback
		}
		if i > 0 {
			clause += ", "
		}
		dir := "ASC"
		if s.Direction == ledger.SortDesc {
			dir = "DESC"
		}
		clause += col + " " + dir
	}
	return clause
}
