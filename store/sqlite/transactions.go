/*
transactions.go - Transaction row operations

Append-only. The single permitted update is MarkReversed, a conditional
COMPLETED -> REVERSED transition. Amount columns are decimal strings;
sums happen in Go on exact decimals, never in SQL on floats.
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

const transactionColumns = `id, tx_type, account_id, from_account_id, to_account_id,
	amount, currency, status, description, created_at, processed_at`

var transactionSortColumns = map[string]string{
	"createdAt": "created_at",
	"amount":    "CAST(amount AS REAL)",
	"type":      "tx_type",
	"id":        "id",
}

// =============================================================================
// STORE METHODS
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter, page ledger.PageRequest) ([]ledger.Transaction, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, filter, page)
}

func (s *Store) AllTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return allTransactions(ctx, s.db, filter)
}

func (s *Store) SumAmounts(ctx context.Context, ownerID string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumAmounts(ctx, s.db, ownerID, from, to)
}

func (s *Store) MarkReversed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markReversed(ctx, s.db, id, at)
}

func (s *Store) HasTransactions(ctx context.Context, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasTransactions(ctx, s.db, accountID)
}

func (ts *txSession) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}

func (ts *txSession) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}

func (ts *txSession) ListTransactions(ctx context.Context, filter ledger.TransactionFilter, page ledger.PageRequest) ([]ledger.Transaction, int64, error) {
	return listTransactions(ctx, ts.tx, filter, page)
}

func (ts *txSession) AllTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return allTransactions(ctx, ts.tx, filter)
}

func (ts *txSession) SumAmounts(ctx context.Context, ownerID string, from, to time.Time) (decimal.Decimal, error) {
	return sumAmounts(ctx, ts.tx, ownerID, from, to)
}

func (ts *txSession) MarkReversed(ctx context.Context, id string, at time.Time) error {
	return markReversed(ctx, ts.tx, id, at)
}

func (ts *txSession) HasTransactions(ctx context.Context, accountID string) (bool, error) {
	return hasTransactions(ctx, ts.tx, accountID)
}

// =============================================================================
// ROW OPERATIONS
// =============================================================================

func appendTransaction(ctx context.Context, db dbtx, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, tx_type, account_id, from_account_id, to_account_id,
		 amount, currency, status, description, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		tx.ID,
		string(tx.Type),
		nullString(tx.AccountID),
		nullString(tx.FromAccountID),
		nullString(tx.ToAccountID),
		tx.Amount.String(),
		tx.Currency,
		string(tx.Status),
		nullString(tx.Description),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		tx.ProcessedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func getTransaction(ctx context.Context, db dbtx, id string) (*ledger.Transaction, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// transactionWhere builds the conjunctive WHERE clause for a filter.
// AccountID matches any side of a transfer; OwnerID routes through the
// accounts table.
func transactionWhere(filter ledger.TransactionFilter) (string, []any) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.AccountID != "" {
		where += " AND (account_id = ? OR from_account_id = ? OR to_account_id = ?)"
		args = append(args, filter.AccountID, filter.AccountID, filter.AccountID)
	}
	if filter.OwnerID != "" {
		owned := "(SELECT id FROM accounts WHERE owner_id = ?)"
		where += " AND (account_id IN " + owned + " OR from_account_id IN " + owned + " OR to_account_id IN " + owned + ")"
		args = append(args, filter.OwnerID, filter.OwnerID, filter.OwnerID)
	}
	if filter.Type != "" {
		where += " AND tx_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.From != nil {
		where += " AND created_at >= ?"
		args = append(args, filter.From.UTC().Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		where += " AND created_at <= ?"
		args = append(args, filter.To.UTC().Format(time.RFC3339Nano))
	}
	return where, args
}

func listTransactions(ctx context.Context, db dbtx, filter ledger.TransactionFilter, page ledger.PageRequest) ([]ledger.Transaction, int64, error) {
	where, args := transactionWhere(filter)

	var total int64
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	order := orderClause(page.Sort, transactionSortColumns, "created_at DESC")
	page = page.Normalize()
	query := fmt.Sprintf("SELECT %s FROM transactions %s ORDER BY %s LIMIT ? OFFSET ?",
		transactionColumns, where, order)
	args = append(args, page.Size, page.Offset())

	txs, err := queryTransactions(ctx, db, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func allTransactions(ctx context.Context, db dbtx, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	where, args := transactionWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM transactions %s ORDER BY created_at ASC",
		transactionColumns, where)
	return queryTransactions(ctx, db, query, args...)
}

// sumAmounts sums the owner's movement amounts in [from, to) on exact
// decimals in Go. REVERSAL rows are excluded.
func sumAmounts(ctx context.Context, db dbtx, ownerID string, from, to time.Time) (decimal.Decimal, error) {
	owned := "(SELECT id FROM accounts WHERE owner_id = ?)"
	query := `
		SELECT amount FROM transactions
		WHERE tx_type != 'REVERSAL'
		  AND (account_id IN ` + owned + ` OR from_account_id IN ` + owned + ` OR to_account_id IN ` + owned + `)
		  AND created_at >= ? AND created_at < ?
	`
	rows, err := db.QueryContext(ctx, query,
		ownerID, ownerID, ownerID,
		from.UTC().Format(time.RFC3339Nano),
		to.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum amounts: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		sum = sum.Add(d)
	}
	return sum, rows.Err()
}

func markReversed(ctx context.Context, db dbtx, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		string(ledger.TxReversed),
		at.UTC().Format(time.RFC3339Nano),
		id,
		string(ledger.TxCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction reversed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := getTransaction(ctx, db, id); err != nil {
			return err
		}
		return ledger.ErrAlreadyReversed
	}
	return nil
}

func hasTransactions(ctx context.Context, db dbtx, accountID string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE account_id = ? OR from_account_id = ? OR to_account_id = ?`,
		accountID, accountID, accountID,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// SCANNING
// =============================================================================

func queryTransactions(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	var (
		tx            ledger.Transaction
		txType        string
		accountID     sql.NullString
		fromAccountID sql.NullString
		toAccountID   sql.NullString
		amount        string
		status        string
		description   sql.NullString
		createdAt     string
		processedAt   string
	)
	err := row.Scan(
		&tx.ID, &txType, &accountID, &fromAccountID, &toAccountID,
		&amount, &tx.Currency, &status, &description, &createdAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = ledger.TransactionType(txType)
	tx.Status = ledger.TransactionStatus(status)
	tx.AccountID = accountID.String
	tx.FromAccountID = fromAccountID.String
	tx.ToAccountID = toAccountID.String
	tx.Description = description.String
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	tx.ProcessedAt, _ = time.Parse(time.RFC3339Nano, processedAt)
	return &tx, nil
}
