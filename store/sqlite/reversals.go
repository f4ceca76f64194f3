/*
reversals.go - Reversal row operations

Insert-only. The unique index on original_transaction_id resolves
concurrent reversal attempts: exactly one insert commits, the rest map to
ledger.ErrAlreadyReversed.
*/
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/ledger-core/ledger"
)

const reversalColumns = `id, original_transaction_id, reversal_transaction_id,
	amount, reason, status, created_at, processed_at`

func (s *Store) AppendReversal(ctx context.Context, rev ledger.Reversal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendReversal(ctx, s.db, rev)
}

func (s *Store) ListReversals(ctx context.Context, filter ledger.ReversalFilter) ([]ledger.Reversal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listReversals(ctx, s.db, filter)
}

func (ts *txSession) AppendReversal(ctx context.Context, rev ledger.Reversal) error {
	return appendReversal(ctx, ts.tx, rev)
}

func (ts *txSession) ListReversals(ctx context.Context, filter ledger.ReversalFilter) ([]ledger.Reversal, error) {
	return listReversals(ctx, ts.tx, filter)
}

func appendReversal(ctx context.Context, db dbtx, rev ledger.Reversal) error {
	query := `
		INSERT INTO reversals
		(id, original_transaction_id, reversal_transaction_id,
		 amount, reason, status, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		rev.ID,
		rev.OriginalTransactionID,
		rev.ReversalTransactionID,
		rev.Amount.String(),
		rev.Reason,
		string(rev.Status),
		rev.CreatedAt.UTC().Format(time.RFC3339Nano),
		rev.ProcessedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) && isReversalUniquenessError(err) {
			return ledger.ErrAlreadyReversed
		}
		return fmt.Errorf("failed to append reversal: %w", err)
	}
	return nil
}

func listReversals(ctx context.Context, db dbtx, filter ledger.ReversalFilter) ([]ledger.Reversal, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.OriginalTransactionID != "" {
		where += " AND original_transaction_id = ?"
		args = append(args, filter.OriginalTransactionID)
	}
	if filter.AccountID != "" {
		// Reversals whose original transaction touched the account.
		where += ` AND original_transaction_id IN (
			SELECT id FROM transactions
			WHERE account_id = ? OR from_account_id = ? OR to_account_id = ?)`
		args = append(args, filter.AccountID, filter.AccountID, filter.AccountID)
	}
	if filter.OwnerID != "" {
		owned := "(SELECT id FROM accounts WHERE owner_id = ?)"
		where += ` AND original_transaction_id IN (
			SELECT id FROM transactions
			WHERE account_id IN ` + owned + ` OR from_account_id IN ` + owned + ` OR to_account_id IN ` + owned + `)`
		args = append(args, filter.OwnerID, filter.OwnerID, filter.OwnerID)
	}

	query := "SELECT " + reversalColumns + " FROM reversals " + where + " ORDER BY created_at DESC"
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reversals: %w", err)
	}
	defer rows.Close()

	var reversals []ledger.Reversal
	for rows.Next() {
		var (
			rev         ledger.Reversal
			amount      string
			status      string
			createdAt   string
			processedAt string
		)
		if err := rows.Scan(
			&rev.ID, &rev.OriginalTransactionID, &rev.ReversalTransactionID,
			&amount, &rev.Reason, &status, &createdAt, &processedAt,
		); err != nil {
			return nil, err
		}
		if rev.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse reversal amount %q: %w", amount, err)
		}
		rev.Status = ledger.TransactionStatus(status)
		rev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rev.ProcessedAt, _ = time.Parse(time.RFC3339Nano, processedAt)
		reversals = append(reversals, rev)
	}
	return reversals, rows.Err()
}
