/*
reversal.go - Compensating transactions

PURPOSE:
  A reversal undoes a COMPLETED transaction by committing a new REVERSAL
  transaction that exactly inverts the original's balance effect, then
  marking the original REVERSED. The original row is never edited beyond
  that single status transition; history keeps both sides.

BALANCE EFFECT:
  reversed DEPOSIT     -> debit the account by the original amount
  reversed WITHDRAWAL  -> credit the account by the original amount
  reversed TRANSFER    -> credit source, debit destination

MUTUAL EXCLUSION:
  At most one reversal per original transaction, enforced by a uniqueness
  constraint on the reversal row. Two concurrent attempts resolve so that
  exactly one succeeds; the loser gets ErrAlreadyReversed.
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ReversalEngine creates compensating transactions.
type ReversalEngine struct {
	store    Store
	accounts *AccountManager
	now      func() time.Time
}

// NewReversalEngine creates an engine over the given store and account
// mutation path.
func NewReversalEngine(store Store, accounts *AccountManager) *ReversalEngine {
	return &ReversalEngine{
		store:    store,
		accounts: accounts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reverse compensates the transaction with the given id. The reversal
// transaction, the reversal link, the balance correction(s), and the
// original's status transition commit as one unit.
func (e *ReversalEngine) Reverse(ctx context.Context, caller, transactionID, reason, description string) (*Reversal, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Reason: "reason is required"}
	}
	if len(reason) > MaxReversalReasonLength {
		return nil, &ValidationError{Field: "reason", Reason: "reason too long"}
	}
	if len(description) > MaxDescriptionLength {
		return nil, &ValidationError{Field: "description", Reason: "description too long"}
	}
	if !ValidTransactionID(transactionID) {
		return nil, ErrMalformedID
	}

	var result *Reversal
	err := e.retry(ctx, func() error {
		return e.store.WithTx(ctx, func(s Store) error {
			original, err := s.GetTransaction(ctx, transactionID)
			if err != nil {
				return err
			}
			if original.Type == TxReversal {
				return &ValidationError{Field: "transactionId", Reason: "a reversal cannot be reversed"}
			}
			if err := e.verifyOwnership(ctx, s, caller, original); err != nil {
				return err
			}
			if original.Status != TxCompleted {
				return ErrAlreadyReversed
			}

			now := e.now()
			if err := e.applyInverse(ctx, s, original, now); err != nil {
				return err
			}

			// The compensating row references the affected account: for a
			// transfer that is the source account receiving funds back.
			affected := original.AccountID
			if original.Type == TxTransfer {
				affected = original.FromAccountID
			}
			reversalTx := Transaction{
				ID:          NewTransactionID(),
				Type:        TxReversal,
				AccountID:   affected,
				Amount:      original.Amount,
				Currency:    original.Currency,
				Status:      TxCompleted,
				Description: description,
				CreatedAt:   now,
				ProcessedAt: now,
			}
			if err := s.AppendTransaction(ctx, reversalTx); err != nil {
				return err
			}

			rev := Reversal{
				ID:                    NewReversalID(),
				OriginalTransactionID: original.ID,
				ReversalTransactionID: reversalTx.ID,
				Amount:                original.Amount,
				Reason:                reason,
				Status:                TxCompleted,
				CreatedAt:             now,
				ProcessedAt:           now,
			}
			// Unique index on the original id is the mutual-exclusion
			// point for concurrent attempts.
			if err := s.AppendReversal(ctx, rev); err != nil {
				return err
			}
			if err := s.MarkReversed(ctx, original.ID, now); err != nil {
				return err
			}
			result = &rev
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("transaction reversed",
		zap.String("original_transaction_id", result.OriginalTransactionID),
		zap.String("reversal_transaction_id", result.ReversalTransactionID),
		zap.String("amount", result.Amount.String()))
	return result, nil
}

// ListForTransaction returns the reversal (if any) linked to an original
// transaction the caller can access.
func (e *ReversalEngine) ListForTransaction(ctx context.Context, caller, transactionID string) ([]Reversal, error) {
	if !ValidTransactionID(transactionID) {
		return nil, ErrMalformedID
	}
	original, err := e.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := e.verifyOwnership(ctx, e.store, caller, original); err != nil {
		return nil, err
	}
	return e.store.ListReversals(ctx, ReversalFilter{OriginalTransactionID: transactionID})
}

// ListForAccount returns reversals whose original transaction touched the
// account.
func (e *ReversalEngine) ListForAccount(ctx context.Context, caller, accountID string) ([]Reversal, error) {
	if _, err := e.accounts.ownedAccount(ctx, e.store, caller, accountID); err != nil {
		return nil, err
	}
	return e.store.ListReversals(ctx, ReversalFilter{AccountID: accountID})
}

// ListForOwner returns all reversals across the caller's accounts.
func (e *ReversalEngine) ListForOwner(ctx context.Context, caller string) ([]Reversal, error) {
	return e.store.ListReversals(ctx, ReversalFilter{OwnerID: caller})
}

// applyInverse undoes the original's balance effect inside the store
// transaction s.
func (e *ReversalEngine) applyInverse(ctx context.Context, s Store, original *Transaction, at time.Time) error {
	switch original.Type {
	case TxDeposit:
		_, err := e.accounts.adjustBalance(ctx, s, original.AccountID, original.Amount.Neg(), at)
		return err
	case TxWithdrawal:
		_, err := e.accounts.adjustBalance(ctx, s, original.AccountID, original.Amount, at)
		return err
	case TxTransfer:
		// Same ascending-id order as the forward transfer.
		first, firstDelta := original.FromAccountID, original.Amount
		second, secondDelta := original.ToAccountID, original.Amount.Neg()
		if second < first {
			first, second = second, first
			firstDelta, secondDelta = secondDelta, firstDelta
		}
		if _, err := e.accounts.adjustBalance(ctx, s, first, firstDelta, at); err != nil {
			return err
		}
		_, err := e.accounts.adjustBalance(ctx, s, second, secondDelta, at)
		return err
	}
	return &ValidationError{Field: "transactionId", Reason: "transaction type cannot be reversed"}
}

func (e *ReversalEngine) verifyOwnership(ctx context.Context, s Store, caller string, tx *Transaction) error {
	for _, id := range []string{tx.AccountID, tx.FromAccountID, tx.ToAccountID} {
		if id == "" {
			continue
		}
		acc, err := s.GetAccount(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				continue
			}
			return err
		}
		if acc.OwnerID == caller {
			return nil
		}
	}
	return ErrNotOwner
}

func (e *ReversalEngine) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		if err = fn(); !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return err
}
