/*
processor.go - Deposit, withdrawal, and transfer execution

PURPOSE:
  The Processor validates and executes money movements. Every attempt is
  synchronous: the caller gets either a COMPLETED transaction or an error,
  never a pending row that resolves later.

STATE MACHINE (per attempt):
  REQUESTED -> VALIDATING -> APPLYING -> COMPLETED
  REQUESTED -> VALIDATING -> REJECTED   (terminal, no row persisted)

  Validation runs entirely before the first write. A rejected attempt
  leaves the balance untouched and writes nothing, so history shows zero
  trace of failures.

ATOMICITY:
  Each operation runs inside one store transaction (WithTx): balance
  write(s) plus the transaction row commit together or not at all. A
  transfer updates both accounts in ascending account-id order so two
  opposing transfers between the same pair cannot deadlock.

LIMITS:
  Single-transaction, daily, and monthly ceilings are checked inside the
  same serialized unit as the commit, closing the race between "check
  limit" and "apply".
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxDescriptionLength bounds the free-text description field.
const MaxDescriptionLength = 500

// TransactionSortFields whitelists sortable columns for transaction listings.
var TransactionSortFields = map[string]bool{
	"createdAt": true,
	"amount":    true,
	"type":      true,
	"id":        true,
}

// Processor executes money movements against the AccountManager's
// mutation path.
type Processor struct {
	store    Store
	accounts *AccountManager
	limits   *LimitPolicies
	now      func() time.Time
}

// NewProcessor creates a processor. A nil policies argument falls back to
// the built-in default ceilings.
func NewProcessor(store Store, accounts *AccountManager, policies *LimitPolicies) *Processor {
	if policies == nil {
		policies = DefaultLimitPolicies()
	}
	return &Processor{
		store:    store,
		accounts: accounts,
		limits:   policies,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Deposit credits amount to the account and records a COMPLETED DEPOSIT.
func (p *Processor) Deposit(ctx context.Context, caller, accountID string, amount decimal.Decimal, description string) (*Transaction, error) {
	if err := validateMovement(amount, description); err != nil {
		return nil, err
	}

	var result *Transaction
	err := p.retry(ctx, func() error {
		return p.store.WithTx(ctx, func(s Store) error {
			acc, err := p.accounts.ownedAccount(ctx, s, caller, accountID)
			if err != nil {
				return err
			}
			if err := p.checkLimits(ctx, s, caller, acc.Type, amount); err != nil {
				return err
			}

			now := p.now()
			if _, err := p.accounts.adjustBalance(ctx, s, acc.ID, amount, now); err != nil {
				return err
			}

			tx := Transaction{
				ID:          NewTransactionID(),
				Type:        TxDeposit,
				AccountID:   acc.ID,
				Amount:      amount,
				Currency:    acc.Currency,
				Status:      TxCompleted,
				Description: description,
				CreatedAt:   now,
				ProcessedAt: now,
			}
			if err := s.AppendTransaction(ctx, tx); err != nil {
				return err
			}
			result = &tx
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("deposit completed",
		zap.String("transaction_id", result.ID),
		zap.String("account_id", accountID),
		zap.String("amount", amount.String()))
	return result, nil
}

// Withdraw debits amount from the account and records a COMPLETED
// WITHDRAWAL. Insufficient funds reject before any write.
func (p *Processor) Withdraw(ctx context.Context, caller, accountID string, amount decimal.Decimal, description string) (*Transaction, error) {
	if err := validateMovement(amount, description); err != nil {
		return nil, err
	}

	var result *Transaction
	err := p.retry(ctx, func() error {
		return p.store.WithTx(ctx, func(s Store) error {
			acc, err := p.accounts.ownedAccount(ctx, s, caller, accountID)
			if err != nil {
				return err
			}
			if err := p.checkLimits(ctx, s, caller, acc.Type, amount); err != nil {
				return err
			}

			now := p.now()
			if _, err := p.accounts.adjustBalance(ctx, s, acc.ID, amount.Neg(), now); err != nil {
				return err
			}

			tx := Transaction{
				ID:          NewTransactionID(),
				Type:        TxWithdrawal,
				AccountID:   acc.ID,
				Amount:      amount,
				Currency:    acc.Currency,
				Status:      TxCompleted,
				Description: description,
				CreatedAt:   now,
				ProcessedAt: now,
			}
			if err := s.AppendTransaction(ctx, tx); err != nil {
				return err
			}
			result = &tx
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("withdrawal completed",
		zap.String("transaction_id", result.ID),
		zap.String("account_id", accountID),
		zap.String("amount", amount.String()))
	return result, nil
}

// Transfer moves amount between two accounts as a single unit: both
// balances change or neither does, and exactly one TRANSFER row records
// the movement. Total balance across the pair is invariant.
func (p *Processor) Transfer(ctx context.Context, caller, fromID, toID string, amount decimal.Decimal, description string) (*Transaction, error) {
	if err := validateMovement(amount, description); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, &ValidationError{Field: "toAccountId", Reason: "cannot transfer to the same account"}
	}

	var result *Transaction
	err := p.retry(ctx, func() error {
		return p.store.WithTx(ctx, func(s Store) error {
			from, err := p.accounts.ownedAccount(ctx, s, caller, fromID)
			if err != nil {
				return err
			}
			to, err := p.accounts.ownedAccount(ctx, s, caller, toID)
			if err != nil {
				return err
			}
			if from.Currency != to.Currency {
				return ErrCurrencyMismatch
			}
			if from.Balance.LessThan(amount) {
				return &InsufficientFundsError{AccountID: from.ID, Available: from.Balance, Requested: amount}
			}
			if err := p.checkLimits(ctx, s, caller, from.Type, amount); err != nil {
				return err
			}

			now := p.now()
			// Both sides mutate in ascending account-id order so opposing
			// transfers between the same pair cannot deadlock.
			first, firstDelta := from.ID, amount.Neg()
			second, secondDelta := to.ID, amount
			if second < first {
				first, second = second, first
				firstDelta, secondDelta = secondDelta, firstDelta
			}
			if _, err := p.accounts.adjustBalance(ctx, s, first, firstDelta, now); err != nil {
				return err
			}
			if _, err := p.accounts.adjustBalance(ctx, s, second, secondDelta, now); err != nil {
				return err
			}

			tx := Transaction{
				ID:            NewTransactionID(),
				Type:          TxTransfer,
				FromAccountID: from.ID,
				ToAccountID:   to.ID,
				Amount:        amount,
				Currency:      from.Currency,
				Status:        TxCompleted,
				Description:   description,
				CreatedAt:     now,
				ProcessedAt:   now,
			}
			if err := s.AppendTransaction(ctx, tx); err != nil {
				return err
			}
			result = &tx
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("transfer completed",
		zap.String("transaction_id", result.ID),
		zap.String("from_account_id", fromID),
		zap.String("to_account_id", toID),
		zap.String("amount", amount.String()))
	return result, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a transaction after verifying the caller owns at least one
// referenced account.
func (p *Processor) Get(ctx context.Context, caller, id string) (*Transaction, error) {
	if !ValidTransactionID(id) {
		return nil, ErrMalformedID
	}
	tx, err := p.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.verifyTransactionAccess(ctx, caller, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ListForAccount returns the account's transaction history, both sides of
// transfers included.
func (p *Processor) ListForAccount(ctx context.Context, caller, accountID string, page PageRequest) (Page[Transaction], error) {
	if _, err := p.accounts.ownedAccount(ctx, p.store, caller, accountID); err != nil {
		return Page[Transaction]{}, err
	}
	page = page.Normalize()
	txs, total, err := p.store.ListTransactions(ctx, TransactionFilter{AccountID: accountID}, page)
	if err != nil {
		return Page[Transaction]{}, err
	}
	return NewPage(txs, total, page), nil
}

// ListFilter carries the optional narrowing for List.
type ListFilter struct {
	Type TransactionType
	From *time.Time
	To   *time.Time
}

// List returns transactions across all of the caller's accounts.
func (p *Processor) List(ctx context.Context, caller string, filter ListFilter, page PageRequest) (Page[Transaction], error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return Page[Transaction]{}, &ValidationError{Field: "type", Reason: "unknown transaction type"}
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return Page[Transaction]{}, &ValidationError{Field: "fromDate", Reason: "fromDate must not be after toDate"}
	}
	page = page.Normalize()
	txs, total, err := p.store.ListTransactions(ctx, TransactionFilter{
		OwnerID: caller,
		Type:    filter.Type,
		From:    filter.From,
		To:      filter.To,
	}, page)
	if err != nil {
		return Page[Transaction]{}, err
	}
	return NewPage(txs, total, page), nil
}

// Limits describes the caller's effective ceilings. Stable across repeated
// calls within a period.
type Limits struct {
	DailyLimit             decimal.Decimal
	MonthlyLimit           decimal.Decimal
	SingleTransactionLimit decimal.Decimal
	Currency               string
}

// GetLimits returns the caller's effective limit policy.
func (p *Processor) GetLimits(ctx context.Context, caller string) (Limits, error) {
	// All callers share the configured default policy today; per-type
	// overrides apply when a specific account is being debited.
	policy := p.limits.Default
	_ = caller
	return Limits{
		DailyLimit:             policy.Daily,
		MonthlyLimit:           policy.Monthly,
		SingleTransactionLimit: policy.SingleTransaction,
		Currency:               policy.Currency,
	}, nil
}

// verifyTransactionAccess checks the caller owns an account the
// transaction touches.
func (p *Processor) verifyTransactionAccess(ctx context.Context, caller string, tx *Transaction) error {
	for _, id := range []string{tx.AccountID, tx.FromAccountID, tx.ToAccountID} {
		if id == "" {
			continue
		}
		acc, err := p.store.GetAccount(ctx, id)
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

// =============================================================================
// VALIDATION
// =============================================================================

func validateMovement(amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "amount must be positive"}
	}
	if len(description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Reason: "description too long"}
	}
	if strings.TrimSpace(description) == "" && description != "" {
		return &ValidationError{Field: "description", Reason: "description cannot be blank"}
	}
	return nil
}

// checkLimits enforces the single/daily/monthly ceilings. Runs inside the
// same store transaction as the commit.
func (p *Processor) checkLimits(ctx context.Context, s Store, caller string, accountType AccountType, amount decimal.Decimal) error {
	policy := p.limits.PolicyFor(accountType)

	if amount.GreaterThan(policy.SingleTransaction) {
		return &LimitExceededError{Scope: LimitSingle, Limit: policy.SingleTransaction, Requested: amount}
	}

	now := p.now()
	dayStart, dayEnd := DayWindow(now)
	dayUsed, err := s.SumAmounts(ctx, caller, dayStart, dayEnd)
	if err != nil {
		return err
	}
	if dayUsed.Add(amount).GreaterThan(policy.Daily) {
		return &LimitExceededError{Scope: LimitDaily, Limit: policy.Daily, Requested: dayUsed.Add(amount)}
	}

	monthStart, monthEnd := MonthWindow(now)
	monthUsed, err := s.SumAmounts(ctx, caller, monthStart, monthEnd)
	if err != nil {
		return err
	}
	if monthUsed.Add(amount).GreaterThan(policy.Monthly) {
		return &LimitExceededError{Scope: LimitMonthly, Limit: policy.Monthly, Requested: monthUsed.Add(amount)}
	}
	return nil
}

// retry replays fn while the optimistic version check loses, bounded by
// casRetryLimit.
func (p *Processor) retry(ctx context.Context, fn func() error) error {
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
