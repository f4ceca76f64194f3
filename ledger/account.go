/*
account.go - Account lifecycle and the sole balance-mutation entrypoint

PURPOSE:
  The AccountManager owns Account CRUD and every balance write in the
  system. The Transaction Processor and Reversal Engine never touch
  balances directly; they call back into this file (setBalance /
  adjustBalance), so the non-negativity and lost-update guarantees live in
  exactly one place.

OWNERSHIP:
  Every operation taking an authenticated caller verifies
  caller == account.OwnerID before doing anything else. A wrong owner is
  ErrNotOwner (403), distinct from a missing row (404) and from a missing
  credential (401, handled upstream by the auth middleware).

CONCURRENCY:
  Balance writes go through ApplyBalance, a version compare-and-set.
  The manager rereads and retries on ErrConcurrentModification up to a
  bounded attempt count, so N concurrent deposits each land exactly once.
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// casRetryLimit bounds optimistic-lock retries before the operation gives
// up and surfaces ErrConcurrentModification to the caller.
const casRetryLimit = 8

// AccountSortFields whitelists sortable columns for account listings.
var AccountSortFields = map[string]bool{
	"createdAt":   true,
	"updatedAt":   true,
	"balance":     true,
	"accountType": true,
	"id":          true,
}

// AccountManager enforces account invariants over a Store.
type AccountManager struct {
	store Store
	now   func() time.Time
}

// NewAccountManager creates a manager over the given store.
func NewAccountManager(store Store) *AccountManager {
	return &AccountManager{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates and persists a new account owned by ownerID.
func (m *AccountManager) Create(ctx context.Context, ownerID string, in NewAccountInput) (*Account, error) {
	acc, err := NewAccount(ownerID, in, m.now())
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateAccount(ctx, *acc); err != nil {
		return nil, err
	}
	zap.L().Info("account created",
		zap.String("account_id", acc.ID),
		zap.String("owner_id", acc.OwnerID),
		zap.String("type", string(acc.Type)))
	return acc, nil
}

// Get returns the account after the ownership check.
func (m *AccountManager) Get(ctx context.Context, caller, id string) (*Account, error) {
	return m.ownedAccount(ctx, m.store, caller, id)
}

// List returns a page of the caller's accounts. The filter is conjunctive;
// an ownerId filter naming a different user is an ownership violation, not
// an empty result.
func (m *AccountManager) List(ctx context.Context, caller string, filter AccountFilter, page PageRequest) (Page[Account], error) {
	if filter.OwnerID == "" {
		filter.OwnerID = caller
	} else if filter.OwnerID != caller {
		return Page[Account]{}, ErrNotOwner
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return Page[Account]{}, &ValidationError{Field: "accountType", Reason: "unknown account type"}
	}

	page = page.Normalize()
	accounts, total, err := m.store.ListAccounts(ctx, filter, page)
	if err != nil {
		return Page[Account]{}, err
	}
	return NewPage(accounts, total, page), nil
}

// UpdateAccountInput carries the mutable fields for Update. Nil pointers
// leave the field untouched.
type UpdateAccountInput struct {
	Balance      *decimal.Decimal
	Status       *AccountStatus
	InterestRate *decimal.Decimal
	CreditLimit  *decimal.Decimal
}

// Update rewrites mutable fields. OwnerID and Type are immutable after
// creation; a balance change routes through the same CAS path as every
// other balance write.
func (m *AccountManager) Update(ctx context.Context, caller, id string, in UpdateAccountInput) (*Account, error) {
	if in.Balance != nil && in.Balance.IsNegative() {
		return nil, &ValidationError{Field: "balance", Reason: "balance cannot be negative"}
	}
	if in.Status != nil && *in.Status != AccountActive && *in.Status != AccountClosed {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}

	var updated *Account
	err := m.store.WithTx(ctx, func(s Store) error {
		acc, err := m.ownedAccount(ctx, s, caller, id)
		if err != nil {
			return err
		}
		if acc.Status == AccountClosed {
			// Closed is terminal; the only no-op allowed is re-stating it.
			if in.Status == nil || *in.Status != AccountClosed || in.Balance != nil {
				return ErrAccountClosed
			}
		}

		now := m.now()
		if in.Status != nil {
			acc.Status = *in.Status
		}
		if in.InterestRate != nil {
			if acc.Type != AccountSavings {
				return &ValidationError{Field: "interestRate", Reason: "only savings accounts carry an interest rate"}
			}
			if in.InterestRate.IsNegative() {
				return &ValidationError{Field: "interestRate", Reason: "interest rate cannot be negative"}
			}
			rate := *in.InterestRate
			acc.InterestRate = &rate
		}
		if in.CreditLimit != nil {
			if acc.Type != AccountCredit {
				return &ValidationError{Field: "creditLimit", Reason: "only credit accounts carry a credit limit"}
			}
			if !in.CreditLimit.IsPositive() {
				return &ValidationError{Field: "creditLimit", Reason: "credit limit must be positive"}
			}
			limit := *in.CreditLimit
			acc.CreditLimit = &limit
		}
		acc.UpdatedAt = now
		if err := s.UpdateAccount(ctx, *acc); err != nil {
			return err
		}
		if in.Balance != nil {
			if err := s.ApplyBalance(ctx, acc.ID, *in.Balance, acc.Version, now); err != nil {
				return err
			}
			acc.Balance = *in.Balance
			acc.Version++
		}
		updated = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetBalance atomically replaces the balance. This is the external face of
// the sole balance-mutation entrypoint.
func (m *AccountManager) SetBalance(ctx context.Context, caller, id string, balance decimal.Decimal) (*Account, error) {
	if balance.IsNegative() {
		return nil, &ValidationError{Field: "balance", Reason: "balance cannot be negative"}
	}

	var updated *Account
	err := m.retryCAS(ctx, func() error {
		acc, err := m.ownedAccount(ctx, m.store, caller, id)
		if err != nil {
			return err
		}
		if acc.Status == AccountClosed {
			return ErrAccountClosed
		}
		if err := m.store.ApplyBalance(ctx, acc.ID, balance, acc.Version, m.now()); err != nil {
			return err
		}
		acc.Balance = balance
		acc.Version++
		updated = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the account. Deletion is blocked while transaction
// history references the account, and a second delete of the same id is
// ErrAccountNotFound, never a silent no-op.
func (m *AccountManager) Delete(ctx context.Context, caller, id string) error {
	return m.store.WithTx(ctx, func(s Store) error {
		acc, err := m.ownedAccount(ctx, s, caller, id)
		if err != nil {
			return err
		}
		has, err := s.HasTransactions(ctx, acc.ID)
		if err != nil {
			return err
		}
		if has {
			return ErrAccountHasHistory
		}
		if err := s.DeleteAccount(ctx, acc.ID); err != nil {
			return err
		}
		zap.L().Info("account deleted", zap.String("account_id", acc.ID))
		return nil
	})
}

// =============================================================================
// INTERNAL MUTATION PATH
// =============================================================================

// ownedAccount loads the account, distinguishing malformed id (400),
// missing row (404), and wrong owner (403).
func (m *AccountManager) ownedAccount(ctx context.Context, s Store, caller, id string) (*Account, error) {
	if !ValidAccountID(id) {
		return nil, ErrMalformedID
	}
	acc, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.OwnerID != caller {
		return nil, ErrNotOwner
	}
	return acc, nil
}

// adjustBalance applies a signed delta to an account inside the store
// handle s (typically a transaction from WithTx). It re-reads the row so
// the CAS token is fresh, rejects any result below zero before writing,
// and returns the post-commit balance.
func (m *AccountManager) adjustBalance(ctx context.Context, s Store, id string, delta decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	acc, err := s.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if acc.Status == AccountClosed {
		return decimal.Zero, ErrAccountClosed
	}
	next := acc.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, &InsufficientFundsError{
			AccountID: acc.ID,
			Available: acc.Balance,
			Requested: delta.Neg(),
		}
	}
	if err := s.ApplyBalance(ctx, acc.ID, next, acc.Version, at); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// retryCAS replays fn while it loses the optimistic version check, up to
// casRetryLimit attempts.
func (m *AccountManager) retryCAS(ctx context.Context, fn func() error) error {
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
