/*
stats.go - On-demand statistics aggregation

PURPOSE:
  Pure read-side summaries over transaction history. Nothing here is
  stored; every call replays the matching transactions. REVERSAL rows are
  excluded from every bucket so the three original movement types always
  partition the totals:

    TotalTransactions == TotalDeposits + TotalWithdrawals + TotalTransfers
    TotalAmount       == DepositAmount + WithdrawalAmount + TransferAmount

  UserStats is computed as the pointwise sum of AccountStats over the
  caller's accounts, so the identity between the two holds exactly by
  construction (a transfer between two of the caller's accounts counts
  once per account it touches, on both sides of the identity).
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Aggregator derives statistics from transaction history.
type Aggregator struct {
	store    Store
	accounts *AccountManager
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store Store, accounts *AccountManager) *Aggregator {
	return &Aggregator{store: store, accounts: accounts}
}

// StatsWindow is an optional [From, To] date range. A window with
// From > To is a validation error.
type StatsWindow struct {
	From *time.Time
	To   *time.Time
}

// Validate rejects inverted windows.
func (w StatsWindow) Validate() error {
	if w.From != nil && w.To != nil && w.From.After(*w.To) {
		return &ValidationError{Field: "fromDate", Reason: "fromDate must not be after toDate"}
	}
	return nil
}

// AccountStats summarizes one account's completed activity in the window.
func (a *Aggregator) AccountStats(ctx context.Context, caller, accountID string, window StatsWindow) (Statistics, error) {
	if err := window.Validate(); err != nil {
		return Statistics{}, err
	}
	if _, err := a.accounts.ownedAccount(ctx, a.store, caller, accountID); err != nil {
		return Statistics{}, err
	}
	txs, err := a.store.AllTransactions(ctx, TransactionFilter{
		AccountID: accountID,
		From:      window.From,
		To:        window.To,
	})
	if err != nil {
		return Statistics{}, err
	}
	return aggregate(txs), nil
}

// UserStats sums AccountStats across every account the caller owns.
func (a *Aggregator) UserStats(ctx context.Context, caller string, window StatsWindow) (Statistics, error) {
	if err := window.Validate(); err != nil {
		return Statistics{}, err
	}

	stats := ZeroStatistics()
	page := PageRequest{Size: MaxPageSize}
	for {
		accounts, total, err := a.store.ListAccounts(ctx, AccountFilter{OwnerID: caller}, page)
		if err != nil {
			return Statistics{}, err
		}
		for _, acc := range accounts {
			accStats, err := a.AccountStats(ctx, caller, acc.ID, window)
			if err != nil {
				return Statistics{}, err
			}
			stats = addStats(stats, accStats)
		}
		if int64((page.Number+1)*page.Size) >= total {
			break
		}
		page.Number++
	}
	return stats, nil
}

// aggregate folds transactions into buckets. Only the three original
// movement types count; REVERSAL rows are skipped entirely.
func aggregate(txs []Transaction) Statistics {
	stats := ZeroStatistics()
	first := true

	for _, tx := range txs {
		switch tx.Type {
		case TxDeposit:
			stats.TotalDeposits++
			stats.DepositAmount = stats.DepositAmount.Add(tx.Amount)
		case TxWithdrawal:
			stats.TotalWithdrawals++
			stats.WithdrawalAmount = stats.WithdrawalAmount.Add(tx.Amount)
		case TxTransfer:
			stats.TotalTransfers++
			stats.TransferAmount = stats.TransferAmount.Add(tx.Amount)
		default:
			continue
		}
		stats.TotalTransactions++
		stats.TotalAmount = stats.TotalAmount.Add(tx.Amount)

		if first {
			stats.MinAmount = tx.Amount
			stats.MaxAmount = tx.Amount
			first = false
			continue
		}
		if tx.Amount.LessThan(stats.MinAmount) {
			stats.MinAmount = tx.Amount
		}
		if tx.Amount.GreaterThan(stats.MaxAmount) {
			stats.MaxAmount = tx.Amount
		}
	}

	if stats.TotalTransactions > 0 {
		stats.AverageAmount = stats.TotalAmount.DivRound(decimal.NewFromInt(stats.TotalTransactions), 4)
	}
	return stats
}

// addStats sums two summaries pointwise. Min/max treat an empty side as
// absent rather than zero.
func addStats(a, b Statistics) Statistics {
	out := Statistics{
		TotalTransactions: a.TotalTransactions + b.TotalTransactions,
		TotalDeposits:     a.TotalDeposits + b.TotalDeposits,
		TotalWithdrawals:  a.TotalWithdrawals + b.TotalWithdrawals,
		TotalTransfers:    a.TotalTransfers + b.TotalTransfers,
		TotalAmount:       a.TotalAmount.Add(b.TotalAmount),
		DepositAmount:     a.DepositAmount.Add(b.DepositAmount),
		WithdrawalAmount:  a.WithdrawalAmount.Add(b.WithdrawalAmount),
		TransferAmount:    a.TransferAmount.Add(b.TransferAmount),
		AverageAmount:     a.AverageAmount, // recomputed below
		MinAmount:         a.MinAmount,
		MaxAmount:         a.MaxAmount,
	}
	switch {
	case a.TotalTransactions == 0:
		out.MinAmount, out.MaxAmount = b.MinAmount, b.MaxAmount
	case b.TotalTransactions == 0:
		// keep a's min/max
	default:
		if b.MinAmount.LessThan(out.MinAmount) {
			out.MinAmount = b.MinAmount
		}
		if b.MaxAmount.GreaterThan(out.MaxAmount) {
			out.MaxAmount = b.MaxAmount
		}
	}
	if out.TotalTransactions > 0 {
		out.AverageAmount = out.TotalAmount.DivRound(decimal.NewFromInt(out.TotalTransactions), 4)
	} else {
		out.AverageAmount = a.AverageAmount
	}
	return out
}
