package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/ledger-core/ledger"
	"github.com/meridian/ledger-core/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestAggregator(t *testing.T) (*ledger.Aggregator, *ledger.Processor, *ledger.ReversalEngine, *ledger.AccountManager) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	accounts := ledger.NewAccountManager(store)
	processor := ledger.NewProcessor(store, accounts, nil)
	reversals := ledger.NewReversalEngine(store, accounts)
	return ledger.NewAggregator(store, accounts), processor, reversals, accounts
}

// =============================================================================
// EMPTY AND VALIDATION
// =============================================================================

func TestAggregator_EmptyAccount_ExactZeros(t *testing.T) {
	a, _, _, m := newTestAggregator(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	stats, err := a.AccountStats(context.Background(), "usr-1", acc.ID, ledger.StatsWindow{})
	require.NoError(t, err)

	assert.Zero(t, stats.TotalTransactions)
	assert.True(t, stats.TotalAmount.Equal(decimal.Zero))
	assert.True(t, stats.AverageAmount.Equal(decimal.Zero))
	assert.True(t, stats.MinAmount.Equal(decimal.Zero))
	assert.True(t, stats.MaxAmount.Equal(decimal.Zero))
}

func TestAggregator_InvertedWindowRejected(t *testing.T) {
	a, _, _, m := newTestAggregator(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	from := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -1)
	_, err := a.AccountStats(context.Background(), "usr-1", acc.ID, ledger.StatsWindow{From: &from, To: &to})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = a.UserStats(context.Background(), "usr-1", ledger.StatsWindow{From: &from, To: &to})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAggregator_OwnershipEnforced(t *testing.T) {
	a, _, _, m := newTestAggregator(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	_, err := a.AccountStats(context.Background(), "usr-2", acc.ID, ledger.StatsWindow{})
	assert.ErrorIs(t, err, ledger.ErrNotOwner)
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAggregator_Buckets(t *testing.T) {
	a, p, _, m := newTestAggregator(t)
	acc := checkingAccount(t, m, "usr-1", "100")
	other := checkingAccount(t, m, "usr-1", "0")

	ctx := context.Background()
	_, err := p.Deposit(ctx, "usr-1", acc.ID, dec("50"), "")
	require.NoError(t, err)
	_, err = p.Deposit(ctx, "usr-1", acc.ID, dec("10"), "")
	require.NoError(t, err)
	_, err = p.Withdraw(ctx, "usr-1", acc.ID, dec("25"), "")
	require.NoError(t, err)
	_, err = p.Transfer(ctx, "usr-1", acc.ID, other.ID, dec("30"), "")
	require.NoError(t, err)

	stats, err := a.AccountStats(ctx, "usr-1", acc.ID, ledger.StatsWindow{})
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalTransactions)
	assert.Equal(t, int64(2), stats.TotalDeposits)
	assert.Equal(t, int64(1), stats.TotalWithdrawals)
	assert.Equal(t, int64(1), stats.TotalTransfers)
	assert.True(t, stats.DepositAmount.Equal(dec("60")))
	assert.True(t, stats.WithdrawalAmount.Equal(dec("25")))
	assert.True(t, stats.TransferAmount.Equal(dec("30")))
	assert.True(t, stats.TotalAmount.Equal(dec("115")))
	assert.True(t, stats.MinAmount.Equal(dec("10")))
	assert.True(t, stats.MaxAmount.Equal(dec("50")))
	assert.True(t, stats.AverageAmount.Equal(dec("28.75")))

	// The count identity holds.
	assert.Equal(t, stats.TotalTransactions,
		stats.TotalDeposits+stats.TotalWithdrawals+stats.TotalTransfers)
	assert.True(t, stats.TotalAmount.Equal(
		stats.DepositAmount.Add(stats.WithdrawalAmount).Add(stats.TransferAmount)))
}

func TestAggregator_ReversalsExcluded(t *testing.T) {
	a, p, e, m := newTestAggregator(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	ctx := context.Background()
	tx, err := p.Deposit(ctx, "usr-1", acc.ID, dec("40"), "")
	require.NoError(t, err)
	_, err = e.Reverse(ctx, "usr-1", tx.ID, "oops", "")
	require.NoError(t, err)

	stats, err := a.AccountStats(ctx, "usr-1", acc.ID, ledger.StatsWindow{})
	require.NoError(t, err)

	// The reversed deposit still counts in its bucket; the REVERSAL row
	// counts in none.
	assert.Equal(t, int64(1), stats.TotalTransactions)
	assert.Equal(t, int64(1), stats.TotalDeposits)
	assert.True(t, stats.DepositAmount.Equal(dec("40")))
}

func TestAggregator_UserStatsEqualsSumOfAccountStats(t *testing.T) {
	a, p, _, m := newTestAggregator(t)
	acc1 := checkingAccount(t, m, "usr-1", "500")
	acc2 := checkingAccount(t, m, "usr-1", "500")
	checkingAccount(t, m, "usr-2", "500") // other user, must not leak in

	ctx := context.Background()
	_, err := p.Deposit(ctx, "usr-1", acc1.ID, dec("11"), "")
	require.NoError(t, err)
	_, err = p.Withdraw(ctx, "usr-1", acc2.ID, dec("7"), "")
	require.NoError(t, err)
	// A transfer between two of the caller's accounts touches both sides.
	_, err = p.Transfer(ctx, "usr-1", acc1.ID, acc2.ID, dec("20"), "")
	require.NoError(t, err)

	s1, err := a.AccountStats(ctx, "usr-1", acc1.ID, ledger.StatsWindow{})
	require.NoError(t, err)
	s2, err := a.AccountStats(ctx, "usr-1", acc2.ID, ledger.StatsWindow{})
	require.NoError(t, err)
	user, err := a.UserStats(ctx, "usr-1", ledger.StatsWindow{})
	require.NoError(t, err)

	assert.Equal(t, s1.TotalTransactions+s2.TotalTransactions, user.TotalTransactions)
	assert.Equal(t, s1.TotalDeposits+s2.TotalDeposits, user.TotalDeposits)
	assert.Equal(t, s1.TotalWithdrawals+s2.TotalWithdrawals, user.TotalWithdrawals)
	assert.Equal(t, s1.TotalTransfers+s2.TotalTransfers, user.TotalTransfers)
	assert.True(t, user.TotalAmount.Equal(s1.TotalAmount.Add(s2.TotalAmount)))
	assert.True(t, user.DepositAmount.Equal(s1.DepositAmount.Add(s2.DepositAmount)))
	assert.True(t, user.WithdrawalAmount.Equal(s1.WithdrawalAmount.Add(s2.WithdrawalAmount)))
	assert.True(t, user.TransferAmount.Equal(s1.TransferAmount.Add(s2.TransferAmount)))
}

func TestAggregator_WindowFiltering(t *testing.T) {
	a, p, _, m := newTestAggregator(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	ctx := context.Background()
	_, err := p.Deposit(ctx, "usr-1", acc.ID, dec("10"), "")
	require.NoError(t, err)

	// A window entirely in the past excludes the deposit made just now.
	from := time.Now().UTC().AddDate(-1, 0, 0)
	to := time.Now().UTC().AddDate(0, 0, -1)
	stats, err := a.AccountStats(ctx, "usr-1", acc.ID, ledger.StatsWindow{From: &from, To: &to})
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTransactions)

	// A window around now includes it.
	from = time.Now().UTC().AddDate(0, 0, -1)
	to = time.Now().UTC().AddDate(0, 0, 1)
	stats, err = a.AccountStats(ctx, "usr-1", acc.ID, ledger.StatsWindow{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalTransactions)
}
