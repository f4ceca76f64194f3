package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/ledger-core/ledger"
	"github.com/meridian/ledger-core/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestReversalEngine(t *testing.T) (*ledger.ReversalEngine, *ledger.Processor, *ledger.AccountManager) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	accounts := ledger.NewAccountManager(store)
	processor := ledger.NewProcessor(store, accounts, nil)
	return ledger.NewReversalEngine(store, accounts), processor, accounts
}

// =============================================================================
// BALANCE EFFECT
// =============================================================================

func TestReversalEngine_ReverseDeposit(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	tx, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("30"), "")
	require.NoError(t, err)

	rev, err := e.Reverse(context.Background(), "usr-1", tx.ID, "entered twice", "")
	require.NoError(t, err)

	assert.Equal(t, tx.ID, rev.OriginalTransactionID)
	assert.True(t, rev.Amount.Equal(dec("30")))

	got, err := m.Get(context.Background(), "usr-1", acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("100")), "deposit reversal debits the amount back")

	// The original flips to REVERSED; the compensating row is COMPLETED.
	original, err := p.Get(context.Background(), "usr-1", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TxReversed, original.Status)

	compensating, err := p.Get(context.Background(), "usr-1", rev.ReversalTransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TxReversal, compensating.Type)
	assert.Equal(t, ledger.TxCompleted, compensating.Status)
}

func TestReversalEngine_ReverseWithdrawal(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	tx, err := p.Withdraw(context.Background(), "usr-1", acc.ID, dec("40"), "")
	require.NoError(t, err)

	_, err = e.Reverse(context.Background(), "usr-1", tx.ID, "wrong account", "")
	require.NoError(t, err)

	got, err := m.Get(context.Background(), "usr-1", acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("100")), "withdrawal reversal credits the amount back")
}

func TestReversalEngine_ReverseTransfer(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	from := checkingAccount(t, m, "usr-1", "100")
	to := checkingAccount(t, m, "usr-1", "50")

	tx, err := p.Transfer(context.Background(), "usr-1", from.ID, to.ID, dec("25"), "")
	require.NoError(t, err)

	_, err = e.Reverse(context.Background(), "usr-1", tx.ID, "fat finger", "")
	require.NoError(t, err)

	gotFrom, _ := m.Get(context.Background(), "usr-1", from.ID)
	gotTo, _ := m.Get(context.Background(), "usr-1", to.ID)
	assert.True(t, gotFrom.Balance.Equal(dec("100")), "source credited back")
	assert.True(t, gotTo.Balance.Equal(dec("50")), "destination debited back")
}

func TestReversalEngine_ReverseDeposit_InsufficientFunds(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "0")

	tx, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("30"), "")
	require.NoError(t, err)
	_, err = p.Withdraw(context.Background(), "usr-1", acc.ID, dec("20"), "")
	require.NoError(t, err)

	// Only 10 left; undoing the 30 deposit would go negative.
	_, err = e.Reverse(context.Background(), "usr-1", tx.ID, "dispute", "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// Nothing committed: original still COMPLETED, balance intact.
	original, err := p.Get(context.Background(), "usr-1", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TxCompleted, original.Status)

	got, _ := m.Get(context.Background(), "usr-1", acc.ID)
	assert.True(t, got.Balance.Equal(dec("10")))
}

// =============================================================================
// MUTUAL EXCLUSION
// =============================================================================

func TestReversalEngine_SecondReversalRejected(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	tx, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("30"), "")
	require.NoError(t, err)

	_, err = e.Reverse(context.Background(), "usr-1", tx.ID, "first", "")
	require.NoError(t, err)

	_, err = e.Reverse(context.Background(), "usr-1", tx.ID, "second", "")
	assert.ErrorIs(t, err, ledger.ErrAlreadyReversed)
}

func TestReversalEngine_ConcurrentReversals_ExactlyOneWins(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	tx, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("30"), "")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Reverse(context.Background(), "usr-1", tx.ID, "race", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ledger.ErrAlreadyReversed)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent reversal commits")

	got, err := m.Get(context.Background(), "usr-1", acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("100")), "balance compensated exactly once")
}

// =============================================================================
// VALIDATION AND ACCESS
// =============================================================================

func TestReversalEngine_ReasonRequired(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	tx, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("30"), "")
	require.NoError(t, err)

	_, err = e.Reverse(context.Background(), "usr-1", tx.ID, "   ", "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestReversalEngine_CannotReverseAReversal(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	tx, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("30"), "")
	require.NoError(t, err)
	rev, err := e.Reverse(context.Background(), "usr-1", tx.ID, "undo", "")
	require.NoError(t, err)

	_, err = e.Reverse(context.Background(), "usr-1", rev.ReversalTransactionID, "undo the undo", "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestReversalEngine_WrongOwner(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	tx, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("30"), "")
	require.NoError(t, err)

	_, err = e.Reverse(context.Background(), "usr-2", tx.ID, "not mine", "")
	assert.ErrorIs(t, err, ledger.ErrNotOwner)
}

func TestReversalEngine_Listings(t *testing.T) {
	e, p, m := newTestReversalEngine(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	tx1, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("10"), "")
	require.NoError(t, err)
	tx2, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("20"), "")
	require.NoError(t, err)

	_, err = e.Reverse(context.Background(), "usr-1", tx1.ID, "one", "")
	require.NoError(t, err)
	_, err = e.Reverse(context.Background(), "usr-1", tx2.ID, "two", "")
	require.NoError(t, err)

	byTx, err := e.ListForTransaction(context.Background(), "usr-1", tx1.ID)
	require.NoError(t, err)
	require.Len(t, byTx, 1)
	assert.Equal(t, tx1.ID, byTx[0].OriginalTransactionID)

	byAccount, err := e.ListForAccount(context.Background(), "usr-1", acc.ID)
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)

	byOwner, err := e.ListForOwner(context.Background(), "usr-1")
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	other, err := e.ListForOwner(context.Background(), "usr-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
