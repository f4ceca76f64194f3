package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/ledger-core/ledger"
	"github.com/meridian/ledger-core/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestManager(t *testing.T) (*ledger.AccountManager, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewAccountManager(store), store
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func checkingAccount(t *testing.T, m *ledger.AccountManager, owner, balance string) *ledger.Account {
	t.Helper()
	acc, err := m.Create(context.Background(), owner, ledger.NewAccountInput{
		Type:    ledger.AccountChecking,
		Balance: dec(balance),
	})
	require.NoError(t, err)
	return acc
}

// =============================================================================
// CREATION
// =============================================================================

func TestAccountManager_Create_Checking(t *testing.T) {
	m, _ := newTestManager(t)

	acc := checkingAccount(t, m, "usr-1", "100.50")

	assert.True(t, ledger.ValidAccountID(acc.ID))
	assert.Equal(t, "usr-1", acc.OwnerID)
	assert.Equal(t, ledger.AccountChecking, acc.Type)
	assert.True(t, acc.Balance.Equal(dec("100.50")))
	assert.Equal(t, "USD", acc.Currency, "currency defaults to USD")
	assert.Equal(t, ledger.AccountActive, acc.Status)
	assert.Nil(t, acc.InterestRate)
	assert.Nil(t, acc.CreditLimit)
}

func TestAccountManager_Create_SavingsRequiresInterestRate(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Create(context.Background(), "usr-1", ledger.NewAccountInput{
		Type:    ledger.AccountSavings,
		Balance: dec("100"),
	})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "interestRate", verr.Field)
}

func TestAccountManager_Create_CreditRequiresPositiveLimit(t *testing.T) {
	m, _ := newTestManager(t)
	zero := decimal.Zero

	_, err := m.Create(context.Background(), "usr-1", ledger.NewAccountInput{
		Type:        ledger.AccountCredit,
		Balance:     dec("100"),
		CreditLimit: &zero,
	})

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAccountManager_Create_CheckingRejectsSubtypeFields(t *testing.T) {
	m, _ := newTestManager(t)
	rate := dec("0.05")

	_, err := m.Create(context.Background(), "usr-1", ledger.NewAccountInput{
		Type:         ledger.AccountChecking,
		Balance:      dec("100"),
		InterestRate: &rate,
	})

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAccountManager_Create_NegativeBalanceRejected(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Create(context.Background(), "usr-1", ledger.NewAccountInput{
		Type:    ledger.AccountChecking,
		Balance: dec("-1"),
	})

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// RETRIEVAL AND OWNERSHIP
// =============================================================================

func TestAccountManager_Get_RoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	rate := dec("0.031")

	created, err := m.Create(context.Background(), "usr-1", ledger.NewAccountInput{
		Type:         ledger.AccountSavings,
		Balance:      dec("250.75"),
		InterestRate: &rate,
	})
	require.NoError(t, err)

	got, err := m.Get(context.Background(), "usr-1", created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.True(t, got.Balance.Equal(dec("250.75")), "decimal balance survives storage exactly")
	require.NotNil(t, got.InterestRate)
	assert.True(t, got.InterestRate.Equal(rate))
}

func TestAccountManager_Get_MalformedID(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Get(context.Background(), "usr-1", "not-an-account-id")
	assert.ErrorIs(t, err, ledger.ErrMalformedID)
}

func TestAccountManager_Get_NotFound(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Get(context.Background(), "usr-1", ledger.NewAccountID())
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAccountManager_Get_WrongOwner(t *testing.T) {
	m, _ := newTestManager(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	_, err := m.Get(context.Background(), "usr-2", acc.ID)
	assert.ErrorIs(t, err, ledger.ErrNotOwner)
}

func TestAccountManager_List_OnlyCallersAccounts(t *testing.T) {
	m, _ := newTestManager(t)
	checkingAccount(t, m, "usr-1", "10")
	checkingAccount(t, m, "usr-1", "20")
	checkingAccount(t, m, "usr-2", "30")

	page, err := m.List(context.Background(), "usr-1", ledger.AccountFilter{}, ledger.PageRequest{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), page.TotalElements)
	for _, acc := range page.Content {
		assert.Equal(t, "usr-1", acc.OwnerID)
	}
}

func TestAccountManager_List_ForeignOwnerFilterRejected(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.List(context.Background(), "usr-1", ledger.AccountFilter{OwnerID: "usr-2"}, ledger.PageRequest{})
	assert.ErrorIs(t, err, ledger.ErrNotOwner)
}

func TestAccountManager_List_Pagination(t *testing.T) {
	m, _ := newTestManager(t)
	for i := 0; i < 5; i++ {
		checkingAccount(t, m, "usr-1", "10")
	}

	page, err := m.List(context.Background(), "usr-1", ledger.AccountFilter{},
		ledger.PageRequest{Number: 1, Size: 2})
	require.NoError(t, err)

	assert.Len(t, page.Content, 2)
	assert.Equal(t, int64(5), page.TotalElements)
	assert.Equal(t, int64(3), page.TotalPages)
	assert.Equal(t, 1, page.Number)
}

// =============================================================================
// UPDATES
// =============================================================================

func TestAccountManager_Update_ClosedIsTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	closed := ledger.AccountClosed
	_, err := m.Update(context.Background(), "usr-1", acc.ID, ledger.UpdateAccountInput{Status: &closed})
	require.NoError(t, err)

	active := ledger.AccountActive
	_, err = m.Update(context.Background(), "usr-1", acc.ID, ledger.UpdateAccountInput{Status: &active})
	assert.ErrorIs(t, err, ledger.ErrAccountClosed, "closed accounts cannot reopen")
}

func TestAccountManager_Update_InterestRateOnChecking(t *testing.T) {
	m, _ := newTestManager(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	rate := dec("0.05")
	_, err := m.Update(context.Background(), "usr-1", acc.ID, ledger.UpdateAccountInput{InterestRate: &rate})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAccountManager_SetBalance(t *testing.T) {
	m, _ := newTestManager(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	updated, err := m.SetBalance(context.Background(), "usr-1", acc.ID, dec("42.42"))
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(dec("42.42")))
	assert.Equal(t, acc.Version+1, updated.Version, "balance write bumps the version token")

	_, err = m.SetBalance(context.Background(), "usr-1", acc.ID, dec("-1"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// DELETION
// =============================================================================

func TestAccountManager_Delete(t *testing.T) {
	m, _ := newTestManager(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	require.NoError(t, m.Delete(context.Background(), "usr-1", acc.ID))

	_, err := m.Get(context.Background(), "usr-1", acc.ID)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	// A second delete of the same id is an error, never a silent no-op.
	err = m.Delete(context.Background(), "usr-1", acc.ID)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAccountManager_Delete_BlockedByHistory(t *testing.T) {
	m, store := newTestManager(t)
	acc := checkingAccount(t, m, "usr-1", "100")

	p := ledger.NewProcessor(store, m, nil)
	_, err := p.Deposit(context.Background(), "usr-1", acc.ID, dec("10"), "")
	require.NoError(t, err)

	err = m.Delete(context.Background(), "usr-1", acc.ID)
	assert.ErrorIs(t, err, ledger.ErrAccountHasHistory)

	// The account survives the rejected delete.
	got, err := m.Get(context.Background(), "usr-1", acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("110")))
}
