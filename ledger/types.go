/*
Package ledger provides the transactional ledger core.

PURPOSE:
  This package contains the domain types and engines for account balance
  management and atomic money movement: deposits, withdrawals, transfers,
  and compensating reversals. Balances are exact decimals and every change
  flows through a single mutation path so no update is ever lost.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: An owned balance container with a typed variant payload
  - Transaction: An immutable record of a completed money movement
  - Reversal: A link between an original transaction and its compensation
  - Statistics: Derived per-account/per-user aggregates (never stored)
  - Page: A bounded result slice with pagination metadata

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never binary floats
  2. Immutability: Transactions are never edited, only reversed
  3. No partial state: failed attempts leave no row and no balance change
  4. Tagged unions: account subtype fields validated by discriminant,
     not modeled via inheritance

SEE ALSO:
  - errors.go: Error taxonomy shared by all engines
  - account.go: Account lifecycle and the sole balance-mutation entrypoint
  - processor.go: Deposit/withdraw/transfer execution
  - reversal.go: Compensating transactions
  - stats.go: On-demand aggregation
*/
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Prefixed ids keep account, transaction, and reversal ids from being
// mixed up in logs and API payloads.
const (
	accountIDPrefix     = "acc_"
	transactionIDPrefix = "txn_"
	reversalIDPrefix    = "rev_"
	userIDPrefix        = "usr_"
)

func NewAccountID() string     { return accountIDPrefix + uuid.NewString() }
func NewTransactionID() string { return transactionIDPrefix + uuid.NewString() }
func NewReversalID() string    { return reversalIDPrefix + uuid.NewString() }
func NewUserID() string        { return userIDPrefix + uuid.NewString() }

// ValidAccountID reports whether id is well-formed. A malformed id is a
// client error (400), distinct from a well-formed id that simply does not
// exist (404).
func ValidAccountID(id string) bool { return validPrefixedID(id, accountIDPrefix) }

// ValidTransactionID reports whether id is a well-formed transaction id.
func ValidTransactionID(id string) bool { return validPrefixedID(id, transactionIDPrefix) }

func validPrefixedID(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, prefix))
	return err == nil
}

// =============================================================================
// ACCOUNT - Owned balance container
// =============================================================================

type AccountType string

const (
	AccountChecking AccountType = "CHECKING"
	AccountSavings  AccountType = "SAVINGS"
	AccountCredit   AccountType = "CREDIT"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCredit:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountClosed AccountStatus = "CLOSED" // terminal
)

// Account holds a balance for a single owner. The subtype payload is a
// tagged union keyed on Type: SAVINGS carries InterestRate, CREDIT carries
// CreditLimit, CHECKING carries neither. Validation happens at
// construction (NewAccount), so a persisted Account is always coherent.
type Account struct {
	ID       string
	OwnerID  string
	Type     AccountType
	Balance  decimal.Decimal
	Currency string
	Status   AccountStatus

	// Subtype payload. Exactly one pointer is set for SAVINGS/CREDIT,
	// both nil for CHECKING.
	InterestRate *decimal.Decimal
	CreditLimit  *decimal.Decimal

	// Version is the optimistic concurrency token. Every committed balance
	// mutation increments it; a stale version loses the write.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccountInput carries the caller-supplied fields for account creation.
type NewAccountInput struct {
	Type         AccountType
	Balance      decimal.Decimal
	Currency     string
	InterestRate *decimal.Decimal
	CreditLimit  *decimal.Decimal
}

// NewAccount validates the input and constructs a persistable Account.
// The subtype payload is checked against the discriminant here and nowhere
// else.
func NewAccount(ownerID string, in NewAccountInput, now time.Time) (*Account, error) {
	if ownerID == "" {
		return nil, &ValidationError{Field: "ownerId", Reason: "owner id is required"}
	}
	if !in.Type.Valid() {
		return nil, &ValidationError{Field: "accountType", Reason: "unknown account type"}
	}
	if in.Balance.IsNegative() {
		return nil, &ValidationError{Field: "balance", Reason: "balance cannot be negative"}
	}
	currency := in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, &ValidationError{Field: "currency", Reason: "currency must be a 3-letter code"}
	}

	acc := &Account{
		ID:        NewAccountID(),
		OwnerID:   ownerID,
		Type:      in.Type,
		Balance:   in.Balance,
		Currency:  strings.ToUpper(currency),
		Status:    AccountActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch in.Type {
	case AccountSavings:
		if in.InterestRate == nil {
			return nil, &ValidationError{Field: "interestRate", Reason: "interest rate is required for savings accounts"}
		}
		if in.InterestRate.IsNegative() {
			return nil, &ValidationError{Field: "interestRate", Reason: "interest rate cannot be negative"}
		}
		rate := *in.InterestRate
		acc.InterestRate = &rate
	case AccountCredit:
		if in.CreditLimit == nil {
			return nil, &ValidationError{Field: "creditLimit", Reason: "credit limit is required for credit accounts"}
		}
		if !in.CreditLimit.IsPositive() {
			return nil, &ValidationError{Field: "creditLimit", Reason: "credit limit must be positive"}
		}
		limit := *in.CreditLimit
		acc.CreditLimit = &limit
	case AccountChecking:
		if in.InterestRate != nil || in.CreditLimit != nil {
			return nil, &ValidationError{Field: "accountType", Reason: "checking accounts carry no interest rate or credit limit"}
		}
	}

	return acc, nil
}

// DefaultCurrency is applied when a request omits the currency tag.
const DefaultCurrency = "USD"

// =============================================================================
// TRANSACTION - Immutable money movement record
// =============================================================================

type TransactionType string

const (
	TxDeposit    TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxTransfer   TransactionType = "TRANSFER"
	TxReversal   TransactionType = "REVERSAL"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxTransfer, TxReversal:
		return true
	}
	return false
}

type TransactionStatus string

const (
	// TxCompleted is the only status a transaction is ever persisted with.
	// Rejected attempts are never written.
	TxCompleted TransactionStatus = "COMPLETED"

	// TxReversed marks an original transaction after its compensating
	// reversal commits. It is the single allowed post-commit transition.
	TxReversed TransactionStatus = "REVERSED"
)

// Transaction is an immutable record of a committed money movement.
// DEPOSIT/WITHDRAWAL/REVERSAL reference AccountID; TRANSFER references
// FromAccountID and ToAccountID instead.
type Transaction struct {
	ID            string
	Type          TransactionType
	AccountID     string
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Currency      string
	Status        TransactionStatus
	Description   string
	CreatedAt     time.Time
	ProcessedAt   time.Time
}

// Touches reports whether the transaction references the given account,
// on either side of a transfer.
func (t Transaction) Touches(accountID string) bool {
	return t.AccountID == accountID || t.FromAccountID == accountID || t.ToAccountID == accountID
}

// =============================================================================
// REVERSAL - Link between original and compensating transaction
// =============================================================================

// Reversal records that an original transaction was compensated. At most
// one Reversal may ever exist per original transaction id; the store
// enforces this with a uniqueness constraint.
type Reversal struct {
	ID                    string
	OriginalTransactionID string
	ReversalTransactionID string
	Amount                decimal.Decimal
	Reason                string
	Status                TransactionStatus
	CreatedAt             time.Time
	ProcessedAt           time.Time
}

// MaxReversalReasonLength bounds the free-text reason field.
const MaxReversalReasonLength = 500

// =============================================================================
// STATISTICS - Derived aggregates, recomputed on demand
// =============================================================================

// Statistics summarizes completed DEPOSIT/WITHDRAWAL/TRANSFER activity.
// REVERSAL transactions are excluded from every bucket. All fields are
// exact zeros (never null/NaN) when no transactions match.
//
// Invariants:
//   TotalTransactions == TotalDeposits + TotalWithdrawals + TotalTransfers
//   TotalAmount       == DepositAmount + WithdrawalAmount + TransferAmount
type Statistics struct {
	TotalTransactions int64
	TotalDeposits     int64
	TotalWithdrawals  int64
	TotalTransfers    int64

	TotalAmount      decimal.Decimal
	DepositAmount    decimal.Decimal
	WithdrawalAmount decimal.Decimal
	TransferAmount   decimal.Decimal

	AverageAmount decimal.Decimal
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
}

// ZeroStatistics returns a Statistics with every field set to exact zero.
func ZeroStatistics() Statistics {
	return Statistics{
		TotalAmount:      decimal.Zero,
		DepositAmount:    decimal.Zero,
		WithdrawalAmount: decimal.Zero,
		TransferAmount:   decimal.Zero,
		AverageAmount:    decimal.Zero,
		MinAmount:        decimal.Zero,
		MaxAmount:        decimal.Zero,
	}
}

// =============================================================================
// PAGINATION
// =============================================================================

// SortDirection is either "asc" or "desc".
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort is a single parsed "field,direction" pair.
type Sort struct {
	Field     string
	Direction SortDirection
}

// PageRequest carries pagination and ordering for list queries.
// Number is zero-based, matching the wire contract.
type PageRequest struct {
	Number int
	Size   int
	Sort   []Sort
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps size and page number to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if p.Number < 0 {
		p.Number = 0
	}
	return p
}

// Offset returns the row offset for the request.
func (p PageRequest) Offset() int { return p.Number * p.Size }

// Page is a bounded slice of a larger result set plus metadata.
type Page[T any] struct {
	Content       []T
	TotalElements int64
	TotalPages    int64
	Size          int
	Number        int
}

// NewPage assembles pagination metadata from a content slice and the total
// element count.
func NewPage[T any](content []T, total int64, req PageRequest) Page[T] {
	req = req.Normalize()
	pages := total / int64(req.Size)
	if total%int64(req.Size) != 0 {
		pages++
	}
	if content == nil {
		content = []T{}
	}
	return Page[T]{
		Content:       content,
		TotalElements: total,
		TotalPages:    pages,
		Size:          req.Size,
		Number:        req.Number,
	}
}

// ParseSort parses a "field,direction" query parameter against a whitelist
// of sortable fields. An unknown field or direction is an InvalidSort
// error, never silently ignored.
func ParseSort(raw string, allowed map[string]bool) ([]Sort, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	field := strings.TrimSpace(parts[0])
	if !allowed[field] {
		return nil, &InvalidSortError{Field: field}
	}
	dir := SortAsc
	if len(parts) > 1 {
		switch strings.ToLower(strings.TrimSpace(parts[1])) {
		case "asc", "":
			dir = SortAsc
		case "desc":
			dir = SortDesc
		default:
			return nil, &InvalidSortError{Field: field, Direction: parts[1]}
		}
	}
	return []Sort{{Field: field, Direction: dir}}, nil
}
