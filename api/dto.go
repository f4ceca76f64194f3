/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the wire contract, decoupled from the domain types.
  Amounts travel as exact decimal strings (shopspring marshalling), never
  binary floats.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/ledger-core/ledger"
)

// =============================================================================
// AUTH
// =============================================================================

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

type TokenDTO struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type CreateAccountRequest struct {
	OwnerID      string           `json:"ownerId"`
	AccountType  string           `json:"accountType"`
	Balance      *decimal.Decimal `json:"balance"`
	Currency     string           `json:"currency,omitempty"`
	InterestRate *decimal.Decimal `json:"interestRate,omitempty"`
	CreditLimit  *decimal.Decimal `json:"creditLimit,omitempty"`
}

type UpdateAccountRequest struct {
	Balance      *decimal.Decimal `json:"balance,omitempty"`
	Status       *string          `json:"status,omitempty"`
	InterestRate *decimal.Decimal `json:"interestRate,omitempty"`
	CreditLimit  *decimal.Decimal `json:"creditLimit,omitempty"`
}

type SetBalanceRequest struct {
	Balance *decimal.Decimal `json:"balance"`
}

type AccountDTO struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"ownerId"`
	AccountType  string           `json:"accountType"`
	Balance      decimal.Decimal  `json:"balance"`
	Currency     string           `json:"currency"`
	Status       string           `json:"status"`
	InterestRate *decimal.Decimal `json:"interestRate,omitempty"`
	CreditLimit  *decimal.Decimal `json:"creditLimit,omitempty"`
	CreatedAt    string           `json:"createdAt"`
	UpdatedAt    string           `json:"updatedAt"`
}

func toAccountDTO(acc *ledger.Account) AccountDTO {
	return AccountDTO{
		ID:           acc.ID,
		OwnerID:      acc.OwnerID,
		AccountType:  string(acc.Type),
		Balance:      acc.Balance,
		Currency:     acc.Currency,
		Status:       string(acc.Status),
		InterestRate: acc.InterestRate,
		CreditLimit:  acc.CreditLimit,
		CreatedAt:    acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    acc.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type MovementRequest struct {
	AccountID   string           `json:"accountId"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description,omitempty"`
}

type TransferRequest struct {
	FromAccountID string           `json:"fromAccountId"`
	ToAccountID   string           `json:"toAccountId"`
	Amount        *decimal.Decimal `json:"amount"`
	Description   string           `json:"description,omitempty"`
}

type TransactionDTO struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AccountID     string          `json:"accountId,omitempty"`
	FromAccountID string          `json:"fromAccountId,omitempty"`
	ToAccountID   string          `json:"toAccountId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     string          `json:"createdAt"`
	ProcessedAt   string          `json:"processedAt"`
}

func toTransactionDTO(tx *ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            tx.ID,
		Type:          string(tx.Type),
		AccountID:     tx.AccountID,
		FromAccountID: tx.FromAccountID,
		ToAccountID:   tx.ToAccountID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Status:        string(tx.Status),
		Description:   tx.Description,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
		ProcessedAt:   tx.ProcessedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// REVERSALS
// =============================================================================

type ReverseRequest struct {
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
}

type ReversalDTO struct {
	ID                    string          `json:"id"`
	OriginalTransactionID string          `json:"originalTransactionId"`
	ReversalTransactionID string          `json:"reversalTransactionId"`
	Amount                decimal.Decimal `json:"amount"`
	Reason                string          `json:"reason"`
	Status                string          `json:"status"`
	CreatedAt             string          `json:"createdAt"`
	ProcessedAt           string          `json:"processedAt"`
}

func toReversalDTO(rev *ledger.Reversal) ReversalDTO {
	return ReversalDTO{
		ID:                    rev.ID,
		OriginalTransactionID: rev.OriginalTransactionID,
		ReversalTransactionID: rev.ReversalTransactionID,
		Amount:                rev.Amount,
		Reason:                rev.Reason,
		Status:                string(rev.Status),
		CreatedAt:             rev.CreatedAt.Format(time.RFC3339),
		ProcessedAt:           rev.ProcessedAt.Format(time.RFC3339),
	}
}

func toReversalDTOs(revs []ledger.Reversal) []ReversalDTO {
	dtos := make([]ReversalDTO, 0, len(revs))
	for i := range revs {
		dtos = append(dtos, toReversalDTO(&revs[i]))
	}
	return dtos
}

// =============================================================================
// STATISTICS, LIMITS, PAGES
// =============================================================================

type StatisticsDTO struct {
	TotalTransactions int64           `json:"totalTransactions"`
	TotalDeposits     int64           `json:"totalDeposits"`
	TotalWithdrawals  int64           `json:"totalWithdrawals"`
	TotalTransfers    int64           `json:"totalTransfers"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	DepositAmount     decimal.Decimal `json:"depositAmount"`
	WithdrawalAmount  decimal.Decimal `json:"withdrawalAmount"`
	TransferAmount    decimal.Decimal `json:"transferAmount"`
	AverageAmount     decimal.Decimal `json:"averageAmount"`
	MinAmount         decimal.Decimal `json:"minAmount"`
	MaxAmount         decimal.Decimal `json:"maxAmount"`
}

func toStatisticsDTO(s ledger.Statistics) StatisticsDTO {
	return StatisticsDTO{
		TotalTransactions: s.TotalTransactions,
		TotalDeposits:     s.TotalDeposits,
		TotalWithdrawals:  s.TotalWithdrawals,
		TotalTransfers:    s.TotalTransfers,
		TotalAmount:       s.TotalAmount,
		DepositAmount:     s.DepositAmount,
		WithdrawalAmount:  s.WithdrawalAmount,
		TransferAmount:    s.TransferAmount,
		AverageAmount:     s.AverageAmount,
		MinAmount:         s.MinAmount,
		MaxAmount:         s.MaxAmount,
	}
}

type LimitsDTO struct {
	DailyLimit             decimal.Decimal `json:"dailyLimit"`
	MonthlyLimit           decimal.Decimal `json:"monthlyLimit"`
	SingleTransactionLimit decimal.Decimal `json:"singleTransactionLimit"`
	Currency               string          `json:"currency"`
}

// PageDTO wraps any content slice with pagination metadata.
type PageDTO[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int64 `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
}

func toPageDTO[D, T any](page ledger.Page[T], convert func(*T) D) PageDTO[D] {
	content := make([]D, 0, len(page.Content))
	for i := range page.Content {
		content = append(content, convert(&page.Content[i]))
	}
	return PageDTO[D]{
		Content:       content,
		TotalElements: page.TotalElements,
		TotalPages:    page.TotalPages,
		Size:          page.Size,
		Number:        page.Number,
	}
}
