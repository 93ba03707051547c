package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DepositCreateRequest struct {
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod    string          `json:"paymentMethod" binding:"required,max=32"`
	PaymentReference string          `json:"paymentReference" binding:"required,max=128"`
	Proof            json.RawMessage `json:"proof"`
}

type WithdrawalCreateRequest struct {
	WalletType     WalletType      `json:"walletType" binding:"required,wallet_type"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod  string          `json:"paymentMethod" binding:"required,max=32"`
	PaymentDetails json.RawMessage `json:"paymentDetails" binding:"required"`
}

type ReviewRequest struct {
	AdminNotes string `json:"adminNotes" binding:"max=1000"`
}

type CompleteWithdrawalRequest struct {
	TransactionReference string `json:"transactionReference" binding:"max=128"`
	AdminNotes           string `json:"adminNotes" binding:"max=1000"`
}

type CreditRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason" binding:"required,max=128"`
}

type RecordEarningRequest struct {
	SourceType  EarningSource   `json:"sourceType" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	OccurredAt  *time.Time      `json:"occurredAt"`
	ReferenceID *uuid.UUID      `json:"referenceId"`
}
