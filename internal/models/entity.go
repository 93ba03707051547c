package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletType string

const (
	WalletBuyer  WalletType = "buyer"
	WalletSeller WalletType = "seller"
)

func (t WalletType) Valid() bool {
	return t == WalletBuyer || t == WalletSeller
}

type Wallet struct {
	UserID     uuid.UUID       `db:"user_id" json:"userId"`
	WalletType WalletType      `db:"wallet_type" json:"walletType"`
	Balance    decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

// Direction of a wallet journal entry.
const (
	DirectionCredit = "CREDIT"
	DirectionDebit  = "DEBIT"
)

// WalletTransaction is one applied balance mutation. Reason is unique across
// the journal, which is what makes replays of the same mutation no-ops.
type WalletTransaction struct {
	ID           int64           `db:"id" json:"id"`
	UserID       uuid.UUID       `db:"user_id" json:"userId"`
	WalletType   WalletType      `db:"wallet_type" json:"walletType"`
	Direction    string          `db:"direction" json:"direction"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balanceAfter"`
	Reason       string          `db:"reason" json:"reason"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

type DepositStatus string

const (
	DepositPending  DepositStatus = "pending"
	DepositApproved DepositStatus = "approved"
	DepositRejected DepositStatus = "rejected"
)

func (s DepositStatus) Valid() bool {
	switch s {
	case DepositPending, DepositApproved, DepositRejected:
		return true
	}
	return false
}

type DepositRequest struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	UserID           uuid.UUID       `db:"user_id" json:"userId"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod    string          `db:"payment_method" json:"paymentMethod"`
	PaymentReference string          `db:"payment_reference" json:"paymentReference"`
	Proof            json.RawMessage `db:"proof" json:"proof,omitempty"`
	Status           DepositStatus   `db:"status" json:"status"`
	AdminNotes       string          `db:"admin_notes" json:"adminNotes"`
	ReviewedBy       *uuid.UUID      `db:"reviewed_by" json:"reviewedBy,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	ReviewedAt       *time.Time      `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
)

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalProcessing, WithdrawalCompleted, WithdrawalRejected:
		return true
	}
	return false
}

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalRejected
}

type WithdrawalRequest struct {
	ID                   uuid.UUID        `db:"id" json:"id"`
	UserID               uuid.UUID        `db:"user_id" json:"userId"`
	WalletType           WalletType       `db:"wallet_type" json:"walletType"`
	Amount               decimal.Decimal  `db:"amount" json:"amount"`
	WithdrawalFee        decimal.Decimal  `db:"withdrawal_fee" json:"withdrawalFee"`
	NetAmount            decimal.Decimal  `db:"net_amount" json:"netAmount"`
	PaymentMethod        string           `db:"payment_method" json:"paymentMethod"`
	PaymentDetails       json.RawMessage  `db:"payment_details" json:"paymentDetails"`
	Status               WithdrawalStatus `db:"status" json:"status"`
	TransactionReference string           `db:"transaction_reference" json:"transactionReference"`
	AdminNotes           string           `db:"admin_notes" json:"adminNotes"`
	ClaimedBy            *uuid.UUID       `db:"claimed_by" json:"claimedBy,omitempty"`
	ReviewedBy           *uuid.UUID       `db:"reviewed_by" json:"reviewedBy,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"createdAt"`
	ReviewedAt           *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CompletedAt          *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}

type EarningSource string

const (
	EarningWithdrawalFee         EarningSource = "withdrawal_fee"
	EarningMarketplaceCommission EarningSource = "marketplace_commission"
	EarningSubscriptionFee       EarningSource = "subscription_fee"
	EarningDepositFee            EarningSource = "deposit_fee"
)

func (s EarningSource) Valid() bool {
	switch s {
	case EarningWithdrawalFee, EarningMarketplaceCommission, EarningSubscriptionFee, EarningDepositFee:
		return true
	}
	return false
}

type EarningRecord struct {
	ID          int64           `db:"id" json:"id"`
	SourceType  EarningSource   `db:"source_type" json:"sourceType"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurredAt"`
	ReferenceID *uuid.UUID      `db:"reference_id" json:"referenceId,omitempty"`
}

type EarningsByType struct {
	SourceType EarningSource   `json:"sourceType"`
	Total      decimal.Decimal `json:"total"`
}

type EarningsSummary struct {
	From   time.Time        `json:"from"`
	To     time.Time        `json:"to"`
	Total  decimal.Decimal  `json:"total"`
	ByType []EarningsByType `json:"byType"`
}

type EarningsOverview struct {
	Today     decimal.Decimal  `json:"today"`
	ThisMonth decimal.Decimal  `json:"thisMonth"`
	AllTime   decimal.Decimal  `json:"allTime"`
	ByType    []EarningsByType `json:"byType"`
}

type DailyEarnings struct {
	Day   time.Time       `json:"day"`
	Total decimal.Decimal `json:"total"`
}
