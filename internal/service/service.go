package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"wallet_settlement/internal/models"
	"wallet_settlement/internal/notify"
	"wallet_settlement/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_repositories.go -package=mocks

var (
	ErrMissingJustification = errors.New("missing justification")
	ErrInvalidWalletType    = errors.New("invalid wallet type")
	ErrInvalidSourceType    = errors.New("invalid earning source type")
	ErrInvalidPayment       = errors.New("payment method and details are required")
	ErrMissingReason        = errors.New("mutation reason is required")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrInvalidStatus        = errors.New("invalid status filter")
	ErrReservedReason       = errors.New("mutation reason uses a reserved prefix")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// maxAmount is the first value that no longer fits NUMERIC(18,2).
var maxAmount = decimal.New(1, 16)

// Reasons with these prefixes are written only by the request workflows.
var reservedReasonPrefixes = []string{"deposit:", "withdrawal:", "withdrawal_refund:"}

func isReservedReason(reason string) bool {
	lower := strings.ToLower(reason)
	for _, p := range reservedReasonPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type WalletRepository interface {
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType models.WalletType, amount decimal.Decimal, reason string) (decimal.Decimal, bool, error)
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType models.WalletType, amount decimal.Decimal, reason string) (decimal.Decimal, bool, error)
	GetBalance(ctx context.Context, userID uuid.UUID, walletType models.WalletType) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, walletType models.WalletType, limit int) ([]models.WalletTransaction, error)
}

type DepositRepository interface {
	Create(ctx context.Context, d *models.DepositRequest) error
	Get(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error)
	Review(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.DepositStatus, adminID uuid.UUID, notes string) (*models.DepositRequest, error)
	List(ctx context.Context, f repository.RequestFilter) ([]models.DepositRequest, error)
}

type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, w *models.WithdrawalRequest) error
	Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	Claim(ctx context.Context, tx pgx.Tx, id, adminID uuid.UUID) (*models.WithdrawalRequest, error)
	Complete(ctx context.Context, tx pgx.Tx, id, adminID uuid.UUID, transactionReference, notes string) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, tx pgx.Tx, id, adminID uuid.UUID, notes string) (*models.WithdrawalRequest, error)
	List(ctx context.Context, f repository.RequestFilter) ([]models.WithdrawalRequest, error)
}

type EarningsRepository interface {
	Append(ctx context.Context, tx pgx.Tx, rec *models.EarningRecord) (bool, error)
	SumByType(ctx context.Context, from, to *time.Time) ([]models.EarningsByType, error)
	DailyTotals(ctx context.Context, from, to time.Time) ([]models.DailyEarnings, error)
}

type FeeSchedule interface {
	Fee(walletType models.WalletType, method string, amount decimal.Decimal) decimal.Decimal
}

type Notifier interface {
	Notify(ctx context.Context, args notify.Args)
}

// validateAmount accepts positive amounts with at most two decimal places
// that fit the storage precision.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) || amount.GreaterThanOrEqual(maxAmount) {
		return repository.ErrInvalidAmount
	}
	return nil
}

func normalizeFilter(f repository.RequestFilter) repository.RequestFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
