package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"wallet_settlement/internal/metrics"
	"wallet_settlement/internal/models"
	"wallet_settlement/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletService is the single choke point for balance changes that do not
// come from a deposit or withdrawal transition, e.g. marketplace payouts.
type WalletService struct {
	store   TxRunner
	repo    WalletRepository
	metrics *metrics.SettlementMetrics
	logger  *slog.Logger
}

func NewWalletService(store TxRunner, repo WalletRepository, m *metrics.SettlementMetrics, logger *slog.Logger) *WalletService {
	return &WalletService{
		store:   store,
		repo:    repo,
		metrics: m,
		logger:  logger,
	}
}

func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID, walletType models.WalletType) (decimal.Decimal, error) {
	if !walletType.Valid() {
		return decimal.Zero, ErrInvalidWalletType
	}
	balance, err := s.repo.GetBalance(ctx, userID, walletType)
	if err != nil {
		s.logger.Error("GetBalance failed",
			slog.String("user_id", userID.String()),
			slog.String("wallet_type", string(walletType)),
			slog.Any("err", err),
		)
		return decimal.Zero, err
	}
	return balance, nil
}

// Credit applies at most once per reason. The bool reports whether this
// call changed the balance.
func (s *WalletService) Credit(
	ctx context.Context,
	userID uuid.UUID,
	walletType models.WalletType,
	amount decimal.Decimal,
	reason string,
) (decimal.Decimal, bool, error) {
	return s.mutate(ctx, userID, walletType, amount, reason, models.DirectionCredit)
}

func (s *WalletService) Debit(
	ctx context.Context,
	userID uuid.UUID,
	walletType models.WalletType,
	amount decimal.Decimal,
	reason string,
) (decimal.Decimal, bool, error) {
	return s.mutate(ctx, userID, walletType, amount, reason, models.DirectionDebit)
}

func (s *WalletService) mutate(
	ctx context.Context,
	userID uuid.UUID,
	walletType models.WalletType,
	amount decimal.Decimal,
	reason string,
	direction string,
) (decimal.Decimal, bool, error) {
	if !walletType.Valid() {
		return decimal.Zero, false, ErrInvalidWalletType
	}
	if err := validateAmount(amount); err != nil {
		s.logger.Warn("Wallet mutation rejected: invalid amount",
			slog.String("user_id", userID.String()),
			slog.Any("amount", amount),
		)
		return decimal.Zero, false, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return decimal.Zero, false, ErrMissingReason
	}
	if isReservedReason(reason) {
		s.logger.Warn("Wallet mutation rejected: reserved reason",
			slog.String("user_id", userID.String()),
			slog.String("reason", reason),
		)
		return decimal.Zero, false, ErrReservedReason
	}

	var (
		balance decimal.Decimal
		applied bool
	)
	err := s.store.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		if direction == models.DirectionCredit {
			balance, applied, err = s.repo.Credit(ctx, tx, userID, walletType, amount, reason)
		} else {
			balance, applied, err = s.repo.Debit(ctx, tx, userID, walletType, amount, reason)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			s.logger.Warn("Debit failed: insufficient funds",
				slog.String("user_id", userID.String()),
				slog.String("wallet_type", string(walletType)),
				slog.Any("amount", amount),
			)
			return balance, false, err
		}
		if errors.Is(err, repository.ErrReasonConflict) {
			s.logger.Warn("Wallet mutation rejected: reason already used",
				slog.String("user_id", userID.String()),
				slog.String("reason", reason),
			)
			return decimal.Zero, false, err
		}
		s.logger.Error("Wallet mutation failed",
			slog.String("user_id", userID.String()),
			slog.String("direction", direction),
			slog.String("reason", reason),
			slog.Any("err", err),
		)
		return decimal.Zero, false, err
	}
	if applied {
		s.metrics.IncMutation(direction, string(walletType))
	}
	return balance, applied, nil
}

func (s *WalletService) Transactions(
	ctx context.Context,
	userID uuid.UUID,
	walletType models.WalletType,
	limit int,
) ([]models.WalletTransaction, error) {
	if !walletType.Valid() {
		return nil, ErrInvalidWalletType
	}
	f := normalizeFilter(repository.RequestFilter{Limit: limit})
	return s.repo.ListTransactions(ctx, userID, walletType, f.Limit)
}
