package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wallet_settlement/internal/metrics"
	"wallet_settlement/internal/models"
	"wallet_settlement/internal/notify"
	"wallet_settlement/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func withdrawalReason(id uuid.UUID) string { return "withdrawal:" + id.String() }
func refundReason(id uuid.UUID) string     { return "withdrawal_refund:" + id.String() }

type WithdrawalService struct {
	store       TxRunner
	withdrawals WithdrawalRepository
	wallets     WalletRepository
	earnings    EarningsRepository
	fees        FeeSchedule
	notifier    Notifier
	metrics     *metrics.SettlementMetrics
	logger      *slog.Logger
}

func NewWithdrawalService(
	store TxRunner,
	withdrawals WithdrawalRepository,
	wallets WalletRepository,
	earnings EarningsRepository,
	fees FeeSchedule,
	notifier Notifier,
	m *metrics.SettlementMetrics,
	logger *slog.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		store:       store,
		withdrawals: withdrawals,
		wallets:     wallets,
		earnings:    earnings,
		fees:        fees,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
	}
}

// Create reserves the full amount by debiting the wallet and persists the
// pending request in the same transaction. Funds stay reserved until the
// request is completed or refunded on rejection.
func (s *WithdrawalService) Create(
	ctx context.Context,
	userID uuid.UUID,
	walletType models.WalletType,
	amount decimal.Decimal,
	paymentMethod string,
	paymentDetails json.RawMessage,
) (w *models.WithdrawalRequest, err error) {
	if !walletType.Valid() {
		return nil, ErrInvalidWalletType
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	paymentMethod = strings.TrimSpace(paymentMethod)
	if paymentMethod == "" || len(paymentDetails) == 0 || !json.Valid(paymentDetails) {
		return nil, ErrInvalidPayment
	}

	fee := s.fees.Fee(walletType, paymentMethod, amount)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	net := amount.Sub(fee)
	if !net.IsPositive() {
		s.logger.Warn("Withdrawal rejected: amount does not cover fee",
			slog.String("user_id", userID.String()),
			slog.Any("amount", amount),
			slog.Any("fee", fee),
		)
		return nil, fmt.Errorf("%w: amount %s does not cover fee %s", repository.ErrInvalidAmount, amount.StringFixed(2), fee.StringFixed(2))
	}

	started := time.Now()
	defer func() { s.metrics.ObserveTransition("withdrawal", "create", started, err) }()

	w = &models.WithdrawalRequest{
		ID:             uuid.New(),
		UserID:         userID,
		WalletType:     walletType,
		Amount:         amount,
		WithdrawalFee:  fee,
		NetAmount:      net,
		PaymentMethod:  paymentMethod,
		PaymentDetails: paymentDetails,
		Status:         models.WithdrawalPending,
	}
	err = s.store.InTx(ctx, func(tx pgx.Tx) error {
		_, applied, err := s.wallets.Debit(ctx, tx, userID, walletType, amount, withdrawalReason(w.ID))
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: %s", repository.ErrReasonConflict, withdrawalReason(w.ID))
		}
		return s.withdrawals.Create(ctx, tx, w)
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			s.logger.Warn("Withdrawal rejected: insufficient funds",
				slog.String("user_id", userID.String()),
				slog.String("wallet_type", string(walletType)),
				slog.Any("amount", amount),
			)
		} else {
			s.logger.Error("Withdrawal creation failed",
				slog.String("user_id", userID.String()),
				slog.Any("err", err),
			)
		}
		return nil, err
	}

	s.metrics.IncMutation(models.DirectionDebit, string(walletType))
	s.logger.Info("Withdrawal request created",
		slog.String("withdrawal_id", w.ID.String()),
		slog.String("user_id", userID.String()),
		slog.Any("amount", amount),
		slog.Any("fee", fee),
	)
	return w, nil
}

// Claim moves a pending request to processing so other admins stop picking it.
func (s *WithdrawalService) Claim(ctx context.Context, id, adminID uuid.UUID) (w *models.WithdrawalRequest, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveTransition("withdrawal", "claim", started, err) }()

	err = s.store.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		w, err = s.withdrawals.Claim(ctx, tx, id, adminID)
		return err
	})
	if err != nil {
		s.logTransitionErr("claim", id, err)
		return nil, err
	}
	s.logger.Info("Withdrawal claimed",
		slog.String("withdrawal_id", id.String()),
		slog.String("admin_id", adminID.String()),
	)
	return w, nil
}

// Complete marks the payout as made. The fee is booked as platform revenue
// in the same transaction; the reserved amount is never returned.
func (s *WithdrawalService) Complete(
	ctx context.Context,
	id, adminID uuid.UUID,
	transactionReference, notes string,
) (w *models.WithdrawalRequest, err error) {
	transactionReference = strings.TrimSpace(transactionReference)
	if transactionReference == "" {
		return nil, ErrMissingJustification
	}
	started := time.Now()
	defer func() { s.metrics.ObserveTransition("withdrawal", "complete", started, err) }()

	var booked bool
	err = s.store.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		w, err = s.withdrawals.Complete(ctx, tx, id, adminID, transactionReference, strings.TrimSpace(notes))
		if err != nil {
			return err
		}
		if !w.WithdrawalFee.IsPositive() {
			return nil
		}
		occurredAt := time.Now().UTC()
		if w.CompletedAt != nil {
			occurredAt = *w.CompletedAt
		}
		ref := w.ID
		booked, err = s.earnings.Append(ctx, tx, &models.EarningRecord{
			SourceType:  models.EarningWithdrawalFee,
			Amount:      w.WithdrawalFee,
			OccurredAt:  occurredAt,
			ReferenceID: &ref,
		})
		if err != nil {
			return err
		}
		if !booked {
			return fmt.Errorf("%w: withdrawal fee for %s already booked", repository.ErrReasonConflict, w.ID)
		}
		return nil
	})
	if err != nil {
		s.logTransitionErr("complete", id, err)
		return nil, err
	}

	if w.WithdrawalFee.IsPositive() {
		s.metrics.IncEarning(string(models.EarningWithdrawalFee))
	}
	s.logger.Info("Withdrawal completed",
		slog.String("withdrawal_id", id.String()),
		slog.String("admin_id", adminID.String()),
		slog.String("transaction_reference", transactionReference),
	)
	s.notifier.Notify(ctx, notify.Args{
		Event:     notify.EventWithdrawalCompleted,
		UserID:    w.UserID,
		RequestID: w.ID,
		Status:    string(w.Status),
		Amount:    w.NetAmount.StringFixed(2),
		Notes:     w.AdminNotes,
	})
	return w, nil
}

// Reject closes an open request and refunds the full reserved amount,
// fee included, to the wallet it was drawn from.
func (s *WithdrawalService) Reject(ctx context.Context, id, adminID uuid.UUID, notes string) (w *models.WithdrawalRequest, err error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, ErrMissingJustification
	}
	started := time.Now()
	defer func() { s.metrics.ObserveTransition("withdrawal", "reject", started, err) }()

	err = s.store.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		w, err = s.withdrawals.Reject(ctx, tx, id, adminID, notes)
		if err != nil {
			return err
		}
		_, refunded, err := s.wallets.Credit(ctx, tx, w.UserID, w.WalletType, w.Amount, refundReason(w.ID))
		if err != nil {
			return err
		}
		if !refunded {
			return fmt.Errorf("%w: %s", repository.ErrReasonConflict, refundReason(w.ID))
		}
		return nil
	})
	if err != nil {
		s.logTransitionErr("reject", id, err)
		return nil, err
	}

	s.metrics.IncMutation(models.DirectionCredit, string(w.WalletType))
	s.logger.Info("Withdrawal rejected",
		slog.String("withdrawal_id", id.String()),
		slog.String("admin_id", adminID.String()),
		slog.Any("refund", w.Amount),
	)
	s.notifier.Notify(ctx, notify.Args{
		Event:     notify.EventWithdrawalRejected,
		UserID:    w.UserID,
		RequestID: w.ID,
		Status:    string(w.Status),
		Amount:    w.Amount.StringFixed(2),
		Notes:     w.AdminNotes,
	})
	return w, nil
}

func (s *WithdrawalService) Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.withdrawals.Get(ctx, id)
}

func (s *WithdrawalService) List(ctx context.Context, f repository.RequestFilter) ([]models.WithdrawalRequest, error) {
	if f.Status != "" && !models.WithdrawalStatus(f.Status).Valid() {
		return nil, ErrInvalidStatus
	}
	return s.withdrawals.List(ctx, normalizeFilter(f))
}

func (s *WithdrawalService) logTransitionErr(action string, id uuid.UUID, err error) {
	attrs := []any{
		slog.String("action", action),
		slog.String("withdrawal_id", id.String()),
		slog.Any("err", err),
	}
	switch {
	case errors.Is(err, repository.ErrAlreadyReviewed),
		errors.Is(err, repository.ErrAlreadyClaimed),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrReasonConflict):
		s.logger.Warn("Withdrawal transition refused", attrs...)
	default:
		s.logger.Error("Withdrawal transition failed", attrs...)
	}
}
