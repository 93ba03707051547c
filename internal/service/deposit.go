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

// Deposits always land in the buyer wallet.
const depositWallet = models.WalletBuyer

func depositReason(id uuid.UUID) string { return "deposit:" + id.String() }

type DepositService struct {
	store    TxRunner
	deposits DepositRepository
	wallets  WalletRepository
	notifier Notifier
	metrics  *metrics.SettlementMetrics
	logger   *slog.Logger
}

func NewDepositService(
	store TxRunner,
	deposits DepositRepository,
	wallets WalletRepository,
	notifier Notifier,
	m *metrics.SettlementMetrics,
	logger *slog.Logger,
) *DepositService {
	return &DepositService{
		store:    store,
		deposits: deposits,
		wallets:  wallets,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Create files a pending deposit. No balance changes until an admin approves it.
func (s *DepositService) Create(
	ctx context.Context,
	userID uuid.UUID,
	amount decimal.Decimal,
	paymentMethod, paymentReference string,
	proof json.RawMessage,
) (*models.DepositRequest, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	paymentMethod = strings.TrimSpace(paymentMethod)
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentMethod == "" || paymentReference == "" {
		return nil, ErrInvalidPayment
	}
	if len(proof) > 0 && !json.Valid(proof) {
		return nil, ErrInvalidPayment
	}

	d := &models.DepositRequest{
		ID:               uuid.New(),
		UserID:           userID,
		Amount:           amount,
		PaymentMethod:    paymentMethod,
		PaymentReference: paymentReference,
		Proof:            proof,
		Status:           models.DepositPending,
	}
	if err := s.deposits.Create(ctx, d); err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			s.logger.Warn("Deposit rejected: reference already used",
				slog.String("user_id", userID.String()),
				slog.String("payment_method", paymentMethod),
			)
		}
		return nil, err
	}

	s.logger.Info("Deposit request created",
		slog.String("deposit_id", d.ID.String()),
		slog.String("user_id", userID.String()),
		slog.Any("amount", amount),
	)
	return d, nil
}

// Approve transitions pending -> approved and credits the buyer wallet in
// the same transaction. Exactly one of several concurrent approvals wins.
func (s *DepositService) Approve(ctx context.Context, id, adminID uuid.UUID, notes string) (d *models.DepositRequest, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveTransition("deposit", "approve", started, err) }()

	var applied bool
	err = s.store.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		d, err = s.deposits.Review(ctx, tx, id, models.DepositApproved, adminID, strings.TrimSpace(notes))
		if err != nil {
			return err
		}
		_, applied, err = s.wallets.Credit(ctx, tx, d.UserID, depositWallet, d.Amount, depositReason(d.ID))
		if err != nil {
			return err
		}
		if !applied {
			// The transition just happened, so a journaled credit is not ours.
			return fmt.Errorf("%w: %s", repository.ErrReasonConflict, depositReason(d.ID))
		}
		return nil
	})
	if err != nil {
		s.logTransitionErr("approve", id, err)
		return nil, err
	}

	s.metrics.IncMutation(models.DirectionCredit, string(depositWallet))
	s.logger.Info("Deposit approved",
		slog.String("deposit_id", d.ID.String()),
		slog.String("admin_id", adminID.String()),
		slog.Any("amount", d.Amount),
	)
	s.notifier.Notify(ctx, notify.Args{
		Event:     notify.EventDepositApproved,
		UserID:    d.UserID,
		RequestID: d.ID,
		Status:    string(d.Status),
		Amount:    d.Amount.StringFixed(2),
		Notes:     d.AdminNotes,
	})
	return d, nil
}

// Reject closes a pending deposit without touching the wallet. Unlike
// withdrawals, notes are optional.
func (s *DepositService) Reject(ctx context.Context, id, adminID uuid.UUID, notes string) (d *models.DepositRequest, err error) {
	notes = strings.TrimSpace(notes)
	started := time.Now()
	defer func() { s.metrics.ObserveTransition("deposit", "reject", started, err) }()

	err = s.store.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		d, err = s.deposits.Review(ctx, tx, id, models.DepositRejected, adminID, notes)
		return err
	})
	if err != nil {
		s.logTransitionErr("reject", id, err)
		return nil, err
	}

	s.logger.Info("Deposit rejected",
		slog.String("deposit_id", d.ID.String()),
		slog.String("admin_id", adminID.String()),
	)
	s.notifier.Notify(ctx, notify.Args{
		Event:     notify.EventDepositRejected,
		UserID:    d.UserID,
		RequestID: d.ID,
		Status:    string(d.Status),
		Amount:    d.Amount.StringFixed(2),
		Notes:     d.AdminNotes,
	})
	return d, nil
}

func (s *DepositService) Get(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error) {
	return s.deposits.Get(ctx, id)
}

func (s *DepositService) List(ctx context.Context, f repository.RequestFilter) ([]models.DepositRequest, error) {
	if f.Status != "" && !models.DepositStatus(f.Status).Valid() {
		return nil, ErrInvalidStatus
	}
	return s.deposits.List(ctx, normalizeFilter(f))
}

func (s *DepositService) logTransitionErr(action string, id uuid.UUID, err error) {
	attrs := []any{
		slog.String("action", action),
		slog.String("deposit_id", id.String()),
		slog.Any("err", err),
	}
	switch {
	case errors.Is(err, repository.ErrAlreadyReviewed),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrReasonConflict):
		s.logger.Warn("Deposit transition refused", attrs...)
	default:
		s.logger.Error("Deposit transition failed", attrs...)
	}
}
