package repository

import (
	"context"
	"errors"
	"log/slog"

	"wallet_settlement/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type WalletPGRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWalletPGRepository(pool *pgxpool.Pool, logger *slog.Logger) *WalletPGRepository {
	return &WalletPGRepository{
		pool:   pool,
		logger: logger,
	}
}

// Credit adds amount to the wallet, creating it on first use. The returned
// flag is false when the identical mutation was already applied under
// reason; the balance is then the current one and nothing changed. A reason
// journaled for any other wallet, direction or amount is ErrReasonConflict.
func (r *WalletPGRepository) Credit(
	ctx context.Context,
	tx pgx.Tx,
	userID uuid.UUID,
	walletType models.WalletType,
	amount decimal.Decimal,
	reason string,
) (decimal.Decimal, bool, error) {
	return r.mutate(ctx, tx, userID, walletType, amount, reason, models.DirectionCredit)
}

// Debit takes amount out of the wallet. The decrement is guarded by the
// current balance in the same statement, so it never drives it negative.
func (r *WalletPGRepository) Debit(
	ctx context.Context,
	tx pgx.Tx,
	userID uuid.UUID,
	walletType models.WalletType,
	amount decimal.Decimal,
	reason string,
) (decimal.Decimal, bool, error) {
	return r.mutate(ctx, tx, userID, walletType, amount, reason, models.DirectionDebit)
}

func (r *WalletPGRepository) mutate(
	ctx context.Context,
	tx pgx.Tx,
	userID uuid.UUID,
	walletType models.WalletType,
	amount decimal.Decimal,
	reason string,
	direction string,
) (decimal.Decimal, bool, error) {
	if !amount.IsPositive() {
		return decimal.Zero, false, ErrInvalidAmount
	}
	log := r.logger.With(
		slog.String("user_id", userID.String()),
		slog.String("wallet_type", string(walletType)),
		slog.String("reason", reason),
	)

	currentBalance, err := r.lockWallet(ctx, tx, userID, walletType, direction == models.DirectionCredit)
	if errors.Is(err, ErrNotFound) {
		// A wallet that was never written holds nothing to debit.
		return decimal.Zero, false, ErrInsufficientFunds
	}
	if err != nil {
		log.Error("Failed to lock wallet", slog.Any("err", err))
		return decimal.Zero, false, storageErr("lock wallet", err)
	}

	prior, err := r.journaled(ctx, tx, reason)
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Error("Failed to check wallet journal", slog.Any("err", err))
		return decimal.Zero, false, storageErr("check journal", err)
	}
	if err == nil {
		if prior.UserID != userID || prior.WalletType != walletType ||
			prior.Direction != direction || !prior.Amount.Equal(amount) {
			log.Warn("Wallet mutation reason reused for a different mutation",
				slog.String("journaled_user_id", prior.UserID.String()),
				slog.String("journaled_direction", prior.Direction),
				slog.Any("journaled_amount", prior.Amount),
			)
			return currentBalance, false, ErrReasonConflict
		}
		log.Info("Wallet mutation already applied, skipping")
		return currentBalance, false, nil
	}

	var newBalance decimal.Decimal
	if direction == models.DirectionCredit {
		err = tx.QueryRow(ctx, `
			UPDATE wallets SET balance = balance + $3, updated_at = NOW()
			WHERE user_id = $1 AND wallet_type = $2
			RETURNING balance`, userID, walletType, amount).Scan(&newBalance)
	} else {
		err = tx.QueryRow(ctx, `
			UPDATE wallets SET balance = balance - $3, updated_at = NOW()
			WHERE user_id = $1 AND wallet_type = $2 AND balance >= $3
			RETURNING balance`, userID, walletType, amount).Scan(&newBalance)
		if errors.Is(err, pgx.ErrNoRows) {
			return currentBalance, false, ErrInsufficientFunds
		}
	}
	if err != nil {
		log.Error("Failed to update wallet balance", slog.Any("err", err))
		return currentBalance, false, storageErr("update balance", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_transactions (user_id, wallet_type, direction, amount, balance_after, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, walletType, direction, amount, newBalance, reason)
	if isUniqueViolation(err) {
		// Another wallet journaled the same reason concurrently.
		return currentBalance, false, ErrReasonConflict
	}
	if err != nil {
		log.Error("Failed to insert wallet transaction",
			slog.String("direction", direction),
			slog.Any("amount", amount),
			slog.Any("err", err),
		)
		return currentBalance, false, storageErr("insert journal", err)
	}

	return newBalance, true, nil
}

// journaled returns the journal entry recorded under reason, or ErrNotFound.
func (r *WalletPGRepository) journaled(ctx context.Context, tx pgx.Tx, reason string) (*models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := tx.QueryRow(ctx, `
		SELECT user_id, wallet_type, direction, amount
		FROM wallet_transactions
		WHERE reason = $1`, reason).Scan(&t.UserID, &t.WalletType, &t.Direction, &t.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// lockWallet takes the row lock that serializes every mutation of one wallet.
func (r *WalletPGRepository) lockWallet(
	ctx context.Context,
	tx pgx.Tx,
	userID uuid.UUID,
	walletType models.WalletType,
	create bool,
) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx,
		"SELECT balance FROM wallets WHERE user_id = $1 AND wallet_type = $2 FOR UPDATE",
		userID, walletType).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, err
	}
	if !create {
		return decimal.Zero, ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallets (user_id, wallet_type, balance) VALUES ($1, $2, 0)
		ON CONFLICT (user_id, wallet_type) DO NOTHING`, userID, walletType)
	if err != nil {
		return decimal.Zero, err
	}
	err = tx.QueryRow(ctx,
		"SELECT balance FROM wallets WHERE user_id = $1 AND wallet_type = $2 FOR UPDATE",
		userID, walletType).Scan(&balance)
	return balance, err
}

// GetBalance reads the committed balance. Wallets are created lazily, so an
// absent row reads as zero.
func (r *WalletPGRepository) GetBalance(ctx context.Context, userID uuid.UUID, walletType models.WalletType) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx,
		"SELECT balance FROM wallets WHERE user_id = $1 AND wallet_type = $2",
		userID, walletType).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		r.logger.Error("Failed to get balance",
			slog.String("user_id", userID.String()),
			slog.String("wallet_type", string(walletType)),
			slog.Any("err", err),
		)
		return decimal.Zero, storageErr("get balance", err)
	}
	return balance, nil
}

func (r *WalletPGRepository) ListTransactions(
	ctx context.Context,
	userID uuid.UUID,
	walletType models.WalletType,
	limit int,
) ([]models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, wallet_type, direction, amount, balance_after, reason, created_at
		FROM wallet_transactions
		WHERE user_id = $1 AND wallet_type = $2
		ORDER BY id DESC
		LIMIT $3`, userID, walletType, limit)
	if err != nil {
		r.logger.Error("Failed to list wallet transactions",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var list []models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.WalletType, &t.Direction, &t.Amount, &t.BalanceAfter, &t.Reason, &t.CreatedAt); err != nil {
			return nil, storageErr("scan transaction", err)
		}
		list = append(list, t)
	}
	return list, storageErr("iterate transactions", rows.Err())
}
