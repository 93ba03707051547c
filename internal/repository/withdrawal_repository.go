package repository

import (
	"context"
	"errors"
	"log/slog"

	"wallet_settlement/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const withdrawalColumns = `id, user_id, wallet_type, amount, withdrawal_fee, net_amount, payment_method,
	payment_details, status, transaction_reference, admin_notes, claimed_by, reviewed_by,
	created_at, reviewed_at, completed_at`

var openWithdrawalStatuses = []string{
	string(models.WithdrawalPending),
	string(models.WithdrawalProcessing),
}

type WithdrawalPGRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWithdrawalPGRepository(pool *pgxpool.Pool, logger *slog.Logger) *WithdrawalPGRepository {
	return &WithdrawalPGRepository{
		pool:   pool,
		logger: logger,
	}
}

// Create persists a new request inside the transaction that reserved its funds.
func (r *WithdrawalPGRepository) Create(ctx context.Context, tx pgx.Tx, w *models.WithdrawalRequest) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO withdrawal_requests
			(id, user_id, wallet_type, amount, withdrawal_fee, net_amount, payment_method, payment_details, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		w.ID, w.UserID, w.WalletType, w.Amount, w.WithdrawalFee, w.NetAmount,
		w.PaymentMethod, []byte(w.PaymentDetails), w.Status,
	).Scan(&w.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert withdrawal request",
			slog.String("withdrawal_id", w.ID.String()),
			slog.String("user_id", w.UserID.String()),
			slog.Any("err", err),
		)
		return storageErr("insert withdrawal", err)
	}
	return nil
}

func (r *WithdrawalPGRepository) Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, "SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get withdrawal", err)
	}
	return w, nil
}

// Claim marks a pending request as being paid out by adminID.
func (r *WithdrawalPGRepository) Claim(ctx context.Context, tx pgx.Tx, id, adminID uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(tx.QueryRow(ctx, `
		UPDATE withdrawal_requests
		SET status = 'processing', claimed_by = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+withdrawalColumns,
		id, adminID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMiss(ctx, tx, id, ErrAlreadyClaimed)
	}
	if err != nil {
		r.logger.Error("Failed to claim withdrawal",
			slog.String("withdrawal_id", id.String()),
			slog.Any("err", err),
		)
		return nil, storageErr("claim withdrawal", err)
	}
	return w, nil
}

func (r *WithdrawalPGRepository) Complete(
	ctx context.Context,
	tx pgx.Tx,
	id, adminID uuid.UUID,
	transactionReference, notes string,
) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(tx.QueryRow(ctx, `
		UPDATE withdrawal_requests
		SET status = 'completed', transaction_reference = $3, admin_notes = $4,
		    reviewed_by = $5, reviewed_at = NOW(), completed_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+withdrawalColumns,
		id, openWithdrawalStatuses, transactionReference, notes, adminID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMiss(ctx, tx, id, ErrAlreadyReviewed)
	}
	if err != nil {
		r.logger.Error("Failed to complete withdrawal",
			slog.String("withdrawal_id", id.String()),
			slog.Any("err", err),
		)
		return nil, storageErr("complete withdrawal", err)
	}
	return w, nil
}

func (r *WithdrawalPGRepository) Reject(
	ctx context.Context,
	tx pgx.Tx,
	id, adminID uuid.UUID,
	notes string,
) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(tx.QueryRow(ctx, `
		UPDATE withdrawal_requests
		SET status = 'rejected', admin_notes = $3, reviewed_by = $4, reviewed_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+withdrawalColumns,
		id, openWithdrawalStatuses, notes, adminID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMiss(ctx, tx, id, ErrAlreadyReviewed)
	}
	if err != nil {
		r.logger.Error("Failed to reject withdrawal",
			slog.String("withdrawal_id", id.String()),
			slog.Any("err", err),
		)
		return nil, storageErr("reject withdrawal", err)
	}
	return w, nil
}

func (r *WithdrawalPGRepository) classifyMiss(ctx context.Context, tx pgx.Tx, id uuid.UUID, stateErr error) error {
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM withdrawal_requests WHERE id = $1)", id).Scan(&exists); err != nil {
		return storageErr("classify withdrawal", err)
	}
	if !exists {
		return ErrNotFound
	}
	return stateErr
}

func (r *WithdrawalPGRepository) List(ctx context.Context, f RequestFilter) ([]models.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		f.UserID, f.Status, f.Limit, f.Offset)
	if err != nil {
		r.logger.Error("Failed to list withdrawals", slog.Any("err", err))
		return nil, storageErr("list withdrawals", err)
	}
	defer rows.Close()

	var list []models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, storageErr("scan withdrawal", err)
		}
		list = append(list, *w)
	}
	return list, storageErr("iterate withdrawals", rows.Err())
}

func scanWithdrawal(row pgx.Row) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	var details []byte
	err := row.Scan(&w.ID, &w.UserID, &w.WalletType, &w.Amount, &w.WithdrawalFee, &w.NetAmount,
		&w.PaymentMethod, &details, &w.Status, &w.TransactionReference, &w.AdminNotes,
		&w.ClaimedBy, &w.ReviewedBy, &w.CreatedAt, &w.ReviewedAt, &w.CompletedAt)
	if err != nil {
		return nil, err
	}
	w.PaymentDetails = details
	return &w, nil
}
