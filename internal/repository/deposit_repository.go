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

const depositColumns = `id, user_id, amount, payment_method, payment_reference, proof,
	status, admin_notes, reviewed_by, created_at, reviewed_at`

type DepositPGRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDepositPGRepository(pool *pgxpool.Pool, logger *slog.Logger) *DepositPGRepository {
	return &DepositPGRepository{
		pool:   pool,
		logger: logger,
	}
}

type RequestFilter struct {
	UserID *uuid.UUID
	Status string
	Limit  int
	Offset int
}

func (r *DepositPGRepository) Create(ctx context.Context, d *models.DepositRequest) error {
	var proof []byte
	if len(d.Proof) > 0 {
		proof = d.Proof
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO deposit_requests (id, user_id, amount, payment_method, payment_reference, proof, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		d.ID, d.UserID, d.Amount, d.PaymentMethod, d.PaymentReference, proof, d.Status,
	).Scan(&d.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateReference
	}
	if err != nil {
		r.logger.Error("Failed to insert deposit request",
			slog.String("deposit_id", d.ID.String()),
			slog.String("user_id", d.UserID.String()),
			slog.Any("err", err),
		)
		return storageErr("insert deposit", err)
	}
	return nil
}

func (r *DepositPGRepository) Get(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error) {
	d, err := scanDeposit(r.pool.QueryRow(ctx, "SELECT "+depositColumns+" FROM deposit_requests WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get deposit", err)
	}
	return d, nil
}

// Review moves a pending deposit to the given terminal status. Only one
// caller can win this update; the rest get ErrAlreadyReviewed.
func (r *DepositPGRepository) Review(
	ctx context.Context,
	tx pgx.Tx,
	id uuid.UUID,
	status models.DepositStatus,
	adminID uuid.UUID,
	notes string,
) (*models.DepositRequest, error) {
	d, err := scanDeposit(tx.QueryRow(ctx, `
		UPDATE deposit_requests
		SET status = $2, admin_notes = $3, reviewed_by = $4, reviewed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+depositColumns,
		id, status, notes, adminID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMiss(ctx, tx, id)
	}
	if err != nil {
		r.logger.Error("Failed to review deposit",
			slog.String("deposit_id", id.String()),
			slog.String("status", string(status)),
			slog.Any("err", err),
		)
		return nil, storageErr("review deposit", err)
	}
	return d, nil
}

func (r *DepositPGRepository) classifyMiss(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM deposit_requests WHERE id = $1)", id).Scan(&exists); err != nil {
		return storageErr("classify deposit", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyReviewed
}

func (r *DepositPGRepository) List(ctx context.Context, f RequestFilter) ([]models.DepositRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		f.UserID, f.Status, f.Limit, f.Offset)
	if err != nil {
		r.logger.Error("Failed to list deposits", slog.Any("err", err))
		return nil, storageErr("list deposits", err)
	}
	defer rows.Close()

	var list []models.DepositRequest
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, storageErr("scan deposit", err)
		}
		list = append(list, *d)
	}
	return list, storageErr("iterate deposits", rows.Err())
}

func scanDeposit(row pgx.Row) (*models.DepositRequest, error) {
	var d models.DepositRequest
	var proof []byte
	err := row.Scan(&d.ID, &d.UserID, &d.Amount, &d.PaymentMethod, &d.PaymentReference, &proof,
		&d.Status, &d.AdminNotes, &d.ReviewedBy, &d.CreatedAt, &d.ReviewedAt)
	if err != nil {
		return nil, err
	}
	if len(proof) > 0 {
		d.Proof = proof
	}
	return &d, nil
}
