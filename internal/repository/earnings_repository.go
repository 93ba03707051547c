package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wallet_settlement/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EarningsPGRepository is the append-only revenue ledger. It exposes no
// update or delete, and the table rejects both at the database level.
type EarningsPGRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEarningsPGRepository(pool *pgxpool.Pool, logger *slog.Logger) *EarningsPGRepository {
	return &EarningsPGRepository{
		pool:   pool,
		logger: logger,
	}
}

// Append inserts rec. A second event for the same (source_type, reference_id)
// is dropped and reported with false.
func (r *EarningsPGRepository) Append(ctx context.Context, tx pgx.Tx, rec *models.EarningRecord) (bool, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO earnings (source_type, amount, occurred_at, reference_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_type, reference_id) WHERE reference_id IS NOT NULL DO NOTHING
		RETURNING id`,
		rec.SourceType, rec.Amount, rec.OccurredAt, rec.ReferenceID,
	).Scan(&rec.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Warn("Earning already recorded for reference",
			slog.String("source_type", string(rec.SourceType)),
			slog.Any("reference_id", rec.ReferenceID),
		)
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to append earning",
			slog.String("source_type", string(rec.SourceType)),
			slog.Any("amount", rec.Amount),
			slog.Any("err", err),
		)
		return false, storageErr("append earning", err)
	}
	return true, nil
}

// SumByType aggregates [from, to). A nil bound leaves that side open.
func (r *EarningsPGRepository) SumByType(ctx context.Context, from, to *time.Time) ([]models.EarningsByType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source_type, SUM(amount)
		FROM earnings
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at < $2)
		GROUP BY source_type
		ORDER BY source_type`, from, to)
	if err != nil {
		r.logger.Error("Failed to aggregate earnings", slog.Any("err", err))
		return nil, storageErr("sum earnings", err)
	}
	defer rows.Close()

	list := []models.EarningsByType{}
	for rows.Next() {
		var e models.EarningsByType
		if err := rows.Scan(&e.SourceType, &e.Total); err != nil {
			return nil, storageErr("scan earnings", err)
		}
		list = append(list, e)
	}
	return list, storageErr("iterate earnings", rows.Err())
}

// DailyTotals buckets [from, to) by UTC day.
func (r *EarningsPGRepository) DailyTotals(ctx context.Context, from, to time.Time) ([]models.DailyEarnings, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('day', occurred_at AT TIME ZONE 'UTC') AS day, SUM(amount)
		FROM earnings
		WHERE occurred_at >= $1 AND occurred_at < $2
		GROUP BY day
		ORDER BY day`, from, to)
	if err != nil {
		r.logger.Error("Failed to aggregate daily earnings", slog.Any("err", err))
		return nil, storageErr("daily earnings", err)
	}
	defer rows.Close()

	list := []models.DailyEarnings{}
	for rows.Next() {
		var d models.DailyEarnings
		if err := rows.Scan(&d.Day, &d.Total); err != nil {
			return nil, storageErr("scan daily earnings", err)
		}
		d.Day = d.Day.UTC()
		list = append(list, d)
	}
	return list, storageErr("iterate daily earnings", rows.Err())
}
