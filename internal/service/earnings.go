package service

import (
	"context"
	"log/slog"
	"time"

	"wallet_settlement/internal/metrics"
	"wallet_settlement/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// maxDailySpan bounds the per-day breakdown.
const maxDailySpan = 366 * 24 * time.Hour

type EarningsService struct {
	store   TxRunner
	repo    EarningsRepository
	metrics *metrics.SettlementMetrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewEarningsService(store TxRunner, repo EarningsRepository, m *metrics.SettlementMetrics, logger *slog.Logger) *EarningsService {
	return &EarningsService{
		store:   store,
		repo:    repo,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Record appends a revenue event reported by another collaborator. With a
// referenceID set, recording the same (sourceType, referenceID) twice keeps
// the first record and returns false. Withdrawal fees are booked only by
// WithdrawalService.Complete and are refused here.
func (s *EarningsService) Record(
	ctx context.Context,
	sourceType models.EarningSource,
	amount decimal.Decimal,
	occurredAt time.Time,
	referenceID *uuid.UUID,
) (*models.EarningRecord, bool, error) {
	if !sourceType.Valid() || sourceType == models.EarningWithdrawalFee {
		return nil, false, ErrInvalidSourceType
	}
	if err := validateAmount(amount); err != nil {
		return nil, false, err
	}
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	rec := &models.EarningRecord{
		SourceType:  sourceType,
		Amount:      amount,
		OccurredAt:  occurredAt.UTC(),
		ReferenceID: referenceID,
	}
	var inserted bool
	err := s.store.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		inserted, err = s.repo.Append(ctx, tx, rec)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to record earning",
			slog.String("source_type", string(sourceType)),
			slog.Any("err", err),
		)
		return nil, false, err
	}
	if inserted {
		s.metrics.IncEarning(string(sourceType))
	}
	return rec, inserted, nil
}

// Summarize totals earnings in [from, to).
func (s *EarningsService) Summarize(ctx context.Context, from, to time.Time) (*models.EarningsSummary, error) {
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return nil, ErrInvalidRange
	}
	from, to = from.UTC(), to.UTC()
	byType, err := s.repo.SumByType(ctx, &from, &to)
	if err != nil {
		return nil, err
	}
	return &models.EarningsSummary{
		From:   from,
		To:     to,
		Total:  sum(byType),
		ByType: byType,
	}, nil
}

// Overview reports today, this month and all time, with UTC calendar bounds.
// Today and this month are closed at their end so future-dated events do not
// count towards them.
func (s *EarningsService) Overview(ctx context.Context) (*models.EarningsOverview, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	today, err := s.repo.SumByType(ctx, &dayStart, &dayEnd)
	if err != nil {
		return nil, err
	}
	month, err := s.repo.SumByType(ctx, &monthStart, &monthEnd)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.SumByType(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	return &models.EarningsOverview{
		Today:     sum(today),
		ThisMonth: sum(month),
		AllTime:   sum(all),
		ByType:    all,
	}, nil
}

func (s *EarningsService) Daily(ctx context.Context, from, to time.Time) ([]models.DailyEarnings, error) {
	if from.IsZero() || to.IsZero() || !from.Before(to) || to.Sub(from) > maxDailySpan {
		return nil, ErrInvalidRange
	}
	return s.repo.DailyTotals(ctx, from.UTC(), to.UTC())
}

func sum(list []models.EarningsByType) decimal.Decimal {
	total := decimal.Zero
	for _, e := range list {
		total = total.Add(e.Total)
	}
	return total
}
