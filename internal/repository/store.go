package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store runs units of work in a single transaction. Status transitions and
// the wallet mutations they trigger share the transaction, so they commit
// or abort together.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger,
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		s.logger.Error("Failed to begin transaction", slog.Any("err", err))
		return storageErr("begin", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Error("Failed to rollback transaction", slog.Any("err", err))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("Failed to commit transaction", slog.Any("err", err))
		return storageErr("commit", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return storageErr("ping", s.pool.Ping(ctx))
}
