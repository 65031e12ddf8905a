package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"discard/internal/shielding/models"
	"discard/pkg/platform/sentinel"
	txcontext "discard/pkg/platform/tx"
)

// PostgresStore persists pool balances with optimistic concurrency on the
// version column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Init(ctx context.Context, p *models.PoolBalance) error {
	query := `
		INSERT INTO pool_balances (pool_id, public_key, balance, version, deposit_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pool_id) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, p.PoolID, p.PublicKey, p.Balance, p.Version, p.DepositCount, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert pool balance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert pool balance rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, poolID string) (*models.PoolBalance, error) {
	query := `
		SELECT pool_id, public_key, balance, version, deposit_count, updated_at
		FROM pool_balances
		WHERE pool_id = $1
	`
	var p models.PoolBalance
	err := s.execer(ctx).QueryRowContext(ctx, query, poolID).Scan(
		&p.PoolID, &p.PublicKey, &p.Balance, &p.Version, &p.DepositCount, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pool balance: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, expected int64, next *models.PoolBalance) error {
	query := `
		UPDATE pool_balances
		SET balance = $3, version = $4, deposit_count = $5, updated_at = $6
		WHERE pool_id = $1 AND version = $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		next.PoolID, expected, next.Balance, next.Version, next.DepositCount, next.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update pool balance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pool balance rows: %w", err)
	}
	if rows == 1 {
		return nil
	}
	if _, err := s.Get(ctx, next.PoolID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}
