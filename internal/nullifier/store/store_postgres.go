package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"discard/internal/nullifier/models"
	"discard/pkg/platform/sentinel"
	txcontext "discard/pkg/platform/tx"

	"github.com/lib/pq"
)

// PostgresStore persists nullifiers in PostgreSQL. Uniqueness is the primary
// key on nullifier; Insert relies on ON CONFLICT DO NOTHING and RowsAffected.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, record *models.Record) error {
	var contextJSON []byte
	if len(record.Context) > 0 {
		b, err := json.Marshal(record.Context)
		if err != nil {
			return fmt.Errorf("marshal nullifier context: %w", err)
		}
		contextJSON = b
	}

	query := `
		INSERT INTO nullifiers (nullifier, proof_type, proof_hash, used_at, used_by, context, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (nullifier) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		record.Nullifier,
		string(record.ProofType),
		nullString(record.ProofHash),
		record.UsedAt,
		nullString(record.UsedBy),
		contextJSON,
		record.ExpiresAt,
		string(record.Status),
	)
	if err != nil {
		return fmt.Errorf("insert nullifier: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert nullifier rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, nullifier string) (*models.Record, error) {
	query := `
		SELECT nullifier, proof_type, proof_hash, used_at, used_by, context, expires_at, status
		FROM nullifiers
		WHERE nullifier = $1
	`
	record, err := scanRecord(s.execer(ctx).QueryRowContext(ctx, query, nullifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find nullifier: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Exists(ctx context.Context, nullifier string) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM nullifiers WHERE nullifier = $1)`, nullifier).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check nullifier: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ExistsBatch(ctx context.Context, nullifiers []string) (map[string]bool, error) {
	out := make(map[string]bool, len(nullifiers))
	if len(nullifiers) == 0 {
		return out, nil
	}
	for _, n := range nullifiers {
		out[n] = false
	}

	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT nullifier FROM nullifiers WHERE nullifier = ANY($1)`, pq.Array(nullifiers))
	if err != nil {
		return nil, fmt.Errorf("check nullifier batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan nullifier: %w", err)
		}
		out[n] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nullifiers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE nullifiers
		SET status = 'expired'
		WHERE status = 'active' AND expires_at <= $1
	`
	return s.execCount(ctx, "mark nullifiers expired", query, now)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM nullifiers WHERE status = 'expired' AND expires_at < $1`
	return s.execCount(ctx, "delete expired nullifiers", query, cutoff)
}

func (s *PostgresStore) execCount(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r           models.Record
		proofType   string
		status      string
		proofHash   sql.NullString
		usedBy      sql.NullString
		contextJSON []byte
	)
	if err := row.Scan(&r.Nullifier, &proofType, &proofHash, &r.UsedAt, &usedBy, &contextJSON, &r.ExpiresAt, &status); err != nil {
		return nil, err
	}
	r.ProofType = models.ProofType(proofType)
	r.Status = models.Status(status)
	r.ProofHash = proofHash.String
	r.UsedBy = usedBy.String
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &r.Context); err != nil {
			return nil, fmt.Errorf("decode nullifier context: %w", err)
		}
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
