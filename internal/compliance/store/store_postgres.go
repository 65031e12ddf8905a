package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"discard/internal/compliance/models"
	id "discard/pkg/domain"
	"discard/pkg/platform/sentinel"
	txcontext "discard/pkg/platform/tx"
)

const proofColumns = `nullifier, address_commitment, compliant, risk_level, mr_enclave, mr_signer,
	attestation_quote, user_id, used_for, revocation_reason, checked_at, expires_at, used_at, revoked_at, status`

// PostgresStore persists proofs in PostgreSQL. One-proof-per-nullifier is the
// primary key; transitions are conditional UPDATEs so racing consumers get
// exactly one winner.
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

func (s *PostgresStore) Insert(ctx context.Context, p *models.Proof) error {
	query := `
		INSERT INTO compliance_proofs (` + proofColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (nullifier) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		p.Nullifier,
		p.AddressCommitment,
		p.Compliant,
		string(p.RiskLevel),
		p.MrEnclave,
		nullString(p.MrSigner),
		p.AttestationQuote,
		nullUserID(p.UserID),
		nullString(p.UsedFor),
		nullString(p.RevocationReason),
		p.CheckedAt,
		p.ExpiresAt,
		p.UsedAt,
		p.RevokedAt,
		string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("insert compliance proof: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert compliance proof rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByNullifier(ctx context.Context, nullifier string) (*models.Proof, error) {
	query := `SELECT ` + proofColumns + ` FROM compliance_proofs WHERE nullifier = $1`
	p, err := scanProof(s.execer(ctx).QueryRowContext(ctx, query, nullifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find compliance proof: %w", err)
	}
	return p, nil
}

// MarkUsed consumes a valid, unexpired proof. When the conditional update
// matches nothing the row is re-read to report why; a valid proof past its
// expiry is flipped to expired before ErrExpired is returned.
func (s *PostgresStore) MarkUsed(ctx context.Context, nullifier, usedFor string, now time.Time) (*models.Proof, error) {
	query := `
		UPDATE compliance_proofs
		SET status = 'used', used_for = $2, used_at = $3
		WHERE nullifier = $1 AND status = 'valid' AND expires_at > $3
		RETURNING ` + proofColumns
	p, err := scanProof(s.execer(ctx).QueryRowContext(ctx, query, nullifier, nullString(usedFor), now))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mark compliance proof used: %w", err)
	}

	current, err := s.FindByNullifier(ctx, nullifier)
	if err != nil {
		return nil, err
	}
	wasValid := current.Status == models.StatusValid
	consumeErr := current.Consume(usedFor, now)
	if consumeErr == nil {
		// Row changed between the update and the re-read.
		return nil, sentinel.ErrConflict
	}
	if wasValid && errors.Is(consumeErr, sentinel.ErrExpired) {
		if _, err := s.execer(ctx).ExecContext(ctx, `
			UPDATE compliance_proofs SET status = 'expired'
			WHERE nullifier = $1 AND status = 'valid' AND expires_at <= $2
		`, nullifier, now); err != nil {
			return nil, fmt.Errorf("flip compliance proof expired: %w", err)
		}
	}
	return nil, consumeErr
}

func (s *PostgresStore) Revoke(ctx context.Context, nullifier, reason string, now time.Time) (*models.Proof, error) {
	query := `
		UPDATE compliance_proofs
		SET status = 'revoked', revocation_reason = $2, revoked_at = $3
		WHERE nullifier = $1 AND status <> 'revoked'
		RETURNING ` + proofColumns
	p, err := scanProof(s.execer(ctx).QueryRowContext(ctx, query, nullifier, nullString(reason), now))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revoke compliance proof: %w", err)
	}
	if _, err := s.FindByNullifier(ctx, nullifier); err != nil {
		return nil, err
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) ListByAddressCommitment(ctx context.Context, commitment string, limit int) ([]*models.Proof, error) {
	query := `
		SELECT ` + proofColumns + `
		FROM compliance_proofs
		WHERE address_commitment = $1
		ORDER BY checked_at DESC, nullifier
		LIMIT $2
	`
	return s.query(ctx, "list proofs by commitment", query, commitment, limit)
}

func (s *PostgresStore) ListByEnclave(ctx context.Context, mrEnclave string, limit int) ([]*models.Proof, error) {
	query := `
		SELECT ` + proofColumns + `
		FROM compliance_proofs
		WHERE mr_enclave = $1
		ORDER BY checked_at DESC, nullifier
		LIMIT $2
	`
	return s.query(ctx, "list proofs by enclave", query, mrEnclave, limit)
}

func (s *PostgresStore) ListValidByUser(ctx context.Context, userID id.UserID, now time.Time) ([]*models.Proof, error) {
	query := `
		SELECT ` + proofColumns + `
		FROM compliance_proofs
		WHERE user_id = $1 AND status = 'valid' AND expires_at > $2
		ORDER BY checked_at DESC, nullifier
	`
	return s.query(ctx, "list valid proofs by user", query, uuid.UUID(userID).String(), now)
}

func (s *PostgresStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE compliance_proofs
		SET status = 'expired'
		WHERE status = 'valid' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("mark compliance proofs expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark compliance proofs expired rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) query(ctx context.Context, op, query string, args ...any) ([]*models.Proof, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]*models.Proof, 0)
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProof(row rowScanner) (*models.Proof, error) {
	var (
		p         models.Proof
		riskLevel string
		status    string
		mrSigner  sql.NullString
		userID    uuid.NullUUID
		usedFor   sql.NullString
		reason    sql.NullString
		usedAt    sql.NullTime
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&p.Nullifier,
		&p.AddressCommitment,
		&p.Compliant,
		&riskLevel,
		&p.MrEnclave,
		&mrSigner,
		&p.AttestationQuote,
		&userID,
		&usedFor,
		&reason,
		&p.CheckedAt,
		&p.ExpiresAt,
		&usedAt,
		&revokedAt,
		&status,
	)
	if err != nil {
		return nil, err
	}
	p.RiskLevel = models.RiskLevel(riskLevel)
	p.Status = models.Status(status)
	p.MrSigner = mrSigner.String
	p.UsedFor = usedFor.String
	p.RevocationReason = reason.String
	if userID.Valid {
		p.UserID = id.UserID(userID.UUID)
	}
	if usedAt.Valid {
		t := usedAt.Time
		p.UsedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		p.RevokedAt = &t
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUserID(u id.UserID) any {
	if u.IsNil() {
		return nil
	}
	return uuid.UUID(u).String()
}
