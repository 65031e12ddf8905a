package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"discard/internal/stealth/models"
	id "discard/pkg/domain"
	"discard/pkg/platform/sentinel"
	txcontext "discard/pkg/platform/tx"
)

const addressColumns = `id, user_id, stealth_address, sealed_seed, status, created_at, expires_at, grace_expires_at,
	deposit_amount, deposit_tx_ref, token_ref, sender_address, funded_at, compliance_passed, compliance_reason,
	shield_tx_signature, shielded_at, quarantined_at, quarantine_reason, updated_at`

// PostgresStore persists receive addresses. Every transition is one UPDATE
// guarded by the legal source statuses of its event; a miss is re-read to
// tell a missing address from a wrong status.
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

func (s *PostgresStore) Create(ctx context.Context, a *models.ReceiveAddress) error {
	query := `
		INSERT INTO receive_addresses (id, user_id, stealth_address, sealed_seed, status,
			created_at, expires_at, grace_expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stealth_address) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(a.ID).String(),
		uuid.UUID(a.UserID).String(),
		a.StealthAddress,
		a.SealedSeed,
		string(a.Status),
		a.CreatedAt,
		a.ExpiresAt,
		a.GraceExpiresAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert receive address: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert receive address rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByAddress(ctx context.Context, address string) (*models.ReceiveAddress, error) {
	query := `SELECT ` + addressColumns + ` FROM receive_addresses WHERE stealth_address = $1`
	a, err := scanAddress(s.execer(ctx).QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find receive address: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindCurrentByUser(ctx context.Context, userID id.UserID, now time.Time) (*models.ReceiveAddress, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM receive_addresses
		WHERE user_id = $1
		  AND ((status = 'active' AND grace_expires_at > $2) OR status IN ('funded', 'shielding'))
		ORDER BY created_at DESC
		LIMIT 1
	`
	a, err := scanAddress(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(userID).String(), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find current receive address: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.ReceiveAddress, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM receive_addresses
		WHERE user_id = $1
		ORDER BY created_at DESC, stealth_address
		LIMIT $2
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(userID).String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list receive addresses: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ReceiveAddress, 0)
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receive address: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receive addresses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RecordDeposit(ctx context.Context, address string, d models.Deposit, now time.Time) (*models.ReceiveAddress, error) {
	query := `
		UPDATE receive_addresses
		SET status = 'funded', deposit_amount = $3, deposit_tx_ref = $4, token_ref = $5,
			sender_address = $6, funded_at = $7, updated_at = $7
		WHERE stealth_address = $1 AND status = ANY($2) AND grace_expires_at > $7
		RETURNING ` + addressColumns
	return s.transition(ctx, "record deposit", models.EventDepositObserved, address,
		func(a *models.ReceiveAddress) error { return a.Fund(d, now) },
		query, int64(d.Amount), nullString(d.TxRef), nullString(d.TokenRef), nullString(d.SenderAddress), now)
}

func (s *PostgresStore) StartShielding(ctx context.Context, address string, now time.Time) (*models.ReceiveAddress, error) {
	query := `
		UPDATE receive_addresses
		SET status = 'shielding', updated_at = $3
		WHERE stealth_address = $1 AND status = ANY($2)
		RETURNING ` + addressColumns
	return s.transition(ctx, "start shielding", models.EventShieldSubmitted, address,
		func(a *models.ReceiveAddress) error { return a.StartShielding(now) },
		query, now)
}

func (s *PostgresStore) ConfirmShield(ctx context.Context, address, txSig string, now time.Time) (*models.ReceiveAddress, error) {
	query := `
		UPDATE receive_addresses
		SET status = 'shielded', shield_tx_signature = $3, shielded_at = $4, updated_at = $4
		WHERE stealth_address = $1 AND status = ANY($2)
		RETURNING ` + addressColumns
	return s.transition(ctx, "confirm shield", models.EventShieldConfirmed, address,
		func(a *models.ReceiveAddress) error { return a.ConfirmShield(txSig, now) },
		query, txSig, now)
}

func (s *PostgresStore) Quarantine(ctx context.Context, address, reason string, now time.Time) (*models.ReceiveAddress, error) {
	query := `
		UPDATE receive_addresses
		SET status = 'quarantined', compliance_passed = FALSE, compliance_reason = $3,
			quarantine_reason = $3, quarantined_at = $4, updated_at = $4
		WHERE stealth_address = $1 AND status = ANY($2)
		RETURNING ` + addressColumns
	return s.transition(ctx, "quarantine", models.EventComplianceFailed, address,
		func(a *models.ReceiveAddress) error { return a.Quarantine(reason, now) },
		query, nullString(reason), now)
}

func (s *PostgresStore) RecordCompliance(ctx context.Context, address string, passed bool, reason string, now time.Time) (*models.ReceiveAddress, error) {
	query := `
		UPDATE receive_addresses
		SET compliance_passed = $2, compliance_reason = $3, updated_at = $4
		WHERE stealth_address = $1
		RETURNING ` + addressColumns
	a, err := scanAddress(s.execer(ctx).QueryRowContext(ctx, query, address, passed, nullString(reason), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("record compliance result: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE receive_addresses
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND grace_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire receive addresses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire receive addresses rows affected: %w", err)
	}
	return int(n), nil
}

// transition runs a guarded UPDATE whose first two parameters are the
// address and the legal source statuses. On a miss it re-reads the row and
// replays the model transition on it to report the reason.
func (s *PostgresStore) transition(
	ctx context.Context,
	op string,
	ev models.Event,
	address string,
	apply func(*models.ReceiveAddress) error,
	query string,
	args ...any,
) (*models.ReceiveAddress, error) {
	params := append([]any{address, pq.Array(statusStrings(models.SourcesFor(ev)))}, args...)
	a, err := scanAddress(s.execer(ctx).QueryRowContext(ctx, query, params...))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	current, err := s.FindByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	before := current.Status
	applyErr := apply(current)
	if applyErr == nil {
		// Row moved between the update and the re-read.
		return nil, sentinel.ErrConflict
	}
	if before == models.StatusActive && current.Status == models.StatusExpired {
		if _, err := s.execer(ctx).ExecContext(ctx, `
			UPDATE receive_addresses SET status = 'expired', updated_at = $2
			WHERE stealth_address = $1 AND status = 'active' AND grace_expires_at <= $2
		`, address, current.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: expire: %w", op, err)
		}
	}
	return nil, applyErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAddress(row rowScanner) (*models.ReceiveAddress, error) {
	var (
		a                models.ReceiveAddress
		addressID        uuid.UUID
		userID           uuid.UUID
		status           string
		depositAmount    sql.NullInt64
		depositTxRef     sql.NullString
		tokenRef         sql.NullString
		sender           sql.NullString
		fundedAt         sql.NullTime
		compliancePassed sql.NullBool
		complianceReason sql.NullString
		shieldSig        sql.NullString
		shieldedAt       sql.NullTime
		quarantinedAt    sql.NullTime
		quarantineReason sql.NullString
	)
	err := row.Scan(
		&addressID, &userID, &a.StealthAddress, &a.SealedSeed, &status,
		&a.CreatedAt, &a.ExpiresAt, &a.GraceExpiresAt,
		&depositAmount, &depositTxRef, &tokenRef, &sender, &fundedAt,
		&compliancePassed, &complianceReason,
		&shieldSig, &shieldedAt, &quarantinedAt, &quarantineReason, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ID = id.AddressID(addressID)
	a.UserID = id.UserID(userID)
	a.Status = models.Status(status)
	if depositAmount.Valid {
		v := uint64(depositAmount.Int64)
		a.DepositAmount = &v
	}
	a.DepositTxRef = depositTxRef.String
	a.TokenRef = tokenRef.String
	a.SenderAddress = sender.String
	a.FundedAt = timePtr(fundedAt)
	if compliancePassed.Valid {
		v := compliancePassed.Bool
		a.CompliancePassed = &v
	}
	a.ComplianceReason = complianceReason.String
	a.ShieldTxSig = shieldSig.String
	a.ShieldedAt = timePtr(shieldedAt)
	a.QuarantinedAt = timePtr(quarantinedAt)
	a.QuarantineReason = quarantineReason.String
	return &a, nil
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
