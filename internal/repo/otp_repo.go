package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viotapp/server/internal/model"
)

// retentionWindow is the storage-level backstop: entries older than this are
// invisible to Get and swept by DeleteExpired. The application-level expiry
// check in the OTP store is stricter and always evaluated on top.
const retentionWindow = 10 * time.Minute

// OtpRepo defines the interface for one-time code repository operations
type OtpRepo interface {
	Replace(ctx context.Context, subject string, purpose model.Purpose, codeHashHex string) (uuid.UUID, error)
	Get(ctx context.Context, subject string, purpose model.Purpose) (model.OtpCode, error)
	Delete(ctx context.Context, subject string, purpose model.Purpose) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// Replace atomically deletes any existing entry for (subject, purpose) and
// inserts a fresh one. An advisory lock serializes concurrent issues for the
// same pair so the delete-then-insert never races the unique constraint.
func (r *otpRepo) Replace(ctx context.Context, subject string, purpose model.Purpose, codeHashHex string) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1 || ':' || $2))`, subject, string(purpose))
	if err != nil {
		return uuid.Nil, fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM otp_codes WHERE subject = $1 AND purpose = $2
	`, subject, string(purpose))
	if err != nil {
		return uuid.Nil, fmt.Errorf("delete existing codes: %w", err)
	}

	var idStr string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO otp_codes (subject, purpose, code_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`, subject, string(purpose), codeHashHex).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse code ID: %w", err)
	}
	return id, nil
}

// Get returns the active entry for (subject, purpose), excluding entries past
// the retention window.
func (r *otpRepo) Get(ctx context.Context, subject string, purpose model.Purpose) (model.OtpCode, error) {
	var code model.OtpCode
	var idStr, hashHex string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, subject, purpose, code_hash, created_at
		FROM otp_codes
		WHERE subject = $1 AND purpose = $2 AND created_at > now() - $3::interval
	`, subject, string(purpose), fmt.Sprintf("%d seconds", int(retentionWindow.Seconds()))).Scan(
		&idStr,
		&code.Subject,
		&code.Purpose,
		&hashHex,
		&code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OtpCode{}, ErrNotFound
		}
		return model.OtpCode{}, fmt.Errorf("query code: %w", err)
	}

	code.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.OtpCode{}, fmt.Errorf("parse code ID: %w", err)
	}
	code.CodeHash, err = hex.DecodeString(hashHex)
	if err != nil {
		return model.OtpCode{}, fmt.Errorf("decode code_hash: %w", err)
	}
	return code, nil
}

// Delete removes all entries for (subject, purpose).
func (r *otpRepo) Delete(ctx context.Context, subject string, purpose model.Purpose) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM otp_codes WHERE subject = $1 AND purpose = $2
	`, subject, string(purpose))
	if err != nil {
		return fmt.Errorf("delete codes: %w", err)
	}
	return nil
}

// DeleteExpired garbage-collects entries past the retention window and
// returns how many were removed.
func (r *otpRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM otp_codes WHERE created_at <= now() - $1::interval
	`, fmt.Sprintf("%d seconds", int(retentionWindow.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
