package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/viotapp/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByPublicID(ctx context.Context, publicID int) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	GetVerifiedByPhone(ctx context.Context, phone string) (model.User, error)
	GetVerifiedByEmail(ctx context.Context, email string) (model.User, error)
	LatestUnverifiedByPhone(ctx context.Context, phone string) (model.User, error)
	Create(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
	SetVerified(ctx context.Context, id uuid.UUID) (model.User, error)
	StampLastLogin(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error
	List(ctx context.Context) ([]model.User, error)
	DeleteByPublicID(ctx context.Context, publicID int) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, public_id, first_name, last_name, email, phone_number,
	password_hash, is_verified, role, score, last_login, created_at, updated_at`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var idStr string
	err := row.Scan(
		&idStr,
		&u.PublicID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PhoneNumber,
		&u.PasswordHash,
		&u.IsVerified,
		&u.Role,
		&u.Score,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by internal ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

// GetByPublicID retrieves a user by the 7-digit public identifier
func (r *userRepo) GetByPublicID(ctx context.Context, publicID int) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE public_id = $1
	`, publicID)
	return scanUser(row)
}

// GetByPhone retrieves a user by phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE phone_number = $1
	`, phone)
	return scanUser(row)
}

// GetVerifiedByPhone retrieves a verified user by phone number
func (r *userRepo) GetVerifiedByPhone(ctx context.Context, phone string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE phone_number = $1 AND is_verified
	`, phone)
	return scanUser(row)
}

// GetVerifiedByEmail retrieves a verified user by normalized email
func (r *userRepo) GetVerifiedByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1 AND is_verified
	`, email)
	return scanUser(row)
}

// LatestUnverifiedByPhone returns the most recent pending (unverified) record
// for the phone, if any.
func (r *userRepo) LatestUnverifiedByPhone(ctx context.Context, phone string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE phone_number = $1 AND NOT is_verified
		ORDER BY created_at DESC
		LIMIT 1
	`, phone)
	return scanUser(row)
}

// Create inserts a new user. Unique violations on phone/email map to
// ErrDuplicate; collisions on the generated public id map to
// ErrDuplicatePublicID so the caller can regenerate.
func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (public_id, first_name, last_name, email, phone_number,
			password_hash, is_verified, role, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, u.PublicID, u.FirstName, u.LastName, u.Email, u.PhoneNumber,
		u.PasswordHash, u.IsVerified, u.Role, u.Score,
	).Scan(&idStr, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if terr := translateUnique(err); terr != err {
			return terr
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("parse user ID: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing record.
func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, email = $4, phone_number = $5,
			password_hash = $6, role = $7, score = $8, updated_at = now()
		WHERE id = $1
	`, u.ID, u.FirstName, u.LastName, u.Email, u.PhoneNumber,
		u.PasswordHash, u.Role, u.Score)
	if err != nil {
		if terr := translateUnique(err); terr != err {
			return terr
		}
		return fmt.Errorf("update user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerified flips the verification flag and returns the updated record.
// The flag only ever moves from false to true.
func (r *userRepo) SetVerified(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET is_verified = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id)
	var u model.User
	var idStr string
	err := row.Scan(
		&idStr, &u.PublicID, &u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber,
		&u.PasswordHash, &u.IsVerified, &u.Role, &u.Score, &u.LastLogin,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("set verified: %w", err)
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return u, nil
}

// StampLastLogin records a successful login.
func (r *userRepo) StampLastLogin(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login = now(), updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("stamp last login: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword overwrites the credential hash.
func (r *userRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePhone moves the record to a new phone number. The unique index on
// phone_number rejects numbers already bound to another record.
func (r *userRepo) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET phone_number = $2, updated_at = now() WHERE id = $1
	`, id, phone)
	if err != nil {
		if terr := translateUnique(err); terr != err {
			return terr
		}
		return fmt.Errorf("update phone: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all users, newest first.
func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var idStr string
		err := rows.Scan(
			&idStr, &u.PublicID, &u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber,
			&u.PasswordHash, &u.IsVerified, &u.Role, &u.Score, &u.LastLogin,
			&u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse user ID: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// DeleteByPublicID removes a user by the public identifier.
func (r *userRepo) DeleteByPublicID(ctx context.Context, publicID int) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM users WHERE public_id = $1
	`, publicID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
