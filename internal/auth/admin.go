package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viotapp/server/internal/model"
	"github.com/viotapp/server/internal/repo"
)

// AdminRegisterInput carries the fields for an admin-issued registration.
type AdminRegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Password    string
	Role        model.Role
}

// AdminUpdateInput carries the optional fields of an admin edit. Empty
// fields are left unchanged.
type AdminUpdateInput struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Role        model.Role
}

// RegisterByAdmin creates an already-verified account for a trusted role,
// bypassing OTP. The caller's record is re-read from the store and must hold
// the admin role; a bearer token alone is not enough.
func (s *Service) RegisterByAdmin(ctx context.Context, adminID uuid.UUID, in AdminRegisterInput) (*model.User, error) {
	admin, err := s.users.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("look up admin: %w", err)
	}
	if admin.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.PhoneNumber == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if in.Role != model.RoleTeacher && in.Role != model.RoleStore {
		return nil, fmt.Errorf("%w: role must be teacher or store", ErrValidation)
	}

	if err := s.checkIdentityAvailable(ctx, in.PhoneNumber, in.Email); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := model.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PhoneNumber:  in.PhoneNumber,
		PasswordHash: hash,
		IsVerified:   true,
		Role:         in.Role,
	}
	if err := s.createWithPublicID(ctx, &user); err != nil {
		return nil, err
	}

	s.log.Info("user registered by admin",
		zap.String("role", string(user.Role)),
		zap.Int("public_id", user.PublicID),
		zap.Int("admin_public_id", admin.PublicID))
	return &user, nil
}

// ListUsers returns all identity records for the admin surface.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// AdminUpdateUser applies an admin edit to the record with the given public id.
func (s *Service) AdminUpdateUser(ctx context.Context, publicID int, in AdminUpdateInput) (*model.User, error) {
	user, err := s.users.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if v := strings.TrimSpace(in.FirstName); v != "" {
		user.FirstName = v
	}
	if v := strings.TrimSpace(in.LastName); v != "" {
		user.LastName = v
	}
	if v := strings.ToLower(strings.TrimSpace(in.Email)); v != "" {
		user.Email = v
	}
	if v := strings.TrimSpace(in.PhoneNumber); v != "" {
		user.PhoneNumber = v
	}
	if in.Role != "" {
		if !in.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, in.Role)
		}
		user.Role = in.Role
	}

	if err := s.users.Update(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &user, nil
}

// AdminDeleteUser removes the record with the given public id.
func (s *Service) AdminDeleteUser(ctx context.Context, publicID int) error {
	if err := s.users.DeleteByPublicID(ctx, publicID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info("user deleted by admin", zap.Int("public_id", publicID))
	return nil
}
