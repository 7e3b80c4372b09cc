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
	"github.com/viotapp/server/internal/sms"
)

// publicIDAttempts bounds the regenerate-and-retry loop on public id collisions.
const publicIDAttempts = 5

// Service orchestrates the credential and verification workflows. It never
// caches verification state; every check re-reads the store.
type Service struct {
	users  repo.UserRepo
	otps   *OtpStore
	tokens *TokenService
	sender sms.Sender
	log    *zap.Logger
}

// NewService creates a new auth service
func NewService(users repo.UserRepo, otps *OtpStore, tokens *TokenService, sender sms.Sender, log *zap.Logger) *Service {
	return &Service{
		users:  users,
		otps:   otps,
		tokens: tokens,
		sender: sender,
		log:    log,
	}
}

// SignupInput carries the fields required to register an identity.
type SignupInput struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Password    string
}

// TokenPair is an access/refresh token pair issued for a session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by workflows that establish a session.
type AuthResult struct {
	User   model.User
	Tokens TokenPair
}

func (in *SignupInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
}

func (in *SignupInput) validate() error {
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.PhoneNumber == "" || in.Password == "" {
		return fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	return nil
}

// Signup registers a new unverified identity and sends a verification code to
// its phone number. A phone or email held by a verified record is rejected;
// a pending unverified record for the same phone is overwritten so an
// abandoned signup can be retried. The record persists even when code
// delivery fails.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	if err := s.checkIdentityAvailable(ctx, in.PhoneNumber, in.Email); err != nil {
		return nil, err
	}

	// Gate on the cooldown before touching the record, so a rate-limited
	// retry leaves any pending signup exactly as it was.
	if err := s.otps.CheckCooldown(ctx, in.PhoneNumber, model.PurposeSignupVerify); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var user model.User
	pending, err := s.users.LatestUnverifiedByPhone(ctx, in.PhoneNumber)
	switch {
	case err == nil:
		// Retry of an abandoned signup: overwrite the pending record's fields.
		pending.FirstName = in.FirstName
		pending.LastName = in.LastName
		pending.Email = in.Email
		pending.PasswordHash = hash
		if err := s.users.Update(ctx, &pending); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return nil, ErrDuplicate
			}
			return nil, fmt.Errorf("update pending signup: %w", err)
		}
		user = pending
	case errors.Is(err, repo.ErrNotFound):
		user = model.User{
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Email:        in.Email,
			PhoneNumber:  in.PhoneNumber,
			PasswordHash: hash,
			Role:         model.RoleStudent,
		}
		if err := s.createWithPublicID(ctx, &user); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("check pending signup: %w", err)
	}

	if err := s.issueAndDeliver(ctx, user.PhoneNumber, user.PhoneNumber, model.PurposeSignupVerify); err != nil {
		return nil, err
	}

	s.log.Info("signup accepted", zap.String("phone", sms.MaskPhone(user.PhoneNumber)), zap.Int("public_id", user.PublicID))
	return &user, nil
}

// VerifySignupOtp consumes the signup code and flips the record to verified,
// then issues a session. The flag flips exactly once.
func (s *Service) VerifySignupOtp(ctx context.Context, phoneNumber, code string) (*AuthResult, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" || code == "" {
		return nil, fmt.Errorf("%w: phone number and code are required", ErrValidation)
	}

	user, err := s.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if user.IsVerified {
		return nil, fmt.Errorf("%w: account already verified", ErrValidation)
	}

	if err := s.otps.Verify(ctx, phoneNumber, model.PurposeSignupVerify, code); err != nil {
		return nil, err
	}

	verified, err := s.users.SetVerified(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}

	tokens, err := s.issueSession(&verified)
	if err != nil {
		return nil, err
	}
	s.log.Info("signup verified", zap.String("phone", sms.MaskPhone(phoneNumber)))
	return &AuthResult{User: verified, Tokens: *tokens}, nil
}

// ResendSignupOtp re-issues the signup code, subject to the cooldown.
func (s *Service) ResendSignupOtp(ctx context.Context, phoneNumber string) error {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return fmt.Errorf("%w: phone number is required", ErrValidation)
	}

	user, err := s.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}
	if user.IsVerified {
		return fmt.Errorf("%w: account already verified", ErrValidation)
	}

	return s.issueAndDeliver(ctx, phoneNumber, phoneNumber, model.PurposeSignupVerify)
}

// Login authenticates a verified account by phone number and password and
// stamps the last-login time. An unverified account fails with ErrNotVerified,
// deliberately distinct from ErrNotFound and ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, phoneNumber, password string) (*AuthResult, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" || password == "" {
		return nil, fmt.Errorf("%w: phone number and password are required", ErrValidation)
	}

	user, err := s.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !user.IsVerified {
		return nil, ErrNotVerified
	}
	if !CheckPassword(user.PasswordHash, password) {
		s.log.Warn("invalid password attempt", zap.String("phone", sms.MaskPhone(phoneNumber)))
		return nil, ErrInvalidCredentials
	}

	if err := s.users.StampLastLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("stamp last login: %w", err)
	}

	tokens, err := s.issueSession(&user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: *tokens}, nil
}

// Refresh validates a refresh token and issues a new access token plus a
// rotated refresh token. The account must still exist and be verified.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !user.IsVerified {
		return nil, ErrNotVerified
	}

	return s.issueSession(&user)
}

// GetUser returns the identity record for an internal id.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return &user, nil
}

// RequestPasswordReset sends a reset code to the account's phone number,
// subject to the reset cooldown. Also used for resend; the cooldown makes
// the second call within the window fail with ErrRateLimited.
func (s *Service) RequestPasswordReset(ctx context.Context, phoneNumber string) error {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return fmt.Errorf("%w: phone number is required", ErrValidation)
	}

	if _, err := s.users.GetByPhone(ctx, phoneNumber); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}

	return s.issueAndDeliver(ctx, phoneNumber, phoneNumber, model.PurposeLoginReset)
}

// VerifyResetOtp consumes the reset code and returns a one-shot reset token.
// The token itself does not change the password; it authorizes ResetPassword
// until its natural expiry.
func (s *Service) VerifyResetOtp(ctx context.Context, phoneNumber, code string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" || code == "" {
		return "", fmt.Errorf("%w: phone number and code are required", ErrValidation)
	}

	user, err := s.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("look up user: %w", err)
	}

	if err := s.otps.Verify(ctx, phoneNumber, model.PurposeLoginReset, code); err != nil {
		return "", err
	}

	return s.tokens.IssueReset(&user)
}

// ResetPassword validates a reset token and overwrites the credential hash.
// Only the reset secret is accepted; session tokens never authorize this.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" || newPassword == "" {
		return fmt.Errorf("%w: reset token and new password are required", ErrValidation)
	}

	claims, err := s.tokens.VerifyReset(resetToken)
	if err != nil {
		return err
	}

	user, err := s.users.GetByPhone(ctx, claims.PhoneNumber)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.log.Info("password reset", zap.String("phone", sms.MaskPhone(user.PhoneNumber)))
	return nil
}

// ChangePassword overwrites the credential hash for an authenticated user
// after confirming the current credential.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: current and new password are required", ErrValidation)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// issueSession signs an access/refresh pair for the user.
func (s *Service) issueSession(u *model.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(u)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(u)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// issueAndDeliver issues a code for (subject, purpose) and delivers it to the
// given phone number. Delivery failure surfaces as ErrDeliveryFailed; the
// issued code stays stored, so a later resend is still cooldown-bound.
func (s *Service) issueAndDeliver(ctx context.Context, subject, phoneNumber string, purpose model.Purpose) error {
	code, err := s.otps.Issue(ctx, subject, purpose)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, phoneNumber, code); err != nil {
		s.log.Warn("code delivery failed",
			zap.String("phone", sms.MaskPhone(phoneNumber)),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return ErrDeliveryFailed
	}
	return nil
}

// checkIdentityAvailable rejects a phone or email already held by a verified
// record. The store's unique indexes remain the authority; a concurrent write
// slipping past these checks still fails at insert.
func (s *Service) checkIdentityAvailable(ctx context.Context, phone, email string) error {
	if _, err := s.users.GetVerifiedByPhone(ctx, phone); err == nil {
		return fmt.Errorf("%w: phone number", ErrDuplicate)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("check phone: %w", err)
	}
	if _, err := s.users.GetVerifiedByEmail(ctx, email); err == nil {
		return fmt.Errorf("%w: email", ErrDuplicate)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("check email: %w", err)
	}
	return nil
}

// createWithPublicID inserts a user, regenerating the public id on collision.
func (s *Service) createWithPublicID(ctx context.Context, u *model.User) error {
	for attempt := 0; attempt < publicIDAttempts; attempt++ {
		id, err := NewPublicID()
		if err != nil {
			return err
		}
		u.PublicID = id

		err = s.users.Create(ctx, u)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repo.ErrDuplicatePublicID):
			continue
		case errors.Is(err, repo.ErrDuplicate):
			return ErrDuplicate
		default:
			return fmt.Errorf("create user: %w", err)
		}
	}
	return fmt.Errorf("exhausted public id attempts")
}
