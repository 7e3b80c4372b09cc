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

// Phone number change is a sequential four-step flow. The old-number and
// new-number codes live under independent purposes keyed by the user id, so
// a stale old-number verification can never stand in for the new-number one.

// RequestPhoneChange sends a code to the account's current phone number.
func (s *Service) RequestPhoneChange(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}
	return s.issueAndDeliver(ctx, user.ID.String(), user.PhoneNumber, model.PurposePhoneChangeOld)
}

// VerifyCurrentPhone consumes the old-number code. Success authorizes the
// user to request a code for a new number; it does not itself send one.
func (s *Service) VerifyCurrentPhone(ctx context.Context, userID uuid.UUID, code string) error {
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}
	return s.otps.Verify(ctx, user.ID.String(), model.PurposePhoneChangeOld, code)
}

// RequestNewPhone sends a code to the desired new number, rejecting numbers
// already bound to another verified account.
func (s *Service) RequestNewPhone(ctx context.Context, userID uuid.UUID, newPhone string) error {
	newPhone = strings.TrimSpace(newPhone)
	if newPhone == "" {
		return fmt.Errorf("%w: new phone number is required", ErrValidation)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}

	if err := s.checkNewPhoneAvailable(ctx, newPhone, user.ID); err != nil {
		return err
	}

	return s.issueAndDeliver(ctx, user.ID.String(), newPhone, model.PurposePhoneChangeNew)
}

// VerifyNewPhoneAndUpdate consumes the new-number code and atomically moves
// the account to the new number. Without a prior successful RequestNewPhone
// there is no active code and the call fails.
func (s *Service) VerifyNewPhoneAndUpdate(ctx context.Context, userID uuid.UUID, newPhone, code string) (*model.User, error) {
	newPhone = strings.TrimSpace(newPhone)
	if newPhone == "" || code == "" {
		return nil, fmt.Errorf("%w: new phone number and code are required", ErrValidation)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if err := s.checkNewPhoneAvailable(ctx, newPhone, user.ID); err != nil {
		return nil, err
	}

	if err := s.otps.Verify(ctx, user.ID.String(), model.PurposePhoneChangeNew, code); err != nil {
		return nil, err
	}

	if err := s.users.UpdatePhone(ctx, user.ID, newPhone); err != nil {
		// The unique index is the authority; a concurrent claim of the number
		// between the pre-check and the write lands here.
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("update phone: %w", err)
	}

	updated, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	s.log.Info("phone number updated",
		zap.String("old", sms.MaskPhone(user.PhoneNumber)),
		zap.String("new", sms.MaskPhone(newPhone)))
	return &updated, nil
}

func (s *Service) checkNewPhoneAvailable(ctx context.Context, newPhone string, selfID uuid.UUID) error {
	owner, err := s.users.GetVerifiedByPhone(ctx, newPhone)
	switch {
	case err == nil:
		if owner.ID != selfID {
			return fmt.Errorf("%w: phone number", ErrDuplicate)
		}
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("check new phone: %w", err)
	}
}
