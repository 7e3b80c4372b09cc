package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/viotapp/server/internal/model"
	"github.com/viotapp/server/internal/repo"
)

const (
	codeLength = 6
	// codeExpiry is the application-level expiry window, checked on every
	// verify. The storage retention window is only a garbage-collection
	// backstop and must never be relied on instead.
	codeExpiry = 60 * time.Second

	defaultCooldown = 60 * time.Second
	// Reset requests allow a shorter cooldown so a user who mistyped their
	// number can retry sooner.
	resetCooldown = 30 * time.Second
)

// OtpStore manages the lifecycle of one-time codes keyed by (subject,
// purpose). At most one code is active per pair.
type OtpStore struct {
	codes repo.OtpRepo
	salt  string
}

// NewOtpStore creates a new OTP store
func NewOtpStore(codes repo.OtpRepo, salt string) *OtpStore {
	return &OtpStore{codes: codes, salt: salt}
}

// CheckCooldown fails with ErrRateLimited while a prior code for (subject,
// purpose) is still inside its cooldown window. It never mutates state, so
// callers can gate side effects on it before committing anything.
func (s *OtpStore) CheckCooldown(ctx context.Context, subject string, purpose model.Purpose) error {
	existing, err := s.codes.Get(ctx, subject, purpose)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("check existing code: %w", err)
	}
	if time.Since(existing.CreatedAt) < cooldownFor(purpose) {
		return ErrRateLimited
	}
	return nil
}

// Issue generates a fresh 6-digit code for (subject, purpose), replacing any
// prior code. If a prior code is still inside the purpose's cooldown window
// the call fails with ErrRateLimited and the prior code is left untouched.
// The plaintext code is returned once for delivery; only its hash is stored.
func (s *OtpStore) Issue(ctx context.Context, subject string, purpose model.Purpose) (string, error) {
	if err := s.CheckCooldown(ctx, subject, purpose); err != nil {
		return "", err
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	if _, err := s.codes.Replace(ctx, subject, purpose, hashCodeHex(subject, code, s.salt)); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Verify consumes the active code for (subject, purpose). An absent entry and
// a mismatched code both fail with ErrNotFound so the caller surface cannot
// distinguish them. A stale entry fails with ErrExpired and is deleted.
// On success the entry is deleted, making replay impossible.
func (s *OtpStore) Verify(ctx context.Context, subject string, purpose model.Purpose, candidate string) error {
	entry, err := s.codes.Get(ctx, subject, purpose)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("look up code: %w", err)
	}

	if time.Since(entry.CreatedAt) > codeExpiry {
		if err := s.codes.Delete(ctx, subject, purpose); err != nil {
			return fmt.Errorf("delete stale code: %w", err)
		}
		return ErrExpired
	}

	if !constantTimeCompare(hashCode(subject, candidate, s.salt), entry.CodeHash) {
		return ErrNotFound
	}

	if err := s.codes.Delete(ctx, subject, purpose); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	return nil
}

func cooldownFor(purpose model.Purpose) time.Duration {
	if purpose == model.PurposeLoginReset {
		return resetCooldown
	}
	return defaultCooldown
}

// generateCode returns a uniformly random 6-digit decimal code.
func generateCode() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint64(buf[:]) % 1000000
	return fmt.Sprintf("%0*d", codeLength, n), nil
}

// hashCodeHex returns SHA-256(subject:code:salt) as hex for storage.
func hashCodeHex(subject, code, salt string) string {
	return hex.EncodeToString(hashCode(subject, code, salt))
}

func hashCode(subject, code, salt string) []byte {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", subject, code, salt)))
	return sum[:]
}

func constantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result int
	for i := 0; i < len(a); i++ {
		result |= int(a[i]) ^ int(b[i])
	}
	return result == 0
}
