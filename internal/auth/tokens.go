package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/viotapp/server/internal/model"
)

// SessionClaims is the claim shape shared by access and refresh tokens.
type SessionClaims struct {
	UserID uuid.UUID  `json:"id"`
	Role   model.Role `json:"role"`
	Email  string     `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ResetClaims is the claim shape of the single-purpose password reset token.
type ResetClaims struct {
	UserID      uuid.UUID `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies the three token kinds. Each kind signs
// with its own secret, so a leaked reset token can never be replayed as a
// session token and vice versa.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	resetSecret   []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
}

// NewTokenService creates a new token service
func NewTokenService(accessSecret, refreshSecret, resetSecret string, accessTTL, refreshTTL, resetTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		resetSecret:   []byte(resetSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		resetTTL:      resetTTL,
	}
}

// IssueAccess signs a short-lived access token carrying id, role and email.
func (s *TokenService) IssueAccess(u *model.User) (string, error) {
	return signSession(u, s.accessSecret, s.accessTTL, true)
}

// IssueRefresh signs a longer-lived refresh token carrying id and role.
func (s *TokenService) IssueRefresh(u *model.User) (string, error) {
	return signSession(u, s.refreshSecret, s.refreshTTL, false)
}

// IssueReset signs a single-purpose reset token carrying id and phone number.
func (s *TokenService) IssueReset(u *model.User) (string, error) {
	now := time.Now()
	claims := &ResetClaims{
		UserID:      u.ID,
		PhoneNumber: u.PhoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.resetSecret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates a token against the access secret.
func (s *TokenService) VerifyAccess(tokenString string) (*SessionClaims, error) {
	return verifySession(tokenString, s.accessSecret)
}

// VerifyRefresh validates a token against the refresh secret.
func (s *TokenService) VerifyRefresh(tokenString string) (*SessionClaims, error) {
	return verifySession(tokenString, s.refreshSecret)
}

// VerifyReset validates a token against the reset secret.
func (s *TokenService) VerifyReset(tokenString string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	if err := parseInto(tokenString, s.resetSecret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func signSession(u *model.User, secret []byte, ttl time.Duration, withEmail bool) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if withEmail {
		claims.Email = u.Email
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func verifySession(tokenString string, secret []byte) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := parseInto(tokenString, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseInto(tokenString string, secret []byte, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
