package auth

import "errors"

// Domain failures raised by the auth workflows. Handlers map these to
// transport-level responses; anything not listed here is an internal error.
var (
	// ErrValidation covers missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when the referenced account or code does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is returned on a password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotVerified is returned when an operation requires a verified account.
	ErrNotVerified = errors.New("account not verified")
	// ErrDuplicate is returned when a phone number or email is already taken.
	ErrDuplicate = errors.New("phone number or email already in use")
	// ErrRateLimited is returned when an OTP is requested before the cooldown elapses.
	ErrRateLimited = errors.New("please wait before requesting a new code")
	// ErrExpired is returned for a stale OTP or token.
	ErrExpired = errors.New("code or token expired")
	// ErrInvalidToken is returned for a token that fails signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("access denied")
	// ErrDeliveryFailed is returned when the SMS gateway could not deliver a code.
	ErrDeliveryFailed = errors.New("failed to send code")
)
