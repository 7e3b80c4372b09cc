package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the account role. Every user has exactly one.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleStore   Role = "store"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleStore, RoleAdmin:
		return true
	}
	return false
}

// Purpose discriminates independent OTP lifecycles. A code issued for one
// purpose can never be consumed under another.
type Purpose string

const (
	PurposeSignupVerify   Purpose = "signup-verify"
	PurposeLoginReset     Purpose = "login-reset"
	PurposePhoneChangeOld Purpose = "phone-change-old"
	PurposePhoneChangeNew Purpose = "phone-change-new"
)

// User represents an identity record. PublicID is the stable 7-digit
// identifier exposed to clients; ID stays internal.
type User struct {
	ID           uuid.UUID
	PublicID     int
	FirstName    string
	LastName     string
	Email        string
	PhoneNumber  string
	PasswordHash string
	IsVerified   bool
	Role         Role
	Score        int
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OtpCode represents an active one-time code for a (subject, purpose) pair.
// Only the hash of the code is persisted.
type OtpCode struct {
	ID        uuid.UUID
	Subject   string
	Purpose   Purpose
	CodeHash  []byte
	CreatedAt time.Time
}
