package auth

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashPassword hashes a plaintext credential with bcrypt. Called explicitly
// before every write that touches the password field; nothing hashes
// implicitly on save.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext candidate against a stored hash.
func CheckPassword(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// NewPublicID generates a random 7-digit public identifier. Uniqueness is
// enforced by the store; callers regenerate on collision.
func NewPublicID() (int, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generate public id: %w", err)
	}
	n := binary.BigEndian.Uint64(buf[:]) % 9000000
	return int(n) + 1000000, nil
}
