package repo

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique index on phone or email rejects a write.
	ErrDuplicate = errors.New("duplicate phone or email")
	// ErrDuplicatePublicID is returned when the generated public id collides.
	// Callers regenerate and retry.
	ErrDuplicatePublicID = errors.New("duplicate public id")
)

const uniqueViolation = "23505"

// translateUnique maps a Postgres unique violation to the matching sentinel.
// The unique index is the authority for duplicates; application-level
// pre-checks are only a fast path.
func translateUnique(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	if pqErr.Constraint == "users_public_id_key" {
		return ErrDuplicatePublicID
	}
	return ErrDuplicate
}
