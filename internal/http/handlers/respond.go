package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/viotapp/server/internal/auth"
	"github.com/viotapp/server/internal/model"
)

// userResponse is the user-safe projection used in API responses. The
// credential hash is never part of it.
type userResponse struct {
	ID          string     `json:"id"`
	UserID      int        `json:"user_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	Role        string     `json:"role"`
	IsVerified  bool       `json:"is_verified"`
	Score       int        `json:"score"`
	LastLogin   *time.Time `json:"last_login"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		UserID:      u.PublicID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Role:        string(u.Role),
		IsVerified:  u.IsVerified,
		Score:       u.Score,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// respondDomainError maps a workflow error to a transport response. Domain
// failures become client errors; anything unrecognized is an internal error.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrNotVerified):
		respondWithError(w, http.StatusUnauthorized, "account not verified")
	case errors.Is(err, auth.ErrDuplicate):
		respondWithError(w, http.StatusUnprocessableEntity, "phone number or email already in use")
	case errors.Is(err, auth.ErrRateLimited):
		respondWithError(w, http.StatusTooManyRequests, "please wait before requesting a new code")
	case errors.Is(err, auth.ErrExpired):
		respondWithError(w, http.StatusBadRequest, "code or token expired")
	case errors.Is(err, auth.ErrInvalidToken):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, auth.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, auth.ErrDeliveryFailed):
		respondWithError(w, http.StatusServiceUnavailable, "failed to send code")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
