package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/viotapp/server/internal/auth"
	"github.com/viotapp/server/internal/middleware"
)

// AuthHandler handles the user-facing authentication endpoints
type AuthHandler struct {
	service *auth.Service
	log     *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, log: log}
}

// respondOtpError collapses absent, mismatched and expired codes into one
// caller-visible message so verification cannot be used to probe accounts.
func respondOtpError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrNotFound) || errors.Is(err, auth.ErrExpired) {
		respondWithError(w, http.StatusBadRequest, "invalid or expired code")
		return
	}
	respondDomainError(w, err)
}

type registerRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.Signup(r.Context(), auth.SignupInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "signup successful, code sent to phone",
		"user":    toUserResponse(user),
	})
}

type signupOtpRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
	Action      string `json:"action"`
}

// HandleSignupOtp handles POST /auth/verify-signup-otp with action verify|resend
func (h *AuthHandler) HandleSignupOtp(w http.ResponseWriter, r *http.Request) {
	var req signupOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "verify":
		result, err := h.service.VerifySignupOtp(r.Context(), req.PhoneNumber, strings.TrimSpace(req.OTP))
		if err != nil {
			respondOtpError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"message":       "phone number verified",
			"access_token":  result.Tokens.AccessToken,
			"refresh_token": result.Tokens.RefreshToken,
			"token_type":    "bearer",
			"user":          toUserResponse(&result.User),
		})
	case "resend":
		if err := h.service.ResendSignupOtp(r.Context(), req.PhoneNumber); err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "code resent"})
	default:
		respondWithError(w, http.StatusBadRequest, "action must be verify or resend")
	}
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Login(r.Context(), req.PhoneNumber, req.Password)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "login successful",
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
		"token_type":    "bearer",
		"user":          toUserResponse(&result.User),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpired) || errors.Is(err, auth.ErrInvalidToken) {
			respondWithError(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "bearer",
	})
}

// HandleMe handles GET /me (protected)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(user))
}

type requestResetRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// HandleRequestReset handles POST /auth/request-reset
func (h *AuthHandler) HandleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.PhoneNumber); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "reset code sent"})
}

type resetOtpRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
	Action      string `json:"action"`
}

// HandleResetOtp handles POST /auth/verify-reset-otp with action verify|resend
func (h *AuthHandler) HandleResetOtp(w http.ResponseWriter, r *http.Request) {
	var req resetOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "verify":
		resetToken, err := h.service.VerifyResetOtp(r.Context(), req.PhoneNumber, strings.TrimSpace(req.OTP))
		if err != nil {
			respondOtpError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{
			"message":     "code verified",
			"reset_token": resetToken,
		})
	case "resend":
		if err := h.service.RequestPasswordReset(r.Context(), req.PhoneNumber); err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "code resent"})
	default:
		respondWithError(w, http.StatusBadRequest, "action must be verify or resend")
	}
}

type resetPasswordRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

// HandleResetPassword handles POST /auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.ResetToken, req.NewPassword); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// HandleChangePassword handles POST /password/change (protected)
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// HandleRequestCurrentPhoneOtp handles POST /phone/request-current-otp (protected)
func (h *AuthHandler) HandleRequestCurrentPhoneOtp(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.RequestPhoneChange(r.Context(), user.ID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "code sent to current phone number"})
}

type verifyCurrentPhoneRequest struct {
	OTP string `json:"otp"`
}

// HandleVerifyCurrentPhoneOtp handles POST /phone/verify-current-otp (protected)
func (h *AuthHandler) HandleVerifyCurrentPhoneOtp(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req verifyCurrentPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.VerifyCurrentPhone(r.Context(), user.ID, strings.TrimSpace(req.OTP)); err != nil {
		respondOtpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "current number verified, you can now enter a new number"})
}

type requestNewPhoneRequest struct {
	NewPhoneNumber string `json:"new_phone_number"`
}

// HandleRequestNewPhoneOtp handles POST /phone/request-new-otp (protected)
func (h *AuthHandler) HandleRequestNewPhoneOtp(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req requestNewPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.RequestNewPhone(r.Context(), user.ID, req.NewPhoneNumber); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "code sent to new phone number"})
}

type verifyNewPhoneRequest struct {
	NewPhoneNumber string `json:"new_phone_number"`
	OTP            string `json:"otp"`
}

// HandleVerifyNewPhoneOtp handles POST /phone/verify-new-otp (protected)
func (h *AuthHandler) HandleVerifyNewPhoneOtp(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req verifyNewPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.service.VerifyNewPhoneAndUpdate(r.Context(), user.ID, req.NewPhoneNumber, strings.TrimSpace(req.OTP))
	if err != nil {
		if errors.Is(err, auth.ErrDuplicate) {
			respondDomainError(w, err)
			return
		}
		respondOtpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "phone number updated",
		"user":    toUserResponse(updated),
	})
}
