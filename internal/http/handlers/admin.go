package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/viotapp/server/internal/auth"
	"github.com/viotapp/server/internal/middleware"
	"github.com/viotapp/server/internal/model"
)

// AdminHandler handles the admin-only user management endpoints
type AdminHandler struct {
	service *auth.Service
	log     *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service *auth.Service, log *zap.Logger) *AdminHandler {
	return &AdminHandler{service: service, log: log}
}

type adminRegisterRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// HandleRegister handles POST /admin/register
func (h *AdminHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	admin, ok := middleware.GetUser(r.Context())
	if !ok || admin == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req adminRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.RegisterByAdmin(r.Context(), admin.ID, auth.AdminRegisterInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Role:        model.Role(req.Role),
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "user registered by admin",
		"user":    toUserResponse(user),
	})
}

// HandleListUsers handles GET /admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	responses := make([]userResponse, 0, len(users))
	for i := range users {
		responses = append(responses, toUserResponse(&users[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"users": responses})
}

type adminUpdateRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}

// HandleUpdateUser handles PUT /admin/users/{userID}
func (h *AdminHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	publicID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req adminUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.AdminUpdateUser(r.Context(), publicID, auth.AdminUpdateInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Role:        model.Role(req.Role),
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "user updated",
		"user":    toUserResponse(user),
	})
}

// HandleDeleteUser handles DELETE /admin/users/{userID}
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	publicID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.service.AdminDeleteUser(r.Context(), publicID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
