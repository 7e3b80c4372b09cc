package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/viotapp/server/internal/auth"
	"github.com/viotapp/server/internal/http/handlers"
	"github.com/viotapp/server/internal/middleware"
	"github.com/viotapp/server/internal/model"
	"github.com/viotapp/server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	tokens *auth.TokenService,
	users repo.UserRepo,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.NewHealthHandler().ServeHTTP)

	// IP limiters shield the OTP endpoints; the per-phone cooldown in the
	// OTP store is the real throttle.
	otpRequestLimiter := middleware.NewRateLimiter(10*time.Minute, 10)
	otpVerifyLimiter := middleware.NewRateLimiter(10*time.Minute, 20)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.LimitByIP(otpRequestLimiter))
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/request-reset", authHandler.HandleRequestReset)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.LimitByIP(otpVerifyLimiter))
			r.Post("/verify-signup-otp", authHandler.HandleSignupOtp)
			r.Post("/verify-reset-otp", authHandler.HandleResetOtp)
		})
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/reset-password", authHandler.HandleResetPassword)
	})

	// Protected routes (require valid access token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(tokens, users))
		r.Get("/me", authHandler.HandleMe)
		r.Post("/password/change", authHandler.HandleChangePassword)
		r.Route("/phone", func(r chi.Router) {
			r.Post("/request-current-otp", authHandler.HandleRequestCurrentPhoneOtp)
			r.Post("/verify-current-otp", authHandler.HandleVerifyCurrentPhoneOtp)
			r.Post("/request-new-otp", authHandler.HandleRequestNewPhoneOtp)
			r.Post("/verify-new-otp", authHandler.HandleVerifyNewPhoneOtp)
		})
	})

	// Admin surface
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Authenticate(tokens, users))
		r.Use(middleware.RequireRole(model.RoleAdmin))
		r.Post("/register", adminHandler.HandleRegister)
		r.Get("/users", adminHandler.HandleListUsers)
		r.Put("/users/{userID}", adminHandler.HandleUpdateUser)
		r.Delete("/users/{userID}", adminHandler.HandleDeleteUser)
	})

	return r
}
