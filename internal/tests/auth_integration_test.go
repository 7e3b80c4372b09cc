package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viotapp/server/internal/auth"
	"github.com/viotapp/server/internal/config"
	"github.com/viotapp/server/internal/db"
	httphandler "github.com/viotapp/server/internal/http"
	"github.com/viotapp/server/internal/http/handlers"
	"github.com/viotapp/server/internal/model"
	"github.com/viotapp/server/internal/repo"
)

func TestMain(m *testing.M) {
	// Set env if unset. Do NOT set DATABASE_URL; integration tests skip if missing.
	if os.Getenv("ACCESS_TOKEN_SECRET") == "" {
		os.Setenv("ACCESS_TOKEN_SECRET", "test-access-secret-at-least-32-chars")
	}
	if os.Getenv("REFRESH_TOKEN_SECRET") == "" {
		os.Setenv("REFRESH_TOKEN_SECRET", "test-refresh-secret-at-least-32-chars")
	}
	if os.Getenv("RESET_TOKEN_SECRET") == "" {
		os.Setenv("RESET_TOKEN_SECRET", "test-reset-secret-at-least-32-chars")
	}
	if os.Getenv("OTP_SALT") == "" {
		os.Setenv("OTP_SALT", "test-otp-salt")
	}

	os.Exit(m.Run())
}

// capturingSender records the last code delivered to each phone number so
// tests can complete verification flows without a real gateway.
type capturingSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCapturingSender() *capturingSender {
	return &capturingSender{codes: make(map[string]string)}
}

func (c *capturingSender) Send(_ context.Context, phoneNumber, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[phoneNumber] = code
	return nil
}

func (c *capturingSender) LastCode(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

// testServer holds the server, DB and delivery capture for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
	Sender *capturingSender
	Users  repo.UserRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database), "migrations must run successfully")

	log := zap.NewNop()
	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)

	sender := newCapturingSender()
	otpStore := auth.NewOtpStore(otpRepo, cfg.OTPSalt)
	tokenService := auth.NewTokenService(
		cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.ResetTokenSecret,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.ResetTokenTTL,
	)
	authService := auth.NewService(userRepo, otpStore, tokenService, sender, log)

	authHandler := handlers.NewAuthHandler(authService, log)
	adminHandler := handlers.NewAdminHandler(authService, log)
	router := httphandler.NewRouter(authHandler, adminHandler, tokenService, userRepo)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Sender: sender, Users: userRepo}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) Truncate(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateTables(context.Background(), s.DB), "truncate tables")
}

// postJSON sends a JSON body, optionally with a bearer token, and decodes the
// response into out (when non-nil). Returns the status code.
func (s *testServer) postJSON(t *testing.T, path, token string, body, out interface{}) int {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, s.BaseURL()+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), "decode response; body: %s", raw)
	}
	return resp.StatusCode
}

func (s *testServer) getJSON(t *testing.T, path, token string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.BaseURL()+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), "decode response; body: %s", raw)
	}
	return resp.StatusCode
}

type userPayload struct {
	ID          string `json:"id"`
	UserID      int    `json:"user_id"`
	FirstName   string `json:"first_name"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
	IsVerified  bool   `json:"is_verified"`
}

type sessionResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	User         userPayload `json:"user"`
}

func (s *testServer) signupAndVerify(t *testing.T, phone string) sessionResponse {
	t.Helper()
	status := s.postJSON(t, "/auth/register", "", map[string]string{
		"first_name":   "Jane",
		"last_name":    "Doe",
		"email":        "jane+" + phone + "@example.com",
		"phone_number": phone,
		"password":     "hunter22",
	}, nil)
	require.Equal(t, http.StatusCreated, status, "register must return 201")

	code := s.Sender.LastCode(phone)
	require.NotEmpty(t, code, "a code must have been delivered")

	var session sessionResponse
	status = s.postJSON(t, "/auth/verify-signup-otp", "", map[string]string{
		"phone_number": phone,
		"otp":          code,
		"action":       "verify",
	}, &session)
	require.Equal(t, http.StatusOK, status, "verify must return 200")
	require.NotEmpty(t, session.AccessToken)
	return session
}

func TestAuthIntegration(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ts := newTestServer(t)

	t.Run("A_HealthCheck", func(t *testing.T) {
		var body map[string]string
		status := ts.getJSON(t, "/health", "", &body)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("B_SignupVerifyLogin", func(t *testing.T) {
		ts.Truncate(t)
		session := ts.signupAndVerify(t, "88112233")
		assert.True(t, session.User.IsVerified)
		assert.Equal(t, "student", session.User.Role)
		assert.Equal(t, "bearer", session.TokenType)

		var login sessionResponse
		status := ts.postJSON(t, "/auth/login", "", map[string]string{
			"phone_number": "88112233",
			"password":     "hunter22",
		}, &login)
		assert.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, login.AccessToken)

		var me userPayload
		status = ts.getJSON(t, "/me", login.AccessToken, &me)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "88112233", me.PhoneNumber)
	})

	t.Run("C_LoginBeforeVerification", func(t *testing.T) {
		ts.Truncate(t)
		status := ts.postJSON(t, "/auth/register", "", map[string]string{
			"first_name":   "Jane",
			"last_name":    "Doe",
			"email":        "pending@example.com",
			"phone_number": "99119911",
			"password":     "hunter22",
		}, nil)
		require.Equal(t, http.StatusCreated, status)

		// Correct credentials, but the record is still unverified.
		status = ts.postJSON(t, "/auth/login", "", map[string]string{
			"phone_number": "99119911",
			"password":     "hunter22",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("D_WrongOtpRejected", func(t *testing.T) {
		ts.Truncate(t)
		status := ts.postJSON(t, "/auth/register", "", map[string]string{
			"first_name":   "Jane",
			"last_name":    "Doe",
			"email":        "wrong@example.com",
			"phone_number": "99887766",
			"password":     "hunter22",
		}, nil)
		require.Equal(t, http.StatusCreated, status)

		wrong := "000000"
		if ts.Sender.LastCode("99887766") == wrong {
			wrong = "000001"
		}
		status = ts.postJSON(t, "/auth/verify-signup-otp", "", map[string]string{
			"phone_number": "99887766",
			"otp":          wrong,
			"action":       "verify",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("E_DuplicateSignupRejected", func(t *testing.T) {
		ts.Truncate(t)
		ts.signupAndVerify(t, "80808080")

		status := ts.postJSON(t, "/auth/register", "", map[string]string{
			"first_name":   "Other",
			"last_name":    "Person",
			"email":        "other@example.com",
			"phone_number": "80808080",
			"password":     "different",
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("F_RefreshRotation", func(t *testing.T) {
		ts.Truncate(t)
		session := ts.signupAndVerify(t, "81818181")

		var refreshed map[string]string
		status := ts.postJSON(t, "/auth/refresh", "", map[string]string{
			"refresh_token": session.RefreshToken,
		}, &refreshed)
		assert.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, refreshed["access_token"])
		assert.NotEmpty(t, refreshed["refresh_token"])

		var me userPayload
		status = ts.getJSON(t, "/me", refreshed["access_token"], &me)
		assert.Equal(t, http.StatusOK, status)

		// An access token never passes as a refresh token.
		status = ts.postJSON(t, "/auth/refresh", "", map[string]string{
			"refresh_token": session.AccessToken,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("G_PasswordReset", func(t *testing.T) {
		ts.Truncate(t)
		ts.signupAndVerify(t, "82828282")

		status := ts.postJSON(t, "/auth/request-reset", "", map[string]string{
			"phone_number": "82828282",
		}, nil)
		require.Equal(t, http.StatusOK, status)

		code := ts.Sender.LastCode("82828282")
		require.NotEmpty(t, code)

		var verifyRes map[string]string
		status = ts.postJSON(t, "/auth/verify-reset-otp", "", map[string]string{
			"phone_number": "82828282",
			"otp":          code,
			"action":       "verify",
		}, &verifyRes)
		require.Equal(t, http.StatusOK, status)
		require.NotEmpty(t, verifyRes["reset_token"])

		status = ts.postJSON(t, "/auth/reset-password", "", map[string]string{
			"reset_token":  verifyRes["reset_token"],
			"new_password": "brand-new-pass",
		}, nil)
		require.Equal(t, http.StatusOK, status)

		status = ts.postJSON(t, "/auth/login", "", map[string]string{
			"phone_number": "82828282",
			"password":     "hunter22",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, status, "old password must no longer work")

		status = ts.postJSON(t, "/auth/login", "", map[string]string{
			"phone_number": "82828282",
			"password":     "brand-new-pass",
		}, nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("H_PhoneChange", func(t *testing.T) {
		ts.Truncate(t)
		session := ts.signupAndVerify(t, "83838383")
		token := session.AccessToken

		status := ts.postJSON(t, "/phone/request-current-otp", token, map[string]string{}, nil)
		require.Equal(t, http.StatusOK, status)

		oldCode := ts.Sender.LastCode("83838383")
		require.NotEmpty(t, oldCode)
		status = ts.postJSON(t, "/phone/verify-current-otp", token, map[string]string{
			"otp": oldCode,
		}, nil)
		require.Equal(t, http.StatusOK, status)

		status = ts.postJSON(t, "/phone/request-new-otp", token, map[string]string{
			"new_phone_number": "84848484",
		}, nil)
		require.Equal(t, http.StatusOK, status)

		newCode := ts.Sender.LastCode("84848484")
		require.NotEmpty(t, newCode, "code must go to the new number")

		var updated struct {
			User userPayload `json:"user"`
		}
		status = ts.postJSON(t, "/phone/verify-new-otp", token, map[string]string{
			"new_phone_number": "84848484",
			"otp":              newCode,
		}, &updated)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "84848484", updated.User.PhoneNumber)

		status = ts.postJSON(t, "/auth/login", "", map[string]string{
			"phone_number": "84848484",
			"password":     "hunter22",
		}, nil)
		assert.Equal(t, http.StatusOK, status, "login must work with the new number")
	})

	t.Run("I_AdminUserManagement", func(t *testing.T) {
		ts.Truncate(t)
		adminToken := ts.loginAsAdmin(t)

		var created struct {
			User userPayload `json:"user"`
		}
		status := ts.postJSON(t, "/admin/register", adminToken, map[string]string{
			"first_name":   "Tina",
			"last_name":    "Teacher",
			"email":        "tina@example.com",
			"phone_number": "85858585",
			"password":     "class-pass",
			"role":         "teacher",
		}, &created)
		require.Equal(t, http.StatusCreated, status)
		assert.True(t, created.User.IsVerified, "admin-issued accounts skip verification")
		assert.Equal(t, "teacher", created.User.Role)

		// The new teacher can log in straight away.
		status = ts.postJSON(t, "/auth/login", "", map[string]string{
			"phone_number": "85858585",
			"password":     "class-pass",
		}, nil)
		assert.Equal(t, http.StatusOK, status)

		var listing struct {
			Users []userPayload `json:"users"`
		}
		status = ts.getJSON(t, "/admin/users", adminToken, &listing)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, listing.Users, 2)

		// A student token must not reach the admin surface.
		student := ts.signupAndVerify(t, "86868686")
		status = ts.getJSON(t, "/admin/users", student.AccessToken, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("J_RateLimit", func(t *testing.T) {
		ts.Truncate(t)
		var last int
		for i := 0; i < 20; i++ {
			last = ts.postJSON(t, "/auth/request-reset", "", map[string]string{
				"phone_number": "87878787",
			}, nil)
			if last == http.StatusTooManyRequests {
				break
			}
		}
		assert.Equal(t, http.StatusTooManyRequests, last, "repeated requests must eventually hit the limiter")
	})
}

// loginAsAdmin seeds an admin account directly through the repository and
// returns a session token for it.
func (ts *testServer) loginAsAdmin(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	hash, err := auth.HashPassword("admin-pass")
	require.NoError(t, err)
	admin := model.User{
		PublicID:     7000001,
		FirstName:    "Root",
		LastName:     "Admin",
		Email:        "admin@example.com",
		PhoneNumber:  "70000001",
		PasswordHash: hash,
		IsVerified:   true,
		Role:         model.RoleAdmin,
	}
	require.NoError(t, ts.Users.Create(ctx, &admin))

	var session sessionResponse
	status := ts.postJSON(t, "/auth/login", "", map[string]string{
		"phone_number": "70000001",
		"password":     "admin-pass",
	}, &session)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, session.AccessToken)
	return session.AccessToken
}
