package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/viotapp/server/internal/auth"
	"github.com/viotapp/server/internal/config"
	"github.com/viotapp/server/internal/db"
	httphandler "github.com/viotapp/server/internal/http"
	"github.com/viotapp/server/internal/http/handlers"
	"github.com/viotapp/server/internal/logger"
	"github.com/viotapp/server/internal/repo"
	"github.com/viotapp/server/internal/sms"
)

// sweepInterval drives the storage-level OTP garbage collection.
const sweepInterval = 10 * time.Minute

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	log.Info("connecting to database", zap.String("dsn", db.RedactDSN(cfg.DatabaseURL)))
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)

	otpStore := auth.NewOtpStore(otpRepo, cfg.OTPSalt)
	tokenService := auth.NewTokenService(
		cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.ResetTokenSecret,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.ResetTokenTTL,
	)
	sender := sms.NewHTTPSender(cfg.SMSAPIURL, cfg.SMSAPIKey, cfg.SMSFrom, log)
	authService := auth.NewService(userRepo, otpStore, tokenService, sender, log)

	authHandler := handlers.NewAuthHandler(authService, log)
	adminHandler := handlers.NewAdminHandler(authService, log)
	router := httphandler.NewRouter(authHandler, adminHandler, tokenService, userRepo)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go sweepExpiredCodes(sweepCtx, otpRepo, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

// sweepExpiredCodes periodically garbage-collects one-time codes past the
// retention window. The application-level expiry check stays the primary
// guard; this only keeps the table small.
func sweepExpiredCodes(ctx context.Context, codes repo.OtpRepo, log *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := codes.DeleteExpired(ctx)
			if err != nil {
				log.Warn("otp sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("swept expired codes", zap.Int64("count", n))
			}
		}
	}
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
