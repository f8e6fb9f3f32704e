// Command trailframes-server starts the HTTP API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/trailframes/server/internal/config"
	"github.com/trailframes/server/internal/limiter"
	"github.com/trailframes/server/internal/migrate"
	"github.com/trailframes/server/internal/repository/postgres"
	"github.com/trailframes/server/internal/server"
	"github.com/trailframes/server/internal/service"
	"github.com/trailframes/server/internal/strava"
	"github.com/trailframes/server/internal/vault"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves until a signal
// arrives.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	logger, _ := zap.NewProduction()
	if !cfg.IsProduction() {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	v, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("encryption key", zap.Error(err))
	}

	// Repositories
	db := &postgres.DB{Pool: pool}
	accountRepo := postgres.NewAccountRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	activityRepo := postgres.NewActivityRepo(db)

	clock := clockwork.NewRealClock()
	lim := limiter.NewPG(pool, clock, 15*time.Minute, 5, 15*time.Minute)
	stravaClient := strava.New(cfg.StravaClientID, cfg.StravaClientSecret, cfg.StravaAPIURL)

	// Services
	accountSvc := service.NewAccountService(accountRepo)
	tokenSvc := service.NewTokenService(sessionRepo, []byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL, clock)
	credSvc := service.NewCredentialManager(accountRepo, v, stravaClient, clock, logger)
	ingestSvc := service.NewIngestionEngine(credSvc, stravaClient, activityRepo, logger)

	srv := server.NewServer(cfg, accountSvc, tokenSvc, credSvc, ingestSvc, lim, logger)

	// Periodically drop expired session rows so replay detection keeps
	// working against a bounded table.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := tokenSvc.SweepExpired(ctx)
				if err != nil {
					logger.Warn("session sweep", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("session sweep", zap.Int64("removed", n))
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", ":"+cfg.Port))
		errCh <- srv.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
