package main

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/meetsync/auth-service/internal/auth"
	"github.com/meetsync/auth-service/internal/config"
	"github.com/meetsync/auth-service/internal/database"
	"github.com/meetsync/auth-service/internal/handler"
	"github.com/meetsync/auth-service/internal/logger"
	"github.com/meetsync/auth-service/internal/middleware"
	"github.com/meetsync/auth-service/internal/queue"
	"github.com/meetsync/auth-service/internal/repository"
	"github.com/meetsync/auth-service/internal/revocation"
	"github.com/meetsync/auth-service/internal/router"
	audit "github.com/meetsync/auth-service/internal/service"
	"github.com/meetsync/auth-service/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}

	// The denylist normally lives in Redis. Without Redis the fail policy
	// decides: fail-closed cannot run safely (every validation would be a
	// store error), fail-open degrades to a process-local denylist.
	var revoked revocation.Store
	rdb, err := config.NewRedisClient()
	if err != nil {
		if cfg.RevocationFailClosed {
			logger.Fatal().Err(err).Msg("redis unavailable and revocation policy is fail-closed")
		}
		logger.Warn().Err(err).Msg("redis unavailable, falling back to in-process denylist")
		revoked = revocation.NewMemory()
	} else {
		revoked = revocation.NewRedisStore(rdb, cfg.RevocationTimeout)
	}

	issuer := token.NewIssuer(cfg.JWTSecret, cfg.ServiceJWTSecret,
		cfg.AccessTTL, cfg.RefreshTTL, cfg.ServiceTTL)
	validator := token.NewValidator(cfg.JWTSecret, cfg.ServiceJWTSecret,
		revoked, cfg.RevocationFailClosed)

	authenticator := auth.New(
		repository.NewUserRepo(db),
		repository.NewSessionRepo(db),
		revoked, issuer, validator,
		auth.Options{
			MaxFailedLogins:      cfg.MaxFailedLogins,
			LockoutDuration:      cfg.LockoutDuration,
			RotateOnRefresh:      cfg.RotateOnRefresh,
			PasswordHistoryDepth: cfg.PasswordHistoryDepth,
			BcryptCost:           cfg.BcryptCost,
		})

	h := handler.NewAuthHandler(authenticator, validator, audit.PublishAuthEvent)

	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			logger.Warn().Err(err).Msg("audit consumer stopped")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(logger.RequestLogger())

	router.RegisterRoutes(e, h,
		middleware.Auth(validator),
		middleware.NewLoginLimiter(config.LoadRateLimitConfig(), rdb),
		middleware.ServiceKey(cfg.ServiceAPIKey),
	)

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
