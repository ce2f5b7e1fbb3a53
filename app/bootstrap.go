package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"blog-platform/internal/auth"
	"blog-platform/internal/config"
	"blog-platform/internal/db"
	"blog-platform/internal/mailer"
	"blog-platform/internal/maintenance"
	"blog-platform/internal/observability"
	"blog-platform/internal/ratelimit"
	"blog-platform/internal/session"
	"blog-platform/internal/token"
	"blog-platform/internal/user"
	"blog-platform/internal/web"
)

type Options struct {
	RunMigrations bool
}

// Runtime is the fully wired application: one handler tree and a teardown.
type Runtime struct {
	Handler http.Handler
	Config  *config.Config
	Logger  *zap.Logger
	Close   func() error
}

// Build constructs every component once, explicitly, and wires them together;
// nothing lives in package-level state.
func Build(ctx context.Context, options Options) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Error("init_sentry_failed", zap.Error(err))
	}

	database, err := sqlx.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(ctx, database.DB); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	tokens := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)

	sessionRepo := session.NewRepository(database)
	sessions := session.NewManager(sessionRepo, tokens, logger)
	sessionHandler := session.NewHandler(sessions)

	userRepo := user.NewRepository(database)
	mail := mailer.NewLogMailer(logger)
	authService := auth.NewService(userRepo, sessions, mail, cfg.JWT.CodeTTL, logger)
	authHandler := auth.NewHandler(authService, cfg.JWT.RefreshTokenTTL)

	requestRepo := ratelimit.NewRepository(database)
	limiter := ratelimit.NewLimiter(requestRepo, cfg.RateLimit.Max, cfg.RateLimit.Window, logger)

	cleanupHandler := maintenance.NewCleanupHandler(
		sessionRepo,
		requestRepo,
		logger,
		cfg.CronSecret,
		cfg.Cleanup.RequestRetention,
		cfg.Cleanup.BatchSize,
	)

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", limiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh-token", authHandler.RefreshToken)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("GET /auth/me", auth.Middleware(tokens, http.HandlerFunc(authHandler.Me)))
	mux.Handle("POST /auth/registration", limiter.Middleware(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /auth/registration-confirmation", limiter.Middleware(http.HandlerFunc(authHandler.ConfirmRegistration)))
	mux.Handle("POST /auth/registration-email-resending", limiter.Middleware(http.HandlerFunc(authHandler.ResendConfirmation)))
	mux.Handle("POST /auth/password-recovery", limiter.Middleware(http.HandlerFunc(authHandler.PasswordRecovery)))
	mux.Handle("POST /auth/new-password", limiter.Middleware(http.HandlerFunc(authHandler.NewPassword)))
	mux.HandleFunc("GET /security/devices", sessionHandler.ListDevices)
	mux.HandleFunc("DELETE /security/devices/{deviceId}", sessionHandler.RevokeDevice)
	mux.HandleFunc("DELETE /security/devices", sessionHandler.RevokeOtherDevices)
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			_ = logger.Sync()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			web.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}

		web.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
