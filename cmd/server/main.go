package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sumire/taskflow/internal/config"
	"github.com/sumire/taskflow/internal/handler"
	"github.com/sumire/taskflow/internal/logging"
	"github.com/sumire/taskflow/internal/notify"
	"github.com/sumire/taskflow/internal/repository"
	"github.com/sumire/taskflow/internal/service"
)

//	@title						TaskFlow API
//	@version					1.0
//	@description				Authentication, user administration, projects and tasks API for TaskFlow.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the session token.

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Service: "taskflow-api",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := repository.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", "driver", db.DriverName())

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	tokens := service.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiresIn)

	authSvc := service.NewAuthService(userRepo, tokens, service.NewBcryptHasher(cfg.BcryptCost), mailer, service.AuthConfig{
		VerificationTokenTTL: cfg.VerificationTokenTTL,
		ResetTokenTTL:        cfg.ResetTokenTTL,
	})
	oauthSvc := service.NewOAuthService(authSvc, service.OAuthConfig{
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		GitHubClientID:     cfg.GitHubClientID,
		GitHubClientSecret: cfg.GitHubClientSecret,
		CallbackBaseURL:    cfg.PublicURL,
	})

	e := handler.NewRouter(handler.RouterDeps{
		Logger:        logger,
		Auth:          authSvc,
		OAuth:         oauthSvc,
		Users:         service.NewUserService(userRepo),
		Projects:      service.NewProjectService(projectRepo, taskRepo),
		Tasks:         service.NewTaskService(taskRepo, projectRepo, userRepo),
		DB:            userRepo,
		FrontendURL:   cfg.FrontendURL,
		SecureCookies: !cfg.IsDevelopment(),
		AuthRateLimit: handler.RateLimitConfig{
			RequestsPerWindow: cfg.AuthRateLimitRequests,
			Window:            cfg.AuthRateLimitWindow,
			Burst:             cfg.AuthRateLimitBurst,
		},
		TrustedProxies: cfg.TrustedProxies,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

func newMailer(cfg config.Config, logger *slog.Logger) (service.Mailer, error) {
	mailCfg := notify.Config{
		From:            cfg.FromEmail,
		FrontendURL:     cfg.FrontendURL,
		VerificationTTL: cfg.VerificationTokenTTL,
		ResetTTL:        cfg.ResetTokenTTL,
	}

	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY is not set, emails will only be logged")
		return notify.NewLogMailer(mailCfg, cfg.IsDevelopment())
	}
	return notify.NewResendMailer(cfg.ResendAPIKey, mailCfg)
}
