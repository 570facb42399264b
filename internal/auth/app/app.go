package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/http"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/service"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store/drivers/sqlite"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/cryptox"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/jwtx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/mailx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/slogx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/ttlstore"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db          store.Store
	redisClient *redis.Client // nil unless Redis cooldowns are configured

	// Services
	authService         *service.AuthService
	resetService        *service.PasswordResetService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Pepper for password hashing, master key for TOTP secret encryption.
	cryptox.SetPepperPath(app.cfg.PepperFile)
	if app.cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(app.cfg.MasterKeyPath)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	access, err := jwtx.NewHS256([]byte(app.cfg.AccessSecret), app.cfg.Issuer, app.cfg.Audience)
	if err != nil {
		return fmt.Errorf("access token signer: %w", err)
	}
	refresh, err := jwtx.NewHS256([]byte(app.cfg.RefreshSecret), app.cfg.Issuer, app.cfg.Audience)
	if err != nil {
		return fmt.Errorf("refresh token signer: %w", err)
	}

	// Session rows and refresh tokens must expire together.
	refreshTTL := app.cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}

	tokens := &service.TokenService{
		Access:          access,
		Refresh:         refresh,
		Issuer:          app.cfg.Issuer,
		Audience:        app.cfg.Audience,
		AccessTTL:       app.cfg.AccessTTL,
		RefreshTTL:      app.cfg.RefreshTTL,
		MFAChallengeTTL: app.cfg.MFAChallengeTTL,
	}

	email := app.emailSender()
	sms := mailx.Sender(mailx.NewLogSender(app.logger, "sms")) // no SMS gateway yet; codes go to the log
	cooldowns := app.cooldownStore()

	app.authService = &service.AuthService{
		Store: app.db,
		Credentials: &service.CredentialService{
			Store:            app.db,
			LockoutThreshold: app.cfg.LockoutThreshold,
			LockoutWindow:    app.cfg.LockoutWindow,
		},
		MFA: &service.MFAService{
			Store:  app.db,
			Issuer: app.cfg.Issuer,
		},
		OTP: &service.OTPService{
			Store:          app.db,
			Email:          email,
			SMS:            sms,
			Cooldowns:      cooldowns,
			TTL:            app.cfg.OTPTTL,
			MaxAttempts:    app.cfg.OTPMaxAttempts,
			ResendCooldown: app.cfg.OTPResendCooldown,
		},
		Tokens: tokens,
		Sessions: &service.SessionService{
			Store:      app.db,
			RefreshTTL: refreshTTL,
		},
	}

	app.resetService = &service.PasswordResetService{
		Store:           app.db,
		Mail:            email,
		Cooldowns:       cooldowns,
		ResetURL:        app.cfg.ResetURL,
		TokenTTL:        app.cfg.ResetTokenTTL,
		RequestCooldown: app.cfg.ResetRequestCooldown,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}

// emailSender prefers a real SMTP relay and falls back to logging, which is
// enough for local development.
func (app *Application) emailSender() mailx.Sender {
	if app.cfg.SMTPHost == "" {
		app.logger.Warn("SMTP_HOST not set, outbound mail will only be logged")
		return mailx.NewLogSender(app.logger, "email")
	}

	sender, err := mailx.NewSMTPSender(mailx.SMTPConfig{
		Host:     app.cfg.SMTPHost,
		Port:     app.cfg.SMTPPort,
		Username: app.cfg.SMTPUsername,
		Password: app.cfg.SMTPPassword,
		From:     app.cfg.SMTPFrom,
	})
	if err != nil {
		app.logger.Error("invalid SMTP configuration, outbound mail will only be logged", "error", err)
		return mailx.NewLogSender(app.logger, "email")
	}
	return sender
}

// cooldownStore backs OTP and reset throttles with Redis when configured, so
// limits hold across replicas.
func (app *Application) cooldownStore() ttlstore.Store {
	if app.cfg.RedisAddr == "" {
		return ttlstore.NewMemory()
	}

	app.redisClient = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	app.logger.Info("using redis for send cooldowns", "addr", app.cfg.RedisAddr)
	return ttlstore.NewRedis(app.redisClient, "authd")
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.authService.Tokens.Access,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.Cookie = httpapi.CookieConfig{
		Path:   app.cfg.CookiePath,
		Secure: app.cfg.CookieSecure,
	}
	router.AuthService = app.authService
	router.ResetService = app.resetService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
