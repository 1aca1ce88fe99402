package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/trackr/internal/auth/http"
	"github.com/aussiebroadwan/trackr/internal/auth/notify"
	"github.com/aussiebroadwan/trackr/internal/auth/service"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/trackr/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/trackr/pkg/cryptox"
	"github.com/aussiebroadwan/trackr/pkg/jwtx"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	// Emailed links per username and window, for each of verification and
	// password recovery.
	throttleLimit  = 3
	throttleWindow = 15 * time.Minute
)

// migratingStore is a store that owns its schema.
type migratingStore interface {
	store.Store
	ApplyMigrations() error
}

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg       Config
	logger    *slog.Logger
	logCloser io.Closer
	clock     clockwork.Clock

	// Core dependencies
	db     migratingStore
	redis  *redis.Client
	issuer *jwtx.HS256Issuer
	hasher *cryptox.PasswordHasher

	// Services
	authService          *service.AuthenticationService
	authorizationService *service.AuthorizationService
	accountService       *service.AccountService
	rolesService         *service.RolesService
	bootstrapService     *service.BootstrapService
	housekeepingService  *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := slogx.New(slogx.Config{
		Service: "auth-service",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		cfg:       cfg,
		logger:    logger,
		logCloser: closer,
		clock:     clockwork.NewRealClock(),
	}

	if err := app.initCrypto(); err != nil {
		return nil, err
	}
	if err := app.initDatabase(context.Background()); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.bootstrap(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// initCrypto loads the pepper and the session signing secret.
func (app *Application) initCrypto() error {
	pepper, err := cryptox.LoadPepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.NewPasswordHasher(pepper)

	var secret []byte
	if app.cfg.JWTSecret != "" {
		secret, err = jwtx.DecodeSecret(app.cfg.JWTSecret)
		if err != nil {
			return fmt.Errorf("failed to decode AUTH_JWT_SECRET: %w", err)
		}
	} else {
		// Dev only; sessions do not survive a restart.
		secret = make([]byte, jwtx.MinSecretBytes)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate signing secret: %w", err)
		}
		app.logger.Warn("AUTH_JWT_SECRET not set, using a random secret for this process")
	}

	app.issuer, err = jwtx.NewHS256Issuer(secret, app.cfg.Issuer, app.cfg.TokenTTL, app.clock)
	if err != nil {
		return fmt.Errorf("failed to create session issuer: %w", err)
	}
	return nil
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  migratingStore
		err error
	)
	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL)
	default:
		db, err = sqlite.NewStore("file:" + app.cfg.DatabaseFile + "?_pragma=journal_mode(WAL)")
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// newThrottle shares counters through Redis when configured so every
// replica sees the same window.
func (app *Application) newThrottle() (service.Throttle, error) {
	if app.cfg.RedisURL == "" {
		return service.NewMemoryThrottle(throttleLimit, throttleWindow, app.clock), nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	app.redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := app.redis.Ping(ctx).Err(); err != nil {
		app.logger.Warn("redis unreachable at start-up, throttle will fail open until it recovers", "error", err)
	}
	return service.NewRedisThrottle(app.redis, "oob", throttleLimit, throttleWindow), nil
}

func (app *Application) newNotifier() (service.Notifier, error) {
	links := notify.Links{FrontendURL: app.cfg.FrontendURL}
	if app.cfg.SMTPHost == "" {
		app.logger.Warn("SMTP_HOST not set, emails will only be logged")
		return notify.LogSender{Links: links}, nil
	}
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     app.cfg.SMTPHost,
		Port:     app.cfg.SMTPPort,
		Username: app.cfg.SMTPUsername,
		Password: app.cfg.SMTPPassword,
		From:     app.cfg.SMTPFrom,
	}, links)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	throttle, err := app.newThrottle()
	if err != nil {
		return err
	}
	notifier, err := app.newNotifier()
	if err != nil {
		return err
	}

	app.authService = &service.AuthenticationService{
		Store:  app.db,
		Hasher: app.hasher,
		Issuer: app.issuer,
		Clock:  app.clock,
	}
	app.authorizationService = &service.AuthorizationService{Store: app.db}

	verification := service.NewVerificationTokens(app.db, app.clock, app.cfg.VerificationTTL)
	app.accountService = &service.AccountService{
		Store:        app.db,
		Hasher:       app.hasher,
		Auth:         app.authService,
		Verification: verification,
		Reset:        service.NewResetTokens(app.db, app.clock, app.cfg.ResetTTL),
		Notifier:     notifier,
		Throttle:     throttle,
		Clock:        app.clock,
	}
	app.rolesService = &service.RolesService{Store: app.db, Clock: app.clock}
	app.bootstrapService = &service.BootstrapService{Store: app.db, Hasher: app.hasher, Clock: app.clock}

	app.housekeepingService = service.NewHousekeepingService(
		verification,
		app.logger,
		app.clock,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

// bootstrap seeds permissions, the default roles and the superuser. It is
// a no-op for rows that already exist.
func (app *Application) bootstrap(ctx context.Context) error {
	if app.cfg.SuperuserEmail == "" {
		app.logger.Warn("AUTH_SUPERUSER_EMAIL not set, skipping bootstrap")
		return nil
	}

	res, err := app.bootstrapService.Bootstrap(slogx.WithContext(ctx, app.logger), domain.BootstrapData{
		SuperuserUsername:  app.cfg.SuperuserEmail,
		SuperuserPassword:  app.cfg.SuperuserPassword,
		SuperuserFirstName: app.cfg.SuperuserFirstName,
		SuperuserLastName:  app.cfg.SuperuserLastName,
	})
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	app.logger.Info("bootstrap complete",
		"permissions_created", res.PermissionsCreated,
		"roles_created", res.RolesCreated,
		"superuser_created", res.SuperuserCreated,
	)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.cfg.RateLimits, app.logger)

	// Wire services to router
	router.AuthService = app.authService
	router.AuthorizationService = app.authorizationService
	router.AccountService = app.accountService
	router.RolesService = app.rolesService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler exposes the routed handler, e.g. for httptest.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

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

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.close(); err != nil {
		return err
	}
	app.logger.Info("auth service stopped")
	return nil
}

// close releases the database, Redis and log file.
func (app *Application) close() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	if err := app.logCloser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
