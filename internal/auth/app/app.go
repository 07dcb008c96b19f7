package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpapi "github.com/core-miniproject/stay/internal/auth/http"
	"github.com/core-miniproject/stay/internal/auth/service"
	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/core-miniproject/stay/internal/auth/store/drivers/memory"
	"github.com/core-miniproject/stay/internal/auth/store/drivers/postgres"
	redisstore "github.com/core-miniproject/stay/internal/auth/store/drivers/redis"
	"github.com/core-miniproject/stay/internal/auth/store/drivers/sqlite"
	"github.com/core-miniproject/stay/pkg/cryptox"
	"github.com/core-miniproject/stay/pkg/jwtx"
	"github.com/core-miniproject/stay/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	sessions store.Sessions
	closers  []func() error
	registry *prometheus.Registry

	lifecycle  sync.Mutex
	released   bool
	releaseErr error

	// Services
	sessionService      *service.SessionService
	memberService       *service.MemberService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

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

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSessions(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run serves until SIGINT or SIGTERM, then shuts down within
// ShutdownGracePeriod.
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !app.startHousekeeping(ctx) {
		return nil // already shut down
	}

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"database", app.cfg.DatabaseDriver,
		"sessions", app.cfg.SessionStore,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		// Closed by Shutdown or by a failure; either way the stores go.
		releaseErr := app.release()
		if errors.Is(err, http.ErrServerClosed) {
			return releaseErr
		}
		return errors.Join(fmt.Errorf("server failed: %w", err), releaseErr)
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", slogx.Err(err))
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", slogx.Err(err))
		}
	}

	if err := app.release(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) startHousekeeping(ctx context.Context) bool {
	app.lifecycle.Lock()
	defer app.lifecycle.Unlock()
	if app.released {
		return false
	}
	app.housekeepingService.Start(ctx)
	return true
}

// release stops housekeeping and closes the stores exactly once, whichever
// of Run and Shutdown gets there first.
func (app *Application) release() error {
	app.lifecycle.Lock()
	defer app.lifecycle.Unlock()
	if !app.released {
		app.released = true
		app.housekeepingService.Stop()
		app.releaseErr = app.closeStores()
	}
	return app.releaseErr
}

func (app *Application) closeStores() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("error closing store", slogx.Err(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the member database and applies migrations
func (app *Application) initDatabase() error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL)
	default:
		db, err = sqlite.NewStore(app.cfg.DatabaseFile)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initSessions picks where refresh records live
func (app *Application) initSessions() error {
	switch app.cfg.SessionStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		sessions := redisstore.NewSessions(rdb, app.cfg.RedisPrefix)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sessions.Ping(ctx); err != nil {
			_ = sessions.Close()
			return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
		}

		app.sessions = sessions
		app.closers = append(app.closers, sessions.Close)
	case "memory":
		app.logger.Warn("sessions are held in memory and will not survive a restart")
		app.sessions = memory.NewSessions()
	default:
		app.sessions = app.db.Sessions()
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.sessionService = service.NewSessionService(
		jwtx.NewCodec(app.cfg.Issuer),
		app.sessions,
		app.cfg.AccessTokenTTL,
		app.cfg.RefreshTokenTTL,
	)
	app.sessionService.Metrics = service.NewSessionMetrics(app.registry)

	app.memberService = &service.MemberService{
		Members:  app.db.Members(),
		Sessions: app.sessionService,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.cfg.RequestTimeout, app.logger)

	router.SessionService = app.sessionService
	router.MemberService = app.memberService
	router.Registry = app.registry
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
