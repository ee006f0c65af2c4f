package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/internal/session/service"
	"github.com/darceymckelvey/codestrata-auth/internal/session/store"
	"github.com/darceymckelvey/codestrata-auth/internal/session/store/cache"
	"github.com/darceymckelvey/codestrata-auth/pkg/authsdk"
	"github.com/darceymckelvey/codestrata-auth/pkg/cryptox"
	"github.com/darceymckelvey/codestrata-auth/pkg/jwtx"
	"github.com/darceymckelvey/codestrata-auth/pkg/slogx"
)

// BuildVersion is stamped at build time via
// -ldflags "-X github.com/darceymckelvey/codestrata-auth/internal/session/app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application wires the session core together: token store tiers, offline
// cache, backend client, refresh coordinator, session manager and watchdog.
type Application struct {
	cfg    Config
	logger *slog.Logger

	client *authsdk.Client

	store    *store.Store
	boltTier *store.BoltTier
	cache    *cache.Cache

	manager  *service.Manager
	coord    *service.Coordinator
	watchdog *service.Watchdog
	diag     *service.Diagnostics
}

// New builds an Application from config. Tier and cache failures are not
// fatal: the session core runs degraded (memory-only, cacheless) rather
// than refusing to start.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "codestrata-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
	}

	if err := os.MkdirAll(cfg.StorageDir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	app.initStore()
	app.initCache()
	app.initServices()

	return app, nil
}

// initStore assembles the token store's tier cascade: short-lived file,
// sealed durable bolt database, cookie-record mirror. A tier that cannot be
// opened is skipped; the store itself handles runtime tier loss.
func (app *Application) initStore() {
	log := slogx.Component(app.logger, "store")

	fileTier := store.NewFileTier(app.cfg.StorageDir)
	cookieTier := store.NewCookieTier(app.cfg.StorageDir, app.cfg.CookieTTL)

	tiers := []store.Tier{fileTier}

	boltTier, err := store.NewBoltTier(filepath.Join(app.cfg.StorageDir, "tokens.db"))
	if err != nil {
		log.Warn("durable token tier unavailable, continuing without it", "error", err)
	} else {
		app.boltTier = boltTier
		tiers = append(tiers, boltTier)
	}
	tiers = append(tiers, cookieTier)

	var durable store.Tier = fileTier
	if app.boltTier != nil {
		durable = app.boltTier
	}
	app.store = store.New(log, durable, tiers...)
}

func (app *Application) initCache() {
	if app.cfg.DisableCache {
		return
	}

	ca, err := cache.Open(app.cfg.CacheFile)
	if err != nil {
		app.logger.Warn("offline cache unavailable, degraded mode disabled", "error", err)
		return
	}
	app.cache = ca
}

func (app *Application) initServices() {
	app.client = authsdk.NewClient(app.cfg.APIBaseURL, slogx.Component(app.logger, "authsdk"))
	app.client.RequestTimeout = app.cfg.RequestTimeout

	mode := jwtx.Strict
	if app.cfg.PermissiveValidation {
		mode = jwtx.Permissive
	}
	validator := jwtx.NewValidator(mode, slogx.Component(app.logger, "validator"))

	app.coord = service.NewCoordinator(slogx.Component(app.logger, "refresh"), app.client, app.store)
	app.coord.WaitTimeout = app.cfg.WaitTimeout
	app.coord.MaxAttempts = app.cfg.MaxRefreshAttempts

	app.manager = service.NewManager(
		slogx.Component(app.logger, "session"),
		app.client,
		app.store,
		app.cache,
		validator,
		app.coord,
	)
	app.manager.WaitTimeout = app.cfg.WaitTimeout

	app.watchdog = service.NewWatchdog(slogx.Component(app.logger, "watchdog"))
	app.watchdog.IdleTimeout = app.cfg.IdleTimeout
	app.watchdog.RefreshMargin = app.cfg.RefreshMargin
	app.watchdog.WarnMargin = app.cfg.WarnMargin
	app.watchdog.OnIdle = func(reason domain.Reason) {
		app.manager.Logout(context.Background(), reason)
	}
	app.watchdog.OnProactiveRefresh = func() {
		if err := app.manager.Refresh(context.Background()); err != nil {
			app.logger.Warn("proactive refresh failed", "error", err)
		}
	}
	app.watchdog.OnExpiryWarning = func(remaining time.Duration) {
		app.logger.Warn("session expiring soon", "remaining", remaining.Round(time.Second))
	}

	app.manager.AttachWatchdog(app.watchdog)
	app.watchdog.Start()

	app.diag = service.NewDiagnostics(app.manager)
}

// Manager exposes the session state machine.
func (app *Application) Manager() *service.Manager { return app.manager }

// Watchdog exposes the session timer, for consumers that manage their own
// activity signals.
func (app *Application) Watchdog() *service.Watchdog { return app.watchdog }

// Touch records user activity for the idle watch. Embedding consumers call
// this on every meaningful interaction.
func (app *Application) Touch() { app.watchdog.Touch() }

// Diagnostics exposes the troubleshooting surface.
func (app *Application) Diagnostics() *service.Diagnostics { return app.diag }

// Store exposes the token store, mainly for status reporting.
func (app *Application) Store() *store.Store { return app.store }

// Logger returns the application root logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Close releases timers and storage handles. Safe to call once at exit.
func (app *Application) Close() error {
	app.watchdog.Stop()

	var firstErr error
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			firstErr = err
		}
	}
	if app.boltTier != nil {
		if err := app.boltTier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
