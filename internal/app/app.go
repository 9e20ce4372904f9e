// Package app assembles the course library from configuration. Both the HTTP server and the
// command line client run on the same assembly.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/catalog"
	"github.com/and161185/course-keeper/internal/config"
	"github.com/and161185/course-keeper/internal/limiter"
	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/migrate"
	"github.com/and161185/course-keeper/internal/remote"
	"github.com/and161185/course-keeper/internal/remote/postgres"
	httpserver "github.com/and161185/course-keeper/internal/server/http"
	"github.com/and161185/course-keeper/internal/service"
	"github.com/and161185/course-keeper/internal/store"
)

// Options select the pieces of an App.
type Options struct {
	Medium store.Medium

	// DatabaseURL enables the remote data service; empty runs local-only.
	DatabaseURL string
	// Migrate applies the remote schema before use.
	Migrate bool
	Remote  remote.Options

	CatalogFile string
	Auth        service.AuthOptions

	SigninMaxFails int
	SigninWindow   time.Duration
	SigninBlock    time.Duration

	ReferralPoll time.Duration

	// Registerer receives the collectors; nil leaves them unregistered.
	Registerer prometheus.Registerer
	Log        *zap.Logger
}

// App is a fully wired course library.
type App struct {
	Store      *store.Store
	Guard      *remote.Guard
	Metrics    *metrics.Metrics
	Catalog    *catalog.Catalog
	Auth       service.AuthService
	Purchases  service.PurchaseService
	Referrals  service.ReferralService
	Watcher    service.ReferralWatcher
	Carts      service.CartService
	Engagement service.EngagementService
	Activity   *service.ActivityLog
	Roster     *service.Roster
	Log        *zap.Logger

	closers []func()
}

// FromConfig maps process configuration onto Options. The medium is opened separately.
func FromConfig(cfg *config.Config) Options {
	return Options{
		DatabaseURL: cfg.DatabaseURL,
		Migrate:     true,
		Remote: remote.Options{
			ProbeTimeout: cfg.RemoteProbeTimeout,
			CallTimeout:  cfg.RemoteCallTimeout,
		},
		CatalogFile: cfg.CatalogFile,
		Auth: service.AuthOptions{
			SignKey:       []byte(cfg.JWTKey),
			SessionTTL:    cfg.SessionTTL,
			AdminUsername: cfg.AdminUsername,
			AdminPassword: cfg.AdminPassword,
			UXDelay:       cfg.UXDelay,
		},
		SigninMaxFails: cfg.SigninMaxFails,
		SigninWindow:   cfg.SigninWindow,
		SigninBlock:    cfg.SigninBlock,
		ReferralPoll:   cfg.ReferralPoll,
	}
}

// OpenMedium opens the configured local store backend. The returned func releases it.
func OpenMedium(ctx context.Context, cfg *config.Config) (store.Medium, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemoryMedium(), func() {}, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return store.NewRedisMedium(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil
	default:
		m, err := store.NewFileMedium(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}
}

// New wires every service over opts.Medium.
func New(ctx context.Context, opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Medium == nil {
		opts.Medium = store.NewMemoryMedium()
	}
	if opts.SigninMaxFails <= 0 {
		opts.SigninMaxFails = 5
	}
	if opts.SigninWindow <= 0 {
		opts.SigninWindow = 15 * time.Minute
	}
	if opts.SigninBlock <= 0 {
		opts.SigninBlock = 15 * time.Minute
	}
	if opts.ReferralPoll <= 0 {
		opts.ReferralPoll = 2 * time.Second
	}

	a := &App{Log: log, Metrics: metrics.New(opts.Registerer)}
	a.Store = store.New(opts.Medium, log)

	var err error
	if opts.CatalogFile != "" {
		a.Catalog, err = catalog.Load(opts.CatalogFile)
	} else {
		a.Catalog, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	var r remote.Remote
	if opts.DatabaseURL != "" {
		if opts.Migrate {
			// An unreachable remote at start is tolerated; the guard falls back per call.
			if _, err := migrate.Up(ctx, opts.DatabaseURL, log); err != nil {
				log.Warn("remote migrations skipped", zap.Error(err))
			}
		}
		db, err := postgres.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("remote pool: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		r = db
	}
	a.Guard = remote.NewGuard(r, opts.Remote, log, a.Metrics)

	a.Roster = service.NewRoster(a.Store)
	a.Activity = service.NewActivityLog(a.Store, log, a.Metrics)
	refs := service.NewReferralService(a.Store, log, a.Metrics)
	a.Referrals = refs
	a.Watcher = service.NewPollingWatcher(refs, a.Store, opts.ReferralPoll, log, a.Metrics)

	lim := limiter.NewStore(a.Store, opts.SigninWindow, opts.SigninMaxFails, opts.SigninBlock)
	a.Auth = service.NewAuthService(a.Store, a.Guard, lim, refs, a.Roster, a.Activity, opts.Auth, log)

	rec := service.NewReconciler(a.Store, a.Guard, log, a.Metrics)
	a.Purchases = service.NewPurchaseService(rec, a.Store, a.Roster, log, a.Metrics)
	a.Carts = service.NewCartService(a.Store, a.Activity, log)
	a.Engagement = service.NewEngagementService(a.Store, log)
	return a, nil
}

// HTTPDeps exposes the app to the HTTP server.
func (a *App) HTTPDeps(gatherer prometheus.Gatherer, corsOrigins []string) httpserver.Deps {
	return httpserver.Deps{
		Auth:        a.Auth,
		Purchases:   a.Purchases,
		Referrals:   a.Referrals,
		Watcher:     a.Watcher,
		Carts:       a.Carts,
		Engagement:  a.Engagement,
		Activity:    a.Activity,
		Roster:      a.Roster,
		Catalog:     a.Catalog,
		Guard:       a.Guard,
		Metrics:     a.Metrics,
		Gatherer:    gatherer,
		Log:         a.Log,
		CORSOrigins: corsOrigins,
	}
}

// Close releases the remote pool.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
