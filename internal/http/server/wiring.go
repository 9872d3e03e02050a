// Package server arma el grafo de dependencias del servicio a partir de la config.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/epicauth/internal/cache"
	"github.com/dropDatabas3/epicauth/internal/config"
	"github.com/dropDatabas3/epicauth/internal/http/controllers"
	"github.com/dropDatabas3/epicauth/internal/http/controllers/auth"
	"github.com/dropDatabas3/epicauth/internal/http/controllers/health"
	"github.com/dropDatabas3/epicauth/internal/http/router"
	"github.com/dropDatabas3/epicauth/internal/jwks"
	"github.com/dropDatabas3/epicauth/internal/jwt"
	"github.com/dropDatabas3/epicauth/internal/login"
	"github.com/dropDatabas3/epicauth/internal/metrics"
	"github.com/dropDatabas3/epicauth/internal/observability/logger"
	"github.com/dropDatabas3/epicauth/internal/rate"
	"github.com/dropDatabas3/epicauth/internal/session"
	"github.com/dropDatabas3/epicauth/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// App es el resultado del wiring: el handler raíz y lo que hay que cerrar.
type App struct {
	Handler     http.Handler
	Login       *login.Service
	Sessions    *session.Store
	AuthKeys    *jwks.Cache
	ConnectKeys *jwks.Cache
	Stores      *store.Stores
	Cache       cache.Client

	closers []func() error
}

// Options overrides pieces of the wiring, mostly for tests.
type Options struct {
	Version  string
	Registry prometheus.Registerer
	Fetcher  jwks.Fetcher
}

// Build crea stores, cache, key caches, verifiers, el login y el router.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := logger.L().With(logger.Component("wiring"))
	app := &App{}

	if err := metrics.Register(opts.Registry); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	// Storage
	var scfg store.Config
	scfg.Driver = cfg.Storage.Driver
	scfg.DSN = cfg.Storage.DSN
	scfg.Postgres.MaxOpenConns = cfg.Storage.Postgres.MaxOpenConns
	scfg.Postgres.MaxIdleConns = cfg.Storage.Postgres.MaxIdleConns
	scfg.Postgres.Migrate = cfg.Storage.Postgres.Migrate
	stores, err := store.Open(ctx, scfg)
	if err != nil {
		return nil, err
	}
	app.Stores = stores
	app.closers = append(app.closers, stores.Close)

	// Cache + rate limiter
	var limiter rate.Limiter
	loginWindow := config.Duration(cfg.Rate.Login.Window)
	ccfg := cache.Config{
		Kind:     cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	}
	if ccfg.Kind == "redis" {
		// one pool for sessions and the limiter; closed with the cache
		conn, err := cache.Dial(ctx, ccfg)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		ccfg.Conn = conn
		if cfg.Rate.Enabled {
			limiter = rate.NewRedisLimiter(conn, ccfg.Prefix+":rl:", cfg.Rate.Login.Limit, loginWindow)
		}
	} else if cfg.Rate.Enabled {
		limiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, loginWindow)
	}
	c, err := cache.New(ctx, ccfg)
	if err != nil {
		if ccfg.Conn != nil {
			_ = ccfg.Conn.Close()
		}
		_ = app.Close()
		return nil, err
	}
	app.Cache = c
	app.closers = append(app.closers, app.Cache.Close)

	// Key caches + verifiers
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = jwks.NewHTTPFetcher(config.Duration(cfg.Epic.FetchTimeout))
	}
	ttl := config.Duration(cfg.Epic.JWKSTTL)
	app.AuthKeys = jwks.New(cfg.Epic.AuthJWKSURL, jwks.WithSource("auth"), jwks.WithTTL(ttl), jwks.WithFetcher(fetcher))
	app.ConnectKeys = jwks.New(cfg.Epic.ConnectJWKSURL, jwks.WithSource("connect"), jwks.WithTTL(ttl), jwks.WithFetcher(fetcher))

	leeway := jwt.WithLeeway(config.Duration(cfg.Epic.ClockSkew))
	app.Login = login.NewService(login.Deps{
		AuthVerifier:    jwt.NewVerifier("auth", app.AuthKeys, leeway),
		ConnectVerifier: jwt.NewVerifier("connect", app.ConnectKeys, leeway),
		Players:         stores.Players,
	})

	app.Sessions = session.NewStore(app.Cache, session.Config{
		CookieName: cfg.Session.CookieName,
		Domain:     cfg.Session.Domain,
		SameSite:   cfg.Session.SameSite,
		Secure:     cfg.Session.Secure,
		TTL:        config.Duration(cfg.Session.TTL),
	})

	ctrls := controllers.New(controllers.Deps{
		Auth: auth.Deps{
			Login:    app.Login,
			Sessions: app.Sessions,
			Players:  stores.Reader,
		},
		Health: health.Deps{
			Version: opts.Version,
			Checks: map[string]health.Check{
				"cache":   app.Cache.Ping,
				"storage": stores.Ping,
			},
			KeyStores: map[string]*jwks.Cache{
				"auth":    app.AuthKeys,
				"connect": app.ConnectKeys,
			},
		},
	})

	app.Handler = router.New(router.Deps{
		Controllers:  ctrls,
		LoginLimiter: limiter,
		Metrics:      metrics.Handler(),
		TrustProxy:   cfg.Server.TrustProxy,
	})

	log.Info("service wired",
		logger.String("storage", stores.Driver),
		logger.String("cache", cfg.Cache.Kind),
		logger.Bool("rate_limit", limiter != nil),
		logger.URL(cfg.Epic.AuthJWKSURL),
		logger.String("connect_url", cfg.Epic.ConnectJWKSURL),
	)
	return app, nil
}

// Warm downloads both key sets. Failures are logged; the caches retry on the
// next verification.
func (a *App) Warm(ctx context.Context) {
	for _, ks := range []*jwks.Cache{a.AuthKeys, a.ConnectKeys} {
		if err := ks.Prepare(ctx); err != nil {
			logger.From(ctx).Warn("key store warm-up failed", logger.URL(ks.URL()), logger.Err(err))
		}
	}
}

// Close libera recursos en orden inverso.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
