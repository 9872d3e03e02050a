// Package router registra las rutas HTTP sobre chi.
package router

import (
	"net/http"

	"github.com/dropDatabas3/epicauth/internal/http/controllers"
	httperrors "github.com/dropDatabas3/epicauth/internal/http/errors"
	mw "github.com/dropDatabas3/epicauth/internal/http/middlewares"
	"github.com/dropDatabas3/epicauth/internal/rate"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	Controllers *controllers.Controllers
	// LoginLimiter is optional; nil disables rate limiting on login.
	LoginLimiter rate.Limiter
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

// New builds the root handler.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	if d.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithMetrics(),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	registerHealthRoutes(r, d)
	registerEpicRoutes(r, d)
	return r
}

// Sin logging para health checks (muy frecuentes).
func registerHealthRoutes(r chi.Router, d Deps) {
	h := d.Controllers.Health
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
}

func registerEpicRoutes(r chi.Router, d Deps) {
	c := d.Controllers.Auth.Epic

	r.Route("/v1/auth/epic", func(r chi.Router) {
		r.Use(
			mw.WithSecurityHeaders(),
			mw.WithNoStore(),
			mw.WithLogging(),
		)

		r.With(mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: d.LoginLimiter,
			KeyFunc: mw.IPPathRateKey,
		})).Post("/login", c.Login)
		r.Post("/logout", c.Logout)
		r.Get("/me", c.Me)
	})
}
