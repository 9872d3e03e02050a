// Package health contiene el controller para health checks.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dropDatabas3/epicauth/internal/http/helpers"
	"github.com/dropDatabas3/epicauth/internal/jwks"
	"github.com/dropDatabas3/epicauth/internal/observability/logger"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

type Deps struct {
	Version string
	// Checks gate readiness (cache, storage).
	Checks map[string]Check
	// KeyStores are reported but never fail readiness: they load lazily.
	KeyStores map[string]*jwks.Cache
	Timeout   time.Duration
}

type keyStoreStatus struct {
	URL       string     `json:"url"`
	Keys      int        `json:"keys"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

type readyResponse struct {
	Status     string                    `json:"status"`
	Version    string                    `json:"version,omitempty"`
	Components map[string]string         `json:"components"`
	KeyStores  map[string]keyStoreStatus `json:"key_stores,omitempty"`
}

// HealthController maneja /healthz y /readyz.
type HealthController struct {
	deps Deps
}

func NewHealthController(d Deps) *HealthController {
	if d.Timeout <= 0 {
		d.Timeout = 2 * time.Second
	}
	return &HealthController{deps: d}
}

// Healthz maneja GET /healthz (liveness).
func (c *HealthController) Healthz(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.deps.Timeout)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	resp := readyResponse{
		Status:     "ready",
		Version:    c.deps.Version,
		Components: make(map[string]string, len(c.deps.Checks)),
	}

	names := make([]string, 0, len(c.deps.Checks))
	for name := range c.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.deps.Checks[name](ctx); err != nil {
			log.Warn("readiness check failed", logger.Component(name), logger.Err(err))
			resp.Components[name] = "down"
			resp.Status = "unavailable"
			continue
		}
		resp.Components[name] = "up"
	}

	if len(c.deps.KeyStores) > 0 {
		resp.KeyStores = make(map[string]keyStoreStatus, len(c.deps.KeyStores))
		for name, ks := range c.deps.KeyStores {
			snap := ks.Snapshot()
			st := keyStoreStatus{URL: ks.URL(), Keys: len(snap.Keys)}
			if !snap.FetchedAt.IsZero() {
				st.FetchedAt = &snap.FetchedAt
			}
			resp.KeyStores[name] = st
		}
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
