// Package controllers agrupa todos los controllers HTTP.
//
// Flujo de inicialización (ver server/wiring.go):
//
//	services (login.Service, session.Store)
//	    -> controllers.New(Deps)
//	        -> router.New(Deps{Controllers: ...})
package controllers

import (
	"github.com/dropDatabas3/epicauth/internal/http/controllers/auth"
	"github.com/dropDatabas3/epicauth/internal/http/controllers/health"
)

type Deps struct {
	Auth   auth.Deps
	Health health.Deps
}

// Controllers agrupa los controllers de cada dominio.
type Controllers struct {
	Auth   *auth.Controllers
	Health *health.HealthController
}

func New(d Deps) *Controllers {
	return &Controllers{
		Auth:   auth.NewControllers(d.Auth),
		Health: health.NewHealthController(d.Health),
	}
}
