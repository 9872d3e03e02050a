// Package auth contiene los controllers de login con Epic.
package auth

import (
	"github.com/dropDatabas3/epicauth/internal/domain/repository"
	"github.com/dropDatabas3/epicauth/internal/session"
)

// Deps contiene las dependencias de los controllers auth.
type Deps struct {
	Login    LoginService
	Sessions *session.Store
	Players  repository.PlayerReader
}

// Controllers agrupa todos los controllers del dominio auth.
type Controllers struct {
	Epic *EpicController
}

func NewControllers(d Deps) *Controllers {
	return &Controllers{
		Epic: NewEpicController(d.Login, d.Sessions, d.Players),
	}
}
