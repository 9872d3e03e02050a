package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropDatabas3/epicauth/internal/domain/repository"
	dto "github.com/dropDatabas3/epicauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/epicauth/internal/http/errors"
	"github.com/dropDatabas3/epicauth/internal/http/helpers"
	"github.com/dropDatabas3/epicauth/internal/login"
	"github.com/dropDatabas3/epicauth/internal/observability/logger"
	"github.com/dropDatabas3/epicauth/internal/session"
)

// LoginService is what the controller needs from login.Service.
type LoginService interface {
	LoginOrRegister(ctx context.Context, sess session.Session, req login.Request) (login.Result, error)
	Logout(ctx context.Context, sess session.Session) bool
}

// EpicController maneja /v1/auth/epic/*.
type EpicController struct {
	service  LoginService
	sessions *session.Store
	players  repository.PlayerReader // optional, enriches /me
}

func NewEpicController(service LoginService, sessions *session.Store, players repository.PlayerReader) *EpicController {
	return &EpicController{service: service, sessions: sessions, players: players}
}

// Login maneja POST /v1/auth/epic/login
func (c *EpicController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("EpicController.Login"))

	var req dto.EpicLoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	sess := c.sessions.FromRequest(r)
	res, err := c.service.LoginOrRegister(ctx, sess, login.Request{
		AuthToken:    dto.Deref(req.AuthToken),
		ConnectToken: dto.Deref(req.ConnectToken),
	})
	if err != nil {
		appErr := httperrors.FromError(err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Error("epic login failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	http.SetCookie(w, c.sessions.Cookie(sess.Issued()))
	helpers.WriteJSON(w, http.StatusOK, dto.EpicLoginResponse{PlayerID: res.PlayerID})
}

// Logout maneja POST /v1/auth/epic/logout. It always succeeds.
func (c *EpicController) Logout(w http.ResponseWriter, r *http.Request) {
	was := c.service.Logout(r.Context(), c.sessions.FromRequest(r))

	http.SetCookie(w, c.sessions.DeletionCookie())
	helpers.WriteJSON(w, http.StatusOK, dto.EpicLogoutResponse{WasLoggedIn: was})
}

// Me maneja GET /v1/auth/epic/me
func (c *EpicController) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("EpicController.Me"))

	playerID, err := c.sessions.FromRequest(r).PlayerID(ctx)
	if err != nil {
		log.Error("session lookup failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if playerID == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	resp := dto.MeResponse{PlayerID: playerID}
	if c.players != nil {
		p, err := c.players.GetPlayer(ctx, playerID)
		switch {
		case err == nil:
			resp.EpicAccountID = p.EpicAccountID
			resp.EpicProductUserID = p.EpicProductUserID
			resp.LastLoginAt = &p.LastLoginAt
		case errors.Is(err, repository.ErrNotFound):
			log.Warn("session bound to unknown player", logger.PlayerID(playerID))
		default:
			log.Warn("player lookup failed", logger.PlayerID(playerID), logger.Err(err))
		}
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
