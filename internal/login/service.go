// Package login resolves Epic identity tokens to a player and binds the
// player to the caller's session.
package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/epicauth/internal/domain/repository"
	"github.com/dropDatabas3/epicauth/internal/metrics"
	"github.com/dropDatabas3/epicauth/internal/observability/logger"
	"github.com/dropDatabas3/epicauth/internal/session"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoIdentityProvided: neither token yielded a subject.
	ErrNoIdentityProvided = errors.New("login: no identity provided")

	// ErrCollaboratorContract: the player repository broke its contract,
	// e.g. registered a player without returning an id.
	ErrCollaboratorContract = errors.New("login: player repository contract violated")
)

// TokenVerifier resolves a token to its subject. An empty token, or a
// verified token without subject, yields "".
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type Request struct {
	AuthToken    string
	ConnectToken string
}

type Result struct {
	PlayerID string
}

type Deps struct {
	AuthVerifier    TokenVerifier
	ConnectVerifier TokenVerifier
	Players         repository.PlayerRepository
}

type Service struct {
	deps Deps
}

func NewService(d Deps) *Service {
	return &Service{deps: d}
}

// LoginOrRegister verifies the tokens, finds or creates the player, binds it
// to sess and runs the post-login hook. Nothing is bound unless every step
// before the bind succeeded.
func (s *Service) LoginOrRegister(ctx context.Context, sess session.Session, req Request) (Result, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("login"),
		logger.Op("LoginOrRegister"),
	)

	res, err := s.login(ctx, sess, req)
	metrics.Logins.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, ErrCollaboratorContract) {
			log.Error("login failed", logger.Err(err))
		} else {
			log.Debug("login rejected", logger.Err(err))
		}
		return Result{}, err
	}
	return res, nil
}

func (s *Service) login(ctx context.Context, sess session.Session, req Request) (Result, error) {
	log := logger.From(ctx).With(logger.Component("login"))

	if req.AuthToken == "" && req.ConnectToken == "" {
		return Result{}, ErrNoIdentityProvided
	}

	var accountID, productUserID string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sub, err := s.deps.AuthVerifier.Verify(gctx, req.AuthToken)
		if err != nil {
			return fmt.Errorf("auth_token: %w", err)
		}
		accountID = sub
		return nil
	})
	g.Go(func() error {
		sub, err := s.deps.ConnectVerifier.Verify(gctx, req.ConnectToken)
		if err != nil {
			return fmt.Errorf("connect_token: %w", err)
		}
		productUserID = sub
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if req.AuthToken != "" && accountID == "" {
		log.Error("token is missing the sub claim", logger.String("token", "auth_token"))
	}
	if req.ConnectToken != "" && productUserID == "" {
		log.Error("token is missing the sub claim", logger.String("token", "connect_token"))
	}
	if accountID == "" && productUserID == "" {
		return Result{}, ErrNoIdentityProvided
	}

	log = log.With(logger.EpicAccountID(accountID), logger.ProductUserID(productUserID))

	playerID, err := s.deps.Players.FindPlayer(ctx, accountID, productUserID)
	if err != nil {
		return Result{}, fmt.Errorf("find player: %w", err)
	}
	if playerID == "" {
		playerID, err = s.deps.Players.RegisterNewPlayer(ctx, accountID, productUserID)
		if err != nil {
			return Result{}, fmt.Errorf("register player: %w", err)
		}
		if playerID == "" {
			return Result{}, fmt.Errorf("%w: RegisterNewPlayer returned an empty id", ErrCollaboratorContract)
		}
		log.Info("player registered", logger.PlayerID(playerID))
	}

	if err := sess.Bind(ctx, playerID); err != nil {
		return Result{}, fmt.Errorf("bind session: %w", err)
	}

	if err := s.deps.Players.OnPlayerLoggedIn(ctx, playerID, accountID, productUserID); err != nil {
		log.Warn("post-login hook failed", logger.PlayerID(playerID), logger.Err(err))
	}

	log.Info("player logged in", logger.PlayerID(playerID))
	return Result{PlayerID: playerID}, nil
}

// Logout clears sess and reports whether a session was present. Store
// errors count as "no session".
func (s *Service) Logout(ctx context.Context, sess session.Session) bool {
	log := logger.From(ctx).With(logger.Component("login"), logger.Op("Logout"))

	ok, err := sess.Check(ctx)
	if err != nil {
		log.Warn("session check failed", logger.Err(err))
		return false
	}
	if !ok {
		return false
	}
	if err := sess.Clear(ctx); err != nil {
		log.Warn("session clear failed", logger.Err(err))
	}
	return true
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoIdentityProvided):
		return "no_identity"
	case errors.Is(err, ErrCollaboratorContract):
		return "contract_violation"
	default:
		return "rejected"
	}
}
