// Package session binds players to cookie sessions kept in the cache.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/epicauth/internal/cache"
	"github.com/dropDatabas3/epicauth/internal/observability/logger"
)

// Session is the per-request handle the login works against.
type Session interface {
	Bind(ctx context.Context, playerID string) error
	Check(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
}

type Config struct {
	CookieName string
	Domain     string
	SameSite   string // Lax | Strict | None
	Secure     bool
	TTL        time.Duration
}

// Store creates handles over a cache.Client.
type Store struct {
	cache cache.Client
	cfg   Config
}

func NewStore(c cache.Client, cfg Config) *Store {
	if cfg.CookieName == "" {
		cfg.CookieName = "sid"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Store{cache: c, cfg: cfg}
}

func (s *Store) CookieName() string { return s.cfg.CookieName }

// Open returns the handle for the session id carried by the request cookie.
// An empty id is a request without a session.
func (s *Store) Open(sessionID string) *Handle {
	return &Handle{store: s, id: sessionID}
}

// FromRequest opens the session named by r's cookie, if any.
func (s *Store) FromRequest(r *http.Request) *Handle {
	if ck, err := r.Cookie(s.cfg.CookieName); err == nil {
		return s.Open(ck.Value)
	}
	return s.Open("")
}

// newSessionID returns 32 random bytes, base64url without padding.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// key builds the cache key; the raw session id is never stored.
func key(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return "sid:" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// Handle is a Session bound to one request.
type Handle struct {
	store  *Store
	id     string
	issued string
}

var _ Session = (*Handle)(nil)

// Bind stores playerID under a fresh session id. A previous session carried
// by the request is dropped so ids are never reused across logins.
func (h *Handle) Bind(ctx context.Context, playerID string) error {
	if playerID == "" {
		return errors.New("session: empty player id")
	}
	sid, err := newSessionID()
	if err != nil {
		return err
	}
	if err := h.store.cache.Set(ctx, key(sid), playerID, h.store.cfg.TTL); err != nil {
		return err
	}
	if h.id != "" {
		if err := h.store.cache.Delete(ctx, key(h.id)); err != nil {
			logger.From(ctx).Debug("failed to drop previous session", logger.Component("session"), logger.Err(err))
		}
	}
	h.id, h.issued = sid, sid
	return nil
}

func (h *Handle) Check(ctx context.Context) (bool, error) {
	if h.id == "" {
		return false, nil
	}
	return h.store.cache.Exists(ctx, key(h.id))
}

func (h *Handle) Clear(ctx context.Context) error {
	if h.id == "" {
		return nil
	}
	if err := h.store.cache.Delete(ctx, key(h.id)); err != nil {
		return err
	}
	h.id = ""
	return nil
}

// PlayerID returns the bound player, or "" when there is no live session.
func (h *Handle) PlayerID(ctx context.Context) (string, error) {
	if h.id == "" {
		return "", nil
	}
	v, err := h.store.cache.Get(ctx, key(h.id))
	if cache.IsNotFound(err) {
		return "", nil
	}
	return v, err
}

// Issued returns the session id created by Bind, or "".
func (h *Handle) Issued() string { return h.issued }

// Cookie builds the Set-Cookie for a session id issued by Bind.
func (s *Store) Cookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   s.cfg.Domain,
		MaxAge:   int(s.cfg.TTL.Seconds()),
		Expires:  time.Now().Add(s.cfg.TTL),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: s.sameSite(),
	}
}

// DeletionCookie creates a cookie that expires immediately to clear the session cookie.
func (s *Store) DeletionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: s.sameSite(),
	}
}

func (s *Store) sameSite() http.SameSite {
	switch s.cfg.SameSite {
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
