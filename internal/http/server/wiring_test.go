package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dropDatabas3/epicauth/internal/config"
	"github.com/dropDatabas3/epicauth/internal/jwks/jwkstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	app     *App
	auth    *jwkstest.Signer
	connect *jwkstest.Signer
	authSrv *jwkstest.Server
}

func newHarness(t *testing.T, env map[string]string) *harness {
	t.Helper()
	auth := jwkstest.NewSigner(t, "A-1")
	connect := jwkstest.NewSigner(t, "C-1")
	authSrv := jwkstest.NewServer(t, auth.JWK())
	connSrv := jwkstest.NewServer(t, connect.JWK())

	t.Setenv("EPIC_AUTH_JWKS_URL", authSrv.URL)
	t.Setenv("EPIC_CONNECT_JWKS_URL", connSrv.URL)
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load("")
	require.NoError(t, err)

	app, err := Build(context.Background(), cfg, Options{Version: "test", Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return &harness{app: app, auth: auth, connect: connect, authSrv: authSrv}
}

func (h *harness) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.app.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestEpicFlow_LoginMeLogout(t *testing.T) {
	h := newHarness(t, nil)
	body := map[string]any{
		"auth_token":    h.auth.Token(t, map[string]any{"sub": "acc-42"}),
		"connect_token": h.connect.Token(t, map[string]any{"sub": "puid-42"}),
	}

	rec := h.do(t, http.MethodPost, "/v1/auth/epic/login", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	playerID := decode(t, rec)["player_id"]
	require.NotEmpty(t, playerID)
	sid := sessionCookie(t, rec)
	assert.True(t, sid.HttpOnly)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	// same identity, same player
	rec = h.do(t, http.MethodPost, "/v1/auth/epic/login", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, playerID, decode(t, rec)["player_id"])

	rec = h.do(t, http.MethodGet, "/v1/auth/epic/me", nil, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)
	assert.Equal(t, playerID, me["player_id"])
	assert.Equal(t, "acc-42", me["epic_account_id"])
	assert.Equal(t, "puid-42", me["epic_product_user_id"])

	rec = h.do(t, http.MethodPost, "/v1/auth/epic/logout", nil, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["was_logged_in"])

	rec = h.do(t, http.MethodPost, "/v1/auth/epic/logout", nil, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["was_logged_in"])

	rec = h.do(t, http.MethodGet, "/v1/auth/epic/me", nil, sid)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, int64(1), h.authSrv.Hits(), "key set is cached across logins")
}

func TestEpicLogin_Errors(t *testing.T) {
	h := newHarness(t, nil)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"null tokens", map[string]any{"auth_token": nil, "connect_token": nil}, 400, "NO_IDENTITY_PROVIDED"},
		{"empty body", nil, 400, "NO_IDENTITY_PROVIDED"},
		{"malformed", map[string]any{"auth_token": "not-a-jwt"}, 400, "MALFORMED_TOKEN"},
		{"hs256", map[string]any{"auth_token": h.auth.TokenWithHeader(t,
			map[string]any{"alg": "HS256", "kid": "A-1"}, map[string]any{"sub": "x"})}, 401, "UNSUPPORTED_ALGORITHM"},
		{"unknown kid", map[string]any{"auth_token": jwkstest.NewSigner(t, "ZZZ").Token(t, map[string]any{"sub": "x"})}, 401, "UNKNOWN_KEY_ID"},
		{"expired", map[string]any{"auth_token": h.auth.Token(t, map[string]any{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()})}, 401, "TOKEN_EXPIRED"},
		{"no sub", map[string]any{"connect_token": h.connect.Token(t, map[string]any{"aud": "x"})}, 400, "NO_IDENTITY_PROVIDED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/v1/auth/epic/login", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode(t, rec)["code"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestEpicLogin_KeyStoreDown(t *testing.T) {
	h := newHarness(t, nil)
	h.authSrv.SetStatus(http.StatusBadGateway)

	rec := h.do(t, http.MethodPost, "/v1/auth/epic/login", map[string]any{
		"auth_token": h.auth.Token(t, map[string]any{"sub": "acc-1"}),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "KEY_STORE_UNAVAILABLE", decode(t, rec)["code"])
}

func TestEpicLogin_RateLimited(t *testing.T) {
	h := newHarness(t, map[string]string{"RATE_ENABLED": "true", "RATE_LOGIN_LIMIT": "2"})

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, h.do(t, http.MethodPost, "/v1/auth/epic/login", map[string]any{}).Code)
	}
	assert.Equal(t, []int{400, 400, 429}, codes)
}

func TestEpicLogin_RateLimitClientAddress(t *testing.T) {
	post := func(h *harness, xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/epic/login", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.app.Handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("untrusted proxy headers are ignored", func(t *testing.T) {
		h := newHarness(t, map[string]string{"RATE_ENABLED": "true", "RATE_LOGIN_LIMIT": "1"})
		assert.Equal(t, 400, post(h, "198.51.100.1"))
		assert.Equal(t, 429, post(h, "198.51.100.2"))
	})

	t.Run("trusted proxy", func(t *testing.T) {
		h := newHarness(t, map[string]string{"RATE_ENABLED": "true", "RATE_LOGIN_LIMIT": "1", "SERVER_TRUST_PROXY": "true"})
		assert.Equal(t, 400, post(h, "198.51.100.1"))
		assert.Equal(t, 400, post(h, "198.51.100.2"))
		assert.Equal(t, 429, post(h, "198.51.100.1"))
	})
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	h.app.Warm(context.Background())

	rec := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ready", body["status"])
	stores := body["key_stores"].(map[string]any)
	assert.EqualValues(t, 1, stores["auth"].(map[string]any)["keys"])

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuild_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newHarness(t, map[string]string{"CACHE_KIND": "redis", "REDIS_ADDR": mr.Addr()})

	rec := h.do(t, http.MethodPost, "/v1/auth/epic/login", map[string]any{
		"connect_token": h.connect.Token(t, map[string]any{"sub": "puid-9"}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, mr.Keys(), 1)

	rec = h.do(t, http.MethodGet, "/v1/auth/epic/me", nil, sessionCookie(t, rec))
	assert.Equal(t, http.StatusOK, rec.Code)
}
