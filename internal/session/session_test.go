package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dropDatabas3/epicauth/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_BindCheckClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(cache.NewMemory(""), Config{})

	h := s.Open("")
	ok, err := h.Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, h.Clear(ctx), "clearing no session is a no-op")

	require.NoError(t, h.Bind(ctx, "player-1"))
	sid := h.Issued()
	require.NotEmpty(t, sid)

	// a later request carrying the cookie
	h2 := s.Open(sid)
	ok, err = h2.Check(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	pid, err := h2.PlayerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "player-1", pid)

	require.NoError(t, h2.Clear(ctx))
	ok, err = s.Open(sid).Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandle_BindRotatesSession(t *testing.T) {
	ctx := context.Background()
	s := NewStore(cache.NewMemory(""), Config{})

	first := s.Open("")
	require.NoError(t, first.Bind(ctx, "p1"))
	old := first.Issued()

	again := s.Open(old)
	require.NoError(t, again.Bind(ctx, "p1"))
	assert.NotEqual(t, old, again.Issued())

	ok, err := s.Open(old).Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandle_RawIDNotStored(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c, err := cache.New(ctx, cache.Config{Kind: "redis", Addr: mr.Addr(), Prefix: "epicauth"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	s := NewStore(c, Config{TTL: time.Minute})

	h := s.Open("")
	require.NoError(t, h.Bind(ctx, "p1"))
	assert.False(t, mr.Exists("epicauth:sid:"+h.Issued()))
	assert.Len(t, mr.Keys(), 1)

	mr.FastForward(2 * time.Minute)
	ok, err := s.Open(h.Issued()).Check(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Cookies(t *testing.T) {
	s := NewStore(cache.NewMemory(""), Config{CookieName: "player_sid", SameSite: "Strict", Secure: true, TTL: time.Hour})

	ck := s.Cookie("abc")
	assert.Equal(t, "player_sid", ck.Name)
	assert.Equal(t, "abc", ck.Value)
	assert.Equal(t, 3600, ck.MaxAge)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)

	del := s.DeletionCookie()
	assert.Equal(t, -1, del.MaxAge)
	assert.Empty(t, del.Value)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "player_sid", Value: "xyz"})
	assert.Equal(t, "xyz", s.FromRequest(r).id)
	assert.Equal(t, "", s.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil)).id)
}
