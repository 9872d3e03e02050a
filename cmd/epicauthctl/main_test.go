package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dropDatabas3/epicauth/internal/jwks/jwkstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyStores struct {
	auth, connect       *jwkstest.Signer
	authSrv, connectSrv *jwkstest.Server
}

func setupKeyStores(t *testing.T) *keyStores {
	t.Helper()
	ks := &keyStores{
		auth:    jwkstest.NewSigner(t, "A-1"),
		connect: jwkstest.NewSigner(t, "C-1"),
	}
	ks.authSrv = jwkstest.NewServer(t, ks.auth.JWK())
	ks.connectSrv = jwkstest.NewServer(t, ks.connect.JWK())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("EPIC_AUTH_JWKS_URL", ks.authSrv.URL)
	t.Setenv("EPIC_CONNECT_JWKS_URL", ks.connectSrv.URL)
	return ks
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

type verifyRow struct {
	Interface string `json:"interface"`
	Subject   string `json:"subject"`
	Error     string `json:"error"`
}

func TestVerify_BothTokensJSON(t *testing.T) {
	ks := setupKeyStores(t)

	out, err := run(t, "verify", "--out", "json",
		"--auth-token", ks.auth.Token(t, map[string]any{"sub": "acc-1"}),
		"--connect-token", ks.connect.Token(t, map[string]any{"sub": "puid-1"}),
	)
	require.NoError(t, err, out)

	var rows []verifyRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows), out)
	require.Len(t, rows, 2)
	assert.Equal(t, verifyRow{Interface: "auth", Subject: "acc-1"}, rows[0])
	assert.Equal(t, verifyRow{Interface: "connect", Subject: "puid-1"}, rows[1])
	assert.Equal(t, int64(1), ks.authSrv.Hits())
}

func TestVerify_RejectedTokenFails(t *testing.T) {
	ks := setupKeyStores(t)

	// signed with the connect key, so the auth key store has no such kid
	out, err := run(t, "verify", "--auth-token", ks.connect.Token(t, map[string]any{"sub": "x"}))
	require.Error(t, err)
	assert.Contains(t, out, "INVALID")
	assert.Contains(t, out, "unknown key id")

	expired := ks.auth.Token(t, map[string]any{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()})
	out, err = run(t, "verify", "--auth-token", expired)
	require.Error(t, err)
	assert.Contains(t, out, "expired")
}

func TestVerify_RequiresAToken(t *testing.T) {
	setupKeyStores(t)

	_, err := run(t, "verify")
	require.Error(t, err)
}

func TestJWKSFetch(t *testing.T) {
	ks := setupKeyStores(t)
	ks.connectSrv.SetETag(`"v1"`)

	out, err := run(t, "jwks", "fetch", "--source", "connect")
	require.NoError(t, err)
	assert.Contains(t, out, ks.connectSrv.URL)
	assert.Contains(t, out, "C-1")
	assert.Contains(t, out, `etag "\"v1\""`)

	_, err = run(t, "jwks", "fetch", "--source", "nope")
	require.Error(t, err)
}

func TestMigrateAndPlayer_MemoryDriver(t *testing.T) {
	setupKeyStores(t)

	_, err := run(t, "migrate")
	require.ErrorContains(t, err, "storage.driver=postgres")

	_, err = run(t, "player", "get", "no-such-player")
	require.Error(t, err)
}

func TestOutputFormatValidated(t *testing.T) {
	setupKeyStores(t)

	_, err := run(t, "verify", "--out", "yaml", "--auth-token", "x")
	require.ErrorContains(t, err, "--out")
}
