package login_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dropDatabas3/epicauth/internal/jwks"
	"github.com/dropDatabas3/epicauth/internal/jwks/jwkstest"
	"github.com/dropDatabas3/epicauth/internal/jwt"
	"github.com/dropDatabas3/epicauth/internal/login"
	"github.com/dropDatabas3/epicauth/internal/metrics"
	"github.com/dropDatabas3/epicauth/internal/store/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRepo wraps the memory store and counts calls.
type recordingRepo struct {
	*memory.Store
	mu        sync.Mutex
	registers int
	hookCalls []string
	emptyIDs  bool
	hookErr   error
	findErr   error
}

func (r *recordingRepo) FindPlayer(ctx context.Context, acc, puid string) (string, error) {
	if r.findErr != nil {
		return "", r.findErr
	}
	return r.Store.FindPlayer(ctx, acc, puid)
}

func (r *recordingRepo) RegisterNewPlayer(ctx context.Context, acc, puid string) (string, error) {
	r.mu.Lock()
	r.registers++
	r.mu.Unlock()
	if r.emptyIDs {
		return "", nil
	}
	return r.Store.RegisterNewPlayer(ctx, acc, puid)
}

func (r *recordingRepo) OnPlayerLoggedIn(ctx context.Context, id, acc, puid string) error {
	r.mu.Lock()
	r.hookCalls = append(r.hookCalls, id)
	r.mu.Unlock()
	if r.hookErr != nil {
		return r.hookErr
	}
	return r.Store.OnPlayerLoggedIn(ctx, id, acc, puid)
}

type fakeSession struct {
	bound    string
	bindErr  error
	checkErr error
	cleared  bool
}

func (s *fakeSession) Bind(_ context.Context, playerID string) error {
	if s.bindErr != nil {
		return s.bindErr
	}
	s.bound = playerID
	return nil
}

func (s *fakeSession) Check(context.Context) (bool, error) { return s.bound != "", s.checkErr }

func (s *fakeSession) Clear(context.Context) error {
	s.cleared = true
	s.bound = ""
	return nil
}

type fixture struct {
	auth, connect *jwkstest.Signer
	repo          *recordingRepo
	svc           *login.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auth := jwkstest.NewSigner(t, "AUTH1")
	connect := jwkstest.NewSigner(t, "CONN1")
	authSrv := jwkstest.NewServer(t, auth.JWK())
	connSrv := jwkstest.NewServer(t, connect.JWK())

	repo := &recordingRepo{Store: memory.New()}
	svc := login.NewService(login.Deps{
		AuthVerifier:    jwt.NewVerifier("auth", jwks.New(authSrv.URL, jwks.WithSource("auth"))),
		ConnectVerifier: jwt.NewVerifier("connect", jwks.New(connSrv.URL, jwks.WithSource("connect"))),
		Players:         repo,
	})
	return &fixture{auth: auth, connect: connect, repo: repo, svc: svc}
}

func TestLogin_NoTokens(t *testing.T) {
	f := newFixture(t)
	sess := &fakeSession{}

	_, err := f.svc.LoginOrRegister(context.Background(), sess, login.Request{})
	require.ErrorIs(t, err, login.ErrNoIdentityProvided)
	assert.Empty(t, sess.bound)
	assert.Zero(t, f.repo.registers)
}

func TestLogin_RegisterThenFind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := login.Request{
		AuthToken:    f.auth.Token(t, map[string]any{"sub": "acc-1"}),
		ConnectToken: f.connect.Token(t, map[string]any{"sub": "puid-1"}),
	}

	first := &fakeSession{}
	res, err := f.svc.LoginOrRegister(ctx, first, req)
	require.NoError(t, err)
	require.NotEmpty(t, res.PlayerID)
	assert.Equal(t, res.PlayerID, first.bound)
	assert.Equal(t, 1, f.repo.registers)
	assert.Equal(t, []string{res.PlayerID}, f.repo.hookCalls, "hook receives the registered id")

	second := &fakeSession{}
	again, err := f.svc.LoginOrRegister(ctx, second, req)
	require.NoError(t, err)
	assert.Equal(t, res.PlayerID, again.PlayerID)
	assert.Equal(t, 1, f.repo.registers, "existing player is not registered again")

	p, err := f.repo.GetPlayer(ctx, res.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", p.EpicAccountID)
	assert.Equal(t, "puid-1", p.EpicProductUserID)
}

func TestLogin_MissingSubFallsBackToOtherToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.LoginOrRegister(ctx, &fakeSession{}, login.Request{
		AuthToken:    f.auth.Token(t, map[string]any{"name": "no subject"}),
		ConnectToken: f.connect.Token(t, map[string]any{"sub": "puid-7"}),
	})
	require.NoError(t, err)

	id, err := f.repo.FindPlayer(ctx, "", "puid-7")
	require.NoError(t, err)
	assert.Equal(t, res.PlayerID, id)

	p, err := f.repo.GetPlayer(ctx, res.PlayerID)
	require.NoError(t, err)
	assert.Empty(t, p.EpicAccountID)
}

func TestLogin_MissingSubOnlyToken(t *testing.T) {
	f := newFixture(t)
	sess := &fakeSession{}

	_, err := f.svc.LoginOrRegister(context.Background(), sess, login.Request{
		AuthToken: f.auth.Token(t, map[string]any{"iss": "epic"}),
	})
	require.ErrorIs(t, err, login.ErrNoIdentityProvided)
	assert.Empty(t, sess.bound)
}

func TestLogin_VerificationFailureAborts(t *testing.T) {
	f := newFixture(t)
	sess := &fakeSession{}
	other := jwkstest.NewSigner(t, "AUTH1")

	_, err := f.svc.LoginOrRegister(context.Background(), sess, login.Request{
		AuthToken:    other.Token(t, map[string]any{"sub": "acc-1"}),
		ConnectToken: f.connect.Token(t, map[string]any{"sub": "puid-1"}),
	})
	require.ErrorIs(t, err, jwt.ErrSignatureInvalid)
	assert.Empty(t, sess.bound)
	assert.Zero(t, f.repo.registers)
	assert.Empty(t, f.repo.hookCalls)
}

func TestLogin_UnsupportedAlgorithm(t *testing.T) {
	f := newFixture(t)
	tok := f.connect.TokenWithHeader(t,
		map[string]any{"alg": "HS256", "kid": "CONN1"},
		map[string]any{"sub": "puid-1"})

	_, err := f.svc.LoginOrRegister(context.Background(), &fakeSession{}, login.Request{ConnectToken: tok})
	require.ErrorIs(t, err, jwt.ErrUnsupportedAlgorithm)
}

func TestLogin_EmptyRegisteredIDIsContractViolation(t *testing.T) {
	f := newFixture(t)
	f.repo.emptyIDs = true
	sess := &fakeSession{}

	_, err := f.svc.LoginOrRegister(context.Background(), sess, login.Request{
		AuthToken: f.auth.Token(t, map[string]any{"sub": "acc-1"}),
	})
	require.ErrorIs(t, err, login.ErrCollaboratorContract)
	assert.Empty(t, sess.bound)
}

func TestLogin_RepositoryErrorAborts(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("db down")
	f.repo.findErr = boom
	sess := &fakeSession{}

	_, err := f.svc.LoginOrRegister(context.Background(), sess, login.Request{
		AuthToken: f.auth.Token(t, map[string]any{"sub": "acc-1"}),
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, sess.bound)
}

func TestLogin_BindFailureAbortsBeforeHook(t *testing.T) {
	f := newFixture(t)
	sess := &fakeSession{bindErr: errors.New("cache down")}

	_, err := f.svc.LoginOrRegister(context.Background(), sess, login.Request{
		AuthToken: f.auth.Token(t, map[string]any{"sub": "acc-1"}),
	})
	require.Error(t, err)
	assert.Empty(t, f.repo.hookCalls)
}

func TestLogin_HookErrorIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.repo.hookErr = errors.New("hook failed")
	sess := &fakeSession{}

	res, err := f.svc.LoginOrRegister(context.Background(), sess, login.Request{
		AuthToken: f.auth.Token(t, map[string]any{"sub": "acc-1"}),
	})
	require.NoError(t, err)
	assert.Equal(t, res.PlayerID, sess.bound)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.svc.Logout(ctx, &fakeSession{}))

	sess := &fakeSession{bound: "p1"}
	assert.True(t, f.svc.Logout(ctx, sess))
	assert.True(t, sess.cleared)

	assert.False(t, f.svc.Logout(ctx, &fakeSession{bound: "p1", checkErr: errors.New("redis down")}))
}

func TestLogin_OutcomeMetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	count := func(result string) float64 { return testutil.ToFloat64(metrics.Logins.WithLabelValues(result)) }

	ok, noIdentity, contract := count("ok"), count("no_identity"), count("contract_violation")
	rejected := count("rejected")

	_, err := f.svc.LoginOrRegister(ctx, &fakeSession{}, login.Request{AuthToken: f.auth.Token(t, map[string]any{"sub": "acc-m"})})
	require.NoError(t, err)
	_, err = f.svc.LoginOrRegister(ctx, &fakeSession{}, login.Request{})
	require.Error(t, err)
	_, err = f.svc.LoginOrRegister(ctx, &fakeSession{}, login.Request{AuthToken: "not-a-jwt"})
	require.Error(t, err)
	f.repo.emptyIDs = true
	_, err = f.svc.LoginOrRegister(ctx, &fakeSession{}, login.Request{AuthToken: f.auth.Token(t, map[string]any{"sub": "acc-new"})})
	require.ErrorIs(t, err, login.ErrCollaboratorContract)

	assert.Equal(t, ok+1, count("ok"))
	assert.Equal(t, noIdentity+1, count("no_identity"))
	assert.Equal(t, rejected+1, count("rejected"))
	assert.Equal(t, contract+1, count("contract_violation"))
}
