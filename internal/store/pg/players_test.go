package pg

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/dropDatabas3/epicauth/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to EPICAUTH_TEST_PG_DSN or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("EPICAUTH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("EPICAUTH_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn, Options{MaxOpenConns: 8})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	return s
}

func TestPlayers_FindRegisterLogin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := "acc-" + uuid.NewString()
	puid := "puid-" + uuid.NewString()

	id, err := s.FindPlayer(ctx, acc, puid)
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = s.RegisterNewPlayer(ctx, acc, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.FindPlayer(ctx, acc, "")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, s.OnPlayerLoggedIn(ctx, id, acc, puid))
	got, err = s.FindPlayer(ctx, "", puid)
	require.NoError(t, err)
	assert.Equal(t, id, got, "product user id is backfilled")

	p, err := s.GetPlayer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, acc, p.EpicAccountID)
	assert.Equal(t, puid, p.EpicProductUserID)
}

func TestPlayers_RegisterConverges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acc := "acc-" + uuid.NewString()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.RegisterNewPlayer(ctx, acc, "")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestPlayers_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetPlayer(ctx, uuid.NewString())
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.GetPlayer(ctx, "not-a-uuid")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, s.OnPlayerLoggedIn(ctx, uuid.NewString(), "a", ""), repository.ErrNotFound)
}
