package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "memory", s.Driver)
	require.NoError(t, s.Ping(context.Background()))

	id, err := s.Players.RegisterNewPlayer(context.Background(), "A1", "")
	require.NoError(t, err)
	p, err := s.Reader.GetPlayer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "A1", p.EpicAccountID)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"})
	require.Error(t, err)
}
