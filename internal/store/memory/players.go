// Package memory keeps players in process memory, for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/epicauth/internal/domain/repository"
	"github.com/google/uuid"
)

var (
	_ repository.PlayerRepository = (*Store)(nil)
	_ repository.PlayerReader     = (*Store)(nil)
)

type Store struct {
	mu        sync.RWMutex
	players   map[string]*repository.Player
	byAccount map[string]string
	byProduct map[string]string
	now       func() time.Time
}

func New() *Store {
	return &Store{
		players:   make(map[string]*repository.Player),
		byAccount: make(map[string]string),
		byProduct: make(map[string]string),
		now:       time.Now,
	}
}

func (s *Store) FindPlayer(_ context.Context, epicAccountID, epicProductUserID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case epicAccountID != "":
		return s.byAccount[epicAccountID], nil
	case epicProductUserID != "":
		return s.byProduct[epicProductUserID], nil
	}
	return "", nil
}

// RegisterNewPlayer returns the player already holding either id, if any,
// otherwise it inserts a new one. Both steps run under the write lock.
func (s *Store) RegisterNewPlayer(_ context.Context, epicAccountID, epicProductUserID string) (string, error) {
	if epicAccountID == "" && epicProductUserID == "" {
		return "", repository.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAccount[epicAccountID]; ok && epicAccountID != "" {
		return id, nil
	}
	if id, ok := s.byProduct[epicProductUserID]; ok && epicProductUserID != "" {
		return id, nil
	}

	now := s.now().UTC()
	p := &repository.Player{
		ID:                uuid.NewString(),
		EpicAccountID:     epicAccountID,
		EpicProductUserID: epicProductUserID,
		CreatedAt:         now,
		LastLoginAt:       now,
	}
	s.players[p.ID] = p
	if epicAccountID != "" {
		s.byAccount[epicAccountID] = p.ID
	}
	if epicProductUserID != "" {
		s.byProduct[epicProductUserID] = p.ID
	}
	return p.ID, nil
}

func (s *Store) OnPlayerLoggedIn(_ context.Context, playerID, epicAccountID, epicProductUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, repository.ErrNotFound)
	}

	setAccount := p.EpicAccountID == "" && epicAccountID != ""
	setProduct := p.EpicProductUserID == "" && epicProductUserID != ""

	// both ids are checked before either is written
	if setAccount {
		if other, taken := s.byAccount[epicAccountID]; taken && other != playerID {
			return fmt.Errorf("player %s: account id held by %s: %w", playerID, other, repository.ErrConflict)
		}
	}
	if setProduct {
		if other, taken := s.byProduct[epicProductUserID]; taken && other != playerID {
			return fmt.Errorf("player %s: product user id held by %s: %w", playerID, other, repository.ErrConflict)
		}
	}

	if setAccount {
		p.EpicAccountID = epicAccountID
		s.byAccount[epicAccountID] = playerID
	}
	if setProduct {
		p.EpicProductUserID = epicProductUserID
		s.byProduct[epicProductUserID] = playerID
	}
	p.LastLoginAt = s.now().UTC()
	return nil
}

func (s *Store) GetPlayer(_ context.Context, playerID string) (*repository.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Len reports how many players are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}
