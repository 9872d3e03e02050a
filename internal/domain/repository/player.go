package repository

import (
	"context"
	"time"
)

// Player is the application-side record an Epic identity is bound to.
// Either identity id may be empty, but never both.
type Player struct {
	ID                string
	EpicAccountID     string
	EpicProductUserID string
	CreatedAt         time.Time
	LastLoginAt       time.Time
}

// PlayerRepository is the narrow lookup/create contract used by the login.
//
// FindPlayer and RegisterNewPlayer are not called atomically together: two
// logins of a brand-new identity can both miss in FindPlayer. Implementations
// must make RegisterNewPlayer converge on one record per identity (unique
// constraint plus re-read, or find-or-insert under a lock).
type PlayerRepository interface {
	// FindPlayer looks the player up by epicAccountID when it is set,
	// otherwise by epicProductUserID. It returns "" and no error when there
	// is no such player.
	FindPlayer(ctx context.Context, epicAccountID, epicProductUserID string) (string, error)

	// RegisterNewPlayer creates a player for the given ids and returns its id,
	// which must never be empty.
	RegisterNewPlayer(ctx context.Context, epicAccountID, epicProductUserID string) (string, error)

	// OnPlayerLoggedIn runs after the session is bound: it stores whichever
	// id the record was missing and stamps the last login time.
	OnPlayerLoggedIn(ctx context.Context, playerID, epicAccountID, epicProductUserID string) error
}

// PlayerReader exposes read access for diagnostics and the CLI.
type PlayerReader interface {
	GetPlayer(ctx context.Context, playerID string) (*Player, error)
}
