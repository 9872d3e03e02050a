package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/epicauth/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ repository.PlayerRepository = (*Store)(nil)
	_ repository.PlayerReader     = (*Store)(nil)
)

// nullIfEmpty returns nil for an empty string so the column stores NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) FindPlayer(ctx context.Context, epicAccountID, epicProductUserID string) (string, error) {
	var (
		q   string
		arg string
	)
	switch {
	case epicAccountID != "":
		q, arg = `SELECT id FROM player WHERE epic_account_id = $1`, epicAccountID
	case epicProductUserID != "":
		q, arg = `SELECT id FROM player WHERE epic_product_user_id = $1`, epicProductUserID
	default:
		return "", nil
	}

	var id string
	err := s.pool.QueryRow(ctx, q, arg).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find player: %w", err)
	}
	return id, nil
}

// RegisterNewPlayer inserts a player. When a unique constraint already holds
// one of the ids, the existing record is returned instead, preferring the
// account id match.
func (s *Store) RegisterNewPlayer(ctx context.Context, epicAccountID, epicProductUserID string) (string, error) {
	if epicAccountID == "" && epicProductUserID == "" {
		return "", repository.ErrInvalidInput
	}

	const q = `
		INSERT INTO player (id, epic_account_id, epic_product_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, q, uuid.NewString(), nullIfEmpty(epicAccountID), nullIfEmpty(epicProductUserID)).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		return s.existing(ctx, epicAccountID, epicProductUserID)
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return s.existing(ctx, epicAccountID, epicProductUserID)
		}
		return "", fmt.Errorf("register player: %w", err)
	}
}

func (s *Store) existing(ctx context.Context, epicAccountID, epicProductUserID string) (string, error) {
	const q = `
		SELECT id FROM player
		WHERE ($1::text IS NOT NULL AND epic_account_id = $1)
		   OR ($2::text IS NOT NULL AND epic_product_user_id = $2)
		ORDER BY (epic_account_id IS NOT DISTINCT FROM $1) DESC
		LIMIT 1`

	var id string
	err := s.pool.QueryRow(ctx, q, nullIfEmpty(epicAccountID), nullIfEmpty(epicProductUserID)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("register player: %w", repository.ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("register player: %w", err)
	}
	return id, nil
}

func (s *Store) OnPlayerLoggedIn(ctx context.Context, playerID, epicAccountID, epicProductUserID string) error {
	const q = `
		UPDATE player SET
			epic_account_id      = COALESCE(epic_account_id, $2),
			epic_product_user_id = COALESCE(epic_product_user_id, $3),
			last_login_at        = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, playerID, nullIfEmpty(epicAccountID), nullIfEmpty(epicProductUserID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("player %s: %w", playerID, repository.ErrConflict)
		}
		return fmt.Errorf("player logged in: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("player %s: %w", playerID, repository.ErrNotFound)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (*repository.Player, error) {
	const q = `
		SELECT id, epic_account_id, epic_product_user_id, created_at, last_login_at
		FROM player WHERE id = $1`

	if _, err := uuid.Parse(playerID); err != nil {
		return nil, repository.ErrNotFound
	}

	var (
		p        repository.Player
		acc, pid *string
	)
	err := s.pool.QueryRow(ctx, q, playerID).Scan(&p.ID, &acc, &pid, &p.CreatedAt, &p.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if acc != nil {
		p.EpicAccountID = *acc
	}
	if pid != nil {
		p.EpicProductUserID = *pid
	}
	return &p, nil
}
