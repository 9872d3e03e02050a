package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	migrations "github.com/dropDatabas3/epicauth/migrations/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ pool *pgxpool.Pool }

// Options tunes the pool. Zero values keep the pgxpool defaults.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(opts.MaxOpenConns)
	}
	// MaxIdleConns maps to MinConns in pgxpool
	if opts.MaxIdleConns > 0 {
		pcfg.MinConns = int32(opts.MaxIdleConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close is idempotent.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies every embedded migration in lexical order. The files are
// written to be re-runnable.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for i, name := range names {
		b, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return i, err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return i, fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return len(names), nil
}
