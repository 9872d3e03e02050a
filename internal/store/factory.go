package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/epicauth/internal/domain/repository"
	"github.com/dropDatabas3/epicauth/internal/store/memory"
	"github.com/dropDatabas3/epicauth/internal/store/pg"
)

type Config struct {
	Driver   string
	DSN      string
	Postgres struct {
		MaxOpenConns, MaxIdleConns int
		Migrate                    bool
	}
}

// Stores bundles what the driver provides to the rest of the service.
type Stores struct {
	Driver  string
	Players repository.PlayerRepository
	Reader  repository.PlayerReader
	Ping    func(ctx context.Context) error
	Close   func() error
}

// Open connects the configured driver. For postgres it also applies the
// embedded migrations when cfg.Postgres.Migrate is set.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	switch d := strings.ToLower(cfg.Driver); d {
	case "", "memory":
		m := memory.New()
		return &Stores{
			Driver:  "memory",
			Players: m,
			Reader:  m,
			Ping:    func(context.Context) error { return nil },
			Close:   func() error { return nil },
		}, nil

	case "postgres", "pg", "postgresql":
		s, err := pg.New(ctx, cfg.DSN, pg.Options{
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		if cfg.Postgres.Migrate {
			if _, err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, fmt.Errorf("store: %w", err)
			}
		}
		return &Stores{
			Driver:  "postgres",
			Players: s,
			Reader:  s,
			Ping:    s.Ping,
			Close:   func() error { s.Close(); return nil },
		}, nil

	default:
		return nil, fmt.Errorf("store: unsupported driver: %s", cfg.Driver)
	}
}
