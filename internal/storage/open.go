package storage

import (
	"context"
	"fmt"

	"github.com/kalambet/ticketkb/internal/kb"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string // memory, sqlite or postgres
	DataDir     string
	PostgresDSN string
}

// Open builds the store named by cfg.Backend. It is called once at startup
// and the result is injected everywhere it is needed.
func Open(ctx context.Context, cfg Config) (kb.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(cfg.DataDir)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
