package metadata

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/vectorstored/internal/config"
)

// New opens the metadata backend named by cfg.
func New(ctx context.Context, cfg config.MetadataConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "vectorstored.db"
		}
		return NewSQLStore(ctx, "sqlite", dsn)
	case "postgres":
		return NewSQLStore(ctx, "postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Backend)
	}
}
