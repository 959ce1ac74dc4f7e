package sqlstore

import (
	"context"
	"fmt"
	"time"

	"susu-ledger-backend/internal/config"
)

// Open connects to the store selected by cfg.Database.Driver.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return OpenSQLite(ctx, cfg.Database.SQLitePath)
	case "", "postgres":
		return OpenPostgres(ctx, cfg.GetDatabaseConnectionString(), PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpen,
			MaxIdleConns:    cfg.Database.MaxIdle,
			ConnMaxLifetime: 30 * time.Minute,
		})
	}
	return nil, fmt.Errorf("unknown database driver: %q", cfg.Database.Driver)
}
