package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"susu-ledger-backend/internal/logger"
)

const pqUniqueViolation = pq.ErrorCode("23505")

var postgresDialect = dialect{
	name:          "postgres",
	numbered:      true,
	forUpdate:     "FOR UPDATE",
	readTxOptions: &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead},
	isUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
	},
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects with lib/pq, applies the schema and returns a Store.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*Store, error) {
	logger.Info("Connecting to database", "dialect", "postgres")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database connection established", "dialect", "postgres")
	return newStore(db, postgresDialect), nil
}

// NewPostgresStore wraps an already open connection. Used by sqlmock tests.
func NewPostgresStore(db *sql.DB) *Store {
	return newStore(db, postgresDialect)
}
