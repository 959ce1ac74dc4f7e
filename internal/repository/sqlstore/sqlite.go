package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"susu-ledger-backend/internal/logger"
)

var sqliteDialect = dialect{
	name: "sqlite",
	isUniqueViolation: func(err error) bool {
		var sqlErr *sqlite.Error
		if errors.As(err, &sqlErr) {
			code := sqlErr.Code()
			return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
		}
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// OpenSQLite opens a file database, or a private in-memory one when path is
// empty or ":memory:". SQLite serialises writers, so the pool holds a single
// connection and transactions never interleave.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path == "" || path == ":memory:" {
		dsn = fmt.Sprintf("file:susu-%s?mode=memory&cache=shared", uuid.NewString())
	}
	logger.Info("Opening database", "dialect", "sqlite", "path", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return newStore(db, sqliteDialect), nil
}
