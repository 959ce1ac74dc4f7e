// Package sqlstore implements the repository interfaces on database/sql.
// The same SQL runs on PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite);
// a dialect covers the few places where they differ.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/repository"
)

// Ensure Store implements repository.Store
var _ repository.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// row-lock suffix appended to SELECTs inside a transaction
	forUpdate         string
	readTxOptions     *sql.TxOptions
	isUniqueViolation func(err error) bool
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// conn is a querier plus the dialect it speaks.
type conn struct {
	q    querier
	d    dialect
	inTx bool
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// lockSuffix is the row-lock clause when running inside a transaction.
func (c conn) lockSuffix() string {
	if c.inTx && c.d.forUpdate != "" {
		return " " + c.d.forUpdate
	}
	return ""
}

type Store struct {
	db *sql.DB
	d  dialect
	repository.Repositories
}

func newStore(db *sql.DB, d dialect) *Store {
	s := &Store{db: db, d: d}
	s.Repositories = bind(conn{q: db, d: d})
	return s
}

func bind(c conn) repository.Repositories {
	return repository.Repositories{
		Users:         &userRepository{c: c},
		Groups:        &groupRepository{c: c},
		Ledger:        &ledgerRepository{c: c},
		Notifications: &notificationRepository{c: c},
	}
}

func (s *Store) Dialect() string {
	return s.d.name
}

func (s *Store) Repos() repository.Repositories {
	return s.Repositories
}

func (s *Store) WithTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	return s.runTx(ctx, nil, fn)
}

func (s *Store) ReadTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	return s.runTx(ctx, s.d.readTxOptions, fn)
}

func (s *Store) runTx(ctx context.Context, opts *sql.TxOptions, fn func(r repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return domain.Internal(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(bind(conn{q: tx, d: s.d, inTx: true})); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.Internal(err, "failed to commit transaction")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	logger.Info("Closing store", "dialect", s.d.name)
	return s.db.Close()
}
