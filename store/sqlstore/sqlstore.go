// Package sqlstore implements store.Store over database/sql for SQLite
// (modernc.org/sqlite) and Postgres (pgx stdlib).
//
// SQLite runs on a single connection in WAL mode, which serializes
// transactions. Postgres relies on SELECT ... FOR UPDATE for the
// read-decide-write paths and on the partial unique index over active bans.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/serverhub/hubauth/store"
)

// Store is a database/sql backed store.Store.
type Store struct {
	db      *sql.DB
	dialect dialect
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn with driver ("sqlite" or "pgx"), applies connection
// settings for the dialect, and runs idempotent migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}

	s := &Store{db: db, dialect: d}
	if err := s.configure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure(ctx context.Context) error {
	if s.dialect.driver != DriverSQLite {
		return s.Ping(ctx)
	}

	s.db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA foreign_keys=ON`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlstore: %s: %w", pragma, err)
		}
	}
	return nil
}

// DB exposes the underlying handle for sinks sharing the connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InTx runs fn in one transaction.
func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin tx: %w", err)
	}

	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(&tx{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("sqlstore: commit tx: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlstore: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return errors.New("sqlstore: not open")
	}
	return s.db.Close()
}
