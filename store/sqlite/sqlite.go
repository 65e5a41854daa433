/*
Package sqlite provides a SQLite-backed implementation of core.Store.

PURPOSE:
  Persists every collection of the engine through database/sql and
  mattn/go-sqlite3. The schema is versioned with golang-migrate; migrations
  are embedded in the binary and applied on New().

LAYOUT:
  Aggregates (products, counterparties, lots, applications, sales requests,
  adjustments) are stored as a JSON document in a `data` column next to the
  columns queries filter and sort on. Price cells are plain rows.

VERSIONED ROWS:
  Version 0 inserts, and a duplicate key means someone created the row
  first. Otherwise the put is one UPDATE ... WHERE version = ?, so the check
  and the write can't interleave with another writer. Zero rows affected
  returns core.ErrConcurrentModification.

APPEND-ONLY ENFORCEMENT:
  The store never issues UPDATE or DELETE on inventory_history. The
  idempotency_key column is UNIQUE; a replay fails with
  core.ErrDuplicateIdempotencyKey.

CONCURRENCY:
  WithTx serializes writers behind a mutex and runs fn against a view bound
  to the *sql.Tx; everything fn reads or writes goes through that
  transaction. ":memory:" databases are pinned to one connection so every
  statement sees the same database.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/buyback.db", logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - core/store.go: interface definitions
  - core/store/memory.go: in-memory implementation for tests
  - migrations/: schema
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements core.Store using SQLite.
type Store struct {
	repo
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

var _ core.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates it to the latest
// schema. Use ":memory:" for a throwaway database.
func New(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{repo: repo{q: db}, db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrateUp applies every pending embedded migration. The migrate instance
// is not closed: its driver would close db with it.
func migrateUp(db *sql.DB, logger *zap.Logger) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("schema up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	logger.Info("migrations completed",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction. Any error from fn, or
// from commit, leaves the database untouched.
func (s *Store) WithTx(ctx context.Context, fn func(core.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{repo{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	repo
}

var _ core.Store = (*txStore)(nil)

// WithTx on a transaction view joins the enclosing transaction.
func (ts *txStore) WithTx(_ context.Context, fn func(core.Store) error) error {
	return fn(ts)
}

// =============================================================================
// HELPERS
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueConstraintError reports a UNIQUE or PRIMARY KEY violation, and on
// which column when the driver names it.
func isUniqueConstraintError(err error, column string) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.ExtendedCode != sqlite3.ErrConstraintUnique && se.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return column == "" || strings.Contains(se.Error(), column)
}
