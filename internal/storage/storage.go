// Package storage is the storage adapter (component C1): it opens the
// on-disk store, applies versioned migrations, wraps prepared statements
// and transactions, and hosts the vector index. A thin struct around one
// connection pool with helper methods, single local SQLite file opened
// in WAL mode rather than a networked connection pool.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the single local database file backing the engine. It is
// process-wide.
type Store struct {
	db     *sql.DB
	path   string
	vector *VectorIndex

	stmtMu sync.Mutex
	stmts  map[string]*sql.Stmt

	initOnce   sync.Once
	initDoneOk bool
}

// Open opens (creating parent directories as needed) the store file at
// path, enables WAL journaling, normal-synchronous durability, a large
// page cache, and foreign-key enforcement, then runs migrations and
// attempts to bring up the vector index. Initialization failure is fatal:
// Open returns the error and no Store, so there is no uninitialized Store
// whose accessors could be called.
func Open(ctx context.Context, path string, vectorDisabled bool) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=cache_size(-20000)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer; modernc.org/sqlite serializes per-connection anyway
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:    db,
		path:  path,
		stmts: make(map[string]*sql.Stmt),
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s.vector = newVectorIndex(db, vectorDisabled)
	if err := s.vector.load(ctx); err != nil {
		// Loading the vector index is never fatal: the degraded tier is a
		// supported, documented mode.
		s.vector.disable()
	}

	s.initDoneOk = true
	return s, nil
}

// Close releases the underlying connection and any cached prepared
// statements.
func (s *Store) Close() error {
	s.stmtMu.Lock()
	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}
	s.stmtMu.Unlock()
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for package-internal callers
// (decision, graph, engine, injector) that need raw query access beyond the tx
// helper below.
func (s *Store) DB() *sql.DB { return s.db }

// Vector returns the vector index, which degrades to "no results" on every
// call if the extension failed to load.
func (s *Store) Vector() *VectorIndex { return s.vector }

// Path returns the resolved store file path.
func (s *Store) Path() string { return s.path }

// Prepared returns a cached prepared statement for query, preparing and
// caching it on first use.
func (s *Store) Prepared(ctx context.Context, query string) (*sql.Stmt, error) {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()
	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// WithTx runs fn inside a single write transaction, committing on success
// and rolling back on any error or panic. All mutating operations in the
// engine go through this one logical write path.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
