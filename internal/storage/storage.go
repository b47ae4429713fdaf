// Package storage implements the dual-backend persistence layer: an
// embedded SQLite file for single-process deployments, and a networked
// Postgres server for shared deployments, unified behind one Store API
// (spec.md §4.1).
package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/kioku-ai/kioku/internal/config"
)

// Dialect distinguishes the two SQL dialects a Store may speak.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store wraps a database/sql connection (via sqlx) for either backend,
// offering a dialect-aware query surface plus per-key locking.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open connects to the backend selected by cfg, runs pending migrations,
// and returns a ready Store.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case config.BackendEmbedded:
		return openSQLite(ctx, cfg.DBPath, logger)
	case config.BackendServer:
		return openPostgres(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

func openSQLite(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)", path)
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY storms.
	s := &Store{db: db, dialect: DialectSQLite, logger: logger, locks: make(map[string]*sync.Mutex)}
	if err := migrateSQLite(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	s := &Store{db: db, dialect: DialectPostgres, logger: logger, locks: make(map[string]*sync.Mutex)}
	if err := migratePostgres(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Dialect reports which SQL dialect this store speaks.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Checkpoint forces a WAL checkpoint on the embedded backend; a no-op on
// Postgres. Used during graceful shutdown and the memory_maintain
// wal_checkpoint action (spec.md §4.8).
func (s *Store) Checkpoint(ctx context.Context) error {
	if s.dialect != DialectSQLite {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("storage: checkpoint: %w", err)
	}
	return nil
}

// Vacuum reclaims space. On SQLite this runs VACUUM; on Postgres it runs
// VACUUM ANALYZE against the items table.
func (s *Store) Vacuum(ctx context.Context) error {
	stmt := "VACUUM"
	if s.dialect == DialectPostgres {
		stmt = "VACUUM ANALYZE items"
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("storage: vacuum: %w", err)
	}
	return nil
}

// DatabaseSizeBytes reports the on-disk size of the database, used by
// memory_stats (spec.md §6 "database size").
func (s *Store) DatabaseSizeBytes(ctx context.Context) (int64, error) {
	var size int64
	if s.dialect == DialectPostgres {
		if err := s.db.GetContext(ctx, &size, "SELECT pg_database_size(current_database())"); err != nil {
			return 0, fmt.Errorf("storage: database size: %w", err)
		}
		return size, nil
	}
	var pageCount, pageSize int64
	if err := s.db.GetContext(ctx, &pageCount, "PRAGMA page_count"); err != nil {
		return 0, fmt.Errorf("storage: page_count: %w", err)
	}
	if err := s.db.GetContext(ctx, &pageSize, "PRAGMA page_size"); err != nil {
		return 0, fmt.Errorf("storage: page_size: %w", err)
	}
	return pageCount * pageSize, nil
}

// Stats holds the connection pool counts returned by PoolStats; neither the
// forensic meta nor the metrics report them.
type Stats struct {
	OpenConnections int
	InUse           int
	Idle            int
}

// PoolStats returns the current connection pool gauges.
func (s *Store) PoolStats() Stats {
	st := s.db.Stats()
	return Stats{OpenConnections: st.OpenConnections, InUse: st.InUse, Idle: st.Idle}
}

// querier is satisfied by *sqlx.DB and *sqlx.Tx, letting CRUD helpers run
// either standalone or inside a transaction.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Transaction runs fn inside a database transaction, committing on success
// and rolling back on any returned error or panic.
func (s *Store) Transaction(ctx context.Context, fn func(q querier) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// WithLock serializes concurrent operations that share key: a per-process
// mutex shard on the embedded backend, and an additional Postgres advisory
// lock on the server backend so multiple processes also serialize (spec.md
// §5 "per-project lock").
func (s *Store) WithLock(ctx context.Context, key string, fn func() error) error {
	mu := s.shardFor(key)
	mu.Lock()
	defer mu.Unlock()

	if s.dialect != DialectPostgres {
		return fn()
	}

	lockID := int64(fnvHash(key))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("storage: acquire advisory lock conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return fmt.Errorf("storage: pg_advisory_lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockID)
	}()

	return fn()
}

func (s *Store) shardFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	return mu
}

func fnvHash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
