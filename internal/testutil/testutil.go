// Package testutil provides shared test infrastructure: a fast embedded
// SQLite store for ordinary unit tests, and an optional Postgres+pgvector
// testcontainer for integration tests that exercise the server backend's
// advisory-lock and vector-column paths.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kioku-ai/kioku/internal/config"
	"github.com/kioku-ai/kioku/internal/storage"
)

// Logger returns a logger configured for test output (warnings only).
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// NewSQLiteStore opens a Store backed by a fresh temp-file SQLite database,
// migrated and closed automatically when the test ends. This is the default
// harness for unit tests: no container, no network, starts in milliseconds.
func NewSQLiteStore(t *testing.T) *storage.Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Backend: config.BackendEmbedded,
		DBPath:  fmt.Sprintf("%s/kioku-test.db", dir),
	}
	store, err := storage.Open(context.Background(), cfg, Logger())
	require.NoError(t, err, "testutil: open sqlite store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// PostgresContainer wraps a running Postgres+pgvector testcontainer.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
}

// MustStartPostgres starts a pgvector/pgvector Postgres container and
// bootstraps the vector extension before any pool is created, mirroring the
// teacher's TimescaleDB harness (kioku has no TimescaleDB dependency, so a
// plain pgvector image replaces it). Terminates automatically via t.Cleanup.
func MustStartPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kioku",
			"POSTGRES_PASSWORD": "kioku",
			"POSTGRES_DB":       "kioku",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "testutil: start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err, "testutil: container host")
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err, "testutil: container port")

	dsn := fmt.Sprintf("postgres://kioku:kioku@%s:%s/kioku?sslmode=disable", host, port.Port())

	bootstrapConn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err, "testutil: bootstrap connection")
	_, err = bootstrapConn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	require.NoError(t, err, "testutil: create vector extension")
	_ = bootstrapConn.Close(ctx)

	return &PostgresContainer{Container: container, DSN: dsn}
}

// NewStore opens a Store against this container and runs migrations.
func (pc *PostgresContainer) NewStore(t *testing.T) *storage.Store {
	t.Helper()
	cfg := config.Config{Backend: config.BackendServer, DatabaseURL: pc.DSN}
	store, err := storage.Open(context.Background(), cfg, Logger())
	require.NoError(t, err, "testutil: open postgres store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}
