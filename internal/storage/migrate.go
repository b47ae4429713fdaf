package storage

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/kioku-ai/kioku/migrations"
)

func migrateSQLite(db *sql.DB) error {
	goose.SetBaseFS(migrations.SQLiteFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return fmt.Errorf("storage: set sqlite dialect: %w", err)
	}
	if err := goose.Up(db, "sqlite"); err != nil {
		return fmt.Errorf("storage: migrate sqlite: %w", err)
	}
	return nil
}

func migratePostgres(db *sql.DB) error {
	goose.SetBaseFS(migrations.PostgresFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(string(goose.DialectPostgres)); err != nil {
		return fmt.Errorf("storage: set postgres dialect: %w", err)
	}
	if err := goose.Up(db, "postgres"); err != nil {
		return fmt.Errorf("storage: migrate postgres: %w", err)
	}
	return nil
}
