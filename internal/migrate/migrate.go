// Package migrate runs goose schema migrations for the SQL-backed
// deployment profiles ("standard": Postgres; "lite": embedded sqlite).
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var migrations embed.FS

// Dialect selects the goose SQL dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Up applies all pending migrations against db using the given dialect.
func Up(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}
	logger.Info("migrate: applying pending migrations", "dialect", dialect)
	if err := goose.UpContext(ctx, db, "sql"); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}

// Status reports the current migration version.
func Status(ctx context.Context, db *sql.DB, dialect Dialect) (int64, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(string(dialect)); err != nil {
		return 0, fmt.Errorf("migrate: set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}
