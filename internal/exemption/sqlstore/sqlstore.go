// Package sqlstore implements the Exemption Manager's Backend over
// database/sql, shared by the Postgres ("standard" profile) and sqlite
// ("lite" profile) deployments via goose-managed schemas.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freezegate/freezegate/internal/exemption"
)

// Dialect selects the placeholder style for the underlying driver: pgx's
// stdlib driver expects Postgres-native "$n" placeholders, while
// modernc.org/sqlite expects "?".
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Backend persists exemptions in a SQL table. Load/Save operate on the
// full set, matching exemption.Backend's contract; Save reconciles the
// table to exactly the given set in a single transaction.
type Backend struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps a migrated *sql.DB as an exemption.Backend.
func New(db *sql.DB, dialect Dialect) *Backend {
	return &Backend{db: db, dialect: dialect}
}

func (b *Backend) insertSQL() string {
	if b.dialect == DialectSQLite {
		return `INSERT INTO exemptions
			(id, namespace, resource_name, duration_minutes, reason, approved_by,
			 created_at, expires_at, used)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}
	return `INSERT INTO exemptions
		(id, namespace, resource_name, duration_minutes, reason, approved_by,
		 created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
}

var _ exemption.Backend = (*Backend)(nil)

func (b *Backend) Load(ctx context.Context) (map[string]exemption.Exemption, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, namespace, resource_name, duration_minutes, reason, approved_by,
		       created_at, expires_at, used
		FROM exemptions`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load: %w", err)
	}
	defer rows.Close()

	out := map[string]exemption.Exemption{}
	for rows.Next() {
		var e exemption.Exemption
		if err := rows.Scan(&e.ID, &e.Namespace, &e.ResourceName, &e.DurationMinutes,
			&e.Reason, &e.ApprovedBy, &e.CreatedAt, &e.ExpiresAt, &e.Used); err != nil {
			return nil, fmt.Errorf("sqlstore: scan: %w", err)
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

func (b *Backend) Save(ctx context.Context, exemptions map[string]exemption.Exemption) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exemptions`); err != nil {
		return fmt.Errorf("sqlstore: clear: %w", err)
	}

	for _, e := range exemptions {
		_, err := tx.ExecContext(ctx, b.insertSQL(),
			e.ID, e.Namespace, e.ResourceName, e.DurationMinutes, e.Reason, e.ApprovedBy,
			e.CreatedAt, e.ExpiresAt, e.Used)
		if err != nil {
			return fmt.Errorf("sqlstore: insert %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}
