// Package sqlstore implements the History Tracker's Backend over
// database/sql, shared by the Postgres ("standard" profile) and sqlite
// ("lite" profile) deployments via goose-managed schemas, mirroring
// internal/exemption/sqlstore.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freezegate/freezegate/internal/history"
)

// Dialect selects the placeholder style for the underlying driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Backend persists the event ring in a SQL table. Save reconciles the
// table to exactly the given ring in a single transaction, matching
// history.Backend's full-set contract.
type Backend struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps a migrated *sql.DB as a history.Backend.
func New(db *sql.DB, dialect Dialect) *Backend {
	return &Backend{db: db, dialect: dialect}
}

var _ history.Backend = (*Backend)(nil)

func (b *Backend) insertSQL() string {
	if b.dialect == DialectSQLite {
		return `INSERT INTO history_events
			(id, event_type, "timestamp", reason, freeze_window, namespace, duration_minutes, triggered_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	}
	return `INSERT INTO history_events
		(id, event_type, "timestamp", reason, freeze_window, namespace, duration_minutes, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
}

func (b *Backend) Load(ctx context.Context) ([]history.Event, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, event_type, "timestamp", reason, freeze_window, namespace, duration_minutes, triggered_by
		FROM history_events
		ORDER BY "timestamp" ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load: %w", err)
	}
	defer rows.Close()

	var out []history.Event
	for rows.Next() {
		var ev history.Event
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Timestamp, &ev.Reason,
			&ev.FreezeWindow, &ev.Namespace, &ev.DurationMinutes, &ev.TriggeredBy); err != nil {
			return nil, fmt.Errorf("sqlstore: scan: %w", err)
		}
		out = append(out, ev)
	}
	if out == nil {
		out = []history.Event{}
	}
	return out, rows.Err()
}

// Save reconciles the table to exactly the given ring. The Tracker already
// enforces the ring's max size and ordering in-process, so this replaces
// the full table rather than appending, matching exemption.sqlstore's
// reconcile-on-save semantics.
func (b *Backend) Save(ctx context.Context, events []history.Event) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_events`); err != nil {
		return fmt.Errorf("sqlstore: clear: %w", err)
	}

	for _, ev := range events {
		_, err := tx.ExecContext(ctx, b.insertSQL(),
			ev.ID, ev.EventType, ev.Timestamp, ev.Reason, ev.FreezeWindow, ev.Namespace,
			ev.DurationMinutes, ev.TriggeredBy)
		if err != nil {
			return fmt.Errorf("sqlstore: insert %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}
