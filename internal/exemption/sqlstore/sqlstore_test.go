package sqlstore_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/freezegate/freezegate/internal/exemption"
	"github.com/freezegate/freezegate/internal/exemption/sqlstore"
	"github.com/freezegate/freezegate/internal/migrate"
)

func openMigratedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrate.Up(context.Background(), db, migrate.DialectSQLite, nil))
	return db
}

func TestBackend_SaveThenLoad_RoundTrips(t *testing.T) {
	ctx := context.Background()
	db := openMigratedDB(t)
	backend := sqlstore.New(db, sqlstore.DialectSQLite)

	created := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	e := exemption.New("fixed-id", "payments", "checkout-api", 30, "planned migration", "approver", created)

	require.NoError(t, backend.Save(ctx, map[string]exemption.Exemption{e.ID: e}))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, loaded, "fixed-id")
	got := loaded["fixed-id"]
	assert.Equal(t, "payments", got.Namespace)
	assert.Equal(t, "checkout-api", got.ResourceName)
	assert.True(t, got.ExpiresAt.Equal(created.Add(30*time.Minute)))
}

func TestBackend_Save_ReconcilesFullSet(t *testing.T) {
	ctx := context.Background()
	db := openMigratedDB(t)
	backend := sqlstore.New(db, sqlstore.DialectSQLite)

	first := exemption.New("a", "payments", "", 30, "first", "approver", time.Now().UTC())
	require.NoError(t, backend.Save(ctx, map[string]exemption.Exemption{first.ID: first}))

	second := exemption.New("b", "checkout", "", 30, "second", "approver", time.Now().UTC())
	require.NoError(t, backend.Save(ctx, map[string]exemption.Exemption{second.ID: second}))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Contains(t, loaded, "b")
}

func TestBackend_Load_EmptyTable(t *testing.T) {
	ctx := context.Background()
	db := openMigratedDB(t)
	backend := sqlstore.New(db, sqlstore.DialectSQLite)

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
