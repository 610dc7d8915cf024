package exemption_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/exemption"
)

// fakeBackend records every Save call's snapshot, for assertions on
// persistence without a real store.
type fakeBackend struct {
	initial map[string]exemption.Exemption
	saves   []map[string]exemption.Exemption
}

func (f *fakeBackend) Load(context.Context) (map[string]exemption.Exemption, error) {
	return f.initial, nil
}

func (f *fakeBackend) Save(_ context.Context, exemptions map[string]exemption.Exemption) error {
	f.saves = append(f.saves, exemptions)
	return nil
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestManager_CreateAndCheck(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fixed{At: mustParse(t, "2026-07-29T10:00:00Z")}
	backend := &fakeBackend{}
	m, err := exemption.NewManager(ctx, backend, clk)
	require.NoError(t, err)

	e, err := m.Create(ctx, "payments", "", 30, "incident rollback", "oncall-bob")
	require.NoError(t, err)
	assert.Equal(t, "payments", e.Namespace)
	assert.True(t, e.ExpiresAt.Equal(mustParse(t, "2026-07-29T10:30:00Z")))
	assert.Len(t, backend.saves, 1)

	found, ok := m.Check("payments", "my-deployment")
	require.True(t, ok)
	assert.Equal(t, e.ID, found.ID)
}

func TestManager_Check_ResourceScoped(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fixed{At: mustParse(t, "2026-07-29T10:00:00Z")}
	m, err := exemption.NewManager(ctx, &fakeBackend{}, clk)
	require.NoError(t, err)

	_, err = m.Create(ctx, "payments", "checkout-api", 30, "scoped exemption", "oncall-bob")
	require.NoError(t, err)

	_, ok := m.Check("payments", "other-service")
	assert.False(t, ok)

	_, ok = m.Check("payments", "checkout-api")
	assert.True(t, ok)
}

func TestManager_Check_ExpiredDoesNotMatch(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fixed{At: mustParse(t, "2026-07-29T10:00:00Z")}
	m, err := exemption.NewManager(ctx, &fakeBackend{}, clk)
	require.NoError(t, err)

	_, err = m.Create(ctx, "payments", "", 10, "short window", "oncall-bob")
	require.NoError(t, err)

	clk.At = mustParse(t, "2026-07-29T10:15:00Z")
	m2, err := exemption.NewManager(ctx, &fakeBackend{}, clk)
	require.NoError(t, err)
	_, ok := m2.Check("payments", "")
	assert.False(t, ok)
}

func TestManager_Use_DoesNotInvalidate(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fixed{At: mustParse(t, "2026-07-29T10:00:00Z")}
	backend := &fakeBackend{}
	m, err := exemption.NewManager(ctx, backend, clk)
	require.NoError(t, err)

	e, err := m.Create(ctx, "payments", "", 30, "reason", "approver")
	require.NoError(t, err)

	require.NoError(t, m.Use(ctx, e.ID))

	got, ok := m.Get(e.ID)
	require.True(t, ok)
	assert.True(t, got.Used)

	_, ok = m.Check("payments", "")
	assert.True(t, ok, "used exemptions remain valid until expiry")
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fixed{At: mustParse(t, "2026-07-29T10:00:00Z")}
	m, err := exemption.NewManager(ctx, &fakeBackend{}, clk)
	require.NoError(t, err)

	e, err := m.Create(ctx, "payments", "", 30, "reason", "approver")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, e.ID))
	_, ok := m.Get(e.ID)
	assert.False(t, ok)
}

func TestManager_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{at: mustParse(t, "2026-07-29T10:00:00Z")}
	backend := &fakeBackend{}
	m, err := exemption.NewManager(ctx, backend, clk)
	require.NoError(t, err)

	_, err = m.Create(ctx, "payments", "", 5, "short", "approver")
	require.NoError(t, err)
	_, err = m.Create(ctx, "checkout", "", 60, "long", "approver")
	require.NoError(t, err)

	clk.at = clk.at.Add(10 * time.Minute)

	removed, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, m.List("", false), 1)
}

func TestManager_List_FiltersByNamespaceAndActive(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{at: mustParse(t, "2026-07-29T10:00:00Z")}
	m, err := exemption.NewManager(ctx, &fakeBackend{}, clk)
	require.NoError(t, err)

	_, err = m.Create(ctx, "payments", "", 5, "short", "approver")
	require.NoError(t, err)
	_, err = m.Create(ctx, "payments", "", 60, "long", "approver")
	require.NoError(t, err)
	_, err = m.Create(ctx, "checkout", "", 60, "other ns", "approver")
	require.NoError(t, err)

	clk.at = clk.at.Add(10 * time.Minute)

	active := m.List("payments", true)
	assert.Len(t, active, 1)

	all := m.List("payments", false)
	assert.Len(t, all, 2)
}

func TestNewManager_LoadsExistingState(t *testing.T) {
	ctx := context.Background()
	existing := exemption.New("fixed-id", "payments", "", 30, "preexisting", "approver", mustParse(t, "2026-07-29T09:00:00Z"))
	backend := &fakeBackend{initial: map[string]exemption.Exemption{existing.ID: existing}}

	m, err := exemption.NewManager(ctx, backend, clock.Fixed{At: mustParse(t, "2026-07-29T09:10:00Z")})
	require.NoError(t, err)

	got, ok := m.Get("fixed-id")
	require.True(t, ok)
	assert.Equal(t, "preexisting", got.Reason)
}

// stepClock is a mutable Clock for tests that need time to advance between
// calls without depending on wall time.
type stepClock struct{ at time.Time }

func (c *stepClock) Now() time.Time { return c.at }
