package freeze_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/config"
	"github.com/freezegate/freezegate/internal/freeze"
	"github.com/freezegate/freezegate/internal/schedule"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestIsActive_NilPolicyIsInactive(t *testing.T) {
	active, window := freeze.IsActive(nil, mustParse(t, "2026-07-29T12:00:00Z"), "payments")
	assert.False(t, active)
	assert.Empty(t, window)
}

func TestIsActive_DefaultPolicyIsInactive(t *testing.T) {
	active, _ := freeze.IsActive(config.Default(), mustParse(t, "2026-07-29T12:00:00Z"), "payments")
	assert.False(t, active)
}

func TestIsActive_DeclaredScheduleTakesPrecedence(t *testing.T) {
	p := config.Default()
	p.FreezeEnabled = false
	p.FreezeSchedule = []schedule.Schedule{{
		Name:  "nightly",
		Start: mustParse(t, "2026-07-29T00:00:00Z"),
		End:   mustParse(t, "2026-07-30T00:00:00Z"),
		Cron:  "0 0 * * *",
	}}

	active, window := freeze.IsActive(p, mustParse(t, "2026-07-29T12:00:00Z"), "payments")
	assert.True(t, active)
	assert.Equal(t, "nightly", window)
}

func TestIsActive_ManualFreezeFallsBackWhenNoScheduleActive(t *testing.T) {
	p := config.Default()
	p.FreezeEnabled = true
	p.FreezeUntil = nil

	active, window := freeze.IsActive(p, mustParse(t, "2026-07-29T12:00:00Z"), "payments")
	assert.True(t, active)
	assert.Equal(t, freeze.ManualFreezeWindow, window)
}

func TestIsActive_ManualFreezeRespectsExpiry(t *testing.T) {
	p := config.Default()
	p.FreezeEnabled = true
	past := mustParse(t, "2026-07-29T11:00:00Z")
	p.FreezeUntil = &past

	active, window := freeze.IsActive(p, mustParse(t, "2026-07-29T12:00:00Z"), "payments")
	assert.False(t, active)
	assert.Empty(t, window)
}

func TestIsActive_ManualFreezeStillActiveBeforeUntil(t *testing.T) {
	p := config.Default()
	p.FreezeEnabled = true
	future := mustParse(t, "2026-07-29T13:00:00Z")
	p.FreezeUntil = &future

	active, window := freeze.IsActive(p, mustParse(t, "2026-07-29T12:00:00Z"), "payments")
	assert.True(t, active)
	assert.Equal(t, freeze.ManualFreezeWindow, window)
}

func TestIsActive_FirstDeclaredScheduleWinsByOrder(t *testing.T) {
	p := config.Default()
	p.FreezeSchedule = []schedule.Schedule{
		{Name: "first", Start: mustParse(t, "2026-07-29T00:00:00Z"), End: mustParse(t, "2026-07-30T00:00:00Z"), Cron: "0 0 * * *"},
		{Name: "second", Start: mustParse(t, "2026-07-29T00:00:00Z"), End: mustParse(t, "2026-07-30T00:00:00Z"), Cron: "0 0 * * *"},
	}

	_, window := freeze.IsActive(p, mustParse(t, "2026-07-29T12:00:00Z"), "payments")
	assert.Equal(t, "first", window)
}

func TestIsActive_ScheduleNamespaceScopedOut(t *testing.T) {
	p := config.Default()
	p.FreezeEnabled = true
	p.FreezeSchedule = []schedule.Schedule{{
		Name:       "billing-only",
		Start:      mustParse(t, "2026-07-29T00:00:00Z"),
		End:        mustParse(t, "2026-07-30T00:00:00Z"),
		Cron:       "0 0 * * *",
		Namespaces: []string{"billing"},
	}}

	active, window := freeze.IsActive(p, mustParse(t, "2026-07-29T12:00:00Z"), "payments")
	assert.True(t, active)
	assert.Equal(t, freeze.ManualFreezeWindow, window)
}
