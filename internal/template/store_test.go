package template_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/store/memstore"
	"github.com/freezegate/freezegate/internal/template"
)

func TestLoadFromStore_PopulatesTemplates(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	body := `
- name: holiday-freeze
  description: end-of-year freeze
  schedule:
    cron: "0 0 * * *"
    durationDays: 14
  namespaces: [payments]
`
	require.NoError(t, backend.Create(ctx, template.RecordName, map[string]string{template.DataKey: body}))

	e := template.NewEngine(clock.RealClock{}, nil)
	require.NoError(t, e.LoadFromStore(ctx, backend))

	tmpl, ok := e.GetTemplate("holiday-freeze")
	require.True(t, ok)
	assert.Equal(t, "end-of-year freeze", tmpl.Description)
	assert.Equal(t, float64(14), tmpl.Schedule.DurationDays)
}

func TestLoadFromStore_AbsentRecordIsNotAnError(t *testing.T) {
	e := template.NewEngine(clock.RealClock{}, nil)
	err := e.LoadFromStore(context.Background(), memstore.New())
	assert.NoError(t, err)
	assert.Empty(t, e.ListTemplates())
}

func TestDecode_ParsesExplicitStartEnd(t *testing.T) {
	body := `
- name: explicit-window
  schedule:
    cron: "0 0 * * *"
    start: "2026-01-01T00:00:00Z"
    end: "2026-01-10T00:00:00Z"
`
	templates, err := template.Decode(body)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.NotNil(t, templates[0].Schedule.Start)
	assert.Equal(t, 2026, templates[0].Schedule.Start.Year())
}

func TestDecode_EmptyBodyYieldsNil(t *testing.T) {
	templates, err := template.Decode("")
	require.NoError(t, err)
	assert.Nil(t, templates)
}
