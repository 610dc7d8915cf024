package template_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/schedule"
	"github.com/freezegate/freezegate/internal/template"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func holidayTemplate() template.Template {
	return template.Template{
		Name:        "holiday-freeze",
		Description: "standard end-of-year freeze",
		Schedule: template.ScheduleSpec{
			Cron:         "0 0 * * *",
			DurationDays: 14,
		},
		Namespaces: []string{"payments"},
		Message:    "Holiday freeze in effect",
	}
}

func TestApplyTemplate_DurationDays(t *testing.T) {
	clk := clock.Fixed{At: mustParse(t, "2026-12-20T00:00:00Z")}
	e := template.NewEngine(clk, []template.Template{holidayTemplate()})

	sch, err := e.ApplyTemplate("holiday-freeze", template.Parameters{})
	require.NoError(t, err)

	assert.Equal(t, "holiday-freeze", sch.Name)
	assert.True(t, sch.Start.Equal(mustParse(t, "2026-12-20T00:00:00Z")))
	assert.True(t, sch.End.Equal(mustParse(t, "2027-01-03T00:00:00Z")))
	assert.Equal(t, []string{"payments"}, sch.Namespaces)
}

func TestApplyTemplate_ParameterOverrides(t *testing.T) {
	clk := clock.Fixed{At: mustParse(t, "2026-12-20T00:00:00Z")}
	e := template.NewEngine(clk, []template.Template{holidayTemplate()})

	start := mustParse(t, "2026-12-22T00:00:00Z")
	sch, err := e.ApplyTemplate("holiday-freeze", template.Parameters{
		Name:       "custom-name",
		Start:      &start,
		Namespaces: []string{"checkout", "billing"},
		Message:    "custom message",
	})
	require.NoError(t, err)

	assert.Equal(t, "custom-name", sch.Name)
	assert.True(t, sch.Start.Equal(start))
	assert.Equal(t, []string{"checkout", "billing"}, sch.Namespaces)
	assert.Equal(t, "custom message", sch.Message)
}

func TestApplyTemplate_OverrideScheduleBypassesTemplateFields(t *testing.T) {
	clk := clock.Fixed{At: mustParse(t, "2026-12-20T00:00:00Z")}
	e := template.NewEngine(clk, []template.Template{holidayTemplate()})

	override := &schedule.Schedule{
		Name:  "explicit",
		Start: mustParse(t, "2026-01-01T00:00:00Z"),
		End:   mustParse(t, "2026-01-02T00:00:00Z"),
		Cron:  "0 12 * * *",
	}
	sch, err := e.ApplyTemplate("holiday-freeze", template.Parameters{OverrideSchedule: override})
	require.NoError(t, err)

	assert.Equal(t, "explicit", sch.Name)
	assert.Equal(t, "0 12 * * *", sch.Cron)
}

func TestApplyTemplate_OverrideScheduleInvalidRejected(t *testing.T) {
	clk := clock.Fixed{At: mustParse(t, "2026-12-20T00:00:00Z")}
	e := template.NewEngine(clk, []template.Template{holidayTemplate()})

	override := &schedule.Schedule{Name: "broken"}
	_, err := e.ApplyTemplate("holiday-freeze", template.Parameters{OverrideSchedule: override})
	assert.Error(t, err)
}

func TestApplyTemplate_UnknownTemplate(t *testing.T) {
	e := template.NewEngine(clock.RealClock{}, nil)
	_, err := e.ApplyTemplate("nonexistent", template.Parameters{})
	assert.Error(t, err)
}

func TestApplyTemplate_NoEndNoDurationFails(t *testing.T) {
	e := template.NewEngine(clock.RealClock{}, []template.Template{{
		Name:     "incomplete",
		Schedule: template.ScheduleSpec{Cron: "0 0 * * *"},
	}})

	_, err := e.ApplyTemplate("incomplete", template.Parameters{})
	assert.Error(t, err)
}

func TestPut_RegistersNewTemplate(t *testing.T) {
	e := template.NewEngine(clock.RealClock{}, nil)
	e.Put(holidayTemplate())

	tmpl, ok := e.GetTemplate("holiday-freeze")
	require.True(t, ok)
	assert.Equal(t, "standard end-of-year freeze", tmpl.Description)
}

func TestListTemplates(t *testing.T) {
	e := template.NewEngine(clock.RealClock{}, []template.Template{holidayTemplate()})
	list := e.ListTemplates()
	assert.Len(t, list, 1)
}
