// Package template implements parameterized schedule generators that
// render schedule store entries.
package template

import (
	"fmt"
	"sync"
	"time"

	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/schedule"
)

// ScheduleSpec is a template's declarative schedule shape: either
// DurationHours or DurationDays is set (not both), or neither if the
// template always expects an override_schedule / explicit end parameter.
type ScheduleSpec struct {
	Cron          string     `json:"cron"`
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	DurationHours float64    `json:"durationHours,omitempty"`
	DurationDays  float64    `json:"durationDays,omitempty"`
}

// Template is a named, parameterized schedule generator.
type Template struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Schedule    ScheduleSpec `json:"schedule"`
	Namespaces  []string     `json:"namespaces,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// Engine renders schedules from named, parameterized templates.
type Engine struct {
	clock clock.Clock

	mu        sync.RWMutex
	templates map[string]Template
}

// NewEngine constructs an Engine seeded with the given templates.
func NewEngine(clk clock.Clock, templates []Template) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	e := &Engine{clock: clk, templates: map[string]Template{}}
	for _, t := range templates {
		e.templates[t.Name] = t
	}
	return e
}

// ListTemplates returns all registered templates.
func (e *Engine) ListTemplates() []Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Template, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, t)
	}
	return out
}

// GetTemplate returns a single template by name.
func (e *Engine) GetTemplate(name string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[name]
	return t, ok
}

// Put registers or replaces a single template. The template record reload
// (LoadFromStore) replaces the whole set and does not go through Put.
func (e *Engine) Put(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.Name] = t
}

// Parameters overrides a template's rendering. OverrideSchedule, when set,
// is used directly (after field-ordering and validation) and all other
// fields are ignored.
type Parameters struct {
	OverrideSchedule *schedule.Schedule

	Name       string
	Namespaces []string
	Message    string
	Start      *time.Time
	End        *time.Time
	Cron       string
}

// ApplyTemplate renders a Schedule from the named template and parameters.
func (e *Engine) ApplyTemplate(name string, params Parameters) (schedule.Schedule, error) {
	tmpl, ok := e.GetTemplate(name)
	if !ok {
		return schedule.Schedule{}, fmt.Errorf("template: unknown template %q", name)
	}

	if params.OverrideSchedule != nil {
		sch := *params.OverrideSchedule
		if err := sch.Validate(); err != nil {
			return schedule.Schedule{}, fmt.Errorf("template: override_schedule: %w", err)
		}
		return sch, nil
	}

	start := tmpl.Schedule.Start
	if params.Start != nil {
		start = params.Start
	}
	if start == nil {
		now := e.clock.Now().UTC()
		start = &now
	}

	end := tmpl.Schedule.End
	switch {
	case params.End != nil:
		end = params.End
	case tmpl.Schedule.DurationHours > 0:
		t := start.Add(time.Duration(tmpl.Schedule.DurationHours * float64(time.Hour)))
		end = &t
	case tmpl.Schedule.DurationDays > 0:
		t := start.Add(time.Duration(tmpl.Schedule.DurationDays*24) * time.Hour)
		end = &t
	}
	if end == nil {
		return schedule.Schedule{}, fmt.Errorf("template: %q has no end, duration, or override end", name)
	}

	cron := tmpl.Schedule.Cron
	if params.Cron != "" {
		cron = params.Cron
	}

	scheduleName := tmpl.Name
	if params.Name != "" {
		scheduleName = params.Name
	}

	namespaces := tmpl.Namespaces
	if params.Namespaces != nil {
		namespaces = params.Namespaces
	}

	message := tmpl.Message
	if params.Message != "" {
		message = params.Message
	}

	sch := schedule.Schedule{
		Name:       scheduleName,
		Start:      start.UTC(),
		End:        end.UTC(),
		Cron:       cron,
		Namespaces: namespaces,
		Message:    message,
	}
	if err := sch.Validate(); err != nil {
		return schedule.Schedule{}, fmt.Errorf("template: rendered schedule: %w", err)
	}
	return sch, nil
}
