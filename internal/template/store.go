package template

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/freezegate/freezegate/internal/store"
)

// RecordName is the persisted-records key for the templates body: a
// YAML-bodied configuration record.
const RecordName = "templates"

// DataKey is the single map key under which the YAML body lives.
const DataKey = "templates.yaml"

// There are no built-in templates: every template comes from the
// persisted record, giving operators full control without code changes.

type yamlScheduleSpec struct {
	Cron          string  `yaml:"cron"`
	Start         *string `yaml:"start,omitempty"`
	End           *string `yaml:"end,omitempty"`
	DurationHours float64 `yaml:"durationHours,omitempty"`
	DurationDays  float64 `yaml:"durationDays,omitempty"`
}

type yamlTemplate struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Schedule    yamlScheduleSpec  `yaml:"schedule"`
	Namespaces  []string          `yaml:"namespaces,omitempty"`
	Message     string            `yaml:"message,omitempty"`
}

// LoadFromStore reads the templates record and replaces the engine's
// template set.
func (e *Engine) LoadFromStore(ctx context.Context, backend store.Store) error {
	data, err := backend.Read(ctx, RecordName)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return err
	}
	templates, err := Decode(data[DataKey])
	if err != nil {
		return fmt.Errorf("template engine: decode: %w", err)
	}

	e.mu.Lock()
	e.templates = map[string]Template{}
	for _, t := range templates {
		e.templates[t.Name] = t
	}
	e.mu.Unlock()
	return nil
}

// Decode parses the YAML-bodied template list.
func Decode(body string) ([]Template, error) {
	if body == "" {
		return nil, nil
	}
	var raw []yamlTemplate
	if err := yaml.Unmarshal([]byte(body), &raw); err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(raw))
	for _, t := range raw {
		spec := ScheduleSpec{
			Cron:          t.Schedule.Cron,
			DurationHours: t.Schedule.DurationHours,
			DurationDays:  t.Schedule.DurationDays,
		}
		if t.Schedule.Start != nil {
			if parsed, err := time.Parse(time.RFC3339, *t.Schedule.Start); err == nil {
				spec.Start = &parsed
			}
		}
		if t.Schedule.End != nil {
			if parsed, err := time.Parse(time.RFC3339, *t.Schedule.End); err == nil {
				spec.End = &parsed
			}
		}
		out = append(out, Template{
			Name:        t.Name,
			Description: t.Description,
			Schedule:    spec,
			Namespaces:  t.Namespaces,
			Message:     t.Message,
		})
	}
	return out, nil
}
