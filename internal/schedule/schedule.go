// Package schedule implements the Schedule entity and the cron-plus-window
// evaluator.
package schedule

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is the canonical entity persisted by the Schedule Store. Fields
// MUST serialize in this order: name, start, end, cron, namespaces?,
// message? — callers that marshal to YAML rely on struct field order, so
// this order must never be reshuffled.
type Schedule struct {
	Name       string    `yaml:"name" json:"name"`
	Start      time.Time `yaml:"start" json:"start"`
	End        time.Time `yaml:"end" json:"end"`
	Cron       string    `yaml:"cron" json:"cron"`
	Namespaces []string  `yaml:"namespaces,omitempty" json:"namespaces,omitempty"`
	Message    string    `yaml:"message,omitempty" json:"message,omitempty"`
}

var (
	// ErrMissingFields indicates start, end, or cron was not supplied.
	ErrMissingFields = errors.New("schedule: start, end and cron are all required")
	// ErrEndBeforeStart indicates end <= start.
	ErrEndBeforeStart = errors.New("schedule: end must be after start")
	// ErrInvalidCron indicates the cron expression failed to parse.
	ErrInvalidCron = errors.New("schedule: invalid cron expression")
)

// standardParser accepts the 5-field (minute hour dom month dow) form.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate reports whether a Schedule is valid: start, end, and cron must
// all be present, end must be strictly after start, and cron must parse
// as a standard 5-field expression.
func (s Schedule) Validate() error {
	if s.Start.IsZero() || s.End.IsZero() || s.Cron == "" {
		return ErrMissingFields
	}
	if !s.End.After(s.Start) {
		return ErrEndBeforeStart
	}
	if _, err := standardParser.Parse(s.Cron); err != nil {
		return ErrInvalidCron
	}
	return nil
}

// ParseCron parses a standard 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := standardParser.Parse(expr)
	if err != nil {
		return nil, ErrInvalidCron
	}
	return sched, nil
}
