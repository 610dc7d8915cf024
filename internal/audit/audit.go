// Package audit implements structured audit event emission to pluggable
// sinks.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Actor identifies who performed the audited action.
type Actor struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
	IP       string `json:"ip,omitempty"`
	UA       string `json:"ua,omitempty"`
	Session  string `json:"session,omitempty"`
}

// Resource identifies what the audited action targeted.
type Resource struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
	Cluster   string `json:"cluster,omitempty"`
}

// Outcome enumerates the audited result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is a single audit event.
type Event struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	EventType      string         `json:"eventType"`
	Actor          Actor          `json:"actor"`
	Resource       Resource       `json:"resource"`
	Outcome        Outcome        `json:"outcome"`
	Details        map[string]any `json:"details,omitempty"`
	ComplianceTags []string       `json:"complianceTags,omitempty"`
}

// Sink persists or forwards audit events; implementations never fail the
// caller (Emit swallows sink errors).
type Sink interface {
	Name() string
	Write(ctx context.Context, event Event) error
}

// Set fans an audit event out to every configured sink.
type Set struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewSet constructs a Set over the given sinks.
func NewSet(sinks []Sink, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{sinks: sinks, logger: logger}
}

// Emit builds an Event from the engine's narrow view (eventType, outcome,
// namespace, free-form details) and writes it to every sink, swallowing
// individual failures.
func (s *Set) Emit(ctx context.Context, eventType, outcome, namespace string, details map[string]any) {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Outcome:   Outcome(outcome),
		Resource:  Resource{Type: "admission", Namespace: namespace},
		Details:   details,
	}
	if actor, ok := details["user"].(string); ok {
		event.Actor = Actor{Type: "user", Identity: actor}
	}
	if name, ok := details["name"].(string); ok {
		event.Resource.Name = name
	}
	if kind, ok := details["kind"].(string); ok {
		event.Resource.Type = kind
	}

	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			s.logger.Warn("audit: sink write failed", "sink", sink.Name(), "error", err)
		}
	}
}
