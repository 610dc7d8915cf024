// Package history implements the history tracker: an append-only ring of
// governance events, persisted opportunistically to a pluggable Backend.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freezegate/freezegate/internal/store"
)

// RecordName is the persisted-records key for the history body
// when backed by the external resource store.
const RecordName = "history"

// DataKey is the single map key under which the JSON list lives.
const DataKey = "history.json"

// DefaultMaxEvents is the ring capacity when none is configured.
const DefaultMaxEvents = 1000

// Backend persists the full event ring. Implementations: a store.Store
// record holding the JSON-encoded ring (the "memory"/ConfigMap profiles),
// and a SQL-backed table (package sqlstore) for the "standard"/"lite"
// deployment profiles, mirroring the Exemption Manager's Backend split.
type Backend interface {
	Load(ctx context.Context) ([]Event, error)
	Save(ctx context.Context, events []Event) error
}

// StoreBackend persists the ring as a single JSON array in a store.Store
// record. This is the default backend for the "memory" deployment profile.
type StoreBackend struct {
	backend store.Store
}

// NewStoreBackend wraps a store.Store as a history Backend.
func NewStoreBackend(backend store.Store) *StoreBackend {
	return &StoreBackend{backend: backend}
}

func (b *StoreBackend) Load(ctx context.Context) ([]Event, error) {
	data, err := b.backend.Read(ctx, RecordName)
	if err != nil {
		if store.IsNotFound(err) {
			return []Event{}, nil
		}
		return nil, err
	}
	return Decode(data[DataKey])
}

func (b *StoreBackend) Save(ctx context.Context, events []Event) error {
	body, err := Encode(events)
	if err != nil {
		return fmt.Errorf("history store backend: encode: %w", err)
	}
	return b.backend.Patch(ctx, RecordName, map[string]string{DataKey: body})
}

// EventType enumerates the governance events the tracker records.
type EventType string

const (
	EventFreezeEnabled  EventType = "freeze_enabled"
	EventFreezeDisabled EventType = "freeze_disabled"
	EventBypassGranted  EventType = "bypass_granted"
	EventExemptionUsed  EventType = "exemption_used"
	EventViolation      EventType = "violation"
)

// Event is a single governance event.
type Event struct {
	ID              string    `json:"id"`
	EventType       EventType `json:"eventType"`
	Timestamp       time.Time `json:"timestamp"`
	Reason          string    `json:"reason,omitempty"`
	FreezeWindow    string    `json:"freezeWindow,omitempty"`
	Namespace       string    `json:"namespace,omitempty"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	TriggeredBy     string    `json:"triggeredBy,omitempty"`
}

// Tracker maintains the governance event history.
type Tracker struct {
	backend   Backend
	maxEvents int

	mu     sync.RWMutex
	events []Event
}

// NewTracker loads the current ring from backend (best-effort: an absent
// record starts empty) and returns a ready Tracker.
func NewTracker(ctx context.Context, backend Backend, maxEvents int) (*Tracker, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	t := &Tracker{backend: backend, maxEvents: maxEvents}

	events, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("history tracker: load: %w", err)
	}
	t.events = trim(events, maxEvents)
	return t, nil
}

// Record appends a new event, ring-trims, and persists before returning.
func (t *Tracker) Record(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	} else {
		ev.Timestamp = ev.Timestamp.UTC()
	}

	t.mu.Lock()
	updated := trim(append(append([]Event(nil), t.events...), ev), t.maxEvents)
	t.mu.Unlock()

	if err := t.persist(ctx, updated); err != nil {
		return err
	}
	t.mu.Lock()
	t.events = updated
	t.mu.Unlock()
	return nil
}

// List returns events matching the optional eventType/namespace filters,
// newest first, bounded by limit (0 means unlimited).
func (t *Tracker) List(eventType EventType, namespace string, limit int) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Event, 0, len(t.events))
	for i := len(t.events) - 1; i >= 0; i-- {
		ev := t.events[i]
		if eventType != "" && ev.EventType != eventType {
			continue
		}
		if namespace != "" && ev.Namespace != namespace {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (t *Tracker) persist(ctx context.Context, events []Event) error {
	return t.backend.Save(ctx, events)
}

// trim keeps at most maxEvents, dropping the oldest (ring semantics).
func trim(events []Event, maxEvents int) []Event {
	if len(events) <= maxEvents {
		return events
	}
	return append([]Event(nil), events[len(events)-maxEvents:]...)
}

// Encode renders the event list as JSON.
func Encode(events []Event) (string, error) {
	if events == nil {
		events = []Event{}
	}
	out, err := json.Marshal(events)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decode parses a JSON event list. An empty body yields an empty, non-nil
// slice.
func Decode(body string) ([]Event, error) {
	if body == "" {
		return []Event{}, nil
	}
	var events []Event
	if err := json.Unmarshal([]byte(body), &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}
