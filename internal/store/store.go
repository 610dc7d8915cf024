// Package store defines the external resource store adapter boundary: a
// read/patch/create/watch interface over named configuration records,
// namespaced, that the rest of the gatekeeper treats as its only durable
// dependency.
package store

import (
	"context"
	"errors"
)

// EventType mirrors the watch event kinds the Config Loader reacts to.
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
	EventError    EventType = "ERROR"
)

// Event is a single watch notification for a record.
type Event struct {
	Type EventType
	Name string
	// Data is the record's flat string-map body at the time of the event.
	// Nil for EventDeleted and EventError.
	Data map[string]string
	Err  error
}

// Store is the minimal surface every pluggable backend (ConfigMap-backed,
// in-memory, SQL-backed) must provide. Records are flat string maps, which
// is how Kubernetes ConfigMap/Secret `data` is natively shaped; callers
// (Config Loader, Schedule Store, Exemption Manager, History Tracker,
// Template Engine, Notification Dispatcher) marshal their typed payloads
// into and out of individual keys of that map.
type Store interface {
	// Read fetches the current record body. Returns a *NotFoundError if absent.
	Read(ctx context.Context, name string) (map[string]string, error)

	// Patch merges the given keys into the record, creating it if the
	// backend supports upsert-on-patch (the Kubernetes adapter does: it
	// reads the ConfigMap, merges the keys and updates it, or creates it
	// when missing).
	Patch(ctx context.Context, name string, data map[string]string) error

	// Create creates a new record. Returns an *AlreadyExistsError if present.
	Create(ctx context.Context, name string, data map[string]string) error

	// Watch subscribes to changes for name. The returned channel is closed
	// when ctx is canceled or the subscription cannot be sustained; callers
	// must re-subscribe on closure (the Config Loader does this as part of
	// its re-subscribe-on-timeout cue).
	Watch(ctx context.Context, name string) (<-chan Event, error)
}

// NotFoundError indicates the named record does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return "store: record not found: " + e.Name }

// AlreadyExistsError indicates a Create call targeted an existing record.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string { return "store: record already exists: " + e.Name }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
