package schedule

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/freezegate/freezegate/internal/store"
)

// RecordName is the persisted-records key for the schedules body: a single
// key holding a YAML list of Schedule entries in canonical field order.
const RecordName = "schedules"

// DataKey is the single map key under which the YAML body lives.
const DataKey = "schedules.yaml"

// Store is a persisted list of schedules with CRUD in canonical field
// order, backed by store.Store.
type Store struct {
	backend store.Store

	mu        sync.RWMutex
	schedules []Schedule
}

// NewStore loads the current schedule list from backend (best-effort; an
// absent record starts from an empty list) and returns a ready Store.
func NewStore(ctx context.Context, backend store.Store) (*Store, error) {
	s := &Store{backend: backend}
	if err := s.reload(ctx); err != nil && !store.IsNotFound(err) {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload(ctx context.Context) error {
	data, err := s.backend.Read(ctx, RecordName)
	if err != nil {
		return err
	}
	list, err := Decode(data[DataKey])
	if err != nil {
		return fmt.Errorf("schedule store: decode: %w", err)
	}
	s.mu.Lock()
	s.schedules = list
	s.mu.Unlock()
	return nil
}

// List returns a defensive copy of the current schedule list, in canonical
// (insertion) order.
func (s *Store) List() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Schedule(nil), s.schedules...)
}

// Get returns the schedule with the given name, if present.
func (s *Store) Get(name string) (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sch := range s.schedules {
		if sch.Name == name {
			return sch, true
		}
	}
	return Schedule{}, false
}

// Add validates and appends sch (rejecting a duplicate name), persisting
// before returning.
func (s *Store) Add(ctx context.Context, sch Schedule) error {
	if err := sch.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	for _, existing := range s.schedules {
		if existing.Name == sch.Name {
			s.mu.Unlock()
			return fmt.Errorf("schedule store: duplicate name %q", sch.Name)
		}
	}
	updated := append(append([]Schedule(nil), s.schedules...), sch)
	s.mu.Unlock()
	return s.persist(ctx, updated)
}

// Remove deletes the schedule with the given name, persisting before
// returning. It is a no-op (no error) if the name is absent, mirroring the
// idempotent DELETE semantics of the REST surface.
func (s *Store) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	updated := make([]Schedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		if sch.Name != name {
			updated = append(updated, sch)
		}
	}
	s.mu.Unlock()
	return s.persist(ctx, updated)
}

func (s *Store) persist(ctx context.Context, list []Schedule) error {
	body, err := Encode(list)
	if err != nil {
		return fmt.Errorf("schedule store: encode: %w", err)
	}
	if err := s.backend.Patch(ctx, RecordName, map[string]string{DataKey: body}); err != nil {
		return err
	}
	s.mu.Lock()
	s.schedules = list
	s.mu.Unlock()
	return nil
}

// Reload re-reads the backend, used by periodic reconciliation.
func (s *Store) Reload(ctx context.Context) error {
	return s.reload(ctx)
}

// Encode renders a schedule list as canonical-order YAML.
func Encode(list []Schedule) (string, error) {
	if list == nil {
		list = []Schedule{}
	}
	out, err := yaml.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decode parses a canonical-order YAML schedule list. An empty body yields
// an empty, non-nil slice.
func Decode(body string) ([]Schedule, error) {
	if body == "" {
		return []Schedule{}, nil
	}
	var list []Schedule
	if err := yaml.Unmarshal([]byte(body), &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []Schedule{}
	}
	return list, nil
}
