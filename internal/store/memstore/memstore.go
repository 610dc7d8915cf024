// Package memstore is an in-memory store.Store, used in tests, for the
// "memory" deployment profile, and for the other profiles when
// store.in_cluster is false.
package memstore

import (
	"context"
	"sync"

	"github.com/freezegate/freezegate/internal/store"
)

// Store is a goroutine-safe in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]string
	subs    map[string][]chan store.Event
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]map[string]string),
		subs:    make(map[string][]chan store.Event),
	}
}

func (s *Store) Read(_ context.Context, name string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return nil, &store.NotFoundError{Name: name}
	}
	return cloneMap(rec), nil
}

func (s *Store) Patch(_ context.Context, name string, data map[string]string) error {
	s.mu.Lock()
	rec, ok := s.records[name]
	if !ok {
		rec = make(map[string]string)
		s.records[name] = rec
	}
	for k, v := range data {
		rec[k] = v
	}
	evType := store.EventModified
	if !ok {
		evType = store.EventAdded
	}
	snapshot := cloneMap(rec)
	subs := append([]chan store.Event(nil), s.subs[name]...)
	s.mu.Unlock()

	s.broadcast(subs, store.Event{Type: evType, Name: name, Data: snapshot})
	return nil
}

func (s *Store) Create(_ context.Context, name string, data map[string]string) error {
	s.mu.Lock()
	if _, ok := s.records[name]; ok {
		s.mu.Unlock()
		return &store.AlreadyExistsError{Name: name}
	}
	s.records[name] = cloneMap(data)
	subs := append([]chan store.Event(nil), s.subs[name]...)
	s.mu.Unlock()

	s.broadcast(subs, store.Event{Type: store.EventAdded, Name: name, Data: cloneMap(data)})
	return nil
}

// Delete removes a record and notifies watchers, used by tests that
// exercise the Config Loader's DELETED handling.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	delete(s.records, name)
	subs := append([]chan store.Event(nil), s.subs[name]...)
	s.mu.Unlock()

	s.broadcast(subs, store.Event{Type: store.EventDeleted, Name: name})
}

func (s *Store) Watch(ctx context.Context, name string) (<-chan store.Event, error) {
	ch := make(chan store.Event, 4)
	s.mu.Lock()
	s.subs[name] = append(s.subs[name], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.subs[name]
		for i, c := range list {
			if c == ch {
				s.subs[name] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (s *Store) broadcast(subs []chan store.Event, ev store.Event) {
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// coalescing: drop if the subscriber is behind, newest wins on
			// next send since the loader always re-reads the full record.
		}
	}
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
