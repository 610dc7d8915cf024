package exemption

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/metrics"
)

// Backend persists the full exemption set. Implementations: an in-memory
// no-op (NopBackend), a store.Store-backed JSON blob (StoreBackend, the
// "memory" profile), and a SQL-backed store (package sqlstore) for the
// "standard"/"lite" deployment profiles.
type Backend interface {
	Load(ctx context.Context) (map[string]Exemption, error)
	Save(ctx context.Context, exemptions map[string]Exemption) error
}

// NopBackend is a Backend that keeps state only in the Manager's own
// in-memory map; Save/Load are no-ops, so nothing survives a restart.
type NopBackend struct{}

func (NopBackend) Load(context.Context) (map[string]Exemption, error) { return nil, nil }
func (NopBackend) Save(context.Context, map[string]Exemption) error   { return nil }

// Manager tracks and enforces the set of active exemptions.
type Manager struct {
	backend Backend
	clock   clock.Clock

	mu         sync.RWMutex
	exemptions map[string]Exemption
}

// NewManager loads the initial state from backend and returns a ready
// Manager.
func NewManager(ctx context.Context, backend Backend, clk clock.Clock) (*Manager, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	m := &Manager{backend: backend, clock: clk, exemptions: map[string]Exemption{}}
	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		m.exemptions = loaded
	}
	return m, nil
}

// Create builds and persists a new exemption.
func (m *Manager) Create(ctx context.Context, namespace, resourceName string, durationMinutes int, reason, approvedBy string) (Exemption, error) {
	e := New(uuid.NewString(), namespace, resourceName, durationMinutes, reason, approvedBy, m.clock.Now())

	m.mu.Lock()
	m.exemptions[e.ID] = e
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.backend.Save(ctx, snapshot); err != nil {
		m.mu.Lock()
		delete(m.exemptions, e.ID)
		m.mu.Unlock()
		return Exemption{}, err
	}
	return e, nil
}

// Get returns a single exemption by id.
func (m *Manager) Get(id string) (Exemption, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exemptions[id]
	return e, ok
}

// List returns exemptions, optionally filtered by namespace and/or
// restricted to currently-valid ones.
func (m *Manager) List(namespace string, activeOnly bool) []Exemption {
	now := m.clock.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Exemption, 0, len(m.exemptions))
	for _, e := range m.exemptions {
		if namespace != "" && e.Namespace != namespace {
			continue
		}
		if activeOnly && !e.IsValid(now) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

// Check returns the nearest-expiry active exemption covering namespace and
// (optionally) resourceName: a namespace-wide exemption (no resourceName)
// matches any resource; a resource-scoped one matches only that resource
// name.
func (m *Manager) Check(namespace, resourceName string) (Exemption, bool) {
	now := m.clock.Now()
	m.mu.RLock()
	candidates := make([]Exemption, 0)
	for _, e := range m.exemptions {
		if e.Namespace != namespace || !e.IsValid(now) {
			continue
		}
		if e.ResourceName == "" || e.ResourceName == resourceName {
			candidates = append(candidates, e)
		}
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return Exemption{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ExpiresAt.Before(candidates[j].ExpiresAt) })
	return candidates[0], true
}

// Use marks an exemption used, for audit observability only; it does not
// affect validity.
func (m *Manager) Use(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.exemptions[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	e.Used = true
	m.exemptions[id] = e
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	return m.backend.Save(ctx, snapshot)
}

// Delete removes an exemption by id, persisting before returning.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.exemptions, id)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	return m.backend.Save(ctx, snapshot)
}

// CleanupExpired removes all exemptions whose expiry has passed (now >=
// expiresAt) and persists the result.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	now := m.clock.Now()
	m.mu.Lock()
	removed := 0
	for id, e := range m.exemptions {
		if !now.Before(e.ExpiresAt) {
			delete(m.exemptions, id)
			removed++
		}
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	metrics.ExemptionsActive.Set(float64(len(snapshot)))

	if removed == 0 {
		return 0, nil
	}
	return removed, m.backend.Save(ctx, snapshot)
}

func (m *Manager) snapshotLocked() map[string]Exemption {
	out := make(map[string]Exemption, len(m.exemptions))
	for k, v := range m.exemptions {
		out[k] = v
	}
	return out
}

// StartSweeper runs CleanupExpired on the given interval until ctx is
// canceled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = m.CleanupExpired(ctx)
			}
		}
	}()
}
