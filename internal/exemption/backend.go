package exemption

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/freezegate/freezegate/internal/store"
)

// RecordName is the persisted-records key for the exemptions body: a
// single key holding a JSON object of {id: serialized exemption}.
const RecordName = "exemptions"

// DataKey is the single map key under which the JSON object lives.
const DataKey = "exemptions.json"

// StoreBackend persists the exemption set as a single JSON object keyed by
// id, in a store.Store record. This is the backend for the "memory"
// deployment profile, which has no SQL database.
type StoreBackend struct {
	backend store.Store
}

// NewStoreBackend wraps a store.Store as an exemption Backend.
func NewStoreBackend(backend store.Store) *StoreBackend {
	return &StoreBackend{backend: backend}
}

func (b *StoreBackend) Load(ctx context.Context) (map[string]Exemption, error) {
	data, err := b.backend.Read(ctx, RecordName)
	if err != nil {
		if store.IsNotFound(err) {
			return map[string]Exemption{}, nil
		}
		return nil, err
	}
	return Decode(data[DataKey])
}

func (b *StoreBackend) Save(ctx context.Context, exemptions map[string]Exemption) error {
	body, err := Encode(exemptions)
	if err != nil {
		return fmt.Errorf("exemption store backend: encode: %w", err)
	}
	return b.backend.Patch(ctx, RecordName, map[string]string{DataKey: body})
}

// Encode renders the exemption set as a JSON object keyed by id.
func Encode(exemptions map[string]Exemption) (string, error) {
	if exemptions == nil {
		exemptions = map[string]Exemption{}
	}
	out, err := json.Marshal(exemptions)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decode parses a JSON object keyed by id into the exemption set.
func Decode(body string) (map[string]Exemption, error) {
	if body == "" {
		return map[string]Exemption{}, nil
	}
	var out map[string]Exemption
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]Exemption{}
	}
	return out, nil
}
