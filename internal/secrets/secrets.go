// Package secrets persists the bridge credentials and the room selection.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Well-known keys.
const (
	KeyBridgeAddress     = "bridge_address"
	KeyApplicationKey    = "application_key"
	KeyRoomConfiguration = "room_configuration"
)

// Store is the credential storage the engine reads and writes through.
// Load reports ok=false for a missing key; Delete of a missing key is not an error.
type Store interface {
	Load(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// LoadJSON loads and unmarshals a JSON value.
func LoadJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var value T
	raw, ok, err := s.Load(ctx, key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return value, false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return value, true, nil
}

// SaveJSON marshals and saves a value.
func SaveJSON(ctx context.Context, s Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Save(ctx, key, string(data))
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
