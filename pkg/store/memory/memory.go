package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/heartbeat-go/pkg/store"
)

// MemoryStore is an in-memory implementation of IBeatStore.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryStore struct {
	mu sync.RWMutex

	beats  map[string]*store.BeatRecord
	closed bool
}

// NewMemoryStore creates a new in-memory beat store.
// Prints a loud warning since this should only be used for testing.
func NewMemoryStore() *MemoryStore {
	fmt.Println("⚠️  WARNING: Using in-memory store - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Use the badger or redis store for production")

	return &MemoryStore{
		beats: make(map[string]*store.BeatRecord),
	}
}

// SaveBeat persists a beat record.
func (m *MemoryStore) SaveBeat(record *store.BeatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	if err := store.ValidateRecord(record); err != nil {
		return err
	}

	// Round-trip through JSON for a deep copy
	data, err := store.MarshalBeatRecord(record)
	if err != nil {
		return err
	}
	clone, err := store.UnmarshalBeatRecord(data)
	if err != nil {
		return err
	}
	m.beats[record.ID] = clone

	return nil
}

// LoadBeat retrieves a beat record by ID.
func (m *MemoryStore) LoadBeat(id string) (*store.BeatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	record, exists := m.beats[id]
	if !exists {
		return nil, nil // Not found is not an error
	}

	data, err := store.MarshalBeatRecord(record)
	if err != nil {
		return nil, err
	}
	return store.UnmarshalBeatRecord(data)
}

// ListBeats returns all beat records sorted by ID.
func (m *MemoryStore) ListBeats() ([]*store.BeatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ids := make([]string, 0, len(m.beats))
	for id := range m.beats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]*store.BeatRecord, 0, len(ids))
	for _, id := range ids {
		data, err := store.MarshalBeatRecord(m.beats[id])
		if err != nil {
			return nil, err
		}
		clone, err := store.UnmarshalBeatRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, clone)
	}

	return records, nil
}

// DeleteBeat removes a beat record by ID.
func (m *MemoryStore) DeleteBeat(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	delete(m.beats, id)
	return nil
}

// UpdateState replaces the stored challenge state of a beat.
func (m *MemoryStore) UpdateState(id string, state json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	record, exists := m.beats[id]
	if !exists {
		return fmt.Errorf("beat %s not found", id)
	}

	record.State = append(json.RawMessage(nil), state...)
	return nil
}

// Close shuts down the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.beats = nil
	return nil
}

// HealthCheck verifies the store is operational.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

var _ store.IBeatStore = (*MemoryStore)(nil)
