package session

import (
	"encoding/json"
	"sync"

	"github.com/reviewloop/pkg/models"
)

// MemStore is an in-memory Store used in tests. It round-trips records
// through JSON so it exercises the same encoding as the durable backends.
type MemStore struct {
	mu     sync.Mutex
	record []byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Open(targetID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record == nil {
		return reconcile(nil, targetID), nil
	}
	var stored State
	if err := json.Unmarshal(m.record, &stored); err != nil {
		return reconcile(nil, targetID), nil
	}
	return reconcile(&stored, targetID), nil
}

func (m *MemStore) Persist(state *State) error {
	if err := validateState(state); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.record = data
	m.mu.Unlock()
	return nil
}

func (m *MemStore) MarkHandled(state *State, tasks []models.FixTask, revisionID string) error {
	state.markHandled(tasks, revisionID)
	return m.Persist(state)
}

func (m *MemStore) IncrementCycle(state *State) (int, error) {
	state.Cycle++
	if err := m.Persist(state); err != nil {
		return 0, err
	}
	return state.Cycle, nil
}

func (m *MemStore) Clear(targetID string) error {
	m.mu.Lock()
	m.record = nil
	m.mu.Unlock()
	return nil
}
