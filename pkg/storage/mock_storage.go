package storage

import (
	"sort"

	"github.com/stateflow/stateflow/pkg/models"
)

// mockStore implements Store with in-memory storage
type mockStore struct {
	executed  []models.Transition
	scheduled []models.Transition
	nextID    int64 // For history record IDs
}

// NewMockStore returns an empty in-memory Store for tests.
func NewMockStore() Store {
	return &mockStore{}
}

func (m *mockStore) Begin() (Store, error) {
	return m, nil
}

func (m *mockStore) Commit() error {
	// The mock is not transactional; Commit is a no-op so a single
	// instance can serve many service calls within one test.
	return nil
}

func (m *mockStore) Rollback() error {
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveExecuted(t models.Transition) (int64, error) {
	m.nextID++
	t.ID = m.nextID
	m.executed = append(m.executed, t)
	return t.ID, nil
}

func (m *mockStore) SaveScheduled(t models.Transition) error {
	for i, s := range m.scheduled {
		if s.EntityType == t.EntityType && s.EntityID == t.EntityID && s.Field == t.Field {
			m.scheduled[i] = t
			return nil
		}
	}
	m.scheduled = append(m.scheduled, t)
	return nil
}

func (m *mockStore) LatestExecuted(entityType, entityID, field string) (models.Transition, error) {
	return m.PreviousExecuted(entityType, entityID, field, 0)
}

func (m *mockStore) PreviousExecuted(entityType, entityID, field string, excludeID int64) (models.Transition, error) {
	for i := len(m.executed) - 1; i >= 0; i-- {
		t := m.executed[i]
		if t.EntityType == entityType && t.EntityID == entityID && t.Field == field && t.ID != excludeID {
			return t, nil
		}
	}
	return models.Transition{}, ErrNotFound
}

func (m *mockStore) ListExecuted(entityType, entityID, field string) ([]models.Transition, error) {
	var out []models.Transition
	for i := len(m.executed) - 1; i >= 0; i-- {
		t := m.executed[i]
		if t.EntityType == entityType && t.EntityID == entityID && t.Field == field {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) ScheduledFor(entityType, entityID, field string) (models.Transition, error) {
	for _, t := range m.scheduled {
		if t.EntityType == entityType && t.EntityID == entityID && t.Field == field {
			return t, nil
		}
	}
	return models.Transition{}, ErrNotFound
}

func (m *mockStore) DueScheduled(start, end int64) ([]models.Transition, error) {
	var due []models.Transition
	for _, t := range m.scheduled {
		if t.Timestamp > start && t.Timestamp <= end {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Timestamp < due[j].Timestamp
	})
	return due, nil
}

func (m *mockStore) DeleteScheduled(entityType, entityID, field string) error {
	for i, t := range m.scheduled {
		if t.EntityType == entityType && t.EntityID == entityID && t.Field == field {
			m.scheduled = append(m.scheduled[:i], m.scheduled[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockStore) DeleteForEntity(entityType, entityID, field string) error {
	var kept []models.Transition
	for _, t := range m.executed {
		if t.EntityType == entityType && t.EntityID == entityID && t.Field == field {
			continue
		}
		kept = append(kept, t)
	}
	m.executed = kept
	return m.DeleteScheduled(entityType, entityID, field)
}
