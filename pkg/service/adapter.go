package service

import (
	"sync"

	"github.com/pkg/errors"
)

// Entity is the engine's view of one target content object. The engine
// only ever writes the in-memory workflow field value; persisting the
// entity itself stays with the owning save flow to avoid double writes.
type Entity interface {
	ID() string
	// IsNew reports whether the entity has never been saved. New entities
	// are always considered owned by the acting user.
	IsNew() bool
	OwnerID() string
	StateValue(field string) string
	SetStateValue(field, stateID string)
}

// EntityAdapter resolves and saves entities of one entity type. One
// adapter is registered per entity type outside the core engine.
type EntityAdapter interface {
	Resolve(entityID string) (Entity, error)
	Save(e Entity) error
}

// memoryEntity is the in-memory Entity used by tests and the demo CLI.
type memoryEntity struct {
	id     string
	owner  string
	isNew  bool
	fields map[string]string
	mu     sync.Mutex
}

func (e *memoryEntity) ID() string      { return e.id }
func (e *memoryEntity) IsNew() bool     { return e.isNew }
func (e *memoryEntity) OwnerID() string { return e.owner }

func (e *memoryEntity) StateValue(field string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fields[field]
}

func (e *memoryEntity) SetStateValue(field, stateID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[field] = stateID
}

// MemoryAdapter keeps entities in a map. With autoCreate enabled,
// resolving an unknown id materializes an owned, already-saved entity —
// handy for the CLI where entity state lives entirely in the history
// store.
type MemoryAdapter struct {
	entities   map[string]*memoryEntity
	autoCreate bool
	mu         sync.Mutex
}

func NewMemoryAdapter(autoCreate bool) *MemoryAdapter {
	return &MemoryAdapter{
		entities:   make(map[string]*memoryEntity),
		autoCreate: autoCreate,
	}
}

// Add registers an entity with the given owner. isNew marks an entity that
// has not been through its first save yet.
func (a *MemoryAdapter) Add(entityID, ownerID string, isNew bool) Entity {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := &memoryEntity{id: entityID, owner: ownerID, isNew: isNew, fields: make(map[string]string)}
	a.entities[entityID] = e
	return e
}

func (a *MemoryAdapter) Resolve(entityID string) (Entity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entities[entityID]; ok {
		return e, nil
	}
	if a.autoCreate {
		e := &memoryEntity{id: entityID, fields: make(map[string]string)}
		a.entities[entityID] = e
		return e, nil
	}
	return nil, errors.Errorf("entity %q not found", entityID)
}

func (a *MemoryAdapter) Save(e Entity) error {
	if me, ok := e.(*memoryEntity); ok {
		me.isNew = false
	}
	return nil
}
