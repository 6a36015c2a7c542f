package service

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/stateflow/stateflow/pkg/models"
	"github.com/stateflow/stateflow/pkg/storage"
)

// Logger defines the logging interface for WorkflowService
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultField is the field name of an entity's generic workflow. Entities
// carrying several independent workflows use explicit field names instead.
const DefaultField = ""

var (
	// ErrUnknownWorkflow indicates a transition referencing a workflow type
	// that was never loaded. Surfaced as a hard configuration error.
	ErrUnknownWorkflow = errors.New("unknown workflow type")

	// ErrInvalidTransition indicates a transition missing both a source
	// state and a target entity; nothing sensible can be done with it.
	ErrInvalidTransition = errors.New("transition has no source state and no entity")

	// ErrNotRevertable indicates the latest executed transition cannot be
	// reverted (no state change, inactive source, or creation state).
	ErrNotRevertable = errors.New("transition is not revertable")
)

// WorkflowService is the execution engine for content workflow transitions.
// It validates, authorizes and persists state changes, immediately or at a
// scheduled due time, and answers state queries from the recorded history.
type WorkflowService struct {
	store    storage.Store
	logger   Logger
	types    map[string]*models.WorkflowType
	authz    *Authorizer
	adapters map[string]EntityAdapter

	pre         []PreTransitionObserver
	mutators    []CommentMutator
	post        []PostTransitionObserver
	invalidator CacheInvalidator

	mu sync.RWMutex
}

// NewWorkflowService wires the engine with its store, capability provider
// and the loaded workflow type definitions.
func NewWorkflowService(store storage.Store, caps CapabilityProvider, types []models.WorkflowType, logger Logger) *WorkflowService {
	byID := make(map[string]*models.WorkflowType, len(types))
	for i := range types {
		byID[types[i].ID] = &types[i]
	}
	return &WorkflowService{
		store:    store,
		logger:   logger,
		types:    byID,
		authz:    NewAuthorizer(caps, byID, logger),
		adapters: make(map[string]EntityAdapter),
	}
}

// WorkflowType returns the loaded definition for the given id, or nil.
func (s *WorkflowService) WorkflowType(id string) *models.WorkflowType {
	return s.types[id]
}

// Authorizer exposes the authorization engine, mainly for callers that
// need ReachableStates for their own surfaces.
func (s *WorkflowService) Authorizer() *Authorizer {
	return s.authz
}

// RegisterAdapter installs the entity adapter for one entity type.
func (s *WorkflowService) RegisterAdapter(entityType string, a EntityAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[entityType] = a
}

func (s *WorkflowService) adapter(entityType string) EntityAdapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapters[entityType]
}

// RegisterPreObserver appends a pre-transition observer. Observers run in
// registration order; any veto stops the transition.
func (s *WorkflowService) RegisterPreObserver(o PreTransitionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre = append(s.pre, o)
}

// RegisterCommentMutator appends a comment mutator, run just before an
// executed transition is persisted.
func (s *WorkflowService) RegisterCommentMutator(m CommentMutator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutators = append(s.mutators, m)
}

// RegisterPostObserver appends a post-transition observer. Post observers
// are notification only and cannot affect the outcome.
func (s *WorkflowService) RegisterPostObserver(o PostTransitionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.post = append(s.post, o)
}

// SetCacheInvalidator installs the hook the scheduler signals after firing
// transitions on the generic workflow field.
func (s *WorkflowService) SetCacheInvalidator(ci CacheInvalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidator = ci
}

// ReachableStates lists the states the actor may move the entity's
// workflow to from its current state, ordered by state weight. Unknown
// workflow types or states yield an empty list, never an error.
func (s *WorkflowService) ReachableStates(wtID, entityType, entityID, field, actorID string, force bool) []models.State {
	wt := s.types[wtID]
	if wt == nil {
		return nil
	}
	current, err := s.CurrentState(wtID, entityType, entityID, field)
	if err != nil {
		return nil
	}
	// Ownership grants the implicit author role, so it must be proven: an
	// entity the engine cannot resolve is nobody's.
	isOwner := false
	if a := s.adapter(entityType); a != nil {
		if ent, err := a.Resolve(entityID); err == nil {
			isOwner = ent.IsNew() || ent.OwnerID() == actorID
		}
	}
	return s.authz.ReachableStates(wt, current, actorID, isOwner, force)
}

// CurrentState returns the entity's current workflow state: the target of
// the most recent executed transition, falling back to the previous-state
// computation and ultimately the workflow type's creation state.
func (s *WorkflowService) CurrentState(wtID, entityType, entityID, field string) (string, error) {
	t, err := s.store.LatestExecuted(entityType, entityID, field)
	if err == nil {
		return t.ToState, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", errors.Wrap(err, "query current state")
	}
	return s.PreviousState(wtID, entityType, entityID, field, 0)
}

// PreviousState returns the state the entity held before the transition
// identified by excludeID; with excludeID 0 it is the state before the
// entity had any history at all, i.e. the creation state.
func (s *WorkflowService) PreviousState(wtID, entityType, entityID, field string, excludeID int64) (string, error) {
	t, err := s.store.PreviousExecuted(entityType, entityID, field, excludeID)
	if err == nil {
		return t.ToState, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", errors.Wrap(err, "query previous state")
	}
	wt := s.types[wtID]
	if wt == nil {
		return "", ErrUnknownWorkflow
	}
	cs := wt.CreationState()
	if cs == nil {
		return "", errors.Errorf("workflow %q has no creation state", wtID)
	}
	return cs.ID, nil
}

// History returns the executed transition history, most recent first.
func (s *WorkflowService) History(entityType, entityID, field string) ([]models.Transition, error) {
	return s.store.ListExecuted(entityType, entityID, field)
}

// ScheduledFor returns the pending scheduled transition for the entity's
// field, or storage.ErrNotFound.
func (s *WorkflowService) ScheduledFor(entityType, entityID, field string) (models.Transition, error) {
	return s.store.ScheduledFor(entityType, entityID, field)
}

// DeleteForEntity removes all workflow records for the (entity, field)
// pair, history and pending schedules alike. Called when the entity or the
// field itself goes away.
func (s *WorkflowService) DeleteForEntity(entityType, entityID, field string) error {
	return errors.Wrap(s.store.DeleteForEntity(entityType, entityID, field), "delete workflow records")
}
