package service

import "github.com/stateflow/stateflow/pkg/models"

// PreTransitionObserver is consulted before a transition persists.
// Returning false vetoes the transition; the entity keeps its state.
type PreTransitionObserver interface {
	PreTransition(t *models.Transition, actorID string) bool
}

// CommentMutator may adjust the comment of a transition right before it is
// written to history.
type CommentMutator interface {
	AlterComment(t *models.Transition)
}

// PostTransitionObserver is notified after a transition executed. It runs
// outside the persistence transaction and cannot affect the outcome.
type PostTransitionObserver interface {
	PostTransition(t *models.Transition, actorID string)
}

// CacheInvalidator receives the scheduler's signal that entity-state
// dependent rendering must be recomputed. Fired once per scheduler run
// when any processed transition touched the generic workflow field.
type CacheInvalidator interface {
	InvalidateEntityState()
}

// PreTransitionFunc adapts a plain function to PreTransitionObserver.
type PreTransitionFunc func(t *models.Transition, actorID string) bool

func (f PreTransitionFunc) PreTransition(t *models.Transition, actorID string) bool {
	return f(t, actorID)
}

// PostTransitionFunc adapts a plain function to PostTransitionObserver.
type PostTransitionFunc func(t *models.Transition, actorID string)

func (f PostTransitionFunc) PostTransition(t *models.Transition, actorID string) {
	f(t, actorID)
}
