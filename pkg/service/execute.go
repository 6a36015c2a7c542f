package service

import (
	"github.com/pkg/errors"

	"github.com/stateflow/stateflow/pkg/models"
)

// Execute runs one transition through validation, authorization, observer
// hooks and persistence, and returns the entity's resulting state id.
//
// Every validation and authorization failure is soft: it is logged, the
// entity keeps its state and the unchanged from-state id comes back with a
// nil error. Only persistence failures and structurally broken transitions
// return an error.
func (s *WorkflowService) Execute(ec *ExecutionContext, t *models.Transition, force bool) (string, error) {
	if t.FromState == "" && t.EntityID == "" {
		return "", ErrInvalidTransition
	}
	wt := s.types[t.WorkflowType]
	if wt == nil {
		return t.FromState, errors.Wrapf(ErrUnknownWorkflow, "%q", t.WorkflowType)
	}
	if ec == nil {
		ec = NewExecutionContext()
	}
	if force {
		t.Forced = true
	}

	// Resolve the target entity.
	adapter := s.adapter(t.EntityType)
	if adapter == nil {
		s.logger.Errorf("no entity adapter registered for type %q; transition %s not executed", t.EntityType, t.StateLabel())
		return t.FromState, nil
	}
	ent, err := adapter.Resolve(t.EntityID)
	if err != nil {
		s.logger.Errorf("entity %s/%s could not be resolved: %v; transition %s not executed",
			t.EntityType, t.EntityID, err, t.StateLabel())
		return t.FromState, nil
	}

	// Duplicate-execution guard: the same (entity, field, from-to) tuple
	// executed earlier in this context returns its prior outcome without
	// touching storage again. Denied or failed attempts leave no outcome,
	// so a retry in the same context runs the full pipeline again.
	if prior, ok := ec.Outcome(t); ok && !t.IsEmpty() {
		s.logger.Infof("transition %s for %s/%s field %q already executed in this context; returning prior outcome %q",
			t.StateLabel(), t.EntityType, t.EntityID, t.Field, prior)
		return prior, nil
	}
	// A reentrant call while this very execution is still running sees the
	// unchanged from-state.
	if ec.inFlight(t) {
		return t.FromState, nil
	}
	ec.enter(t)
	defer ec.leave(t)

	if !s.validate(wt, t) {
		return t.FromState, nil
	}

	if t.HasStateChange() && !t.Forced {
		isOwner := ent.IsNew() || ent.OwnerID() == t.ActorID
		if !s.authz.IsAllowed(t, t.ActorID, isOwner, false) {
			return t.FromState, nil
		}
	}

	for _, o := range s.preObservers() {
		if !o.PreTransition(t, t.ActorID) {
			s.logger.Warnf("transition %s for %s/%s vetoed by pre-transition observer",
				t.StateLabel(), t.EntityType, t.EntityID)
			return t.FromState, nil
		}
	}

	if t.Scheduled {
		if !wt.Settings.ScheduleEnabled {
			s.logger.Warnf("workflow %q does not allow scheduling; transition %s not stored", wt.ID, t.StateLabel())
			return t.FromState, nil
		}
		if err := s.persistScheduled(t); err != nil {
			return t.FromState, err
		}
		s.logger.Infof("scheduled transition %s for %s/%s field %q, due at %d",
			t.StateLabel(), t.EntityType, t.EntityID, t.Field, t.Timestamp)
		// The entity's current state does not change until the schedule
		// fires, and storing a schedule is not an execution: no outcome is
		// recorded, so it stays replaceable within the same context.
		return t.FromState, nil
	}

	t.Executed = true
	for _, m := range s.commentMutators() {
		m.AlterComment(t)
	}

	if !t.IsEmpty() {
		if err := s.persistExecuted(t); err != nil {
			t.Executed = false
			return t.FromState, err
		}
		ent.SetStateValue(t.Field, t.ToState)
		if wt.Settings.AuditLog {
			s.logger.Infof("executed transition %s for %s/%s field %q by actor %s (forced=%t)",
				t.StateLabel(), t.EntityType, t.EntityID, t.Field, t.ActorID, t.Forced)
		}
	}

	for _, o := range s.postObservers() {
		o.PostTransition(t, t.ActorID)
	}

	ec.Record(t, t.ToState)
	return t.ToState, nil
}

// Schedule stores the transition for deferred execution at its Timestamp.
// The entity keeps its current state until the scheduler fires it.
func (s *WorkflowService) Schedule(ec *ExecutionContext, t *models.Transition, force bool) (string, error) {
	t.Scheduled = true
	return s.Execute(ec, t, force)
}

// validate fails closed on unknown states, missing entities handled by the
// caller, and a missing comment when the workflow type requires one.
func (s *WorkflowService) validate(wt *models.WorkflowType, t *models.Transition) bool {
	if wt.State(t.FromState) == nil {
		s.logger.Errorf("workflow %q has no state %q; transition for %s/%s not executed",
			wt.ID, t.FromState, t.EntityType, t.EntityID)
		return false
	}
	if wt.State(t.ToState) == nil {
		s.logger.Errorf("workflow %q has no state %q; transition for %s/%s not executed",
			wt.ID, t.ToState, t.EntityType, t.EntityID)
		return false
	}
	if wt.Settings.CommentRequired && t.Comment == "" && t.HasStateChange() {
		s.logger.Warnf("workflow %q requires a comment; transition %s for %s/%s not executed",
			wt.ID, t.StateLabel(), t.EntityType, t.EntityID)
		return false
	}
	return true
}

func (s *WorkflowService) persistExecuted(t *models.Transition) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	id, err := txStore.SaveExecuted(*t)
	if err != nil {
		return errors.Wrap(err, "persist executed transition")
	}
	t.ID = id
	// A fired schedule leaves no pending record behind.
	if err = txStore.DeleteScheduled(t.EntityType, t.EntityID, t.Field); err != nil {
		return errors.Wrap(err, "clear superseded schedule")
	}
	return nil
}

func (s *WorkflowService) persistScheduled(t *models.Transition) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.SaveScheduled(*t); err != nil {
		return errors.Wrap(err, "persist scheduled transition")
	}
	return nil
}

func (s *WorkflowService) preObservers() []PreTransitionObserver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pre
}

func (s *WorkflowService) commentMutators() []CommentMutator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutators
}

func (s *WorkflowService) postObservers() []PostTransitionObserver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.post
}
