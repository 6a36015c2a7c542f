package service

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// RunDue fires every scheduled transition whose due time falls in the
// half-open window (start, end], in ascending due order. A transition
// whose entity moved on since scheduling is stale: it is discarded and
// logged, never executed or re-targeted.
//
// One bad record does not abort the batch; only the initial store query
// can fail the run as a whole.
func (s *WorkflowService) RunDue(start, end int64) error {
	due, err := s.store.DueScheduled(start, end)
	if err != nil {
		return errors.Wrap(err, "query due scheduled transitions")
	}

	ec := NewExecutionContext()
	genericTouched := false
	for i := range due {
		t := due[i]
		current, err := s.CurrentState(t.WorkflowType, t.EntityType, t.EntityID, t.Field)
		if err != nil {
			s.logger.Errorf("cannot determine current state for %s/%s field %q: %v; skipping scheduled transition",
				t.EntityType, t.EntityID, t.Field, err)
			continue
		}
		if current != t.FromState {
			// The world changed since scheduling. Drop the record; there is
			// no automatic re-scheduling against the new state.
			s.logger.Warnf("scheduled transition %s for %s/%s field %q is stale: expected state %q, found %q; discarding",
				t.StateLabel(), t.EntityType, t.EntityID, t.Field, t.FromState, current)
			if err := s.store.DeleteScheduled(t.EntityType, t.EntityID, t.Field); err != nil {
				s.logger.Errorf("failed to delete stale scheduled transition for %s/%s: %v", t.EntityType, t.EntityID, err)
			}
			continue
		}
		if t.Comment == "" {
			t.Comment = fmt.Sprintf("Scheduled by system for %s", time.Unix(t.Timestamp, 0).UTC().Format(time.RFC3339))
		}
		t.Scheduled = false
		// Authorization was the scheduling caller's responsibility; due
		// transitions always execute forced.
		result, execErr := s.Execute(ec, &t, true)
		// The record is consumed by this window no matter how execution
		// went; later windows exclude its due time, so leaving it behind
		// would strand it forever. A successful execution already removed
		// it inside the persistence transaction.
		if err := s.store.DeleteScheduled(t.EntityType, t.EntityID, t.Field); err != nil {
			s.logger.Errorf("failed to delete consumed scheduled transition for %s/%s: %v", t.EntityType, t.EntityID, err)
		}
		if execErr != nil {
			s.logger.Errorf("scheduled transition %s for %s/%s failed: %v", t.StateLabel(), t.EntityType, t.EntityID, execErr)
			continue
		}
		if result == t.ToState && t.Field == DefaultField {
			genericTouched = true
		}
	}

	if genericTouched {
		s.mu.RLock()
		ci := s.invalidator
		s.mu.RUnlock()
		if ci != nil {
			ci.InvalidateEntityState()
		}
	}
	return nil
}
