package service

import (
	"time"

	"github.com/pkg/errors"

	"github.com/stateflow/stateflow/pkg/storage"
)

// Revert builds and executes the inverse of the entity's most recent
// executed transition. It refuses when there is no history or the latest
// transition is not revertable (no state change, inactive source state, or
// the source is the creation state). The inverse runs unforced: the actor
// still has to be allowed to make the backwards move.
func (s *WorkflowService) Revert(ec *ExecutionContext, wtID, entityType, entityID, field, actorID string) (string, error) {
	wt := s.types[wtID]
	if wt == nil {
		return "", errors.Wrapf(ErrUnknownWorkflow, "%q", wtID)
	}
	last, err := s.store.LatestExecuted(entityType, entityID, field)
	if errors.Is(err, storage.ErrNotFound) {
		return "", errors.Wrap(ErrNotRevertable, "no executed transitions")
	}
	if err != nil {
		return "", errors.Wrap(err, "load latest transition")
	}
	if !last.IsRevertable(wt) {
		return "", ErrNotRevertable
	}
	rt := last.Reverse(actorID, time.Now().Unix())
	return s.Execute(ec, rt, false)
}
