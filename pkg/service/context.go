package service

import (
	"fmt"

	"github.com/stateflow/stateflow/pkg/models"
)

// ExecutionContext carries the duplicate-execution guard for one request
// or one scheduler run. The surrounding entity-save lifecycle can present
// the same transition twice within a single request; the guard makes the
// second call return the first outcome instead of writing history again.
//
// The context is caller-owned: create one per request or batch, never
// share it across independent runs.
type ExecutionContext struct {
	outcomes map[string]string
	inflight map[string]bool
}

func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		outcomes: make(map[string]string),
		inflight: make(map[string]bool),
	}
}

func guardKey(t *models.Transition) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.EntityType, t.EntityID, t.Field, t.StateLabel())
}

// Outcome returns the recorded result for this transition's guard key.
// Only completed executions are recorded; a denied or otherwise failed
// attempt leaves no outcome and may be retried in the same context.
func (ec *ExecutionContext) Outcome(t *models.Transition) (string, bool) {
	out, ok := ec.outcomes[guardKey(t)]
	return out, ok
}

// Record stores the outcome for this transition's guard key.
func (ec *ExecutionContext) Record(t *models.Transition, stateID string) {
	ec.outcomes[guardKey(t)] = stateID
}

// inFlight reports whether this transition's guard key is currently
// executing in this context, i.e. the call is reentrant.
func (ec *ExecutionContext) inFlight(t *models.Transition) bool {
	return ec.inflight[guardKey(t)]
}

func (ec *ExecutionContext) enter(t *models.Transition) {
	ec.inflight[guardKey(t)] = true
}

func (ec *ExecutionContext) leave(t *models.Transition) {
	delete(ec.inflight, guardKey(t))
}
