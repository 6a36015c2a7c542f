package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrExecutedImmutable is returned when the state fields of an already
// executed transition are modified. Only the comment may change afterwards.
var ErrExecutedImmutable = errors.New("transition already executed; state fields are immutable")

// Transition is one concrete state change for one target entity. For
// scheduled transitions Timestamp is the due time, not the creation time.
type Transition struct {
	ID           int64  `json:"id" db:"id"`                       // 0 until persisted
	WorkflowType string `json:"workflow_type" db:"workflow_type"` // Owning WorkflowType id
	FromState    string `json:"from_state" db:"from_state"`
	ToState      string `json:"to_state" db:"to_state"`
	EntityType   string `json:"entity_type" db:"entity_type"`
	EntityID     string `json:"entity_id" db:"entity_id"`
	RevisionID   string `json:"revision_id,omitempty" db:"revision_id"` // Optional entity revision
	Field        string `json:"field" db:"field_name"`                  // One entity may carry several workflows, keyed by field
	ActorID      string `json:"actor_id" db:"actor_id"`
	Timestamp    int64  `json:"timestamp" db:"transition_ts"` // Unix; due time when Scheduled
	Comment      string `json:"comment,omitempty" db:"comment"`
	Scheduled    bool   `json:"scheduled" db:"scheduled"`
	Executed     bool   `json:"executed" db:"executed"`
	Forced       bool   `json:"forced" db:"forced"`

	// AttachedChanged records whether the caller modified other entity
	// fields alongside this transition. It keeps a comment-less, state-less
	// save from being misclassified as empty.
	AttachedChanged bool `json:"-" db:"-"`
}

// NewTransition builds an in-memory transition. Scheduled controls whether
// it starts pending-immediate or pending-scheduled.
func NewTransition(workflowType, from, to, entityType, entityID, field, actorID string, ts int64, scheduled bool) *Transition {
	return &Transition{
		WorkflowType: workflowType,
		FromState:    from,
		ToState:      to,
		EntityType:   entityType,
		EntityID:     entityID,
		Field:        field,
		ActorID:      actorID,
		Timestamp:    ts,
		Scheduled:    scheduled,
	}
}

// HasStateChange reports whether the transition actually moves between two
// distinct states. Comment-only saves return false.
func (t *Transition) HasStateChange() bool {
	return t.FromState != t.ToState
}

// IsEmpty reports whether the transition is a no-op save: no state change,
// no comment and no attached field changes. Empty transitions are silently
// skipped, not treated as errors.
func (t *Transition) IsEmpty() bool {
	return !t.HasStateChange() && t.Comment == "" && !t.AttachedChanged
}

// IsRevertable reports whether the inverse of this transition may be
// offered: there must be a real state change, and the from-state must be
// active and not the creation state.
func (t *Transition) IsRevertable(wt *WorkflowType) bool {
	if !t.HasStateChange() || wt == nil {
		return false
	}
	from := wt.State(t.FromState)
	if from == nil {
		return false
	}
	return from.Active && !from.CreationState
}

// SetStatePair replaces the from/to states. It fails once the transition
// has been executed and persisted as history.
func (t *Transition) SetStatePair(from, to string) error {
	if t.Executed {
		return ErrExecutedImmutable
	}
	t.FromState = from
	t.ToState = to
	return nil
}

// StateLabel is the "from-to" pair label used for logging and for keying
// the duplicate-execution guard.
func (t *Transition) StateLabel() string {
	return fmt.Sprintf("%s-%s", t.FromState, t.ToState)
}

// Reverse constructs the unexecuted inverse of this transition for the
// given actor. Scheduling and force flags do not carry over.
func (t *Transition) Reverse(actorID string, ts int64) *Transition {
	rt := NewTransition(t.WorkflowType, t.ToState, t.FromState, t.EntityType, t.EntityID, t.Field, actorID, ts, false)
	rt.RevisionID = t.RevisionID
	return rt
}
