package models

// State is one node of a WorkflowType's state machine.
type State struct {
	ID            string `json:"id" yaml:"id"`                         // Unique within the owning WorkflowType (e.g., "draft")
	Label         string `json:"label" yaml:"label"`                   // Human readable name
	Weight        int    `json:"weight" yaml:"weight"`                 // Ordering weight; lower sorts first
	CreationState bool   `json:"creation_state" yaml:"creation_state"` // Implicit starting state for entities with no history
	Active        bool   `json:"active" yaml:"active"`                 // Inactive states cannot be reverted to
}

// Settings are per-workflow-type behaviour toggles.
type Settings struct {
	CommentRequired bool `json:"comment_required" yaml:"comment_required"` // Reject transitions without a comment
	ScheduleEnabled bool `json:"schedule_enabled" yaml:"schedule_enabled"` // Allow deferred transitions
	AuditLog        bool `json:"audit_log" yaml:"audit_log"`               // Log every executed transition
}

// WorkflowType is a named state machine definition: its states, allowed
// transitions and settings. Loaded as configuration at startup and
// immutable at runtime.
type WorkflowType struct {
	ID          string             `json:"id" yaml:"id"`
	Label       string             `json:"label" yaml:"label"`
	States      []State            `json:"states" yaml:"states"`
	Transitions []ConfigTransition `json:"transitions" yaml:"transitions"`
	Settings    Settings           `json:"settings" yaml:"settings"`
}

// State returns the state with the given id, or nil if the workflow type
// does not define it.
func (wt *WorkflowType) State(id string) *State {
	for i := range wt.States {
		if wt.States[i].ID == id {
			return &wt.States[i]
		}
	}
	return nil
}

// CreationState returns the state flagged as the creation state. Config
// validation guarantees exactly one exists for loaded types; a zero-value
// WorkflowType returns nil.
func (wt *WorkflowType) CreationState() *State {
	for i := range wt.States {
		if wt.States[i].CreationState {
			return &wt.States[i]
		}
	}
	return nil
}

// ConfigTransitions returns every configured transition between the two
// states. Multiple entries between the same pair are legal (e.g., one per
// role requirement); a move is allowed if any of them grants it.
func (wt *WorkflowType) ConfigTransitions(fromID, toID string) []ConfigTransition {
	var out []ConfigTransition
	for _, ct := range wt.Transitions {
		if ct.From == fromID && ct.To == toID {
			out = append(out, ct)
		}
	}
	return out
}
