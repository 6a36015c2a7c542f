package service

import (
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/stateflow/stateflow/pkg/config"
	"github.com/stateflow/stateflow/pkg/models"
)

// CapBypassTransitionAccess lets an actor make any configured or
// unconfigured move. Reserved for administrative roles.
const CapBypassTransitionAccess = "bypass workflow transition access"

// CapabilityProvider answers whether an actor holds a named capability.
// Implemented by the surrounding user/permission system.
type CapabilityProvider interface {
	HasCapability(actorID, capability string) bool
}

// CapabilityMap is a static CapabilityProvider for tests and the CLI.
type CapabilityMap map[string][]string

func (m CapabilityMap) HasCapability(actorID, capability string) bool {
	for _, c := range m[actorID] {
		if c == capability {
			return true
		}
	}
	return false
}

// Authorizer decides whether an actor may move an entity between two
// workflow states. Denials are logged, never silent.
type Authorizer struct {
	caps   CapabilityProvider
	types  map[string]*models.WorkflowType
	logger Logger

	guards  map[string]*vm.Program
	guardMu sync.Mutex
}

func NewAuthorizer(caps CapabilityProvider, types map[string]*models.WorkflowType, logger Logger) *Authorizer {
	return &Authorizer{
		caps:   caps,
		types:  types,
		logger: logger,
		guards: make(map[string]*vm.Program),
	}
}

// IsAllowed reports whether the actor may perform the transition. isOwner
// marks the actor as the entity's owner (always true for unsaved
// entities); it grants an implicit author role for this check only.
func (a *Authorizer) IsAllowed(t *models.Transition, actorID string, isOwner, force bool) bool {
	if force {
		return true
	}
	if a.caps.HasCapability(actorID, CapBypassTransitionAccess) {
		return true
	}
	wt := a.types[t.WorkflowType]
	if wt == nil {
		a.logger.Warnf("workflow %q unknown; denying transition %s for actor %s", t.WorkflowType, t.StateLabel(), actorID)
		return false
	}
	cts := wt.ConfigTransitions(t.FromState, t.ToState)
	if len(cts) == 0 {
		a.logger.Warnf("no configured transition from %q to %q in workflow %q; denying actor %s",
			a.stateLabel(wt, t.FromState), a.stateLabel(wt, t.ToState), wt.ID, actorID)
		return false
	}
	if a.permitted(cts, t, actorID, isOwner) {
		return true
	}
	a.logger.Warnf("actor %s is not allowed to move %s/%s from %q to %q",
		actorID, t.EntityType, t.EntityID, a.stateLabel(wt, t.FromState), a.stateLabel(wt, t.ToState))
	return false
}

// permitted is the OR over the matching config transitions, without the
// denial logging. ReachableStates probes many targets through it.
func (a *Authorizer) permitted(cts []models.ConfigTransition, t *models.Transition, actorID string, isOwner bool) bool {
	for _, ct := range cts {
		if a.grants(ct, t, actorID, isOwner) {
			return true
		}
	}
	return false
}

// grants evaluates one ConfigTransition's policy with the effective
// capability set: the actor's own capabilities, plus the implicit author
// role when isOwner holds. Nothing on the actor is mutated.
func (a *Authorizer) grants(ct models.ConfigTransition, t *models.Transition, actorID string, isOwner bool) bool {
	permitted := ct.AuthorAllowed && isOwner
	if !permitted {
		for _, c := range ct.Capabilities {
			if a.caps.HasCapability(actorID, c) {
				permitted = true
				break
			}
		}
	}
	if !permitted {
		return false
	}
	if ct.Guard == "" {
		return true
	}
	return a.evalGuard(ct.Guard, t, actorID, isOwner)
}

func (a *Authorizer) evalGuard(guard string, t *models.Transition, actorID string, isOwner bool) bool {
	prog, err := a.compile(guard)
	if err != nil {
		a.logger.Errorf("guard %q failed to compile: %v; denying transition", guard, err)
		return false
	}
	out, err := expr.Run(prog, config.GuardEnv{
		Actor:    actorID,
		EntityID: t.EntityID,
		From:     t.FromState,
		To:       t.ToState,
		IsAuthor: isOwner,
	})
	if err != nil {
		a.logger.Errorf("guard %q failed to evaluate: %v; denying transition", guard, err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (a *Authorizer) compile(guard string) (*vm.Program, error) {
	a.guardMu.Lock()
	defer a.guardMu.Unlock()
	if prog, ok := a.guards[guard]; ok {
		return prog, nil
	}
	prog, err := expr.Compile(guard, expr.Env(config.GuardEnv{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	a.guards[guard] = prog
	return prog, nil
}

// ReachableStates lists the states the actor may move to from the given
// state, ordered by state weight. With force, authorization is skipped and
// every configured target qualifies. Unknown states yield an empty list.
func (a *Authorizer) ReachableStates(wt *models.WorkflowType, fromID, actorID string, isOwner, force bool) []models.State {
	if wt == nil || wt.State(fromID) == nil {
		return nil
	}
	var out []models.State
	seen := make(map[string]struct{})
	for _, ct := range wt.Transitions {
		if ct.From != fromID {
			continue
		}
		if _, ok := seen[ct.To]; ok {
			continue
		}
		target := wt.State(ct.To)
		if target == nil {
			continue
		}
		probe := models.Transition{WorkflowType: wt.ID, FromState: fromID, ToState: ct.To}
		if force || a.caps.HasCapability(actorID, CapBypassTransitionAccess) ||
			a.permitted(wt.ConfigTransitions(fromID, ct.To), &probe, actorID, isOwner) {
			out = append(out, *target)
			seen[ct.To] = struct{}{}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight < out[j].Weight
	})
	return out
}

func (a *Authorizer) stateLabel(wt *models.WorkflowType, id string) string {
	if st := wt.State(id); st != nil && st.Label != "" {
		return st.Label
	}
	return id
}
