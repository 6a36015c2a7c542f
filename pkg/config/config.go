package config

import (
	"os"

	"github.com/expr-lang/expr"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stateflow/stateflow/pkg/models"
)

// File is the on-disk shape of the workflow definition configuration.
type File struct {
	Workflows []models.WorkflowType `yaml:"workflows"`
}

// Load reads and validates workflow type definitions from a YAML file.
// Definitions are immutable after loading; a bad definition is a hard
// configuration error, not something to degrade around.
func Load(path string) ([]models.WorkflowType, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read workflow config %q", path)
	}
	return Parse(raw)
}

// Parse decodes and validates workflow type definitions from YAML bytes.
func Parse(raw []byte) ([]models.WorkflowType, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse workflow config")
	}
	if len(f.Workflows) == 0 {
		return nil, errors.New("workflow config defines no workflows")
	}
	seen := make(map[string]struct{}, len(f.Workflows))
	for i := range f.Workflows {
		wt := &f.Workflows[i]
		if wt.ID == "" {
			return nil, errors.New("workflow with empty id")
		}
		if _, ok := seen[wt.ID]; ok {
			return nil, errors.Errorf("duplicate workflow id %q", wt.ID)
		}
		seen[wt.ID] = struct{}{}
		if err := validate(wt); err != nil {
			return nil, errors.Wrapf(err, "workflow %q", wt.ID)
		}
	}
	return f.Workflows, nil
}

func validate(wt *models.WorkflowType) error {
	if len(wt.States) == 0 {
		return errors.New("no states defined")
	}
	stateIDs := make(map[string]struct{}, len(wt.States))
	creation := 0
	for _, st := range wt.States {
		if st.ID == "" {
			return errors.New("state with empty id")
		}
		if _, ok := stateIDs[st.ID]; ok {
			return errors.Errorf("duplicate state id %q", st.ID)
		}
		stateIDs[st.ID] = struct{}{}
		if st.CreationState {
			creation++
		}
	}
	if creation != 1 {
		return errors.Errorf("expected exactly one creation state, got %d", creation)
	}
	for _, ct := range wt.Transitions {
		if _, ok := stateIDs[ct.From]; !ok {
			return errors.Errorf("transition references unknown from-state %q", ct.From)
		}
		if _, ok := stateIDs[ct.To]; !ok {
			return errors.Errorf("transition references unknown to-state %q", ct.To)
		}
		if ct.Guard != "" {
			if _, err := expr.Compile(ct.Guard, expr.Env(GuardEnv{}), expr.AsBool()); err != nil {
				return errors.Wrapf(err, "transition %s-%s guard", ct.From, ct.To)
			}
		}
	}
	return nil
}

// GuardEnv is the variable set a ConfigTransition guard expression is
// evaluated against.
type GuardEnv struct {
	Actor    string `expr:"actor"`
	EntityID string `expr:"entity_id"`
	From     string `expr:"from"`
	To       string `expr:"to"`
	IsAuthor bool   `expr:"is_author"`
}
