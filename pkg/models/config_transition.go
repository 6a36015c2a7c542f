package models

// ConfigTransition is an allowed (from, to) edge of a WorkflowType plus its
// authorization policy. Both state ids must belong to the owning type;
// config loading enforces this.
type ConfigTransition struct {
	From          string   `json:"from" yaml:"from"`
	To            string   `json:"to" yaml:"to"`
	Capabilities  []string `json:"capabilities,omitempty" yaml:"capabilities"` // Any one of these grants the move
	AuthorAllowed bool     `json:"author_allowed" yaml:"author_allowed"`       // The entity owner may always make the move
	Guard         string   `json:"guard,omitempty" yaml:"guard"`               // Optional expr-lang condition; empty means unconditional
}
