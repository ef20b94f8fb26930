package models

// AgentRules defines the YAML guardrails applied to model-generated queries.
// Loaded from data/defaults/agent_rules.yaml when present, replaceable at
// runtime via the rules upload endpoint.
type AgentRules struct {
	AllowedOperations []string `json:"allowedOperations" yaml:"allowed_operations"`
	FindLimit         int      `json:"findLimit" yaml:"find_limit"`
	ExtraGuidance     []string `json:"extraGuidance,omitempty" yaml:"extra_guidance,omitempty"`
}

// DefaultAgentRules returns the built-in guardrails used when no rules file
// has been provided.
func DefaultAgentRules() *AgentRules {
	return &AgentRules{
		AllowedOperations: []string{OpFind, OpCount, OpAverage, OpSum, OpMin, OpMax},
		FindLimit:         100,
	}
}

// AllowsOperation reports whether the named operation is permitted.
func (r *AgentRules) AllowsOperation(op string) bool {
	for _, allowed := range r.AllowedOperations {
		if allowed == op {
			return true
		}
	}
	return false
}
