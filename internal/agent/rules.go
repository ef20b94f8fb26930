package agent

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/csv-agent/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// ParseRules parses a YAML guardrail rules file.
func ParseRules(filePath string) (*models.AgentRules, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseRulesFromReader(file)
}

// ParseRulesFromReader parses rules from an io.Reader. Omitted settings keep
// their defaults; unknown operations are rejected.
func ParseRulesFromReader(r io.Reader) (*models.AgentRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	rules := models.DefaultAgentRules()
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, err
	}

	if len(rules.AllowedOperations) == 0 {
		rules.AllowedOperations = models.DefaultAgentRules().AllowedOperations
	}
	if rules.FindLimit <= 0 {
		rules.FindLimit = models.DefaultAgentRules().FindLimit
	}

	known := models.DefaultAgentRules().AllowedOperations
	for _, op := range rules.AllowedOperations {
		found := false
		for _, k := range known {
			if op == k {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown operation %q in rules", op)
		}
	}

	return rules, nil
}

// LoadDefaultRules loads data/defaults/agent_rules.yaml relative to dataDir.
// A missing file is not an error; the built-in defaults apply.
func LoadDefaultRules(dataDir string) (*models.AgentRules, error) {
	path := filepath.Join(dataDir, "defaults", "agent_rules.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return models.DefaultAgentRules(), nil
	}
	return ParseRules(path)
}
