package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PolicySeed is one retention policy declared in RETENTION_POLICY_FILE.
type PolicySeed struct {
	PolicyType            string `yaml:"policy_type"`
	RetentionPeriodMonths int    `yaml:"retention_period_months"`
	AutoDelete            bool   `yaml:"auto_delete"`
	LegalHoldOverride     bool   `yaml:"legal_hold_override"`
	ScopeID               string `yaml:"scope_id"`
	Description           string `yaml:"description"`
}

type policyFile struct {
	Policies []PolicySeed `yaml:"policies"`
}

// LoadPolicySeeds reads the retention policy seed file. An empty path yields
// no seeds.
func LoadPolicySeeds(path string) ([]PolicySeed, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read retention policy file: %w", err)
	}
	return ParsePolicySeeds(raw)
}

func ParsePolicySeeds(raw []byte) ([]PolicySeed, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse retention policy file: %w", err)
	}
	for i, seed := range file.Policies {
		if seed.PolicyType == "" {
			return nil, fmt.Errorf("policies[%d]: policy_type is required", i)
		}
		if seed.RetentionPeriodMonths <= 0 {
			return nil, fmt.Errorf("policies[%d]: retention_period_months must be positive", i)
		}
	}
	return file.Policies, nil
}
