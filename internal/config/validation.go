package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Consensus.validate(); err != nil {
		return err
	}
	if err := c.Compliance.validate(); err != nil {
		return err
	}
	if err := c.Enclave.validate(); err != nil {
		return err
	}
	if err := c.Permission.validate(); err != nil {
		return err
	}
	return nil
}

func (c *ConsensusConfig) validate() error {
	switch strings.TrimSpace(c.Aggregation) {
	case "majority_vote", "top_confidence", "weighted_average":
	default:
		return fmt.Errorf("consensus.aggregation must be majority_vote, top_confidence or weighted_average")
	}
	if strings.TrimSpace(c.BuildVersion) == "" {
		return fmt.Errorf("consensus.build_version is required (model CID integrity input)")
	}
	if c.DisagreementThreshold <= 0 || c.DisagreementThreshold >= 1 {
		return fmt.Errorf("consensus.disagreement_threshold must be in (0,1)")
	}
	enabled := 0
	seen := map[string]bool{}
	for i, a := range c.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return fmt.Errorf("consensus.agents[%d].id cannot be empty", i)
		}
		if seen[id] {
			return fmt.Errorf("consensus.agents: duplicate id %q", id)
		}
		seen[id] = true
		if a.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("consensus.agents requires at least one enabled agent")
	}
	return nil
}

func (c *ComplianceConfig) validate() error {
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("compliance.min_confidence must be in (0,1]")
	}
	return nil
}

func (e *EnclaveConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(e.Mode))
	if mode != "simulation" && mode != "production" {
		return fmt.Errorf("enclave.mode must be simulation or production")
	}
	if mode == "production" && strings.TrimSpace(e.TEESocket) == "" {
		return fmt.Errorf("enclave.tee_socket is required in production mode")
	}
	if strings.TrimSpace(e.VerifyingContract) == "" {
		return fmt.Errorf("enclave.verifying_contract is required")
	}
	return nil
}

func (p *PermissionConfig) validate() error {
	if strings.TrimSpace(p.PoliciesPath) == "" {
		return fmt.Errorf("permission.policies_path cannot be empty")
	}
	return nil
}
