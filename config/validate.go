package config

import "github.com/forgeworks/blockforge/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.New("server.port cannot be 0 (omit for default port 8710)")
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	// Verifier runs: 0 = use default, negative = invalid
	if c.Verifier.Runs < 0 {
		return errors.Newf("verifier.runs must be >= 0, got %d", c.Verifier.Runs)
	}
	if c.Verifier.CaseTimeoutSeconds < 0 {
		return errors.Newf("verifier.case_timeout_seconds must be >= 0, got %d", c.Verifier.CaseTimeoutSeconds)
	}

	// Executor bounds: 0 = use default, negative = invalid
	if c.Executor.MaxRetries < 0 {
		return errors.Newf("executor.max_retries must be >= 0, got %d", c.Executor.MaxRetries)
	}
	if c.Executor.NodeTimeoutSeconds < 0 {
		return errors.Newf("executor.node_timeout_seconds must be >= 0, got %d", c.Executor.NodeTimeoutSeconds)
	}
	if c.Executor.GraphBudgetSeconds < 0 {
		return errors.Newf("executor.graph_budget_seconds must be >= 0, got %d", c.Executor.GraphBudgetSeconds)
	}
	if c.Executor.BreakerFailureThreshold < 0 {
		return errors.Newf("executor.breaker_failure_threshold must be >= 0, got %d", c.Executor.BreakerFailureThreshold)
	}

	// Trust floor is a score, bounded [0, 1]
	if c.Executor.MinTrust < 0 || c.Executor.MinTrust > 1 {
		return errors.Newf("executor.min_trust must be in [0, 1], got %f", c.Executor.MinTrust)
	}
	if c.Executor.MaxNodes < 0 {
		return errors.Newf("executor.max_nodes must be >= 0, got %d", c.Executor.MaxNodes)
	}

	if c.Compose.ResultLimit < 0 {
		return errors.Newf("compose.result_limit must be >= 0, got %d", c.Compose.ResultLimit)
	}

	return nil
}
