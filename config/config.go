// Package config loads the BlockForge configuration from TOML files and
// environment variables, with file precedence system < user < project and
// environment variables overriding all files.
package config

// Config represents the core BlockForge configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Verifier VerifierConfig `mapstructure:"verifier"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Compose  ComposeConfig  `mapstructure:"compose"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	// Port: nil = default 8710, 0 is invalid (omit for default)
	Port           *int     `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server port constants
const (
	DefaultServerPort = 8710
)

// VerifierConfig tunes dynamic verification of candidate blocks
type VerifierConfig struct {
	Runs               int `mapstructure:"runs"`                 // repeatability runs per case (default: 3)
	CaseTimeoutSeconds int `mapstructure:"case_timeout_seconds"` // per-case execution timeout (default: 2)
}

// ExecutorConfig tunes the guarded executor
type ExecutorConfig struct {
	MaxRetries              int     `mapstructure:"max_retries"`                // re-runs after the first attempt (default: 2)
	InitialBackoffMS        int     `mapstructure:"initial_backoff_ms"`         // first retry delay (default: 100)
	NodeTimeoutSeconds      int     `mapstructure:"node_timeout_seconds"`       // per-node wall clock bound (default: 5)
	GraphBudgetSeconds      int     `mapstructure:"graph_budget_seconds"`       // whole-graph wall clock bound (default: 30)
	BreakerFailureThreshold int     `mapstructure:"breaker_failure_threshold"`  // consecutive failures before the circuit opens (default: 5)
	BreakerCoolDownSeconds  int     `mapstructure:"breaker_cooldown_seconds"`   // open-circuit probe delay (default: 30)
	MinTrust                float64 `mapstructure:"min_trust"`                  // composition trust floor (default: 0.0)
	MaxNodes                int     `mapstructure:"max_nodes"`                  // composition graph bound (default: 5)
}

// PolicyConfig configures the policy engine
type PolicyConfig struct {
	// RulesPath points at the YAML rules file; empty selects the built-in
	// permissive policy.
	RulesPath string `mapstructure:"rules_path"`
	// Watch enables hot reload of the rules file.
	Watch bool `mapstructure:"watch"`
}

// ComposeConfig configures intent composition
type ComposeConfig struct {
	ResultLimit int `mapstructure:"result_limit"` // max search results returned (default: 20)
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
