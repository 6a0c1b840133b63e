package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "blockforge.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// Verifier defaults
	v.SetDefault("verifier.runs", 3)
	v.SetDefault("verifier.case_timeout_seconds", 2)

	// Executor defaults
	v.SetDefault("executor.max_retries", 2)
	v.SetDefault("executor.initial_backoff_ms", 100)
	v.SetDefault("executor.node_timeout_seconds", 5)
	v.SetDefault("executor.graph_budget_seconds", 30)
	v.SetDefault("executor.breaker_failure_threshold", 5)
	v.SetDefault("executor.breaker_cooldown_seconds", 30)
	v.SetDefault("executor.min_trust", 0.0)
	v.SetDefault("executor.max_nodes", 5)

	// Policy defaults: no rules file means the built-in permissive policy
	v.SetDefault("policy.rules_path", "")
	v.SetDefault("policy.watch", false)

	// Composition defaults
	v.SetDefault("compose.result_limit", 20)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "BLOCKFORGE_DATABASE_PATH")
	v.BindEnv("policy.rules_path", "BLOCKFORGE_POLICY_RULES_PATH")
}
