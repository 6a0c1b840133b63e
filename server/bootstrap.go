package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/blockforge/audit"
	"github.com/forgeworks/blockforge/catalog"
	"github.com/forgeworks/blockforge/compose"
	"github.com/forgeworks/blockforge/config"
	"github.com/forgeworks/blockforge/db"
	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/policy"
	"github.com/forgeworks/blockforge/registry"
	"github.com/forgeworks/blockforge/run"
	"github.com/forgeworks/blockforge/semindex"
	"github.com/forgeworks/blockforge/verify"
)

// Bootstrap assembles the full pipeline from configuration: database,
// logic catalog, admission, policy, composer, executor and the audit
// chain. The returned cleanup releases resources in reverse order.
func Bootstrap(cfg *config.Config, logger *zap.SugaredLogger) (*Server, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid configuration")
	}

	database, err := db.OpenWithMigrations(cfg.GetDatabasePath(), logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open database")
	}

	logic := catalog.NewRegistry()
	if err := catalog.RegisterBuiltins(logic); err != nil {
		database.Close()
		return nil, nil, errors.Wrap(err, "register builtin logic")
	}

	chain := audit.NewChain(audit.NewStore(database))
	if err := chain.Restore(); err != nil {
		// A tampered stored chain loads halted; the server still serves
		// reads so the damage can be inspected.
		logger.Errorw("Audit chain restore failed; appends are halted", "error", err)
	}

	reg := registry.New()
	index := semindex.New()

	verifyCfg := verify.DefaultConfig()
	if cfg.Verifier.Runs > 0 {
		verifyCfg.Runs = cfg.Verifier.Runs
	}
	if cfg.Verifier.CaseTimeoutSeconds > 0 {
		verifyCfg.CaseTimeout = time.Duration(cfg.Verifier.CaseTimeoutSeconds) * time.Second
	}
	verifier := verify.New(logic, verifyCfg, logger)
	admission := registry.NewService(reg, verifier, index, registry.NewStore(database), logger)
	if err := admission.RestoreFromStore(); err != nil {
		database.Close()
		return nil, nil, errors.Wrap(err, "restore registry")
	}
	if missing := admission.VerifyLogicRefs(logic); len(missing) > 0 {
		logger.Warnw("Restored blocks reference unregistered logic", "missing", missing)
	}

	// Seed the built-in block library. Already-stored hashes short-circuit,
	// so this is idempotent across restarts.
	admitted := admission.SubmitAll(context.Background(), catalog.BuiltinCandidates())
	logger.Infow("Builtin library ready", "admitted", admitted, "indexed", index.Len())

	rules := policy.PermissiveRules()
	if cfg.Policy.RulesPath != "" {
		rules, err = policy.LoadRules(cfg.Policy.RulesPath)
		if err != nil {
			database.Close()
			return nil, nil, errors.Wrapf(err, "load policy rules from %s", cfg.Policy.RulesPath)
		}
	}
	engine := policy.NewEngine(rules)

	stopWatch := func() {}
	if cfg.Policy.Watch && cfg.Policy.RulesPath != "" {
		stopWatch, err = policy.Watch(cfg.Policy.RulesPath, engine, logger)
		if err != nil {
			database.Close()
			return nil, nil, errors.Wrap(err, "watch policy rules")
		}
	}

	composer := compose.New(index, engine, logger)

	runCfg := run.DefaultConfig()
	if cfg.Executor.MaxRetries >= 0 {
		runCfg.Retry.MaxAttempts = cfg.Executor.MaxRetries + 1
	}
	if cfg.Executor.InitialBackoffMS > 0 {
		runCfg.Retry.InitialBackoff = time.Duration(cfg.Executor.InitialBackoffMS) * time.Millisecond
	}
	if cfg.Executor.NodeTimeoutSeconds > 0 {
		runCfg.NodeTimeout = time.Duration(cfg.Executor.NodeTimeoutSeconds) * time.Second
	}
	if cfg.Executor.GraphBudgetSeconds > 0 {
		runCfg.GraphBudget = time.Duration(cfg.Executor.GraphBudgetSeconds) * time.Second
	}
	if cfg.Executor.BreakerFailureThreshold > 0 {
		runCfg.Breaker.FailureThreshold = cfg.Executor.BreakerFailureThreshold
	}
	if cfg.Executor.BreakerCoolDownSeconds > 0 {
		runCfg.Breaker.CoolDown = time.Duration(cfg.Executor.BreakerCoolDownSeconds) * time.Second
	}
	runCfg.MaxCallsPerBlock = engine.Rules().MaxCallsPerBlock

	executor := run.New(reg, logic, engine, chain, runCfg, logger)

	srv := New(admission, composer, executor, chain, engine, Options{
		MinTrust:       cfg.Executor.MinTrust,
		MaxNodes:       cfg.Executor.MaxNodes,
		ResultLimit:    cfg.Compose.ResultLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger)

	cleanup := func() {
		stopWatch()
		if err := database.Close(); err != nil && !db.IsDatabaseClosed(err) {
			logger.Warnw("Database close failed", "error", err)
		}
	}
	return srv, cleanup, nil
}
