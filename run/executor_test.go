package run

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgeworks/blockforge/audit"
	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/catalog"
	"github.com/forgeworks/blockforge/compose"
	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/policy"
	"github.com/forgeworks/blockforge/registry"
	"github.com/forgeworks/blockforge/semindex"
	"github.com/forgeworks/blockforge/trust"
	"github.com/forgeworks/blockforge/verify"
)

func testBlock(name, ref string, outputs []block.Param) *block.Block {
	if outputs == nil {
		outputs = []block.Param{{Name: "result", Type: block.TypeString}}
	}
	b := block.FromCandidate(block.Candidate{
		Name:          name,
		Description:   name,
		Owner:         "core-team",
		License:       "MIT",
		SchemaVersion: "1.0.0",
		Category:      "string_manipulation",
		Interface: block.Interface{
			Inputs:  []block.Param{{Name: "s", Type: block.TypeString}},
			Outputs: outputs,
		},
		Constraints: block.Constraints{Purity: block.Pure, Deterministic: true, ThreadSafe: true},
		LogicRef:    ref,
		FailureModes: []block.FailureMode{
			{Condition: "flaky upstream", Retryable: true},
			{Condition: "malformed input", Retryable: false},
		},
	})
	b.TrustScore = 0.9
	return &b
}

func testHarness(t *testing.T, rules policy.Rules) (*registry.Registry, *catalog.Registry, *audit.Chain, func(Config) *Executor) {
	t.Helper()
	reg := registry.New()
	logic := catalog.NewRegistry()
	chain := audit.NewChain(nil)
	engine := policy.NewEngine(rules)
	build := func(cfg Config) *Executor {
		return New(reg, logic, engine, chain, cfg, zap.NewNop().Sugar())
	}
	return reg, logic, chain, build
}

func admit(t *testing.T, reg *registry.Registry, b *block.Block) {
	t.Helper()
	_, err := reg.Admit(b, verify.Record{Passed: true, Repeatable: true}, trust.Assessment{Score: b.TrustScore, Tier: b.TrustTier})
	require.NoError(t, err)
}

func graphOf(blocks ...*block.Block) *compose.Graph {
	g := &compose.Graph{Query: "test"}
	for i, b := range blocks {
		g.Nodes = append(g.Nodes, compose.Node{Entry: semindex.EntryFor(b), Position: i})
	}
	return g
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	cfg.Retry.JitterFrac = 0
	return cfg
}

func TestExecuteSingleNode(t *testing.T) {
	reg, logic, chain, build := testHarness(t, policy.PermissiveRules())

	b := testBlock("reverse_string", "logic.reverse", nil)
	admit(t, reg, b)
	require.NoError(t, logic.Register("logic.reverse", func(_ context.Context, in map[string]any) (map[string]any, error) {
		s := in["s"].(string)
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return map[string]any{"result": string(runes)}, nil
	}))

	x := build(fastConfig())
	res := x.Execute(context.Background(), graphOf(b), map[string]any{"s": "hello"}, Options{AgentID: "agent-1"})

	require.True(t, res.IsSuccess)
	require.Len(t, res.NodeResults, 1)
	assert.Equal(t, NodeSucceeded, res.NodeResults[0].State)
	assert.Equal(t, "olleh", res.FinalOutputs["result"])
	assert.Equal(t, []string{"reverse_string"}, res.BlocksUsed)
	assert.NotEmpty(t, res.ExecutionID)

	entries := chain.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionExecute, entries[0].Action)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "agent-1", entries[0].AgentID)
	assert.Equal(t, res.AuditHash, entries[0].EntryHash)
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	reg, logic, chain, build := testHarness(t, policy.PermissiveRules())

	b := testBlock("flaky_block", "logic.flaky", nil)
	admit(t, reg, b)

	var calls atomic.Int32
	require.NoError(t, logic.Register("logic.flaky", func(context.Context, map[string]any) (map[string]any, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("flaky upstream: connection reset")
		}
		return map[string]any{"result": "ok"}, nil
	}))

	x := build(fastConfig())
	res := x.Execute(context.Background(), graphOf(b), map[string]any{"s": "x"}, Options{})

	require.True(t, res.IsSuccess)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, res.NodeResults[0].RetryCount)

	// One audit entry per node final outcome, not per attempt.
	assert.Equal(t, 1, chain.Len())
}

func TestExecuteNonRetryableFailureStopsChain(t *testing.T) {
	reg, logic, chain, build := testHarness(t, policy.PermissiveRules())

	b1 := testBlock("first", "logic.first", nil)
	b2 := testBlock("second", "logic.second", nil)
	b3 := testBlock("third", "logic.third", nil)
	for _, b := range []*block.Block{b1, b2, b3} {
		admit(t, reg, b)
	}

	require.NoError(t, logic.Register("logic.first", func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"result": "first-out"}, nil
	}))
	var secondCalls atomic.Int32
	require.NoError(t, logic.Register("logic.second", func(context.Context, map[string]any) (map[string]any, error) {
		secondCalls.Add(1)
		return nil, errors.New("malformed input: not a string")
	}))
	require.NoError(t, logic.Register("logic.third", func(context.Context, map[string]any) (map[string]any, error) {
		t.Fatal("third node must never run")
		return nil, nil
	}))

	x := build(fastConfig())
	res := x.Execute(context.Background(), graphOf(b1, b2, b3), map[string]any{"s": "x"}, Options{})

	require.False(t, res.IsSuccess)
	assert.Equal(t, NodeSucceeded, res.NodeResults[0].State)
	assert.Equal(t, NodeFailed, res.NodeResults[1].State)
	assert.Equal(t, NodePending, res.NodeResults[2].State)

	// Declared non-retryable: exactly one attempt.
	assert.Equal(t, int32(1), secondCalls.Load())
	assert.Equal(t, 0, res.NodeResults[1].RetryCount)

	// Partial outputs of succeeded nodes survive the failure.
	assert.Equal(t, "first-out", res.FinalOutputs["result"])
	assert.Equal(t, []string{"first"}, res.BlocksUsed)

	entries := chain.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Success)
	assert.False(t, entries[1].Success)
}

func TestExecuteBindingPrecedence(t *testing.T) {
	reg, logic, _, build := testHarness(t, policy.PermissiveRules())

	// First node outputs under the same name the second node takes as
	// input, so the predecessor output must override the initial input.
	producer := testBlock("producer", "logic.producer", []block.Param{{Name: "s", Type: block.TypeString}})
	consumer := testBlock("consumer", "logic.consumer", nil)
	admit(t, reg, producer)
	admit(t, reg, consumer)

	require.NoError(t, logic.Register("logic.producer", func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"s": "from-predecessor"}, nil
	}))
	require.NoError(t, logic.Register("logic.consumer", func(_ context.Context, in map[string]any) (map[string]any, error) {
		return map[string]any{"result": in["s"]}, nil
	}))

	x := build(fastConfig())
	res := x.Execute(context.Background(), graphOf(producer, consumer), map[string]any{"s": "initial"}, Options{})

	require.True(t, res.IsSuccess)
	assert.Equal(t, "from-predecessor", res.FinalOutputs["result"])
}

func TestExecutePolicyDenialRecordsViolation(t *testing.T) {
	reg, logic, chain, build := testHarness(t, policy.Rules{Mode: policy.ModeWhitelist})

	b := testBlock("denied_block", "logic.denied", nil)
	admit(t, reg, b)
	require.NoError(t, logic.Register("logic.denied", func(context.Context, map[string]any) (map[string]any, error) {
		t.Fatal("denied block must never run")
		return nil, nil
	}))

	x := build(fastConfig())
	res := x.Execute(context.Background(), graphOf(b), map[string]any{"s": "x"}, Options{AgentID: "agent-2"})

	require.False(t, res.IsSuccess)
	assert.Equal(t, NodeFailed, res.NodeResults[0].State)
	assert.Equal(t, "policy_denied", res.NodeResults[0].ErrorKind)

	entries := chain.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionViolation, entries[0].Action)
	assert.Equal(t, "BLOCKED", entries[0].PolicyStatus)
	assert.Equal(t, "agent-2", entries[0].AgentID)
}

func TestExecuteEmptyGraphIsNoMatch(t *testing.T) {
	_, _, chain, build := testHarness(t, policy.PermissiveRules())

	x := build(fastConfig())
	res := x.Execute(context.Background(), &compose.Graph{Query: "nothing"}, nil, Options{})

	assert.False(t, res.IsSuccess)
	assert.Equal(t, "no matching blocks for intent", res.Error)
	assert.Empty(t, res.NodeResults)
	assert.Equal(t, 0, chain.Len())
	assert.Equal(t, audit.GenesisHash, res.AuditHash)
}

func TestExecuteTierBRequiresOptIn(t *testing.T) {
	reg, logic, _, build := testHarness(t, policy.PermissiveRules())

	b := block.FromCandidate(block.Candidate{
		Name:          "current_timestamp",
		Description:   "wall clock read",
		Owner:         "core-team",
		License:       "MIT",
		SchemaVersion: "1.0.0",
		Category:      "utility",
		Interface: block.Interface{
			Outputs: []block.Param{{Name: "timestamp", Type: block.TypeInt}},
		},
		Constraints: block.Constraints{Purity: block.Impure, Deterministic: false, ThreadSafe: true, SideEffects: []string{"clock"}},
		LogicRef:    "logic.now",
	})
	b.TrustScore = 0.5
	require.Equal(t, block.TierB, b.TrustTier)
	admit(t, reg, &b)
	require.NoError(t, logic.Register("logic.now", func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"timestamp": 1700000000}, nil
	}))

	x := build(fastConfig())

	res := x.Execute(context.Background(), graphOf(&b), nil, Options{})
	require.False(t, res.IsSuccess)
	assert.Equal(t, "policy_denied", res.NodeResults[0].ErrorKind)

	// Opt-in is per call and flips the same request to allowed.
	res = x.Execute(context.Background(), graphOf(&b), nil, Options{TierBOptIn: true})
	require.True(t, res.IsSuccess)
	assert.Equal(t, 1700000000, res.FinalOutputs["timestamp"])
}

func TestExecuteOpenBreakerShortCircuits(t *testing.T) {
	reg, logic, chain, build := testHarness(t, policy.PermissiveRules())

	b := testBlock("always_fails", "logic.fails", nil)
	admit(t, reg, b)
	var calls atomic.Int32
	require.NoError(t, logic.Register("logic.fails", func(context.Context, map[string]any) (map[string]any, error) {
		calls.Add(1)
		return nil, errors.New("malformed input")
	}))

	cfg := fastConfig()
	cfg.Breaker.FailureThreshold = 1
	x := build(cfg)

	res := x.Execute(context.Background(), graphOf(b), map[string]any{"s": "x"}, Options{})
	require.False(t, res.IsSuccess)
	assert.Equal(t, int32(1), calls.Load())

	// The circuit opened on the first failure; the next run never reaches
	// the logic and fails immediately without retries.
	res = x.Execute(context.Background(), graphOf(b), map[string]any{"s": "x"}, Options{})
	require.False(t, res.IsSuccess)
	assert.Equal(t, "circuit_open", res.NodeResults[0].ErrorKind)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, res.NodeResults[0].RetryCount)
	assert.Equal(t, 2, chain.Len())
}

func TestExecuteGraphBudgetBoundsRetries(t *testing.T) {
	reg, logic, chain, build := testHarness(t, policy.PermissiveRules())

	b := testBlock("slow_flaky", "logic.slowflaky", nil)
	admit(t, reg, b)
	var calls atomic.Int32
	require.NoError(t, logic.Register("logic.slowflaky", func(context.Context, map[string]any) (map[string]any, error) {
		calls.Add(1)
		time.Sleep(2 * time.Millisecond)
		return nil, errors.New("flaky upstream: still down")
	}))

	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 100
	cfg.Breaker.FailureThreshold = 1000
	cfg.GraphBudget = 15 * time.Millisecond
	x := build(cfg)

	res := x.Execute(context.Background(), graphOf(b), map[string]any{"s": "x"}, Options{})

	require.False(t, res.IsSuccess)
	assert.Equal(t, NodeFailed, res.NodeResults[0].State)
	assert.Equal(t, "timeout", res.NodeResults[0].ErrorKind)

	// The wall-clock budget ended the node well before the retry cap.
	n := int(calls.Load())
	assert.GreaterOrEqual(t, n, 1)
	assert.Less(t, n, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1, chain.Len())
}

func TestExecuteExpiredBudgetSkipsAttempts(t *testing.T) {
	reg, logic, chain, build := testHarness(t, policy.PermissiveRules())

	b := testBlock("never_runs", "logic.never", nil)
	admit(t, reg, b)
	var calls atomic.Int32
	require.NoError(t, logic.Register("logic.never", func(context.Context, map[string]any) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{"result": "ok"}, nil
	}))

	x := build(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := x.Execute(ctx, graphOf(b), map[string]any{"s": "x"}, Options{})

	require.False(t, res.IsSuccess)
	assert.Equal(t, NodeFailed, res.NodeResults[0].State)
	assert.Equal(t, "timeout", res.NodeResults[0].ErrorKind)
	assert.Contains(t, res.NodeResults[0].Error, "graph budget exhausted")
	assert.Zero(t, calls.Load())
	assert.Zero(t, res.NodeResults[0].RetryCount)
	assert.Equal(t, 1, chain.Len())
}

func TestExecuteNodeTimeoutIsTransient(t *testing.T) {
	reg, logic, _, build := testHarness(t, policy.PermissiveRules())

	b := testBlock("slow_block", "logic.slow", nil)
	admit(t, reg, b)
	require.NoError(t, logic.Register("logic.slow", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		select {
		case <-time.After(time.Second):
			return map[string]any{"result": "too late"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	cfg := fastConfig()
	cfg.NodeTimeout = 10 * time.Millisecond
	cfg.Retry.MaxAttempts = 2
	x := build(cfg)

	res := x.Execute(context.Background(), graphOf(b), map[string]any{"s": "x"}, Options{})
	require.False(t, res.IsSuccess)
	assert.Equal(t, "timeout", res.NodeResults[0].ErrorKind)
	// Timeouts are transient, so the retry budget was spent.
	assert.Equal(t, 1, res.NodeResults[0].RetryCount)
}

func TestExecutePanicIsIsolated(t *testing.T) {
	reg, logic, chain, build := testHarness(t, policy.PermissiveRules())

	b := testBlock("panicky", "logic.panic", nil)
	admit(t, reg, b)
	require.NoError(t, logic.Register("logic.panic", func(context.Context, map[string]any) (map[string]any, error) {
		panic("boom")
	}))

	x := build(fastConfig())
	res := x.Execute(context.Background(), graphOf(b), map[string]any{"s": "x"}, Options{})

	require.False(t, res.IsSuccess)
	assert.Equal(t, NodeFailed, res.NodeResults[0].State)
	assert.Equal(t, "non_retryable", res.NodeResults[0].ErrorKind)
	assert.Contains(t, res.NodeResults[0].Error, "unhandled fault")
	assert.Equal(t, 1, chain.Len())
}

func TestExecuteQuarantinedBlockFails(t *testing.T) {
	reg, _, chain, build := testHarness(t, policy.PermissiveRules())

	b := testBlock("bad_block", "logic.bad", nil)
	_, err := reg.Quarantine(b, verify.Record{Passed: false, Reason: "case 3 faulted"})
	require.NoError(t, err)

	x := build(fastConfig())
	res := x.Execute(context.Background(), graphOf(b), map[string]any{"s": "x"}, Options{})

	require.False(t, res.IsSuccess)
	assert.Equal(t, "not_admitted", res.NodeResults[0].ErrorKind)
	assert.Equal(t, 1, chain.Len())
}
