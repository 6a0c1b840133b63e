// Package run is the guarded executor: it walks an execution graph
// node-by-node with retry, timeout, rate limiting and circuit breaking,
// binding predecessor outputs to node inputs and recording every attempt
// in the audit chain.
package run

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/forgeworks/blockforge/audit"
	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/catalog"
	"github.com/forgeworks/blockforge/compose"
	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/policy"
	"github.com/forgeworks/blockforge/registry"
)

// NodeState is the execution state machine for one node:
// Pending -> Running -> {Succeeded | Failed}. Failed transitions back to
// Running under the retry policy for transient failures only.
type NodeState string

const (
	NodePending   NodeState = "pending"
	NodeRunning   NodeState = "running"
	NodeSucceeded NodeState = "succeeded"
	NodeFailed    NodeState = "failed"
)

// NodeResult is the per-node outcome of a graph run.
type NodeResult struct {
	BlockName   string         `json:"block_name"`
	ContentHash block.Hash     `json:"content_hash"`
	State       NodeState      `json:"state"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	// RetryCount is the number of re-runs after the first attempt.
	RetryCount int     `json:"retry_count"`
	ElapsedMS  float64 `json:"elapsed_ms"`
}

// Result is the transient outcome of one graph run; the caller owns it
// after return.
type Result struct {
	ExecutionID  string         `json:"execution_id"`
	IsSuccess    bool           `json:"is_success"`
	NodeResults  []NodeResult   `json:"node_results"`
	FinalOutputs map[string]any `json:"final_outputs"`
	BlocksUsed   []string       `json:"blocks_used"`
	ElapsedMS    float64        `json:"elapsed_ms"`
	AuditHash    string         `json:"audit_hash"`
	Error        string         `json:"error,omitempty"`
}

// Config tunes the execution guards.
type Config struct {
	Retry       RetryPolicy
	Breaker     BreakerConfig
	NodeTimeout time.Duration
	// GraphBudget bounds total wall-clock time per graph run including
	// all retries across all nodes.
	GraphBudget time.Duration
	// MaxCallsPerBlock is the per-second call bound per block identity
	// carried over from policy rules. Zero means unlimited.
	MaxCallsPerBlock int
}

// DefaultConfig returns the guard defaults.
func DefaultConfig() Config {
	return Config{
		Retry:       DefaultRetryPolicy(),
		Breaker:     DefaultBreakerConfig(),
		NodeTimeout: 5 * time.Second,
		GraphBudget: 30 * time.Second,
	}
}

// Options scope one execution request. TierBOptIn never outlives the call.
type Options struct {
	TierBOptIn bool
	AgentID    string
}

// Executor runs execution graphs. Concurrent requests share only the
// audit chain, the breaker set and the rate limiters; everything else is
// per-request.
type Executor struct {
	registry *registry.Registry
	logic    *catalog.Registry
	policy   *policy.Engine
	chain    *audit.Chain
	breakers *BreakerSet
	cfg      Config
	logger   *zap.SugaredLogger

	limiterMu sync.Mutex
	limiters  map[block.Hash]*rate.Limiter
}

// New creates an executor.
func New(reg *registry.Registry, logic *catalog.Registry, policyEngine *policy.Engine, chain *audit.Chain, cfg Config, logger *zap.SugaredLogger) *Executor {
	return &Executor{
		registry: reg,
		logic:    logic,
		policy:   policyEngine,
		chain:    chain,
		breakers: NewBreakerSet(cfg.Breaker),
		cfg:      cfg,
		logger:   logger,
		limiters: make(map[block.Hash]*rate.Limiter),
	}
}

// Execute runs a graph against initial inputs. Nodes run sequentially:
// outputs feed the inputs of later nodes. The overall result is successful
// iff every node reached Succeeded; a node that exhausts retries fails the
// graph but partial outputs of succeeded nodes are still returned, tagged
// per node. Nodes after the failed one are never started and stay Pending.
func (x *Executor) Execute(ctx context.Context, g *compose.Graph, initial map[string]any, opts Options) *Result {
	start := time.Now()
	res := &Result{
		ExecutionID:  uuid.NewString(),
		NodeResults:  make([]NodeResult, len(g.Nodes)),
		FinalOutputs: make(map[string]any),
	}

	if g.Empty() {
		// Distinct "no match" outcome, not an execution failure.
		res.Error = "no matching blocks for intent"
		res.AuditHash = x.chain.Tip()
		return res
	}

	budget := x.cfg.GraphBudget
	if budget <= 0 {
		budget = DefaultConfig().GraphBudget
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	carried := make(map[string]any)
	failed := false

	for i := range g.Nodes {
		node := &g.Nodes[i]
		nr := &res.NodeResults[i]
		nr.BlockName = node.Entry.Name
		nr.ContentHash = node.Entry.ContentHash
		nr.State = NodePending

		if failed {
			continue
		}

		x.executeNode(runCtx, node, initial, carried, nr, opts)

		if nr.State == NodeSucceeded {
			res.BlocksUsed = append(res.BlocksUsed, node.Entry.Name)
			for k, v := range nr.Outputs {
				carried[k] = v
			}
		} else {
			failed = true
			res.Error = nr.Error
		}
	}

	res.IsSuccess = !failed
	res.FinalOutputs = carried
	res.ElapsedMS = float64(time.Since(start).Microseconds()) / 1000.0
	res.AuditHash = x.chain.Tip()

	if x.logger != nil {
		x.logger.Infow("Graph execution finished",
			"execution_id", res.ExecutionID,
			"nodes", len(g.Nodes),
			"success", res.IsSuccess,
			"elapsed_ms", res.ElapsedMS,
		)
	}
	return res
}

// executeNode drives one node through the guard state machine.
func (x *Executor) executeNode(ctx context.Context, node *compose.Node, initial, carried map[string]any, nr *NodeResult, opts Options) {
	nodeStart := time.Now()
	defer func() {
		nr.ElapsedMS = float64(time.Since(nodeStart).Microseconds()) / 1000.0
	}()

	b, err := x.registry.GetAdmitted(node.Entry.ContentHash)
	if err != nil {
		nr.State = NodeFailed
		nr.Error = err.Error()
		nr.ErrorKind = "not_admitted"
		x.auditExecution(b, node.Entry.Name, nil, nil, false, nodeStart, opts)
		return
	}

	// Policy is re-checked at execution time: composition state may be
	// stale and denial here is surfaced as a violation, not retried.
	decision := x.policy.Check(policy.Request{
		Name:       b.Name,
		Category:   b.Category,
		Tier:       b.TrustTier,
		TierBOptIn: opts.TierBOptIn,
	})
	if !decision.Allowed {
		nr.State = NodeFailed
		nr.Error = decision.Reason
		nr.ErrorKind = "policy_denied"
		x.auditViolation(b, decision.Reason, opts)
		return
	}

	inputs := resolveInputs(b, initial, carried)

	fn, ok := x.logic.Lookup(b.LogicRef)
	if !ok {
		nr.State = NodeFailed
		nr.Error = "logic_ref not registered: " + b.LogicRef
		nr.ErrorKind = "not_registered"
		x.auditExecution(b, b.Name, inputs, nil, false, nodeStart, opts)
		return
	}

	breaker := x.breakers.For(b.ContentHash)
	limiter := x.limiterFor(b.ContentHash)

	var outputs map[string]any
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= x.cfg.Retry.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = errors.Wrap(errors.ErrTimeout, "graph budget exhausted")
			break
		}

		// The breaker short-circuits regardless of remaining retries.
		if !breaker.Allow() {
			lastErr = errors.Wrapf(errors.ErrCircuitOpen, "block %s", b.Name)
			break
		}

		if limiter != nil && !limiter.Allow() {
			// Rate rejection is transient and does not count against the
			// breaker: the block itself did nothing wrong.
			lastErr = errors.Wrapf(errors.ErrTransient, "block %s rate limited", b.Name)
			attempts = attempt
			if attempt < x.cfg.Retry.MaxAttempts {
				if err := sleep(ctx, x.cfg.Retry.Delay(attempt)); err != nil {
					break
				}
			}
			continue
		}

		attempts = attempt
		nr.State = NodeRunning
		outputs, lastErr = x.runWithTimeout(ctx, fn, inputs)

		if lastErr == nil {
			breaker.RecordSuccess()
			break
		}
		breaker.RecordFailure()

		if !x.isRetryable(b, lastErr) {
			break
		}
		if attempt < x.cfg.Retry.MaxAttempts {
			// Backoff holds no locks; cancellation aborts the wait.
			if err := sleep(ctx, x.cfg.Retry.Delay(attempt)); err != nil {
				lastErr = errors.Wrap(errors.ErrTimeout, "cancelled during retry backoff")
				break
			}
		}
	}

	if attempts > 0 {
		nr.RetryCount = attempts - 1
	}

	if lastErr != nil {
		nr.State = NodeFailed
		nr.Error = lastErr.Error()
		nr.ErrorKind = classifyKind(lastErr)
		x.auditExecution(b, b.Name, inputs, nil, false, nodeStart, opts)
		return
	}

	nr.State = NodeSucceeded
	nr.Outputs = outputs
	x.auditExecution(b, b.Name, inputs, outputs, true, nodeStart, opts)
}

// runWithTimeout executes logic under the hard per-node timeout with
// panic isolation. A timeout is a transient failure by contract.
func (x *Executor) runWithTimeout(ctx context.Context, fn catalog.Logic, inputs map[string]any) (map[string]any, error) {
	timeout := x.cfg.NodeTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().NodeTimeout
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		outputs map[string]any
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Wrapf(errors.ErrNonRetryable, "unhandled fault: %v", r)}
			}
		}()
		outputs, err := fn(nodeCtx, inputs)
		done <- outcome{outputs: outputs, err: err}
	}()

	select {
	case o := <-done:
		return o.outputs, o.err
	case <-nodeCtx.Done():
		return nil, errors.Wrap(errors.ErrTimeout, "node execution exceeded timeout")
	}
}

// resolveInputs binds a node's declared inputs from initial inputs and
// predecessor outputs. Precedence is fixed: a predecessor output overrides
// an initial input on name collision.
func resolveInputs(b *block.Block, initial, carried map[string]any) map[string]any {
	inputs := make(map[string]any, len(b.Interface.Inputs))
	for _, p := range b.Interface.Inputs {
		if v, ok := initial[p.Name]; ok {
			inputs[p.Name] = v
		}
		if v, ok := carried[p.Name]; ok {
			inputs[p.Name] = v
		}
	}
	// A single-input block also accepts the single carried value under a
	// different name, so stages chain without shared naming conventions.
	if len(b.Interface.Inputs) == 1 {
		name := b.Interface.Inputs[0].Name
		if _, bound := inputs[name]; !bound && len(carried) == 1 {
			for _, v := range carried {
				inputs[name] = v
			}
		}
	}
	return inputs
}

// isRetryable classifies a node failure: timeouts and declared-retryable
// failure modes are transient; everything else terminates the node.
func (x *Executor) isRetryable(b *block.Block, err error) bool {
	if errors.Is(err, errors.ErrNonRetryable) || errors.Is(err, errors.ErrCircuitOpen) {
		return false
	}
	if errors.IsTransient(err) {
		return true
	}
	msg := err.Error()
	for _, fm := range b.FailureModes {
		if fm.Retryable && strings.Contains(msg, fm.Condition) {
			return true
		}
	}
	return false
}

func classifyKind(err error) string {
	switch {
	case errors.Is(err, errors.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, errors.ErrTimeout):
		return "timeout"
	case errors.Is(err, errors.ErrTransient):
		return "transient"
	case errors.Is(err, errors.ErrNonRetryable):
		return "non_retryable"
	default:
		return "execution_error"
	}
}

func (x *Executor) limiterFor(hash block.Hash) *rate.Limiter {
	if x.cfg.MaxCallsPerBlock <= 0 {
		return nil
	}
	x.limiterMu.Lock()
	defer x.limiterMu.Unlock()

	l, ok := x.limiters[hash]
	if !ok {
		l = rate.NewLimiter(rate.Limit(x.cfg.MaxCallsPerBlock), x.cfg.MaxCallsPerBlock)
		x.limiters[hash] = l
	}
	return l
}

func (x *Executor) auditExecution(b *block.Block, name string, inputs, outputs map[string]any, success bool, started time.Time, opts Options) {
	hash := ""
	if b != nil {
		hash = b.ContentHash.String()
	}
	_, err := x.chain.Append(audit.EntryContent{
		Action:       audit.ActionExecute,
		BlockName:    name,
		BlockHash:    hash,
		Inputs:       inputs,
		Outputs:      outputs,
		Success:      success,
		ElapsedMS:    float64(time.Since(started).Microseconds()) / 1000.0,
		AgentID:      opts.AgentID,
		PolicyStatus: "ALLOWED",
	})
	if err != nil && x.logger != nil {
		x.logger.Errorw("Failed to append audit entry", "block", name, "error", err)
	}
}

func (x *Executor) auditViolation(b *block.Block, reason string, opts Options) {
	_, err := x.chain.Append(audit.EntryContent{
		Action:       audit.ActionViolation,
		BlockName:    b.Name,
		BlockHash:    b.ContentHash.String(),
		Outputs:      map[string]any{"violation_reason": reason},
		Success:      false,
		AgentID:      opts.AgentID,
		PolicyStatus: "BLOCKED",
	})
	if err != nil && x.logger != nil {
		x.logger.Errorw("Failed to append violation entry", "block", b.Name, "error", err)
	}
}
