// Package verify implements the dynamic verifier: it executes a block's
// logic against generated boundary inputs in an isolated, resource-bounded
// context and records whether the block behaves as declared. A block that
// fails any check is quarantined; quarantine is terminal for that content
// hash.
package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/catalog"
	"github.com/forgeworks/blockforge/errors"
)

const (
	// defaultRuns is how many times each case is executed to confirm
	// repeatability. The contract requires N >= 2.
	defaultRuns = 3

	defaultCaseTimeout = 2 * time.Second
)

// CaseResult is the outcome of one generated input case.
type CaseResult struct {
	Inputs map[string]any `json:"inputs"`
	Passed bool           `json:"passed"`
	Error  string         `json:"error,omitempty"`
}

// Record is the verification record for one block. Immutable once written.
type Record struct {
	ContentHash block.Hash   `json:"content_hash"`
	Cases       []CaseResult `json:"cases"`
	CasesRun    int          `json:"cases_run"`
	CasesPassed int          `json:"cases_passed"`
	Repeatable  bool         `json:"repeatable"`
	Passed      bool         `json:"passed"`
	Reason      string       `json:"reason,omitempty"`
	VerifiedAt  time.Time    `json:"verified_at"`
}

// Coverage is the fraction of generated cases that passed, used by the
// trust scorer as the test-coverage-breadth component.
func (r Record) Coverage() float64 {
	if r.CasesRun == 0 {
		return 0
	}
	return float64(r.CasesPassed) / float64(r.CasesRun)
}

// Config tunes dynamic verification.
type Config struct {
	// Runs is how many times each case is executed to confirm
	// repeatability. Values below 2 fall back to the default.
	Runs int
	// CaseTimeout bounds a single case execution.
	CaseTimeout time.Duration
}

// DefaultConfig returns the verification defaults.
func DefaultConfig() Config {
	return Config{
		Runs:        defaultRuns,
		CaseTimeout: defaultCaseTimeout,
	}
}

// Verifier executes candidate blocks against generated inputs.
type Verifier struct {
	logic       *catalog.Registry
	runs        int
	caseTimeout time.Duration
	logger      *zap.SugaredLogger
}

// New creates a verifier over the given logic registry.
func New(logic *catalog.Registry, cfg Config, logger *zap.SugaredLogger) *Verifier {
	if cfg.Runs < 2 {
		cfg.Runs = defaultRuns
	}
	if cfg.CaseTimeout <= 0 {
		cfg.CaseTimeout = defaultCaseTimeout
	}
	return &Verifier{
		logic:       logic,
		runs:        cfg.Runs,
		caseTimeout: cfg.CaseTimeout,
		logger:      logger,
	}
}

// Verify runs the full dynamic check suite for a block:
//
//	(a) no unhandled fault for any generated in-domain input
//	(b) repeated execution on identical input yields identical output
//	(c) outputs satisfy the declared output types
//
// Repeatability is enforced only for blocks declaring deterministic=true;
// it is still measured and recorded for the rest.
func (v *Verifier) Verify(ctx context.Context, b *block.Block) Record {
	rec := Record{
		ContentHash: b.ContentHash,
		Repeatable:  true,
		VerifiedAt:  time.Now().UTC(),
	}

	fn, ok := v.logic.Lookup(b.LogicRef)
	if !ok {
		rec.Reason = "logic_ref not registered: " + b.LogicRef
		return rec
	}

	cases := generateCases(b.Interface)
	rec.CasesRun = len(cases)

	allPassed := true
	for _, inputs := range cases {
		cr := CaseResult{Inputs: inputs}

		var firstOutputs map[string]any
		for run := 0; run < v.runs; run++ {
			outputs, err := v.runIsolated(ctx, fn, inputs)
			if err != nil {
				cr.Error = err.Error()
				break
			}
			if err := checkOutputTypes(b.Interface.Outputs, outputs); err != nil {
				cr.Error = err.Error()
				break
			}
			if run == 0 {
				firstOutputs = outputs
				continue
			}
			if !outputsEqual(firstOutputs, outputs) {
				rec.Repeatable = false
				if b.Constraints.Deterministic {
					cr.Error = "non-repeatable output for identical input"
				}
				break
			}
		}

		cr.Passed = cr.Error == ""
		if cr.Passed {
			rec.CasesPassed++
		} else {
			allPassed = false
		}
		rec.Cases = append(rec.Cases, cr)
	}

	rec.Passed = allPassed && (!b.Constraints.Deterministic || rec.Repeatable)
	if !rec.Passed && rec.Reason == "" {
		if !rec.Repeatable && b.Constraints.Deterministic {
			rec.Reason = "declared deterministic but output varies across runs"
		} else {
			rec.Reason = fmt.Sprintf("%d of %d generated cases failed", rec.CasesRun-rec.CasesPassed, rec.CasesRun)
		}
	}

	if v.logger != nil {
		v.logger.Debugw("Dynamic verification complete",
			"block", b.Name,
			"hash", b.ContentHash.Short(),
			"cases_run", rec.CasesRun,
			"cases_passed", rec.CasesPassed,
			"repeatable", rec.Repeatable,
			"passed", rec.Passed,
		)
	}
	return rec
}

// runIsolated executes logic in its own goroutine with a hard timeout and
// panic recovery, so a faulting block cannot take the verifier down or
// hang it.
func (v *Verifier) runIsolated(ctx context.Context, fn catalog.Logic, inputs map[string]any) (map[string]any, error) {
	runCtx, cancel := context.WithTimeout(ctx, v.caseTimeout)
	defer cancel()

	type outcome struct {
		outputs map[string]any
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Newf("unhandled fault: %v", r)}
			}
		}()
		outputs, err := fn(runCtx, inputs)
		done <- outcome{outputs: outputs, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		return o.outputs, nil
	case <-runCtx.Done():
		return nil, errors.Wrap(errors.ErrTimeout, "case execution exceeded timeout")
	}
}

// checkOutputTypes verifies that every declared output is present and
// matches its declared type, and that no undeclared outputs appear.
func checkOutputTypes(declared []block.Param, outputs map[string]any) error {
	for _, p := range declared {
		v, ok := outputs[p.Name]
		if !ok {
			return errors.Newf("declared output missing: %s", p.Name)
		}
		if !valueMatchesType(v, p.Type) {
			return errors.Newf("output %s: %T does not satisfy declared type %s", p.Name, v, p.Type)
		}
	}
	for name := range outputs {
		found := false
		for _, p := range declared {
			if p.Name == name {
				found = true
				break
			}
		}
		if !found {
			return errors.Newf("undeclared output produced: %s", name)
		}
	}
	return nil
}

func valueMatchesType(v any, t block.IOType) bool {
	switch t {
	case block.TypeString:
		_, ok := v.(string)
		return ok
	case block.TypeBool:
		_, ok := v.(bool)
		return ok
	case block.TypeInt:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		default:
			return false
		}
	case block.TypeFloat:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		default:
			return false
		}
	case block.TypeList:
		_, ok := v.([]any)
		return ok
	case block.TypeMap:
		_, ok := v.(map[string]any)
		return ok
	case block.TypeAny:
		return true
	default:
		return false
	}
}
