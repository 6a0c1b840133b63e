package validate

import (
	"strings"

	"github.com/forgeworks/blockforge/block"
)

// StaticAnalysis summarizes the static risk assessment of a candidate.
// Risk is in [0,1]; the trust scorer inverts it, so lower risk contributes
// a higher trust component.
type StaticAnalysis struct {
	Risk     float64  `json:"risk"`
	Findings []string `json:"findings,omitempty"`
}

// riskyEffectWeights assigns a risk increment per declared side effect tag.
// Unlisted tags carry the default weight.
var riskyEffectWeights = map[string]float64{
	"logging":    0.02,
	"metrics":    0.02,
	"clock":      0.05,
	"network":    0.35,
	"filesystem": 0.30,
	"process":    0.40,
	"env":        0.15,
}

const defaultEffectRisk = 0.10

// Analyze performs static analysis over a candidate's declarations.
// Pure function; safe for concurrent use.
func Analyze(c block.Candidate) StaticAnalysis {
	risk := 0.0
	var findings []string

	if c.Constraints.Purity == block.Impure {
		risk += 0.15
		findings = append(findings, "impure logic")
	}
	if !c.Constraints.Deterministic {
		risk += 0.15
		findings = append(findings, "non-deterministic logic")
	}
	if !c.Constraints.ThreadSafe {
		risk += 0.10
		findings = append(findings, "not declared thread-safe")
	}

	for _, effect := range c.Constraints.SideEffects {
		w, ok := riskyEffectWeights[strings.ToLower(effect)]
		if !ok {
			w = defaultEffectRisk
		}
		risk += w
		findings = append(findings, "side effect: "+effect)
	}

	// Blocks declaring no failure modes at all hide their error surface.
	if len(c.FailureModes) == 0 {
		risk += 0.10
		findings = append(findings, "no declared failure modes")
	}

	if risk > 1.0 {
		risk = 1.0
	}
	return StaticAnalysis{Risk: risk, Findings: findings}
}
