// Package validate implements the schema and static validator that gates
// admission: malformed or unsafe candidates are rejected before any logic
// is ever executed.
package validate

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/errors"
)

// schemaConstraint is the range of candidate schema versions this build
// understands.
var schemaConstraint = func() *semver.Constraints {
	c, err := semver.NewConstraint(">= 1.0.0, < 2.0.0")
	if err != nil {
		panic(err)
	}
	return c
}()

// pureAllowedEffects is the fixed allow-list of side effect tags a block
// declaring purity=pure may carry.
var pureAllowedEffects = map[string]bool{
	"logging": true,
	"metrics": true,
}

// forbiddenWhenDeterministic are operation patterns incompatible with a
// deterministic declaration. Matched against side effect tags and the
// logic_ref name.
var forbiddenWhenDeterministic = []string{
	"network", "http", "fetch", "socket",
	"filesystem", "file", "disk",
	"process", "exec", "shell",
	"random", "rand",
	"clock", "time_now",
	"env",
}

// Result is the outcome of schema validation. A candidate with any missing
// mandatory section is rejected unconditionally; there is no partial
// admission.
type Result struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// Err returns the result as an error, or nil if valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return errors.Wrap(errors.ErrSchemaRejected, strings.Join(r.Reasons, "; "))
}

// Validate checks a candidate against the block schema. It is a pure
// function of the candidate: no side effects, no stored state.
func Validate(c block.Candidate) Result {
	var reasons []string
	reject := func(format string, args ...interface{}) {
		reasons = append(reasons, errors.Newf(format, args...).Error())
	}

	// Mandatory sections. Identity, ownership, interface, constraints,
	// logic reference, validation rules, failure modes, composition.
	if c.Name == "" {
		reject("missing mandatory field: name")
	}
	if c.Owner == "" {
		reject("missing mandatory field: owner")
	}
	if c.License == "" {
		reject("missing mandatory field: license")
	}
	if c.Category == "" {
		reject("missing mandatory field: category")
	}
	if c.LogicRef == "" {
		reject("missing mandatory field: logic_ref")
	}
	if len(c.ValidationRules) == 0 {
		reject("missing mandatory section: validation_rules")
	}
	if len(c.FailureModes) == 0 {
		reject("missing mandatory section: failure_modes")
	}
	if len(c.Composition.CanChainFrom) == 0 && len(c.Composition.CanChainTo) == 0 {
		reject("missing mandatory section: composition")
	}
	if len(c.Interface.Outputs) == 0 {
		reject("interface must declare at least one output")
	}

	if c.SchemaVersion == "" {
		reject("missing mandatory field: schema_version")
	} else if v, err := semver.NewVersion(c.SchemaVersion); err != nil {
		reject("schema_version %q is not valid semver", c.SchemaVersion)
	} else if !schemaConstraint.Check(v) {
		reject("schema_version %q outside supported range %s", c.SchemaVersion, schemaConstraint)
	}

	reasons = append(reasons, validateInterface(c.Interface)...)
	reasons = append(reasons, validateConstraints(c.Constraints, c.LogicRef)...)

	return Result{Valid: len(reasons) == 0, Reasons: reasons}
}

func validateInterface(iface block.Interface) []string {
	var reasons []string

	check := func(side string, params []block.Param) {
		seen := make(map[string]bool, len(params))
		for _, p := range params {
			if p.Name == "" {
				reasons = append(reasons, side+" param with empty name")
				continue
			}
			if seen[p.Name] {
				reasons = append(reasons, side+" param name duplicated: "+p.Name)
			}
			seen[p.Name] = true
			if !knownType(p.Type) {
				reasons = append(reasons, side+" param "+p.Name+" has unknown type: "+string(p.Type))
			}
		}
	}
	check("input", iface.Inputs)
	check("output", iface.Outputs)
	return reasons
}

func validateConstraints(c block.Constraints, logicRef string) []string {
	var reasons []string

	switch c.Purity {
	case block.Pure, block.Impure:
	default:
		reasons = append(reasons, "constraints.purity must be pure or impure")
	}

	if c.Purity == block.Pure {
		for _, effect := range c.SideEffects {
			if !pureAllowedEffects[effect] {
				reasons = append(reasons, "side effect not allowed for pure block: "+effect)
			}
		}
	}

	if c.Deterministic {
		for _, pattern := range forbiddenWhenDeterministic {
			for _, effect := range c.SideEffects {
				if strings.Contains(strings.ToLower(effect), pattern) {
					reasons = append(reasons, "forbidden operation for deterministic block: "+effect)
				}
			}
			if strings.Contains(strings.ToLower(logicRef), pattern) {
				reasons = append(reasons, "logic_ref suggests forbidden operation for deterministic block: "+pattern)
			}
		}
	}

	return reasons
}

func knownType(t block.IOType) bool {
	for _, known := range block.KnownIOTypes {
		if t == known {
			return true
		}
	}
	return false
}
