// Package policy implements the whitelist/blacklist/tier gate evaluated
// before any block may enter a graph or be executed.
package policy

import (
	"sync"

	"github.com/forgeworks/blockforge/block"
)

// Mode selects the default stance of the engine.
type Mode string

const (
	// ModeWhitelist is default-deny: only explicitly allowed names or
	// categories pass.
	ModeWhitelist Mode = "whitelist"
	// ModeBlacklist is default-allow: only explicitly denied names or
	// categories fail.
	ModeBlacklist Mode = "blacklist"
)

// Rules is the declarative policy configuration.
type Rules struct {
	Mode            Mode     `yaml:"mode" json:"mode"`
	AllowNames      []string `yaml:"allow_names" json:"allow_names"`
	DenyNames       []string `yaml:"deny_names" json:"deny_names"`
	AllowCategories []string `yaml:"allow_categories" json:"allow_categories"`
	DenyCategories  []string `yaml:"deny_categories" json:"deny_categories"`

	// MaxCallsPerBlock bounds how often one block identity may be invoked
	// per second. Enforced by the executor's rate limiters, not by Check,
	// which stays a pure function. Zero means unlimited.
	MaxCallsPerBlock int `yaml:"max_calls_per_block" json:"max_calls_per_block"`
}

// Request identifies one block reference under evaluation. TierBOptIn is
// execution-scoped: it applies to this request only and never persists.
type Request struct {
	Name       string
	Category   string
	Tier       block.Tier
	TierBOptIn bool
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Rule    string `json:"rule"`
}

// Allow returns an allowing decision tagged with the matching rule.
func allow(rule string) Decision {
	return Decision{Allowed: true, Reason: "allowed", Rule: rule}
}

func deny(rule, reason string) Decision {
	return Decision{Allowed: false, Reason: reason, Rule: rule}
}

// Engine evaluates requests against a rules snapshot. Check is side-effect
// free and safe for concurrent use from multiple execution requests;
// Reload swaps the snapshot atomically.
type Engine struct {
	mu       sync.RWMutex
	rules    Rules
	nameSet  map[string]bool // allow set in whitelist mode, deny set in blacklist mode
	catSet   map[string]bool
}

// NewEngine compiles rules into an engine. An empty mode defaults to
// whitelist, the safer stance.
func NewEngine(rules Rules) *Engine {
	e := &Engine{}
	e.Reload(rules)
	return e
}

// Reload atomically replaces the rules snapshot.
func (e *Engine) Reload(rules Rules) {
	if rules.Mode == "" {
		rules.Mode = ModeWhitelist
	}

	nameSet := make(map[string]bool)
	catSet := make(map[string]bool)
	if rules.Mode == ModeWhitelist {
		for _, n := range rules.AllowNames {
			nameSet[n] = true
		}
		for _, c := range rules.AllowCategories {
			catSet[c] = true
		}
	} else {
		for _, n := range rules.DenyNames {
			nameSet[n] = true
		}
		for _, c := range rules.DenyCategories {
			catSet[c] = true
		}
	}

	e.mu.Lock()
	e.rules = rules
	e.nameSet = nameSet
	e.catSet = catSet
	e.mu.Unlock()
}

// Rules returns a copy of the current snapshot.
func (e *Engine) Rules() Rules {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

// Check evaluates one block reference. Evaluation order: tier gate, then
// explicit per-name rule, then category rule, then the mode default.
// First matching rule wins. Pure over the current rules snapshot: the same
// (rules, name, category, tier, opt-in) always yields the same decision.
func (e *Engine) Check(req Request) Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// Tier-B blocks require an explicit, execution-scoped opt-in
	// regardless of name or category rules.
	if req.Tier == block.TierB && !req.TierBOptIn {
		return deny("TIER_DEFAULT", "tier B block requires explicit per-call opt-in")
	}

	if e.rules.Mode == ModeWhitelist {
		if e.nameSet[req.Name] {
			return allow("WHITELIST_NAME")
		}
		if e.catSet[req.Category] {
			return allow("WHITELIST_CATEGORY")
		}
		return deny("WHITELIST", "block '"+req.Name+"' not in allowed whitelist")
	}

	// Blacklist mode: default-allow.
	if e.nameSet[req.Name] {
		return deny("BLACKLIST_NAME", "block '"+req.Name+"' is explicitly denied")
	}
	if e.catSet[req.Category] {
		return deny("BLACKLIST_CATEGORY", "category '"+req.Category+"' is explicitly denied")
	}
	return allow("BLACKLIST_DEFAULT")
}

// ReadonlyRules is the canned policy allowing only read/validation blocks.
func ReadonlyRules() Rules {
	return Rules{
		Mode: ModeWhitelist,
		AllowNames: []string{
			"is_valid_email",
			"is_palindrome",
			"word_count",
			"string_length",
			"count_vowels",
		},
	}
}

// PermissiveRules is the canned policy admitting every indexed block
// except explicitly denied ones. Useful for development setups.
func PermissiveRules() Rules {
	return Rules{Mode: ModeBlacklist}
}

// FinancialRules is the canned policy for financial pipelines: whitelist
// mode, masking and validation plus currency formatting, with a per-block
// call bound.
func FinancialRules() Rules {
	return Rules{
		Mode: ModeWhitelist,
		AllowNames: []string{
			"is_valid_email",
			"mask_email",
			"format_currency",
			"sum_numbers",
		},
		MaxCallsPerBlock: 100,
	}
}
