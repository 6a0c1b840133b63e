// Package compose resolves a canonical intent descriptor into an ordered,
// type-checked execution graph over indexed blocks.
package compose

import (
	"go.uber.org/zap"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/policy"
	"github.com/forgeworks/blockforge/semindex"
)

// Stage is one required pipeline step of an intent.
type Stage struct {
	Domain    semindex.Domain    `json:"domain"`
	Operation semindex.Operation `json:"operation"`
	// Subject narrows candidate selection by free-text relevance
	// (e.g. "email" prefers is_valid_email over other validators).
	Subject string `json:"subject,omitempty"`
}

// Intent is the canonical descriptor produced by the (external) intent
// parsing step: the boundary contract into composition.
type Intent struct {
	Query       string         `json:"query"`
	Stages      []Stage        `json:"stages"`
	InputTypes  []block.IOType `json:"input_types,omitempty"`
	OutputTypes []block.IOType `json:"output_types,omitempty"`
}

// Node is one position in an execution graph, referencing one block.
type Node struct {
	Entry       semindex.Entry `json:"entry"`
	Position    int            `json:"position"`
	WhySelected string         `json:"why_selected"`
}

// Graph is a directed acyclic sequence of nodes, constructed fresh per
// request and never shared across requests.
type Graph struct {
	Query string `json:"query"`
	Nodes []Node `json:"nodes"`
}

// Empty reports whether composition found no match. An empty graph is a
// documented "no match" outcome, distinct from an execution failure.
func (g *Graph) Empty() bool {
	return len(g.Nodes) == 0
}

// BlockNames lists the selected block names in order.
func (g *Graph) BlockNames() []string {
	names := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		names = append(names, n.Entry.Name)
	}
	return names
}

// Options bound one composition request.
type Options struct {
	MinTrust   float64
	MaxNodes   int
	TierBOptIn bool
	// AgentID attributes policy checks; opaque to the core.
	AgentID string
}

// DefaultMaxNodes bounds graphs when the caller does not.
const DefaultMaxNodes = 5

// Composer builds graphs from the semantic index, consulting the policy
// engine for every candidate before inclusion.
type Composer struct {
	index  *semindex.Index
	policy *policy.Engine
	logger *zap.SugaredLogger
}

// New creates a composer.
func New(index *semindex.Index, policyEngine *policy.Engine, logger *zap.SugaredLogger) *Composer {
	return &Composer{index: index, policy: policyEngine, logger: logger}
}

// Compose greedily selects the highest-ranked admissible candidate per
// stage. A policy-denied candidate is skipped and the next-ranked one is
// tried; it is never silently substituted with an unranked block.
//
// Composition is deterministic: the index orders candidates by trust
// descending, tier A first, content hash ascending, so the same query,
// index state and minTrust always yield the same node sequence.
func (c *Composer) Compose(intent Intent, opts Options) *Graph {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}

	graph := &Graph{Query: intent.Query}

	for _, stage := range intent.Stages {
		if len(graph.Nodes) >= opts.MaxNodes {
			break
		}

		selected, why := c.selectCandidate(stage, graph, opts)
		if selected == nil {
			if graph.Empty() {
				// No candidate for the initial stage: no match.
				return graph
			}
			// A later stage with no compatible candidate ends the chain.
			break
		}

		graph.Nodes = append(graph.Nodes, Node{
			Entry:       *selected,
			Position:    len(graph.Nodes),
			WhySelected: why,
		})

		if producesTargets(*selected, intent.OutputTypes) {
			break
		}
	}

	if c.logger != nil {
		c.logger.Debugw("Composition complete",
			"query", intent.Query,
			"stages", len(intent.Stages),
			"nodes", len(graph.Nodes),
			"blocks", graph.BlockNames(),
		)
	}
	return graph
}

// selectCandidate walks the ranked candidates for one stage and returns
// the first that passes policy and chains from the prior node.
func (c *Composer) selectCandidate(stage Stage, graph *Graph, opts Options) (*semindex.Entry, string) {
	candidates := c.rankedCandidates(stage, opts.MinTrust)

	for i := range candidates {
		cand := candidates[i]

		decision := c.policy.Check(policy.Request{
			Name:       cand.Name,
			Category:   cand.Category,
			Tier:       cand.Tier,
			TierBOptIn: opts.TierBOptIn,
		})
		if !decision.Allowed {
			continue
		}

		if len(graph.Nodes) > 0 {
			prev := graph.Nodes[len(graph.Nodes)-1].Entry
			if !chainCompatible(prev, cand) {
				continue
			}
		}

		why := "highest-ranked candidate for " + string(stage.Domain) + "/" + string(stage.Operation)
		if stage.Subject != "" {
			why += " matching '" + stage.Subject + "'"
		}
		return &cand, why
	}
	return nil, ""
}

// rankedCandidates queries the index for a stage. When the stage names a
// subject, subject-relevant candidates are tried first and the unfiltered
// ranking is appended as fallback, preserving rank order within each pass.
func (c *Composer) rankedCandidates(stage Stage, minTrust float64) []semindex.Entry {
	base := semindex.Filter{
		Domain:    stage.Domain,
		Operation: stage.Operation,
		MinTrust:  minTrust,
	}

	if stage.Subject == "" {
		return c.index.Query(base)
	}

	withSubject := base
	withSubject.Query = stage.Subject
	ranked := c.index.Query(withSubject)

	seen := make(map[block.Hash]bool, len(ranked))
	for _, e := range ranked {
		seen[e.ContentHash] = true
	}
	for _, e := range c.index.Query(base) {
		if !seen[e.ContentHash] {
			ranked = append(ranked, e)
		}
	}
	return ranked
}

// chainCompatible reports whether next can follow prev: either a declared
// chain tag matches, or prev's output type exactly matches next's first
// required input type.
func chainCompatible(prev, next semindex.Entry) bool {
	for _, tag := range prev.CanChainTo {
		if tag == string(next.Domain) || tag == next.Category {
			return true
		}
	}
	for _, tag := range next.CanChainFrom {
		if tag == string(prev.Domain) || tag == prev.Category {
			return true
		}
	}
	if len(prev.OutputTypes) > 0 && len(next.InputTypes) > 0 &&
		prev.OutputTypes[0] == next.InputTypes[0] {
		return true
	}
	return false
}

// producesTargets reports whether an entry's outputs cover every requested
// target output type.
func producesTargets(e semindex.Entry, targets []block.IOType) bool {
	if len(targets) == 0 {
		return false
	}
	for _, t := range targets {
		found := false
		for _, out := range e.OutputTypes {
			if out == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
