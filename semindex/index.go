// Package semindex maps verified blocks to semantic descriptors for
// intent-based lookup. Entries are derived data: rebuilt or upserted
// whenever the registry admits or quarantines a block, never mutated in
// place.
package semindex

import (
	"sort"
	"strings"
	"sync"

	"github.com/forgeworks/blockforge/block"
)

// Entry links a block to its semantic descriptor.
type Entry struct {
	ContentHash   block.Hash     `json:"content_hash"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Category      string         `json:"category"`
	Domain        Domain         `json:"domain"`
	Operation     Operation      `json:"operation"`
	InputTypes    []block.IOType `json:"input_types"`
	OutputTypes   []block.IOType `json:"output_types"`
	CanChainFrom  []string       `json:"can_chain_from"`
	CanChainTo    []string       `json:"can_chain_to"`
	TrustScore    float64        `json:"trust_score"`
	Tier          block.Tier     `json:"tier"`
	Pure          bool           `json:"pure"`
	Deterministic bool           `json:"deterministic"`
}

// EntryFor derives the index entry for an admitted block.
func EntryFor(b *block.Block) Entry {
	do := MapCategory(b.Category)

	inputs := make([]block.IOType, 0, len(b.Interface.Inputs))
	for _, p := range b.Interface.Inputs {
		inputs = append(inputs, p.Type)
	}
	outputs := make([]block.IOType, 0, len(b.Interface.Outputs))
	for _, p := range b.Interface.Outputs {
		outputs = append(outputs, p.Type)
	}

	return Entry{
		ContentHash:   b.ContentHash,
		Name:          b.Name,
		Description:   b.Description,
		Category:      b.Category,
		Domain:        do.Domain,
		Operation:     do.Operation,
		InputTypes:    inputs,
		OutputTypes:   outputs,
		CanChainFrom:  b.Composition.CanChainFrom,
		CanChainTo:    b.Composition.CanChainTo,
		TrustScore:    b.TrustScore,
		Tier:          b.TrustTier,
		Pure:          b.Constraints.Purity == block.Pure,
		Deterministic: b.Constraints.Deterministic,
	}
}

// Filter selects and bounds a query over the index. Zero values mean
// "no constraint".
type Filter struct {
	Domain    Domain
	Operation Operation
	MinTrust  float64
	// TierFilter restricts results to one tier; empty admits both.
	TierFilter block.Tier
	// Query is a free-text match over name and description.
	Query string
	Limit int
}

// Index is the searchable map from content hash to semantic entry.
// Read-mostly: many concurrent readers, serialized upserts.
type Index struct {
	mu      sync.RWMutex
	entries map[block.Hash]Entry
}

// New creates an empty index.
func New() *Index {
	return &Index{entries: make(map[block.Hash]Entry)}
}

// Upsert inserts or replaces the entry for a block. Idempotent, keyed by
// content hash.
func (ix *Index) Upsert(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[e.ContentHash] = e
}

// Remove drops a block from the index (quarantine or score demotion).
func (ix *Index) Remove(hash block.Hash) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, hash)
}

// Get returns the entry for a hash.
func (ix *Index) Get(hash block.Hash) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[hash]
	return e, ok
}

// Len returns the number of indexed blocks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Query returns matching entries ordered by trust score descending, then
// tier (A before B), then content hash ascending. The hash tie-break keeps
// pagination deterministic across identical queries.
func (ix *Index) Query(f Filter) []Entry {
	ix.mu.RLock()
	matched := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		if matches(e, f) {
			matched = append(matched, e)
		}
	}
	ix.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.TrustScore != b.TrustScore {
			return a.TrustScore > b.TrustScore
		}
		if a.Tier != b.Tier {
			return a.Tier == block.TierA
		}
		return a.ContentHash.Less(b.ContentHash)
	})

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched
}

func matches(e Entry, f Filter) bool {
	if f.Domain != "" && e.Domain != f.Domain {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if e.TrustScore < f.MinTrust {
		return false
	}
	if f.TierFilter != "" && e.Tier != f.TierFilter {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(e.Name), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) &&
			!strings.Contains(strings.ToLower(e.Category), q) {
			return false
		}
	}
	return true
}

// Domains returns a count of indexed blocks per domain, for stats.
func (ix *Index) Domains() map[Domain]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	counts := make(map[Domain]int)
	for _, e := range ix.entries {
		counts[e.Domain]++
	}
	return counts
}
