// Package catalog holds the vetted block logic library. Logic is registered
// in-process under a stable logic_ref; blocks never carry executable code,
// only a reference into this catalog.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/forgeworks/blockforge/errors"
)

// Logic is a single unit of block logic. Inputs and outputs are named
// values matching the block's declared interface. Logic must not retain or
// mutate the input map.
type Logic func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// Registry maps logic_ref strings to executable logic. Read-mostly and safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	logic map[string]Logic
}

// NewRegistry creates an empty logic registry.
func NewRegistry() *Registry {
	return &Registry{logic: make(map[string]Logic)}
}

// Register adds logic under ref. Returns an error on conflict; a logic_ref
// is never rebound.
func (r *Registry) Register(ref string, fn Logic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.logic[ref]; exists {
		return errors.Newf("logic already registered: %s", ref)
	}
	r.logic[ref] = fn
	return nil
}

// Lookup retrieves logic by ref.
func (r *Registry) Lookup(ref string) (Logic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.logic[ref]
	return fn, ok
}

// Refs returns all registered logic refs in sorted order.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.logic))
	for ref := range r.logic {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
