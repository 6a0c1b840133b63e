// Package registry is the immutable store of validated blocks, keyed by
// content hash. Admission and quarantine are terminal states: a block is
// never updated in place, and a quarantined hash is never re-admitted.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/trust"
	"github.com/forgeworks/blockforge/verify"
)

// Status is the terminal lifecycle state of a registry record.
type Status string

const (
	StatusAdmitted    Status = "admitted"
	StatusQuarantined Status = "quarantined"
)

// Record is one block plus its verification and trust evidence.
type Record struct {
	Block        *block.Block     `json:"block"`
	Status       Status           `json:"status"`
	Verification verify.Record    `json:"verification"`
	Assessment   trust.Assessment `json:"assessment"`
	StoredAt     time.Time        `json:"stored_at"`
}

// Registry holds records in memory. Read-mostly: many concurrent readers;
// writes are serialized and terminal per content hash.
type Registry struct {
	mu      sync.RWMutex
	records map[block.Hash]*Record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[block.Hash]*Record)}
}

// Get returns the record for a hash.
func (r *Registry) Get(hash block.Hash) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[hash]
	return rec, ok
}

// GetAdmitted returns the block for a hash only if it was admitted.
func (r *Registry) GetAdmitted(hash block.Hash) (*block.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[hash]
	if !ok {
		return nil, errors.NewNotFoundError("block %s", hash.Short())
	}
	if rec.Status == StatusQuarantined {
		return nil, errors.Wrapf(errors.ErrQuarantined, "block %s", hash.Short())
	}
	return rec.Block, nil
}

// Admit stores an admitted block. Returns the existing record unchanged if
// the hash is already present: identity is content-derived, so resubmission
// of the same content is a no-op, and a quarantined hash stays quarantined.
func (r *Registry) Admit(b *block.Block, v verify.Record, a trust.Assessment) (*Record, error) {
	return r.put(b, StatusAdmitted, v, a)
}

// Quarantine stores a block in the terminal quarantined state.
func (r *Registry) Quarantine(b *block.Block, v verify.Record) (*Record, error) {
	return r.put(b, StatusQuarantined, v, trust.Assessment{ContentHash: b.ContentHash})
}

func (r *Registry) put(b *block.Block, status Status, v verify.Record, a trust.Assessment) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[b.ContentHash]; ok {
		if existing.Status == StatusQuarantined {
			return existing, errors.Wrapf(errors.ErrQuarantined, "block %s", b.ContentHash.Short())
		}
		return existing, nil
	}

	rec := &Record{
		Block:        b,
		Status:       status,
		Verification: v,
		Assessment:   a,
		StoredAt:     time.Now().UTC(),
	}
	r.records[b.ContentHash] = rec
	return rec, nil
}

// List returns all records ordered by content hash.
func (r *Registry) List() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Block.ContentHash.Less(records[j].Block.ContentHash)
	})
	return records
}

// Counts summarizes registry contents for the stats surface.
type Counts struct {
	Total       int `json:"total"`
	Admitted    int `json:"admitted"`
	Quarantined int `json:"quarantined"`
	TierA       int `json:"tier_a"`
	TierB       int `json:"tier_b"`
}

// Stats returns registry counters.
func (r *Registry) Stats() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var c Counts
	for _, rec := range r.records {
		c.Total++
		switch rec.Status {
		case StatusAdmitted:
			c.Admitted++
			switch rec.Block.TrustTier {
			case block.TierA:
				c.TierA++
			case block.TierB:
				c.TierB++
			}
		case StatusQuarantined:
			c.Quarantined++
		}
	}
	return c
}
