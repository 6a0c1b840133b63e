// Package audit implements the tamper-evident execution log: an
// append-only chain where every entry hashes its predecessor, so any
// single byte change invalidates every subsequent entry hash.
//
// The chain is the one global mutable structure in the system. It is owned
// here and exposed only through Append, Verify and Tip; appends are
// serialized through a single writer lock so previousHash always reflects
// the true predecessor at append time.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/forgeworks/blockforge/errors"
)

// GenesisHash is the fixed previous-hash value of the first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Action classifies what an entry records.
type Action string

const (
	// ActionExecute records a block execution attempt, successful or not.
	ActionExecute Action = "EXECUTE"
	// ActionViolation records a policy denial.
	ActionViolation Action = "VIOLATION"
)

// EntryContent is the caller-supplied body of an audit entry.
type EntryContent struct {
	Action       Action         `json:"action"`
	BlockName    string         `json:"block_name"`
	BlockHash    string         `json:"block_hash"`
	Inputs       map[string]any `json:"inputs"`
	Outputs      map[string]any `json:"outputs"`
	Success      bool           `json:"success"`
	ElapsedMS    float64        `json:"elapsed_ms"`
	AgentID      string         `json:"agent_id"`
	PolicyStatus string         `json:"policy_status"`
}

// Entry is a stored, write-once chain entry.
type Entry struct {
	Sequence     int    `json:"sequence"`
	Timestamp    string `json:"timestamp"`
	EntryContent
	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// computeHash derives the entry hash from the entry content and the
// previous hash. The serialization is canonical: a map marshaled by
// encoding/json, which emits keys in sorted order, mirroring the sorted-key
// JSON the chain format was defined with.
func computeHash(e Entry) string {
	payload := map[string]any{
		"sequence":      e.Sequence,
		"timestamp":     e.Timestamp,
		"action":        string(e.Action),
		"block_name":    e.BlockName,
		"block_hash":    e.BlockHash,
		"inputs":        e.Inputs,
		"outputs":       e.Outputs,
		"success":       e.Success,
		"elapsed_ms":    e.ElapsedMS,
		"agent_id":      e.AgentID,
		"policy_status": e.PolicyStatus,
		"previous_hash": e.PreviousHash,
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Chain is the append-only audit log.
type Chain struct {
	mu      sync.Mutex
	entries []Entry
	store   *Store // optional persistence
	halted  bool
	now     func() time.Time
}

// NewChain creates a chain. store may be nil for in-memory operation.
func NewChain(store *Store) *Chain {
	return &Chain{store: store, now: time.Now}
}

// Append adds one entry and returns its hash. This is the only mutation
// the chain supports. Appends after a detected integrity failure are
// refused: tampering halts audit-dependent operations and is never
// auto-repaired.
func (c *Chain) Append(content EntryContent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.halted {
		return "", errors.Wrap(errors.ErrChainIntegrity, "chain halted")
	}

	entry := Entry{
		Sequence:     len(c.entries) + 1,
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		EntryContent: content,
		PreviousHash: c.tipLocked(),
	}
	entry.Inputs = sanitize(entry.Inputs).(map[string]any)
	entry.Outputs = sanitize(entry.Outputs).(map[string]any)
	entry.EntryHash = computeHash(entry)

	if c.store != nil {
		if err := c.store.Append(entry); err != nil {
			return "", errors.Wrap(err, "persist audit entry")
		}
	}
	c.entries = append(c.entries, entry)
	return entry.EntryHash, nil
}

// Tip returns the hash of the last entry, or the genesis hash for an
// empty chain.
func (c *Chain) Tip() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipLocked()
}

func (c *Chain) tipLocked() string {
	if len(c.entries) == 0 {
		return GenesisHash
	}
	return c.entries[len(c.entries)-1].EntryHash
}

// Len returns the number of entries.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a copy of the chain for read-only inspection.
func (c *Chain) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Verify recomputes every entry hash from genesis. It is a pure read-only
// re-derivation; it never mutates stored entries. On the first mismatch it
// returns false with that entry's zero-based index and halts further
// appends. A valid chain returns (true, -1).
func (c *Chain) Verify() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expectedPrev := GenesisHash
	for i, entry := range c.entries {
		if entry.PreviousHash != expectedPrev {
			c.halted = true
			return false, i
		}
		if computeHash(entry) != entry.EntryHash {
			c.halted = true
			return false, i
		}
		expectedPrev = entry.EntryHash
	}
	return true, -1
}

// Summary reports chain-level counters.
type Summary struct {
	EntryCount     int    `json:"entry_count"`
	Executions     int    `json:"executions"`
	Failures       int    `json:"failures"`
	Violations     int    `json:"violations"`
	FirstHash      string `json:"first_hash,omitempty"`
	ChainHash      string `json:"chain_hash"`
	IntegrityValid bool   `json:"integrity_valid"`
}

// Summarize verifies the chain and returns its counters.
func (c *Chain) Summarize() Summary {
	valid, _ := c.Verify()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		EntryCount:     len(c.entries),
		ChainHash:      c.tipLocked(),
		IntegrityValid: valid,
	}
	for _, e := range c.entries {
		switch e.Action {
		case ActionExecute:
			s.Executions++
			if !e.Success {
				s.Failures++
			}
		case ActionViolation:
			s.Violations++
		}
	}
	if len(c.entries) > 0 {
		s.FirstHash = c.entries[0].EntryHash
	}
	return s
}

// Restore loads persisted entries into an empty chain and verifies them.
// A chain that fails verification on restore is loaded but halted.
func (c *Chain) Restore() error {
	if c.store == nil {
		return nil
	}

	entries, err := c.store.LoadAll()
	if err != nil {
		return errors.Wrap(err, "load audit entries")
	}

	c.mu.Lock()
	if len(c.entries) != 0 {
		c.mu.Unlock()
		return errors.New("restore requires an empty chain")
	}
	c.entries = entries
	c.mu.Unlock()

	if valid, idx := c.Verify(); !valid {
		return errors.Wrapf(errors.ErrChainIntegrity, "stored chain invalid at entry %d", idx)
	}
	return nil
}

// sanitize converts arbitrary values into the JSON-stable subset the chain
// hashes over: strings, float64 numbers, bools, []any, map[string]any.
// Anything else is stringified.
func sanitize(v any) any {
	switch val := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = sanitizeValue(inner)
		}
		return out
	default:
		return map[string]any{"value": sanitizeValue(v)}
	}
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = sanitizeValue(inner)
		}
		return out
	default:
		return fmt.Sprint(val)
	}
}
