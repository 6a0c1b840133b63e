package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/blockforge/block"
)

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	return reg
}

func run(t *testing.T, reg *Registry, ref string, in map[string]any) map[string]any {
	t.Helper()
	fn, ok := reg.Lookup(ref)
	require.True(t, ok, ref)
	out, err := fn(context.Background(), in)
	require.NoError(t, err)
	return out
}

func TestRegisterRejectsRebinding(t *testing.T) {
	reg := NewRegistry()
	noop := func(_ context.Context, in map[string]any) (map[string]any, error) { return nil, nil }

	require.NoError(t, reg.Register("reverse_string", noop))
	err := reg.Register("reverse_string", noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRefsSorted(t *testing.T) {
	reg := builtinRegistry(t)
	refs := reg.Refs()
	require.NotEmpty(t, refs)
	for i := 1; i < len(refs); i++ {
		assert.Less(t, refs[i-1], refs[i])
	}
}

func TestEveryCandidateRefResolves(t *testing.T) {
	reg := builtinRegistry(t)
	for _, c := range BuiltinCandidates() {
		_, ok := reg.Lookup(c.LogicRef)
		assert.True(t, ok, c.LogicRef)
	}
}

func TestStringTransforms(t *testing.T) {
	reg := builtinRegistry(t)

	assert.Equal(t, "olleh", run(t, reg, "reverse_string", map[string]any{"s": "hello"})["result"])
	// Reverse is rune-aware, not byte-aware.
	assert.Equal(t, "dlröw", run(t, reg, "reverse_string", map[string]any{"s": "wörld"})["result"])

	assert.Equal(t, "HELLO", run(t, reg, "to_upper_case", map[string]any{"s": "hello"})["result"])
	assert.Equal(t, "hello", run(t, reg, "to_lower_case", map[string]any{"s": "HELLO"})["result"])
	assert.Equal(t, "padded", run(t, reg, "trim_whitespace", map[string]any{"s": "  padded  "})["result"])
}

func TestEmailBuiltins(t *testing.T) {
	reg := builtinRegistry(t)

	assert.Equal(t, true, run(t, reg, "is_valid_email", map[string]any{"s": "a.user+tag@example.co"})["valid"])
	assert.Equal(t, false, run(t, reg, "is_valid_email", map[string]any{"s": "not-an-email"})["valid"])
	assert.Equal(t, false, run(t, reg, "is_valid_email", map[string]any{"s": ""})["valid"])

	assert.Equal(t, "j***@example.com", run(t, reg, "mask_email", map[string]any{"s": "jane@example.com"})["result"])
	// Too short to mask, or not an email at all: passed through unchanged.
	assert.Equal(t, "a@b.co", run(t, reg, "mask_email", map[string]any{"s": "a@b.co"})["result"])
	assert.Equal(t, "plain", run(t, reg, "mask_email", map[string]any{"s": "plain"})["result"])
}

func TestPalindrome(t *testing.T) {
	reg := builtinRegistry(t)

	assert.Equal(t, true, run(t, reg, "is_palindrome", map[string]any{"s": "A man, a plan, a canal: Panama"})["valid"])
	assert.Equal(t, false, run(t, reg, "is_palindrome", map[string]any{"s": "hello"})["valid"])
	assert.Equal(t, true, run(t, reg, "is_palindrome", map[string]any{"s": ""})["valid"])
}

func TestCountingBuiltins(t *testing.T) {
	reg := builtinRegistry(t)

	assert.Equal(t, 3, run(t, reg, "word_count", map[string]any{"s": "one  two three"})["count"])
	assert.Equal(t, 0, run(t, reg, "word_count", map[string]any{"s": "   "})["count"])
	assert.Equal(t, 2, run(t, reg, "count_vowels", map[string]any{"s": "HELLO"})["count"])
	assert.Equal(t, 5, run(t, reg, "string_length", map[string]any{"s": "héllo"})["count"])
}

func TestHashAndEncode(t *testing.T) {
	reg := builtinRegistry(t)

	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		run(t, reg, "sha256_hex", map[string]any{"s": "hello"})["result"])
	assert.Equal(t, "aGVsbG8=", run(t, reg, "base64_encode", map[string]any{"s": "hello"})["result"])
}

func TestNumericBuiltins(t *testing.T) {
	reg := builtinRegistry(t)

	// Non-numeric elements are dropped, not faulted on.
	out := run(t, reg, "sum_numbers", map[string]any{"values": []any{1.5, 2, "x", -0.5}})
	assert.Equal(t, 3.0, out["total"])
	assert.Equal(t, 0.0, run(t, reg, "sum_numbers", map[string]any{"values": []any{}})["total"])

	out = run(t, reg, "filter_positive", map[string]any{"values": []any{-1.0, 2.0, 0.0, 3, "x"}})
	assert.Equal(t, []any{2.0, 3.0}, out["result"])

	assert.Equal(t, "$1234.50", run(t, reg, "format_currency", map[string]any{"amount": 1234.5})["result"])
	assert.Equal(t, "$2.00", run(t, reg, "format_currency", map[string]any{"amount": 2})["result"])
}

func TestSortStrings(t *testing.T) {
	reg := builtinRegistry(t)

	out := run(t, reg, "sort_strings", map[string]any{"values": []any{"pear", "apple", "fig"}})
	assert.Equal(t, []any{"apple", "fig", "pear"}, out["result"])

	// Non-string elements are stringified before sorting.
	out = run(t, reg, "sort_strings", map[string]any{"values": []any{"b", 10, "a"}})
	assert.Equal(t, []any{"10", "a", "b"}, out["result"])
}

func TestBuiltinInputErrors(t *testing.T) {
	reg := builtinRegistry(t)

	fn, ok := reg.Lookup("reverse_string")
	require.True(t, ok)

	_, err := fn(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing input: s")

	_, err = fn(context.Background(), map[string]any{"s": 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected string")

	sum, ok := reg.Lookup("sum_numbers")
	require.True(t, ok)
	_, err = sum(context.Background(), map[string]any{"values": "not-a-list"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected list")
}

func TestCurrentTimestampIsTierB(t *testing.T) {
	var stamp block.Candidate
	for _, c := range BuiltinCandidates() {
		if c.Name == "current_timestamp" {
			stamp = c
		}
	}
	require.NotEmpty(t, stamp.Name)
	assert.Equal(t, block.TierB, block.DeriveTier(stamp.Constraints))
	assert.False(t, stamp.Constraints.Deterministic)
}
