package semindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/blockforge/block"
)

func entry(name string, hash block.Hash, trust float64, tier block.Tier) Entry {
	return Entry{
		ContentHash: hash,
		Name:        name,
		Domain:      DomainString,
		Operation:   OpTransform,
		TrustScore:  trust,
		Tier:        tier,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	ix := New()
	e := entry("reverse_string", "aaaa", 0.9, block.TierA)

	ix.Upsert(e)
	ix.Upsert(e)
	assert.Equal(t, 1, ix.Len())

	// Re-upserting the same hash replaces, never duplicates.
	e.TrustScore = 0.5
	ix.Upsert(e)
	got, ok := ix.Get("aaaa")
	require.True(t, ok)
	assert.Equal(t, 0.5, got.TrustScore)
	assert.Equal(t, 1, ix.Len())
}

func TestRemove(t *testing.T) {
	ix := New()
	ix.Upsert(entry("reverse_string", "aaaa", 0.9, block.TierA))
	ix.Remove("aaaa")

	_, ok := ix.Get("aaaa")
	assert.False(t, ok)
	assert.Zero(t, ix.Len())

	// Removing an absent hash is a no-op.
	ix.Remove("bbbb")
}

func TestQueryOrdering(t *testing.T) {
	ix := New()
	ix.Upsert(entry("low", "dddd", 0.3, block.TierA))
	ix.Upsert(entry("high", "cccc", 0.9, block.TierA))
	ix.Upsert(entry("mid_b", "bbbb", 0.6, block.TierB))
	ix.Upsert(entry("mid_a", "aaaa", 0.6, block.TierA))

	got := ix.Query(Filter{})
	require.Len(t, got, 4)

	// Trust descending, tier A above B on ties.
	assert.Equal(t, "high", got[0].Name)
	assert.Equal(t, "mid_a", got[1].Name)
	assert.Equal(t, "mid_b", got[2].Name)
	assert.Equal(t, "low", got[3].Name)
}

func TestQueryHashTieBreakIsDeterministic(t *testing.T) {
	ix := New()
	ix.Upsert(entry("x", "bbbb", 0.7, block.TierA))
	ix.Upsert(entry("y", "aaaa", 0.7, block.TierA))

	for i := 0; i < 20; i++ {
		got := ix.Query(Filter{})
		require.Len(t, got, 2)
		assert.Equal(t, block.Hash("aaaa"), got[0].ContentHash)
		assert.Equal(t, block.Hash("bbbb"), got[1].ContentHash)
	}
}

func TestQueryFilters(t *testing.T) {
	ix := New()
	ix.Upsert(Entry{
		ContentHash: "aaaa", Name: "is_valid_email",
		Description: "Validate an email address format", Category: "validation",
		Domain: DomainValidation, Operation: OpValidate,
		TrustScore: 0.9, Tier: block.TierA,
	})
	ix.Upsert(Entry{
		ContentHash: "bbbb", Name: "mask_email",
		Description: "Mask the local part of an email address", Category: "security",
		Domain: DomainSecurity, Operation: OpTransform,
		TrustScore: 0.6, Tier: block.TierA,
	})
	ix.Upsert(Entry{
		ContentHash: "cccc", Name: "current_timestamp",
		Category: "utility", Domain: DomainUtility, Operation: OpTransform,
		TrustScore: 0.5, Tier: block.TierB,
	})

	assert.Len(t, ix.Query(Filter{Domain: DomainValidation}), 1)
	assert.Len(t, ix.Query(Filter{Operation: OpTransform}), 2)
	assert.Len(t, ix.Query(Filter{MinTrust: 0.7}), 1)
	assert.Len(t, ix.Query(Filter{TierFilter: block.TierB}), 1)

	// Free text matches name, description and category, case-insensitively.
	assert.Len(t, ix.Query(Filter{Query: "EMAIL"}), 2)
	assert.Len(t, ix.Query(Filter{Query: "security"}), 1)
	assert.Empty(t, ix.Query(Filter{Query: "no such thing"}))

	got := ix.Query(Filter{Limit: 2})
	assert.Len(t, got, 2)
	assert.Equal(t, "is_valid_email", got[0].Name)
}

func TestDomains(t *testing.T) {
	ix := New()
	ix.Upsert(entry("a", "aaaa", 0.9, block.TierA))
	ix.Upsert(entry("b", "bbbb", 0.8, block.TierA))
	ix.Upsert(Entry{ContentHash: "cccc", Name: "c", Domain: DomainHashing, Operation: OpHash})

	counts := ix.Domains()
	assert.Equal(t, 2, counts[DomainString])
	assert.Equal(t, 1, counts[DomainHashing])
}

func TestEntryFor(t *testing.T) {
	b := block.FromCandidate(block.Candidate{
		Name:        "sha256_hex",
		Description: "SHA-256 digest of a string as hex",
		Category:    "hashing",
		Interface: block.Interface{
			Inputs:  []block.Param{{Name: "s", Type: block.TypeString}},
			Outputs: []block.Param{{Name: "result", Type: block.TypeString}},
		},
		Constraints: block.Constraints{Purity: block.Pure, Deterministic: true, ThreadSafe: true},
		LogicRef:    "sha256_hex",
		Composition: block.Composition{CanChainFrom: []string{"string"}, CanChainTo: []string{"comparison"}},
	})
	b.TrustScore = 0.87

	e := EntryFor(&b)
	assert.Equal(t, b.ContentHash, e.ContentHash)
	assert.Equal(t, DomainHashing, e.Domain)
	assert.Equal(t, OpHash, e.Operation)
	assert.Equal(t, []block.IOType{block.TypeString}, e.InputTypes)
	assert.Equal(t, []block.IOType{block.TypeString}, e.OutputTypes)
	assert.Equal(t, []string{"comparison"}, e.CanChainTo)
	assert.Equal(t, 0.87, e.TrustScore)
	assert.True(t, e.Pure)
	assert.True(t, e.Deterministic)
}

func TestMapCategoryExhaustive(t *testing.T) {
	// Every mapped category resolves away from the fallback, and the
	// fallback itself is well defined. A new category added without a
	// mapping fails here first.
	expected := map[string]DomainOp{
		"string":         {DomainString, OpTransform},
		"text":           {DomainString, OpTransform},
		"validation":     {DomainValidation, OpValidate},
		"collection":     {DomainCollection, OpSort},
		"filtering":      {DomainFiltering, OpFilter},
		"calculation":    {DomainCalculation, OpCalculate},
		"transformation": {DomainTransformation, OpTransform},
		"io":             {DomainIO, OpTransform},
		"aggregation":    {DomainAggregation, OpReduce},
		"comparison":     {DomainComparison, OpCompare},
		"security":       {DomainSecurity, OpTransform},
		"encoding":       {DomainEncoding, OpEncode},
		"hashing":        {DomainHashing, OpHash},
		"utility":        {DomainUtility, OpTransform},
	}

	require.ElementsMatch(t, KnownCategories(), keys(expected))
	for cat, want := range expected {
		assert.Equal(t, want, MapCategory(cat), cat)
	}

	assert.Equal(t, defaultDomainOp, MapCategory("quantum_entanglement"))
}

func keys(m map[string]DomainOp) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
