package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/blockforge/errors"
)

func executeContent(name string) EntryContent {
	return EntryContent{
		Action:       ActionExecute,
		BlockName:    name,
		BlockHash:    "abc123",
		Inputs:       map[string]any{"s": "hello"},
		Outputs:      map[string]any{"result": "olleh"},
		Success:      true,
		ElapsedMS:    1.25,
		AgentID:      "agent-1",
		PolicyStatus: "ALLOWED",
	}
}

func TestAppendLinksEntries(t *testing.T) {
	c := NewChain(nil)

	h1, err := c.Append(executeContent("reverse_string"))
	require.NoError(t, err)
	h2, err := c.Append(executeContent("to_upper_case"))
	require.NoError(t, err)

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Sequence)
	assert.Equal(t, GenesisHash, entries[0].PreviousHash)
	assert.Equal(t, h1, entries[0].EntryHash)
	assert.Equal(t, h1, entries[1].PreviousHash)
	assert.Equal(t, h2, c.Tip())
	assert.Len(t, h1, 64)
}

func TestEmptyChainTipIsGenesis(t *testing.T) {
	c := NewChain(nil)
	assert.Equal(t, GenesisHash, c.Tip())
	assert.Zero(t, c.Len())

	valid, idx := c.Verify()
	assert.True(t, valid)
	assert.Equal(t, -1, idx)
}

func TestVerifyDetectsTamperedPayload(t *testing.T) {
	c := NewChain(nil)
	for i := 0; i < 5; i++ {
		_, err := c.Append(executeContent("reverse_string"))
		require.NoError(t, err)
	}

	valid, idx := c.Verify()
	require.True(t, valid)
	assert.Equal(t, -1, idx)

	// Flip one byte of a stored entry's recorded outcome.
	c.entries[2].Success = false

	valid, idx = c.Verify()
	assert.False(t, valid)
	assert.Equal(t, 2, idx)
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	c := NewChain(nil)
	for i := 0; i < 4; i++ {
		_, err := c.Append(executeContent("reverse_string"))
		require.NoError(t, err)
	}

	c.entries[3].PreviousHash = GenesisHash

	valid, idx := c.Verify()
	assert.False(t, valid)
	assert.Equal(t, 3, idx)
}

func TestVerifyHaltsAppends(t *testing.T) {
	c := NewChain(nil)
	_, err := c.Append(executeContent("reverse_string"))
	require.NoError(t, err)

	c.entries[0].EntryHash = "deadbeef"
	valid, _ := c.Verify()
	require.False(t, valid)

	// Tampering is never auto-repaired; the chain refuses further writes.
	_, err = c.Append(executeContent("to_upper_case"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrChainIntegrity))
	assert.Equal(t, 1, c.Len())
}

func TestVerifyIsReadOnly(t *testing.T) {
	c := NewChain(nil)
	_, err := c.Append(executeContent("reverse_string"))
	require.NoError(t, err)

	before := c.Entries()
	c.Verify()
	assert.Equal(t, before, c.Entries())
}

func TestAppendSanitizesValues(t *testing.T) {
	c := NewChain(nil)
	_, err := c.Append(EntryContent{
		Action:    ActionExecute,
		BlockName: "word_count",
		Inputs:    map[string]any{"n": 7, "list": []any{1, "a"}},
		Outputs:   nil,
		Success:   true,
	})
	require.NoError(t, err)

	e := c.Entries()[0]
	// Integers are carried as float64 so the hash matches a JSON round trip.
	assert.Equal(t, float64(7), e.Inputs["n"])
	assert.Equal(t, []any{float64(1), "a"}, e.Inputs["list"])
	assert.NotNil(t, e.Outputs)
}

func TestSummarize(t *testing.T) {
	c := NewChain(nil)

	ok := executeContent("reverse_string")
	failed := executeContent("sha256_hex")
	failed.Success = false
	violation := EntryContent{
		Action:       ActionViolation,
		BlockName:    "mask_email",
		Success:      false,
		PolicyStatus: "BLOCKED",
	}

	for _, content := range []EntryContent{ok, failed, violation} {
		_, err := c.Append(content)
		require.NoError(t, err)
	}

	s := c.Summarize()
	assert.Equal(t, 3, s.EntryCount)
	assert.Equal(t, 2, s.Executions)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, 1, s.Violations)
	assert.True(t, s.IntegrityValid)
	assert.Equal(t, c.Entries()[0].EntryHash, s.FirstHash)
	assert.Equal(t, c.Tip(), s.ChainHash)
}

func TestHashCoversEveryField(t *testing.T) {
	base := Entry{
		Sequence:     1,
		Timestamp:    time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano),
		EntryContent: executeContent("reverse_string"),
		PreviousHash: GenesisHash,
	}
	h := computeHash(base)

	mutated := base
	mutated.AgentID = "someone-else"
	assert.NotEqual(t, h, computeHash(mutated))

	mutated = base
	mutated.PreviousHash = "1111111111111111111111111111111111111111111111111111111111111111"
	assert.NotEqual(t, h, computeHash(mutated))

	mutated = base
	mutated.ElapsedMS = 99
	assert.NotEqual(t, h, computeHash(mutated))
}
