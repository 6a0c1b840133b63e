package audit

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itesting "github.com/forgeworks/blockforge/internal/testing"
)

func TestStoreAppend(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(1, sqlmock.AnyArg(), "EXECUTE", "reverse_string", "abc123",
			`{"s":"hello"}`, `{"result":"olleh"}`, true, 1.25, "agent-1", "ALLOWED",
			GenesisHash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	chain := NewChain(NewStore(mockDB))
	_, err = chain.Append(executeContent("reverse_string"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreAppendFailureRejectsEntry(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("INSERT INTO audit_entries").
		WillReturnError(assert.AnError)

	chain := NewChain(NewStore(mockDB))
	_, err = chain.Append(executeContent("reverse_string"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist audit entry")

	// A failed persist never leaves a phantom in-memory entry.
	assert.Zero(t, chain.Len())
	assert.Equal(t, GenesisHash, chain.Tip())
}

func TestRestoreRoundTrip(t *testing.T) {
	conn := itesting.CreateTestDB(t)

	chain := NewChain(NewStore(conn))
	for _, name := range []string{"reverse_string", "to_upper_case", "sha256_hex"} {
		_, err := chain.Append(executeContent(name))
		require.NoError(t, err)
	}
	tip := chain.Tip()

	restored := NewChain(NewStore(conn))
	require.NoError(t, restored.Restore())

	assert.Equal(t, 3, restored.Len())
	assert.Equal(t, tip, restored.Tip())
	assert.Equal(t, chain.Entries(), restored.Entries())

	valid, idx := restored.Verify()
	assert.True(t, valid)
	assert.Equal(t, -1, idx)
}

func TestRestoreDetectsStoredTampering(t *testing.T) {
	conn := itesting.CreateTestDB(t)

	chain := NewChain(NewStore(conn))
	for i := 0; i < 3; i++ {
		_, err := chain.Append(executeContent("reverse_string"))
		require.NoError(t, err)
	}

	// Out-of-band edit to a persisted row.
	_, err := conn.Exec(`UPDATE audit_entries SET success = 0 WHERE seq = 2`)
	require.NoError(t, err)

	restored := NewChain(NewStore(conn))
	err = restored.Restore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stored chain invalid at entry 1")

	// The tampered chain is loaded for inspection but refuses appends.
	assert.Equal(t, 3, restored.Len())
	_, err = restored.Append(executeContent("to_upper_case"))
	assert.Error(t, err)
}

func TestRestoreRequiresEmptyChain(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{
		"seq", "timestamp", "action", "block_name", "block_hash",
		"inputs_json", "outputs_json", "success", "elapsed_ms",
		"agent_id", "policy_status", "previous_hash", "entry_hash",
	})
	mock.ExpectQuery("SELECT seq").WillReturnRows(rows)

	chain := NewChain(NewStore(mockDB))
	chain.entries = append(chain.entries, Entry{Sequence: 1})

	err = chain.Restore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore requires an empty chain")
}

func TestRestoreNilStoreIsNoOp(t *testing.T) {
	chain := NewChain(nil)
	assert.NoError(t, chain.Restore())
}
