package audit

import (
	"database/sql"
	"encoding/json"

	"github.com/forgeworks/blockforge/errors"
)

// Store persists chain entries to SQLite as an append-only sequence, the
// second of the two durable structures the core requires.
type Store struct {
	db *sql.DB
}

// NewStore creates an audit entry store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes one entry. The seq column carries a UNIQUE constraint, so
// two writers can never both claim the same chain position even if the
// in-process lock were bypassed.
func (s *Store) Append(e Entry) error {
	inputs, err := json.Marshal(e.Inputs)
	if err != nil {
		return errors.Wrap(err, "marshal entry inputs")
	}
	outputs, err := json.Marshal(e.Outputs)
	if err != nil {
		return errors.Wrap(err, "marshal entry outputs")
	}

	_, err = s.db.Exec(`
		INSERT INTO audit_entries
			(seq, timestamp, action, block_name, block_hash, inputs_json, outputs_json,
			 success, elapsed_ms, agent_id, policy_status, previous_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Sequence,
		e.Timestamp,
		string(e.Action),
		e.BlockName,
		e.BlockHash,
		string(inputs),
		string(outputs),
		e.Success,
		e.ElapsedMS,
		e.AgentID,
		e.PolicyStatus,
		e.PreviousHash,
		e.EntryHash,
	)
	if err != nil {
		return errors.Wrap(err, "insert audit entry")
	}
	return nil
}

// LoadAll reads the full chain in sequence order.
func (s *Store) LoadAll() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT seq, timestamp, action, block_name, block_hash, inputs_json, outputs_json,
		       success, elapsed_ms, agent_id, policy_status, previous_hash, entry_hash
		FROM audit_entries ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "query audit entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action, inputsJSON, outputsJSON string
		if err := rows.Scan(
			&e.Sequence, &e.Timestamp, &action, &e.BlockName, &e.BlockHash,
			&inputsJSON, &outputsJSON, &e.Success, &e.ElapsedMS,
			&e.AgentID, &e.PolicyStatus, &e.PreviousHash, &e.EntryHash,
		); err != nil {
			return nil, errors.Wrap(err, "scan audit entry")
		}
		e.Action = Action(action)
		if err := json.Unmarshal([]byte(inputsJSON), &e.Inputs); err != nil {
			return nil, errors.Wrapf(err, "unmarshal inputs for entry %d", e.Sequence)
		}
		if err := json.Unmarshal([]byte(outputsJSON), &e.Outputs); err != nil {
			return nil, errors.Wrapf(err, "unmarshal outputs for entry %d", e.Sequence)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
