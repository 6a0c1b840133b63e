package registry

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/trust"
	"github.com/forgeworks/blockforge/verify"
)

// Store persists block records to SQLite: one row per content hash, the
// only durable block structure the core requires. Rows are write-once;
// Save ignores an existing hash rather than updating it.
type Store struct {
	db *sql.DB
}

// NewStore creates a block store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save writes a record. Existing hashes are left untouched (INSERT OR
// IGNORE) because records are immutable once stored.
func (s *Store) Save(rec *Record) error {
	blockJSON, err := json.Marshal(rec.Block)
	if err != nil {
		return errors.Wrap(err, "marshal block")
	}
	verificationJSON, err := json.Marshal(rec.Verification)
	if err != nil {
		return errors.Wrap(err, "marshal verification record")
	}
	assessmentJSON, err := json.Marshal(rec.Assessment)
	if err != nil {
		return errors.Wrap(err, "marshal trust assessment")
	}

	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO blocks (content_hash, name, status, block_json, verification_json, assessment_json, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Block.ContentHash),
		rec.Block.Name,
		string(rec.Status),
		string(blockJSON),
		string(verificationJSON),
		string(assessmentJSON),
		rec.StoredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, "insert block record")
	}
	return nil
}

// LoadAll reads every persisted record ordered by content hash.
func (s *Store) LoadAll() ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT content_hash, status, block_json, verification_json, assessment_json, stored_at
		FROM blocks ORDER BY content_hash`)
	if err != nil {
		return nil, errors.Wrap(err, "query blocks")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var hash, status, blockJSON, verificationJSON, assessmentJSON, storedAt string
		if err := rows.Scan(&hash, &status, &blockJSON, &verificationJSON, &assessmentJSON, &storedAt); err != nil {
			return nil, errors.Wrap(err, "scan block row")
		}

		var b block.Block
		if err := json.Unmarshal([]byte(blockJSON), &b); err != nil {
			return nil, errors.Wrapf(err, "unmarshal block %s", hash)
		}
		var v verify.Record
		if err := json.Unmarshal([]byte(verificationJSON), &v); err != nil {
			return nil, errors.Wrapf(err, "unmarshal verification %s", hash)
		}
		var a trust.Assessment
		if err := json.Unmarshal([]byte(assessmentJSON), &a); err != nil {
			return nil, errors.Wrapf(err, "unmarshal assessment %s", hash)
		}

		ts, err := time.Parse(time.RFC3339Nano, storedAt)
		if err != nil {
			ts = time.Time{}
		}

		records = append(records, &Record{
			Block:        &b,
			Status:       Status(status),
			Verification: v,
			Assessment:   a,
			StoredAt:     ts,
		})
	}
	return records, rows.Err()
}
