package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStorage is the durable backend. Records are stored as JSON
// blobs keyed by match id, with the finish time denormalized for
// ordering.
type SQLiteStorage struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS match_records (
	match_id    TEXT PRIMARY KEY,
	finished_at INTEGER NOT NULL,
	data        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_records_finished
	ON match_records(finished_at DESC);
`

// NewSQLiteStorage opens (creating if needed) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database %q: %w", path, err)
	}

	// Single writer; WAL keeps readers unblocked during saves.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Save stores a record, overwriting any earlier record for the id.
func (s *SQLiteStorage) Save(ctx context.Context, rec *MatchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO match_records (match_id, finished_at, data)
		 VALUES (?, ?, ?)
		 ON CONFLICT(match_id) DO UPDATE SET finished_at=excluded.finished_at, data=excluded.data`,
		rec.MatchID, rec.FinishedAt.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save match record: %w", err)
	}
	return nil
}

// Get returns the record for a match id, or ErrNotFound.
func (s *SQLiteStorage) Get(ctx context.Context, matchID string) (*MatchRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM match_records WHERE match_id = ?`, matchID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match record: %w", err)
	}

	var rec MatchRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match record: %w", err)
	}
	return &rec, nil
}

// List returns up to limit records, most recently finished first.
func (s *SQLiteStorage) List(ctx context.Context, limit int) ([]*MatchRecord, error) {
	query := `SELECT data FROM match_records ORDER BY finished_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list match records: %w", err)
	}
	defer rows.Close()

	var out []*MatchRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec MatchRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
