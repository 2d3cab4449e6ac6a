// Package sqlite provides a core.ArtifactStore backed by a single SQLite
// database file (pure Go driver, no cgo).
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/fragmesh/artifact"
	"github.com/hupe1980/fragmesh/core"
)

var _ core.ArtifactStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	session_id  TEXT NOT NULL,
	artifact_id TEXT NOT NULL,
	data        BLOB NOT NULL,
	updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (session_id, artifact_id)
);`

// Store keeps artifacts in an SQLite table keyed by (session, artifact).
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or replaces an artifact.
func (s *Store) Save(sessionID, artifactID string, data []byte) error {
	if err := validate(sessionID, artifactID); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(
		`INSERT INTO artifacts (session_id, artifact_id, data) VALUES (?, ?, ?)
		 ON CONFLICT(session_id, artifact_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		sessionID, artifactID, data,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save %s/%s: %w", sessionID, artifactID, err)
	}
	return nil
}

// Get returns an artifact or artifact.ErrNotFound.
func (s *Store) Get(sessionID, artifactID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		`SELECT data FROM artifacts WHERE session_id = ? AND artifact_id = ?`,
		sessionID, artifactID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, artifact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s/%s: %w", sessionID, artifactID, err)
	}
	return data, nil
}

// List returns the artifact ids of sessionID in lexical order.
func (s *Store) List(sessionID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT artifact_id FROM artifacts WHERE session_id = ? ORDER BY artifact_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", sessionID, err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes an artifact or returns artifact.ErrNotFound.
func (s *Store) Delete(sessionID, artifactID string) error {
	res, err := s.db.Exec(
		`DELETE FROM artifacts WHERE session_id = ? AND artifact_id = ?`,
		sessionID, artifactID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", sessionID, artifactID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return artifact.ErrNotFound
	}
	return nil
}

func validate(sessionID, artifactID string) error {
	if err := artifact.ValidateID(sessionID); err != nil {
		return err
	}
	return artifact.ValidateID(artifactID)
}
