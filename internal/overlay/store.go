// internal/overlay/store.go
package overlay

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store is the sqlite backing for one overlay layer: a file namespace
// (path -> bytes + mtime) and a KV namespace (key -> JSON-encoded string).
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (creating if necessary) the sqlite database at path.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create overlay directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open overlay db: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			mtime INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("init overlay schema: %w", err)
	}
	return nil
}

// Location returns the on-disk path of the backing database.
func (s *Store) Location() string {
	return s.path
}

// Close closes the backing database.
func (s *Store) Close() error {
	return s.db.Close()
}
