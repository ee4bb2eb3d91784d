// Package db owns the single-file opportunity store: schema creation,
// forward-only migrations, idempotent insert-or-skip writes, and the query
// surface the digest and CLI verbs read from.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open creates the parent directory if needed, opens the sqlite file, and
// brings the schema up to the current version. The busy timeout keeps an
// accidental second process waiting instead of corrupting a write; a single
// writer at a time is the supported model.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &Store{conn: conn}, nil
}
