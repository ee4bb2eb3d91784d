package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// schemaVersion is the version this build writes and expects.
const schemaVersion = 2

// ErrUnknownSchema marks a database whose recorded version this build does
// not recognize (newer than known, or corrupt). Refusing to guess is the
// only safe move.
var ErrUnknownSchema = errors.New("unknown schema version")

const createOpportunities = `
CREATE TABLE IF NOT EXISTS opportunities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	dedupe_key TEXT NOT NULL UNIQUE,
	notice_id TEXT,
	solicitation_number TEXT,
	posted_date TEXT,
	agency TEXT,
	title TEXT,
	notice_type TEXT,
	naics TEXT,
	set_aside TEXT,
	response_deadline TEXT,
	link TEXT,
	score INTEGER,
	reasons TEXT,
	normalized_json TEXT,
	raw_json TEXT,
	created_at TEXT NOT NULL
)`

// migrations maps a detected version to the additive step that advances it
// by one. Transitions are one-directional; there is no down path.
var migrations = map[int]string{
	1: `ALTER TABLE opportunities ADD COLUMN link TEXT`,
}

// migrate creates the schema on a fresh database, or walks the recorded
// version forward one additive step at a time until it reaches
// schemaVersion.
func migrate(conn *sql.DB) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensuring schema_version table: %w", err)
	}

	var version int
	err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := conn.Exec(createOpportunities); err != nil {
			return fmt.Errorf("creating opportunities table: %w", err)
		}
		if _, err := conn.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	default:
		for version < schemaVersion {
			step, ok := migrations[version]
			if !ok {
				return fmt.Errorf("%w: %d (expected %d)", ErrUnknownSchema, version, schemaVersion)
			}
			if _, err := conn.Exec(step); err != nil {
				return fmt.Errorf("applying migration from version %d: %w", version, err)
			}
			version++
			if _, err := conn.Exec(`UPDATE schema_version SET version = ?`, version); err != nil {
				return fmt.Errorf("recording schema version %d: %w", version, err)
			}
		}
		if version != schemaVersion {
			return fmt.Errorf("%w: %d (expected %d)", ErrUnknownSchema, version, schemaVersion)
		}
	}

	if _, err := conn.Exec(`CREATE INDEX IF NOT EXISTS idx_opportunities_notice_id ON opportunities(notice_id)`); err != nil {
		return fmt.Errorf("creating notice_id index: %w", err)
	}
	return nil
}
