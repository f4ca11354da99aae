// Package sqlite provides the embedded fallback implementation of the
// storage interfaces. Nearest-neighbour search is a brute-force cosine scan
// in process, which is fine for the catalog sizes this backend targets.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/deckhaven/cardex/internal/storage"
)

// Schema contains the SQL statements to create the SQLite schema. Set-valued
// attributes are stored as JSON arrays and filtered in process against the
// reference predicate semantics; embeddings are little-endian float32 BLOBs.
const Schema = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    oracle_text TEXT NOT NULL DEFAULT '',
    type_line TEXT NOT NULL DEFAULT '',

    mana_value REAL NOT NULL DEFAULT 0,
    colors TEXT NOT NULL DEFAULT '[]',
    color_identity TEXT NOT NULL DEFAULT '[]',
    keywords TEXT NOT NULL DEFAULT '[]',
    tags TEXT NOT NULL DEFAULT '[]',

    set_code TEXT NOT NULL DEFAULT '',
    collector_number TEXT NOT NULL DEFAULT '',
    released_at TIMESTAMP,

    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,

    full_embedding BLOB,
    body_embedding BLOB
);

CREATE INDEX IF NOT EXISTS idx_cards_name_lower ON cards (LOWER(name));
CREATE INDEX IF NOT EXISTS idx_cards_mana_value ON cards (mana_value);

CREATE TABLE IF NOT EXISTS rule_categories (
    name TEXT PRIMARY KEY,
    parent TEXT
);

CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    template TEXT NOT NULL,
    category TEXT NOT NULL REFERENCES rule_categories(name),
    params TEXT NOT NULL DEFAULT '[]',
    base_confidence REAL NOT NULL DEFAULT 1.0,
    embedding BLOB
);

CREATE TABLE IF NOT EXISTS rule_interactions (
    rule_a TEXT NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
    rule_b TEXT NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    strength REAL NOT NULL,

    CHECK (rule_a < rule_b),
    PRIMARY KEY (rule_a, rule_b)
);

CREATE TABLE IF NOT EXISTS card_rule_bindings (
    card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    rule_id TEXT NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
    confidence REAL NOT NULL,
    method TEXT NOT NULL,
    params TEXT,
    unparameterized INTEGER NOT NULL DEFAULT 0,
    computed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (card_id, rule_id)
);

CREATE INDEX IF NOT EXISTS idx_bindings_rule ON card_rule_bindings (rule_id);
`

// Store implements storage.Backend using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Backend = (*Store)(nil)

// New opens a SQLite-backed store. dsn is a file path or ":memory:".
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// SQLite supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
