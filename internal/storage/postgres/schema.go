// Package postgres provides the PostgreSQL implementation of the storage
// interfaces, with pgvector-accelerated nearest-neighbour search when the
// extension is available.
package postgres

// Schema contains the SQL statements to create the base schema. Embeddings
// are always stored as little-endian float32 BYTEA so they survive servers
// without pgvector; the vector columns are added by MigrationPgvector.
const Schema = `
-- Cards table: one row per printing.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    oracle_text TEXT NOT NULL DEFAULT '',
    type_line TEXT NOT NULL DEFAULT '',

    -- Structured attributes used by predicate filtering
    mana_value REAL NOT NULL DEFAULT 0,
    colors TEXT[] NOT NULL DEFAULT '{}',
    color_identity TEXT[] NOT NULL DEFAULT '{}',
    keywords TEXT[] NOT NULL DEFAULT '{}',
    tags JSONB NOT NULL DEFAULT '[]',

    -- Printing provenance
    set_code TEXT NOT NULL DEFAULT '',
    collector_number TEXT NOT NULL DEFAULT '',
    released_at TIMESTAMP,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    -- Raw embedding payloads (little-endian float32)
    full_embedding BYTEA,
    body_embedding BYTEA
);

CREATE INDEX IF NOT EXISTS idx_cards_name_lower ON cards (LOWER(name));
CREATE INDEX IF NOT EXISTS idx_cards_released_at ON cards (released_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_cards_mana_value ON cards (mana_value);

-- Rule catalog tables. Curated offline; the query core only reads them.
CREATE TABLE IF NOT EXISTS rule_categories (
    name TEXT PRIMARY KEY,
    parent TEXT
);

CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    template TEXT NOT NULL,
    category TEXT NOT NULL REFERENCES rule_categories(name),
    params JSONB NOT NULL DEFAULT '[]',
    base_confidence REAL NOT NULL DEFAULT 1.0,
    embedding BYTEA
);

CREATE TABLE IF NOT EXISTS rule_interactions (
    rule_a TEXT NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
    rule_b TEXT NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    strength REAL NOT NULL,

    -- Stored with rule_a < rule_b so the unordered pair is unique.
    CHECK (rule_a < rule_b),
    PRIMARY KEY (rule_a, rule_b)
);

-- Binding cache: precomputed matcher output, never a source of truth.
CREATE TABLE IF NOT EXISTS card_rule_bindings (
    card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    rule_id TEXT NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
    confidence REAL NOT NULL,
    method TEXT NOT NULL,
    params JSONB,
    unparameterized BOOLEAN NOT NULL DEFAULT FALSE,
    computed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (card_id, rule_id)
);

CREATE INDEX IF NOT EXISTS idx_bindings_rule ON card_rule_bindings (rule_id);
`

// MigrationPgvector adds the vector columns and ANN indexes. Only applied
// when the vector extension is available; safe to run multiple times.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'cards' AND column_name = 'full_embedding_vec'
    ) THEN
        ALTER TABLE cards ADD COLUMN full_embedding_vec vector;
    END IF;
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'cards' AND column_name = 'body_embedding_vec'
    ) THEN
        ALTER TABLE cards ADD COLUMN body_embedding_vec vector;
    END IF;
END
$$;

-- ivfflat needs at least one row to pick list centroids, so index creation
-- is deferred until data exists.
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_cards_full_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM cards WHERE full_embedding_vec IS NOT NULL LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_cards_full_vec_cosine ON cards USING ivfflat (full_embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_cards_body_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM cards WHERE body_embedding_vec IS NOT NULL LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_cards_body_vec_cosine ON cards USING ivfflat (body_embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
