package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// cardSelectColumns is the canonical SELECT column list for the cards table.
// It must match the scan order in scanCardRow.
const cardSelectColumns = `
	id, name, oracle_text, type_line,
	mana_value, colors, color_identity, keywords, tags,
	set_code, collector_number, released_at,
	created_at, updated_at,
	full_embedding, body_embedding
`

// GetCard retrieves a card by ID, including any stored embeddings.
func (s *Store) GetCard(ctx context.Context, id string) (*types.Card, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: card ID is required", storage.ErrInvalidArgument)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+cardSelectColumns+` FROM cards WHERE id = $1`, id)
	card, err := scanCardRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get card %s: %w", id, err)
	}
	return card, nil
}

// FindByName retrieves all cards whose name equals name case-insensitively,
// ordered by release date descending then ID ascending.
func (s *Store) FindByName(ctx context.Context, name string) ([]types.Card, error) {
	const querySQL = `
		SELECT ` + cardSelectColumns + `
		FROM cards
		WHERE LOWER(name) = LOWER($1)
		ORDER BY released_at DESC NULLS LAST, id ASC
	`
	rows, err := s.db.QueryContext(ctx, querySQL, name)
	if err != nil {
		return nil, fmt.Errorf("postgres: find by name %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	return scanCardRows(rows)
}

// FindByPredicates retrieves up to limit cards satisfying every predicate.
func (s *Store) FindByPredicates(ctx context.Context, preds []storage.Predicate, limit int) ([]types.Card, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidArgument)
	}

	where, args := predicateSQL(preds, 1)
	querySQL := `SELECT ` + cardSelectColumns + ` FROM cards`
	if where != "" {
		querySQL += ` WHERE ` + where
	}
	querySQL += fmt.Sprintf(` ORDER BY released_at DESC NULLS LAST, id ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find by predicates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanCardRows(rows)
}

// ListCardIDs returns all card IDs, restricted to cards with a body
// embedding when withBodyEmbedding is true.
func (s *Store) ListCardIDs(ctx context.Context, withBodyEmbedding bool) ([]string, error) {
	querySQL := `SELECT id FROM cards`
	if withBodyEmbedding {
		querySQL += ` WHERE body_embedding IS NOT NULL`
	}
	querySQL += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, fmt.Errorf("postgres: list card IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan card ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertCard creates or replaces a card record. The pgvector columns are
// written alongside the BYTEA payloads when the extension is available so
// both representations stay consistent.
func (s *Store) UpsertCard(ctx context.Context, card *types.Card) error {
	if card == nil {
		return storage.ErrInvalidArgument
	}
	if err := card.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
	}

	now := time.Now().UTC()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now

	// Set-valued attributes are stored folded so the predicate SQL can use
	// plain set membership (see predicateSQL).
	card.Colors = storage.FoldSet(card.Colors)
	card.ColorIdentity = storage.FoldSet(card.ColorIdentity)
	card.Keywords = storage.FoldSet(card.Keywords)
	card.Tags = storage.FoldSet(card.Tags)

	tags, err := json.Marshal(sliceOrEmpty(card.Tags))
	if err != nil {
		return fmt.Errorf("postgres: marshal tags for %s: %w", card.ID, err)
	}

	const upsertSQL = `
		INSERT INTO cards (
			id, name, oracle_text, type_line,
			mana_value, colors, color_identity, keywords, tags,
			set_code, collector_number, released_at,
			created_at, updated_at,
			full_embedding, body_embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			oracle_text = EXCLUDED.oracle_text,
			type_line = EXCLUDED.type_line,
			mana_value = EXCLUDED.mana_value,
			colors = EXCLUDED.colors,
			color_identity = EXCLUDED.color_identity,
			keywords = EXCLUDED.keywords,
			tags = EXCLUDED.tags,
			set_code = EXCLUDED.set_code,
			collector_number = EXCLUDED.collector_number,
			released_at = EXCLUDED.released_at,
			updated_at = EXCLUDED.updated_at,
			full_embedding = EXCLUDED.full_embedding,
			body_embedding = EXCLUDED.body_embedding
	`
	_, err = s.db.ExecContext(ctx, upsertSQL,
		card.ID, card.Name, card.OracleText, card.TypeLine,
		card.ManaValue,
		pq.Array(sliceOrEmpty(card.Colors)),
		pq.Array(sliceOrEmpty(card.ColorIdentity)),
		pq.Array(sliceOrEmpty(card.Keywords)),
		tags,
		card.SetCode, card.CollectorNumber, nullTime(card.ReleasedAt),
		card.CreatedAt, card.UpdatedAt,
		storage.EncodeVector(card.FullEmbedding),
		storage.EncodeVector(card.BodyEmbedding),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert card %s: %w", card.ID, err)
	}

	if s.pgvectorAvailable {
		if err := s.syncVectorColumns(ctx, card); err != nil {
			return err
		}
	}
	return nil
}

// syncVectorColumns mirrors the BYTEA embeddings into the pgvector columns.
func (s *Store) syncVectorColumns(ctx context.Context, card *types.Card) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cards
		SET full_embedding_vec = $2::vector, body_embedding_vec = $3::vector
		WHERE id = $1
	`, card.ID, vectorParam(card.FullEmbedding), vectorParam(card.BodyEmbedding))
	if err != nil {
		return fmt.Errorf("postgres: sync vector columns for %s: %w", card.ID, err)
	}
	return nil
}

// CountCards returns the total number of card records.
func (s *Store) CountCards(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count cards: %w", err)
	}
	return n, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCardRow(row rowScanner) (*types.Card, error) {
	var (
		card       types.Card
		colors     pq.StringArray
		identity   pq.StringArray
		keywords   pq.StringArray
		tags       []byte
		releasedAt sql.NullTime
		fullBuf    []byte
		bodyBuf    []byte
	)

	err := row.Scan(
		&card.ID, &card.Name, &card.OracleText, &card.TypeLine,
		&card.ManaValue, &colors, &identity, &keywords, &tags,
		&card.SetCode, &card.CollectorNumber, &releasedAt,
		&card.CreatedAt, &card.UpdatedAt,
		&fullBuf, &bodyBuf,
	)
	if err != nil {
		return nil, err
	}

	card.Colors = colors
	card.ColorIdentity = identity
	card.Keywords = keywords
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &card.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if releasedAt.Valid {
		card.ReleasedAt = releasedAt.Time
	}
	if card.FullEmbedding, err = storage.DecodeVector(fullBuf); err != nil {
		return nil, fmt.Errorf("decode full embedding: %w", err)
	}
	if card.BodyEmbedding, err = storage.DecodeVector(bodyBuf); err != nil {
		return nil, fmt.Errorf("decode body embedding: %w", err)
	}
	return &card, nil
}

func scanCardRows(rows *sql.Rows) ([]types.Card, error) {
	var cards []types.Card
	for rows.Next() {
		card, err := scanCardRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate cards: %w", err)
	}
	return cards, nil
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
