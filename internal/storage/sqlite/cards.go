package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

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

	row := s.db.QueryRowContext(ctx, `SELECT `+cardSelectColumns+` FROM cards WHERE id = ?`, id)
	card, err := scanCardRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("sqlite: get card %s: %w", id, err)
	}
	return card, nil
}

// FindByName retrieves all cards whose name equals name case-insensitively.
func (s *Store) FindByName(ctx context.Context, name string) ([]types.Card, error) {
	const querySQL = `
		SELECT ` + cardSelectColumns + `
		FROM cards
		WHERE LOWER(name) = LOWER(?)
		ORDER BY released_at DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, querySQL, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find by name %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	return scanCardRows(rows)
}

// FindByPredicates retrieves up to limit cards satisfying every predicate.
// SQLite lacks array operators, so only the numeric filters run in SQL; the
// set-valued predicates are applied in process with the reference semantics.
func (s *Store) FindByPredicates(ctx context.Context, preds []storage.Predicate, limit int) ([]types.Card, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidArgument)
	}

	where, args, leftover := coarsePredicateSQL(preds)
	querySQL := `SELECT ` + cardSelectColumns + ` FROM cards`
	if where != "" {
		querySQL += ` WHERE ` + where
	}
	querySQL += ` ORDER BY released_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find by predicates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cards, err := scanCardRows(rows)
	if err != nil {
		return nil, err
	}

	out := cards[:0]
	for i := range cards {
		if matchesAll(&cards[i], leftover) {
			out = append(out, cards[i])
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
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
		return nil, fmt.Errorf("sqlite: list card IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan card ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertCard creates or replaces a card record.
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

	// Stored folded, matching the postgres backend, so predicate pushdown
	// behaves identically across engines.
	card.Colors = storage.FoldSet(card.Colors)
	card.ColorIdentity = storage.FoldSet(card.ColorIdentity)
	card.Keywords = storage.FoldSet(card.Keywords)
	card.Tags = storage.FoldSet(card.Tags)

	colors, err := marshalStrings(card.Colors)
	if err != nil {
		return fmt.Errorf("sqlite: marshal colors for %s: %w", card.ID, err)
	}
	identity, err := marshalStrings(card.ColorIdentity)
	if err != nil {
		return fmt.Errorf("sqlite: marshal color identity for %s: %w", card.ID, err)
	}
	keywords, err := marshalStrings(card.Keywords)
	if err != nil {
		return fmt.Errorf("sqlite: marshal keywords for %s: %w", card.ID, err)
	}
	tags, err := marshalStrings(card.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: marshal tags for %s: %w", card.ID, err)
	}

	const upsertSQL = `
		INSERT INTO cards (
			id, name, oracle_text, type_line,
			mana_value, colors, color_identity, keywords, tags,
			set_code, collector_number, released_at,
			created_at, updated_at,
			full_embedding, body_embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			oracle_text = excluded.oracle_text,
			type_line = excluded.type_line,
			mana_value = excluded.mana_value,
			colors = excluded.colors,
			color_identity = excluded.color_identity,
			keywords = excluded.keywords,
			tags = excluded.tags,
			set_code = excluded.set_code,
			collector_number = excluded.collector_number,
			released_at = excluded.released_at,
			updated_at = excluded.updated_at,
			full_embedding = excluded.full_embedding,
			body_embedding = excluded.body_embedding
	`
	_, err = s.db.ExecContext(ctx, upsertSQL,
		card.ID, card.Name, card.OracleText, card.TypeLine,
		card.ManaValue, colors, identity, keywords, tags,
		card.SetCode, card.CollectorNumber, nullTime(card.ReleasedAt),
		card.CreatedAt, card.UpdatedAt,
		storage.EncodeVector(card.FullEmbedding),
		storage.EncodeVector(card.BodyEmbedding),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert card %s: %w", card.ID, err)
	}
	return nil
}

// CountCards returns the total number of card records.
func (s *Store) CountCards(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count cards: %w", err)
	}
	return n, nil
}

// NearestCards performs a brute-force cosine scan over cards with the
// selected embedding, with the numeric predicates pushed into SQL and the
// rest applied in process. Ordering matches the PostgreSQL backend:
// similarity descending, then card ID ascending.
func (s *Store) NearestCards(ctx context.Context, vec []float32, col storage.EmbeddingColumn, k int, preds []storage.Predicate) ([]storage.CardMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", storage.ErrInvalidArgument)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", storage.ErrInvalidArgument)
	}

	var embCol string
	switch col {
	case storage.ColumnFull:
		embCol = "full_embedding"
	case storage.ColumnBody:
		embCol = "body_embedding"
	default:
		return nil, fmt.Errorf("%w: unknown embedding column %q", storage.ErrInvalidArgument, col)
	}

	where, args, leftover := coarsePredicateSQL(preds)
	querySQL := fmt.Sprintf(`SELECT %s FROM cards WHERE %s IS NOT NULL`, cardSelectColumns, embCol)
	if where != "" {
		querySQL += ` AND ` + where
	}

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector scan: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cards, err := scanCardRows(rows)
	if err != nil {
		return nil, err
	}

	matches := make([]storage.CardMatch, 0, len(cards))
	for i := range cards {
		if !matchesAll(&cards[i], leftover) {
			continue
		}
		target := cards[i].FullEmbedding
		if col == storage.ColumnBody {
			target = cards[i].BodyEmbedding
		}
		matches = append(matches, storage.CardMatch{
			Card:       cards[i],
			Similarity: storage.CosineSimilarity(vec, target),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Card.ID < matches[j].Card.ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// coarsePredicateSQL pushes the numeric predicates into SQL and returns the
// set-valued ones for in-process filtering.
func coarsePredicateSQL(preds []storage.Predicate) (where string, args []any, leftover []storage.Predicate) {
	for _, p := range preds {
		if p.Field != storage.FieldManaValue {
			leftover = append(leftover, p)
			continue
		}
		var op string
		switch p.Op {
		case storage.OpGt:
			op = ">"
		case storage.OpGe:
			op = ">="
		case storage.OpLt:
			op = "<"
		case storage.OpLe:
			op = "<="
		case storage.OpEq:
			op = "="
		default:
			leftover = append(leftover, p)
			continue
		}
		if where != "" {
			where += " AND "
		}
		where += "mana_value " + op + " ?"
		args = append(args, p.Number)
	}
	return where, args, leftover
}

func matchesAll(c *types.Card, preds []storage.Predicate) bool {
	for _, p := range preds {
		if !p.MatchesCard(c) {
			return false
		}
	}
	return true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCardRow(row rowScanner) (*types.Card, error) {
	var (
		card       types.Card
		colors     string
		identity   string
		keywords   string
		tags       string
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

	for _, field := range []struct {
		raw  string
		dest *[]string
	}{
		{colors, &card.Colors},
		{identity, &card.ColorIdentity},
		{keywords, &card.Keywords},
		{tags, &card.Tags},
	} {
		if err := unmarshalStrings(field.raw, field.dest); err != nil {
			return nil, err
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
			return nil, fmt.Errorf("sqlite: scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate cards: %w", err)
	}
	return cards, nil
}

func marshalStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(raw string, dest *[]string) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
