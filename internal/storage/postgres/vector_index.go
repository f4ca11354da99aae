package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/deckhaven/cardex/internal/storage"
)

var _ storage.VectorIndex = (*Store)(nil)

// NearestCards performs cosine nearest-neighbour search over the selected
// embedding column. With pgvector available the search runs in SQL and is
// accelerated by the ivfflat index once built; without it every candidate
// passing the predicates is scanned in process. Both paths produce the same
// ordering: similarity descending, then card ID ascending.
func (s *Store) NearestCards(ctx context.Context, vec []float32, col storage.EmbeddingColumn, k int, preds []storage.Predicate) ([]storage.CardMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", storage.ErrInvalidArgument)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", storage.ErrInvalidArgument)
	}
	byteaCol, vecCol, err := embeddingColumns(col)
	if err != nil {
		return nil, err
	}

	if !s.pgvectorAvailable {
		return s.scanNearest(ctx, vec, byteaCol, k, preds)
	}

	where, args := predicateSQL(preds, 2)
	querySQL := fmt.Sprintf(`
		SELECT %s, 1 - (%s <=> $1::vector) AS similarity
		FROM cards
		WHERE %s IS NOT NULL`, cardSelectColumns, vecCol, vecCol)
	if where != "" {
		querySQL += ` AND ` + where
	}
	querySQL += fmt.Sprintf(` ORDER BY %s <=> $1::vector ASC, id ASC LIMIT $%d`, vecCol, len(args)+2)

	fullArgs := append([]any{vectorParam(vec)}, args...)
	fullArgs = append(fullArgs, k)

	rows, err := s.db.QueryContext(ctx, querySQL, fullArgs...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.CardMatch
	for rows.Next() {
		m := cardMatchScanner{rows: rows}
		card, err := scanCardRow(&m)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan vector match: %w", err)
		}
		matches = append(matches, storage.CardMatch{Card: *card, Similarity: m.similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate vector matches: %w", err)
	}
	return matches, nil
}

// cardMatchScanner wraps a row scan to capture the trailing similarity
// column alongside the standard card columns.
type cardMatchScanner struct {
	rows       rowScanner
	similarity float64
}

func (m *cardMatchScanner) Scan(dest ...any) error {
	return m.rows.Scan(append(dest, &m.similarity)...)
}

// scanNearest is the pgvector-free fallback: fetch every predicate-passing
// card with the selected embedding and rank by cosine in process.
func (s *Store) scanNearest(ctx context.Context, vec []float32, byteaCol string, k int, preds []storage.Predicate) ([]storage.CardMatch, error) {
	where, args := predicateSQL(preds, 1)
	querySQL := fmt.Sprintf(`SELECT %s FROM cards WHERE %s IS NOT NULL`, cardSelectColumns, byteaCol)
	if where != "" {
		querySQL += ` AND ` + where
	}

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector scan: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cards, err := scanCardRows(rows)
	if err != nil {
		return nil, err
	}

	matches := make([]storage.CardMatch, 0, len(cards))
	for _, card := range cards {
		target := card.FullEmbedding
		if byteaCol == "body_embedding" {
			target = card.BodyEmbedding
		}
		matches = append(matches, storage.CardMatch{
			Card:       card,
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

func embeddingColumns(col storage.EmbeddingColumn) (byteaCol, vecCol string, err error) {
	switch col {
	case storage.ColumnFull:
		return "full_embedding", "full_embedding_vec", nil
	case storage.ColumnBody:
		return "body_embedding", "body_embedding_vec", nil
	}
	return "", "", fmt.Errorf("%w: unknown embedding column %q", storage.ErrInvalidArgument, col)
}
