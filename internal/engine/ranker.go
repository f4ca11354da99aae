// Package engine composes the query core: classification, vector retrieval,
// result ranking, and batch classification.
package engine

import (
	"sort"
	"strings"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// Boost amounts for literal name matches. Literal matches must be able to
// outrank semantically-close-but-differently-named cards even under
// approximate nearest-neighbour noise.
const (
	prefixBoost    = 0.25
	substringBoost = 0.15
)

// Candidate is a raw scored card entering the ranker from one of the
// candidate streams (exact lookup, semantic search, structured search).
type Candidate struct {
	Card       types.Card
	Similarity float64
}

// RankedCard is a final ranked result with its boosted score.
type RankedCard struct {
	Card  types.Card `json:"card"`
	Score float64    `json:"score"`
}

// Ranker turns raw candidate streams into a single ranked, deduplicated,
// threshold-filtered list. It is stateless and safe for concurrent use.
type Ranker struct{}

// NewRanker creates a new result ranker.
func NewRanker() *Ranker {
	return &Ranker{}
}

// Rank applies boosting, name-level deduplication, threshold filtering, and
// final ordering with pagination. For a fixed candidate set and threshold the
// output is deterministic, and raising the threshold can only remove items,
// never reorder or add.
func (r *Ranker) Rank(queryText string, candidates []Candidate, opts storage.SearchOptions) []RankedCard {
	opts.Normalize()
	folded := strings.Join(strings.Fields(strings.ToLower(queryText)), " ")

	// Boost, then deduplicate by case-folded canonical name keeping the best
	// boosted candidate per name. Threshold filtering happens after both so
	// a boosted score can rescue a sub-threshold raw similarity.
	best := make(map[string]RankedCard)
	for _, c := range candidates {
		rc := RankedCard{Card: c.Card, Score: boostScore(folded, c.Card.Name, c.Similarity)}
		key := strings.ToLower(c.Card.Name)
		cur, seen := best[key]
		if !seen || rankedLess(cur, rc) {
			best[key] = rc
		}
	}

	ranked := make([]RankedCard, 0, len(best))
	for _, rc := range best {
		if rc.Score < opts.Threshold {
			continue
		}
		ranked = append(ranked, rc)
	}

	// Descending by boosted score with a stable secondary key so pagination
	// is deterministic across identical calls.
	sort.Slice(ranked, func(i, j int) bool {
		return rankedLess(ranked[j], ranked[i])
	})

	if opts.Offset >= len(ranked) {
		return []RankedCard{}
	}
	end := opts.Offset + opts.Limit
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[opts.Offset:end]
}

// boostScore derives the boosted score from the raw similarity and the
// relationship between query text and candidate name. The rule set is
// strictly ordered: exact case-insensitive equality forces 1.0, a prefix
// match adds 0.25, a substring match adds 0.15, otherwise unchanged. Sums
// are capped at 1.0.
func boostScore(foldedQuery, name string, similarity float64) float64 {
	if foldedQuery == "" {
		return clampScore(similarity)
	}
	foldedName := strings.ToLower(name)
	switch {
	case foldedName == foldedQuery:
		return 1.0
	case strings.HasPrefix(foldedName, foldedQuery):
		return clampScore(similarity + prefixBoost)
	case strings.Contains(foldedName, foldedQuery):
		return clampScore(similarity + substringBoost)
	}
	return clampScore(similarity)
}

func clampScore(s float64) float64 {
	if s > 1.0 {
		return 1.0
	}
	if s < 0 {
		return 0
	}
	return s
}

// rankedLess orders a below b: worse score first, ties broken by older
// release, older update, then descending ID. Its inverse therefore yields
// score-descending order with most-recent-wins tie-breaking, which also
// decides which record survives deduplication.
func rankedLess(a, b RankedCard) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if !a.Card.ReleasedAt.Equal(b.Card.ReleasedAt) {
		return a.Card.ReleasedAt.Before(b.Card.ReleasedAt)
	}
	if !a.Card.UpdatedAt.Equal(b.Card.UpdatedAt) {
		return a.Card.UpdatedAt.Before(b.Card.UpdatedAt)
	}
	return a.Card.ID > b.Card.ID
}
