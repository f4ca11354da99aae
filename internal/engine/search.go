package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/deckhaven/cardex/internal/embedding"
	"github.com/deckhaven/cardex/internal/query"
	"github.com/deckhaven/cardex/internal/storage"
)

// candidateMultiplier and minCandidates size the raw candidate fetch. The
// ranker deduplicates by name and filters by threshold, so it needs more raw
// candidates than the page being served.
const (
	candidateMultiplier = 3
	minCandidates       = 30
)

// SearchResult is the outcome of one search call.
type SearchResult struct {
	Query string       `json:"query"`
	Mode  query.Mode   `json:"mode"`
	Cards []RankedCard `json:"cards"`

	// Degraded is true when a structured query lost its semantic component
	// because the embedding gateway was unavailable and only the predicate
	// filters were applied.
	Degraded bool `json:"degraded,omitempty"`
}

// SearchService executes the full query pipeline: classify, retrieve
// candidates per plan, rank.
type SearchService struct {
	cards  storage.CardStore
	index  storage.VectorIndex
	embed  embedding.Gateway
	ranker *Ranker
	logger *log.Logger
}

// NewSearchService wires a search service over the given stores and
// embedding gateway. logger may be nil.
func NewSearchService(cards storage.CardStore, index storage.VectorIndex, embed embedding.Gateway, logger *log.Logger) *SearchService {
	if logger == nil {
		logger = log.Default()
	}
	return &SearchService{
		cards:  cards,
		index:  index,
		embed:  embed,
		ranker: NewRanker(),
		logger: logger,
	}
}

// Search classifies the raw query, gathers candidates with the resulting
// plan, and ranks them. An empty query is a contract violation. Zero results
// is success.
func (s *SearchService) Search(ctx context.Context, rawQuery string, opts storage.SearchOptions) (*SearchResult, error) {
	trimmed := strings.TrimSpace(rawQuery)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidArgument)
	}
	opts.Normalize()

	plan := query.Classify(trimmed)
	result := &SearchResult{Query: trimmed, Mode: plan.Mode()}

	// Memoize embeddings per call: plans that embed the same text more than
	// once (fallbacks, predicate-restricted sub-searches) pay for it once.
	embed := embedding.WithRequestCache(s.embed)

	var (
		candidates []Candidate
		boostText  string
		err        error
	)
	switch p := plan.(type) {
	case query.ExactPlan:
		boostText = p.Name
		candidates, err = s.exactCandidates(ctx, embed, p, s.fetchK(opts))
	case query.SemanticPlan:
		boostText = p.Text
		candidates, err = s.semanticCandidates(ctx, embed, p.Text, nil, s.fetchK(opts))
	case query.StructuredPlan:
		boostText = p.PositiveText
		candidates, result.Degraded, err = s.structuredCandidates(ctx, embed, p, s.fetchK(opts))
	default:
		return nil, fmt.Errorf("%w: unknown plan mode %q", storage.ErrInvalidArgument, plan.Mode())
	}
	if err != nil {
		return nil, err
	}

	result.Cards = s.ranker.Rank(boostText, candidates, opts)
	return result, nil
}

// fetchK sizes the raw candidate fetch from the requested page.
func (s *SearchService) fetchK(opts storage.SearchOptions) int {
	k := candidateMultiplier * (opts.Limit + opts.Offset)
	if k < minCandidates {
		k = minCandidates
	}
	return k
}

// exactCandidates looks the name up directly; every printing that matches
// gets similarity 1.0. An empty exact result falls back to a semantic pass
// so near-miss names still return something useful.
func (s *SearchService) exactCandidates(ctx context.Context, embed embedding.Gateway, p query.ExactPlan, k int) ([]Candidate, error) {
	cards, err := s.cards.FindByName(ctx, p.Name)
	if err != nil {
		return nil, fmt.Errorf("search: exact lookup %q: %w", p.Name, err)
	}
	if len(cards) > 0 {
		candidates := make([]Candidate, len(cards))
		for i, c := range cards {
			candidates[i] = Candidate{Card: c, Similarity: 1.0}
		}
		return candidates, nil
	}
	return s.semanticCandidates(ctx, embed, p.Name, nil, k)
}

// semanticCandidates embeds the text and runs a nearest-neighbour search
// over the full embeddings, optionally restricted by predicates.
func (s *SearchService) semanticCandidates(ctx context.Context, embed embedding.Gateway, text string, preds []storage.Predicate, k int) ([]Candidate, error) {
	vec, err := embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	matches, err := s.index.NearestCards(ctx, vec, storage.ColumnFull, k, preds)
	if err != nil {
		return nil, fmt.Errorf("search: vector search: %w", err)
	}

	candidates := make([]Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = Candidate{Card: m.Card, Similarity: m.Similarity}
	}
	return candidates, nil
}

// structuredCandidates runs the predicate-restricted semantic search when
// positive text is present, or a pure predicate scan when it isn't. When the
// embedding gateway is down the semantic component is dropped and the
// predicates still apply, reported as a degraded result rather than a hard
// failure.
func (s *SearchService) structuredCandidates(ctx context.Context, embed embedding.Gateway, p query.StructuredPlan, k int) ([]Candidate, bool, error) {
	if p.PositiveText != "" {
		candidates, err := s.semanticCandidates(ctx, embed, p.PositiveText, p.Predicates, k)
		if err == nil {
			return candidates, false, nil
		}
		if !isEmbeddingFailure(err) {
			return nil, false, err
		}
		s.logger.Printf("search: embedding unavailable, degrading to predicate-only: %v", err)
	}

	cards, err := s.cards.FindByPredicates(ctx, p.Predicates, k)
	if err != nil {
		return nil, false, fmt.Errorf("search: predicate scan: %w", err)
	}

	// Pure filter matches have no similarity signal; score them all 1.0 so
	// ordering falls to the ranker's recency tiebreak.
	candidates := make([]Candidate, len(cards))
	for i, c := range cards {
		candidates[i] = Candidate{Card: c, Similarity: 1.0}
	}
	return candidates, p.PositiveText != "", nil
}

// isEmbeddingFailure reports whether the error came from the embedding
// gateway rather than the store.
func isEmbeddingFailure(err error) bool {
	return errors.Is(err, embedding.ErrUnavailable) || errors.Is(err, embedding.ErrCircuitOpen)
}
