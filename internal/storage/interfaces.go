// Package storage provides composable storage interfaces for the cardex
// query core.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The core never mutates
// card, rule, or interaction state: ingestion and embedding population are
// offline jobs owned elsewhere, so everything here is read-mostly. The only
// write surface is the binding cache, which is exactly that: a cache the
// matcher may repopulate at will, never a source of truth.
package storage

import (
	"context"

	"github.com/deckhaven/cardex/pkg/types"
)

// CardStore provides card lookup by identifier, canonical name, and
// structured predicates.
type CardStore interface {
	// GetCard retrieves a card by ID, including any stored embeddings.
	// Returns ErrNotFound if the card doesn't exist.
	GetCard(ctx context.Context, id string) (*types.Card, error)

	// FindByName retrieves all cards whose canonical name equals name,
	// case-insensitively. Multiple printings may share a display name, so
	// the result is a slice. An empty slice is success, not an error.
	FindByName(ctx context.Context, name string) ([]types.Card, error)

	// FindByPredicates retrieves up to limit cards satisfying every
	// predicate, ordered by release date descending then ID ascending so
	// pagination is deterministic.
	FindByPredicates(ctx context.Context, preds []Predicate, limit int) ([]types.Card, error)

	// ListCardIDs returns the IDs of all cards, restricted to cards with a
	// body embedding when withBodyEmbedding is true. Used by the batch
	// classifier.
	ListCardIDs(ctx context.Context, withBodyEmbedding bool) ([]string, error)

	// UpsertCard creates or replaces a card record. Used by offline seeding
	// and tests; the query core itself never calls it.
	UpsertCard(ctx context.Context, card *types.Card) error

	// CountCards returns the total number of card records.
	CountCards(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// VectorIndex provides nearest-neighbour similarity search over card
// embeddings, backed by the relational store.
type VectorIndex interface {
	// NearestCards returns up to k (card, similarity) pairs ordered by
	// descending cosine similarity against the query vector, restricted to
	// cards whose selected embedding column is non-null and that satisfy
	// every predicate. Similarity is 1 - cosine_distance. Ties are broken
	// by card ID ascending so pagination is deterministic. k is a hard cap.
	// k <= 0 or an empty vector is a contract violation (ErrInvalidArgument).
	// An empty result set is success, not an error.
	NearestCards(ctx context.Context, vec []float32, col EmbeddingColumn, k int, preds []Predicate) ([]CardMatch, error)
}

// RuleStore provides read access to the rule catalog and interaction index.
// Rules and interactions are curated offline; the core only reads them.
type RuleStore interface {
	// ListRules returns every rule with its embedding when populated.
	ListRules(ctx context.Context) ([]types.Rule, error)

	// ListCategories returns the full category taxonomy.
	ListCategories(ctx context.Context) ([]types.RuleCategory, error)

	// ListInteractions returns every curated rule interaction.
	ListInteractions(ctx context.Context) ([]types.RuleInteraction, error)
}

// BindingStore persists precomputed card-rule bindings. Persisted bindings
// are a cache over the pure matching function, never a source of truth.
type BindingStore interface {
	// ReplaceBindings atomically replaces all cached bindings for a card.
	ReplaceBindings(ctx context.Context, cardID string, bindings []types.RuleBinding) error

	// GetBindings returns the cached bindings for a card, ordered by
	// confidence descending. An empty slice means nothing cached.
	GetBindings(ctx context.Context, cardID string) ([]types.RuleBinding, error)

	// CountBindings returns the total number of cached bindings.
	CountBindings(ctx context.Context) (int, error)
}

// Backend is the composite interface both storage engines satisfy.
type Backend interface {
	CardStore
	VectorIndex
	RuleStore
	BindingStore
}
