package storage

import (
	"errors"
	"math"
	"strings"

	"github.com/deckhaven/cardex/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidArgument indicates malformed input: empty query, self-interaction
	// request, or a contract violation such as k <= 0 on a vector search.
	// Reported to the caller, never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoEmbedding indicates a card or rule lacks a required vector.
	// It is a distinct, recoverable condition: callers may fall back to
	// exact or structured search. Never conflated with zero results.
	ErrNoEmbedding = errors.New("embedding not available")

	// ErrUnavailable indicates the relational store or an upstream call
	// failed or timed out. Idempotent reads are retried a bounded number of
	// times before this surfaces to the caller.
	ErrUnavailable = errors.New("upstream unavailable")
)

// EmbeddingColumn selects which of a card's two embedding vectors a vector
// search targets.
type EmbeddingColumn string

const (
	// ColumnFull targets the embedding over name + type line + oracle text.
	// Used by semantic search.
	ColumnFull EmbeddingColumn = "full"

	// ColumnBody targets the embedding over oracle text only, so rule
	// matching stays name-invariant.
	ColumnBody EmbeddingColumn = "body"
)

// Search option bounds per the public search contract.
const (
	DefaultLimit = 10
	MaxLimit     = 200
)

// SearchOptions provides options for search operations.
type SearchOptions struct {
	// Limit is the maximum number of results to return (1-200, default 10).
	// Out-of-range values are clamped, not rejected.
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// Threshold is the minimum boosted score (0.0 to 1.0). Applied by the
	// ranker after boosting and deduplication.
	Threshold float64
}

// Normalize clamps the options into their documented ranges. A limit at or
// below zero means unset and maps to DefaultLimit; callers that need an
// explicit limit=0 to mean "clamp to 1" distinguish the cases before calling
// (the HTTP handler does).
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Threshold < 0 || math.IsNaN(o.Threshold) {
		o.Threshold = 0
	}
	if o.Threshold > 1 {
		o.Threshold = 1
	}
}

// PredicateField names a structured card attribute a predicate filters on.
type PredicateField string

const (
	FieldManaValue PredicateField = "mana_value"
	FieldColor     PredicateField = "color"
	FieldKeyword   PredicateField = "keyword"
	FieldType      PredicateField = "type"
	FieldTag       PredicateField = "tag"
)

// PredicateOp is the comparison or membership operator of a predicate.
type PredicateOp string

const (
	OpGt      PredicateOp = "gt"      // numeric: strictly greater
	OpGe      PredicateOp = "ge"      // numeric: greater or equal
	OpLt      PredicateOp = "lt"      // numeric: strictly less
	OpLe      PredicateOp = "le"      // numeric: less or equal
	OpEq      PredicateOp = "eq"      // numeric: equal
	OpInclude PredicateOp = "include" // set-valued: must contain Value
	OpExclude PredicateOp = "exclude" // set-valued: must not contain Value
	OpOnly    PredicateOp = "only"    // set-valued: must contain Value and nothing else
)

// FoldSet lowercases and trims set-valued card attributes. Stores apply it
// on every card write: Predicate.Value is lowercased at extraction, so a
// store that persists folded sets can use plain SQL set membership and still
// agree with MatchesCard's case-insensitive reference semantics.
func FoldSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(strings.ToLower(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Predicate is one structured filter derived from recognizable query
// vocabulary, evaluated by the store (SQL) or in process (MatchesCard).
type Predicate struct {
	Field  PredicateField `json:"field"`
	Op     PredicateOp    `json:"op"`
	Number float64        `json:"number,omitempty"` // Operand for numeric ops
	Value  string         `json:"value,omitempty"`  // Operand for set-valued ops (lowercased)
}

// MatchesCard evaluates the predicate against a card in process. Backends
// without rich array operators (the SQLite fallback) use this after a coarse
// SQL pass; it is also the reference semantics the SQL translation must agree
// with.
func (p Predicate) MatchesCard(c *types.Card) bool {
	switch p.Field {
	case FieldManaValue:
		switch p.Op {
		case OpGt:
			return c.ManaValue > p.Number
		case OpGe:
			return c.ManaValue >= p.Number
		case OpLt:
			return c.ManaValue < p.Number
		case OpLe:
			return c.ManaValue <= p.Number
		case OpEq:
			return c.ManaValue == p.Number
		}
	case FieldColor:
		switch p.Op {
		case OpInclude:
			return c.HasColor(p.Value)
		case OpExclude:
			return !c.HasColor(p.Value)
		case OpOnly:
			if !c.HasColor(p.Value) {
				return false
			}
			for _, col := range c.Colors {
				if !strings.EqualFold(col, p.Value) {
					return false
				}
			}
			return true
		}
	case FieldKeyword:
		switch p.Op {
		case OpInclude:
			return c.HasKeyword(p.Value)
		case OpExclude:
			return !c.HasKeyword(p.Value)
		}
	case FieldType:
		has := strings.Contains(strings.ToLower(c.TypeLine), strings.ToLower(p.Value))
		switch p.Op {
		case OpInclude:
			return has
		case OpExclude:
			return !has
		}
	case FieldTag:
		switch p.Op {
		case OpInclude:
			return c.HasTag(p.Value)
		case OpExclude:
			return !c.HasTag(p.Value)
		}
	}
	return false
}

// CardMatch is one vector-search hit: a card and its raw cosine similarity.
type CardMatch struct {
	Card       types.Card
	Similarity float64
}
