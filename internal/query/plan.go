// Package query classifies raw query strings into retrieval plans.
//
// Classification is a deterministic, ordered set of pattern checks: a
// structured plan is chosen whenever at least one filter predicate is
// recognized, an exact plan when the normalized query looks like a bare card
// name, and a semantic plan otherwise. The whole package is pure parsing
// with no I/O and no hidden state.
package query

import "github.com/deckhaven/cardex/internal/storage"

// Mode is the retrieval mode a classified query resolves to.
type Mode string

const (
	ModeExact      Mode = "exact"
	ModeSemantic   Mode = "semantic"
	ModeStructured Mode = "structured"
)

// Plan is a retrieval plan produced by Classify.
type Plan interface {
	// Mode identifies the plan variant.
	Mode() Mode
}

// ExactPlan looks up cards by normalized canonical name.
type ExactPlan struct {
	// Name is the case-folded, whitespace-normalized lookup name.
	Name string
}

func (ExactPlan) Mode() Mode { return ModeExact }

// SemanticPlan treats the query as natural language for embedding search.
type SemanticPlan struct {
	// Text is the trimmed query text.
	Text string
}

func (SemanticPlan) Mode() Mode { return ModeSemantic }

// StructuredPlan combines extracted filter predicates with any leftover free
// text, which becomes a semantic sub-search restricted by the predicates.
type StructuredPlan struct {
	// PositiveText is the free text remaining after predicate extraction.
	// May be empty for pure filter queries.
	PositiveText string

	// Predicates are the recognized structured filters, in extraction order.
	Predicates []storage.Predicate
}

func (StructuredPlan) Mode() Mode { return ModeStructured }
