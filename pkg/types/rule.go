package types

import (
	"errors"
	"fmt"
	"strings"
)

// BindingMethod identifies what produced a card-rule binding.
type BindingMethod string

const (
	// MethodSimilarity marks bindings produced by embedding similarity
	// crossing the matching floor.
	MethodSimilarity BindingMethod = "similarity"

	// MethodManual marks hand-curated bindings.
	MethodManual BindingMethod = "manual"

	// MethodLLM marks bindings merged from the external LLM tag stream.
	MethodLLM BindingMethod = "llm"
)

// ParamSpec declares one parameter of a rule template and the capture
// pattern used to extract its value from a card's oracle text.
type ParamSpec struct {
	Name     string `json:"name" yaml:"name"`         // Parameter name (e.g., "target_kind")
	Pattern  string `json:"pattern" yaml:"pattern"`   // Regexp with at least one capture group
	Required bool   `json:"required" yaml:"required"` // Whether extraction failure flags the binding
}

// Rule is an abstract behavioral template a card may match,
// e.g. "destroy a target of kind K" or "produce N card-draw events".
type Rule struct {
	ID             string      `json:"id" yaml:"id"`                           // Unique identifier (format: rule:category:slug)
	Name           string      `json:"name" yaml:"name"`                       // Unique machine-readable name
	Template       string      `json:"template" yaml:"template"`               // Human-readable template with {param} placeholders
	Category       string      `json:"category" yaml:"category"`               // Exactly one category from the taxonomy
	Params         []ParamSpec `json:"params,omitempty" yaml:"params"`         // Declared parameter schema
	BaseConfidence float64     `json:"base_confidence" yaml:"base_confidence"` // 1.0 for curated rules, <1.0 for derived ones
	Embedding      []float32   `json:"embedding,omitempty" yaml:"-"`           // Over template + category description
}

// Validate checks rule invariants. Embeddings are populated offline and
// may legitimately be absent; such rules are skipped by the matcher.
func (r *Rule) Validate() error {
	if r == nil {
		return errors.New("rule is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("rule ID is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule %s: name is required", r.ID)
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("rule %s: category is required", r.ID)
	}
	if r.BaseConfidence < 0 || r.BaseConfidence > 1 {
		return fmt.Errorf("rule %s: base confidence %v out of [0,1]", r.ID, r.BaseConfidence)
	}
	return nil
}

// HasEmbedding reports whether the rule can participate in similarity matching.
func (r *Rule) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// RuleCategory is one node of the rule taxonomy. The hierarchy is optional
// (Parent may be empty) and must be acyclic.
type RuleCategory struct {
	Name   string `json:"name" yaml:"name"`               // Unique category name
	Parent string `json:"parent,omitempty" yaml:"parent"` // Parent category name, empty for roots
}

// RuleBinding joins one card to one rule with a confidence score and the
// parameter values extracted for that card. At most one binding exists per
// (card, rule) pair.
type RuleBinding struct {
	CardID     string            `json:"card_id"`          // Bound card
	RuleID     string            `json:"rule_id"`          // Bound rule
	Confidence float64           `json:"confidence"`       // In [0,1]; equals cosine similarity for similarity bindings
	Method     BindingMethod     `json:"method"`           // What produced the binding
	Params     map[string]string `json:"params,omitempty"` // Extracted parameter values

	// Unparameterized is true when a required parameter could not be
	// extracted from the card text. The binding is retained: classification
	// is about mechanic family, not exact parameter fidelity.
	Unparameterized bool `json:"unparameterized,omitempty"`
}

// Validate checks binding invariants.
func (b *RuleBinding) Validate() error {
	if b == nil {
		return errors.New("binding is nil")
	}
	if b.CardID == "" || b.RuleID == "" {
		return errors.New("binding requires both card ID and rule ID")
	}
	if b.Confidence < 0 || b.Confidence > 1 {
		return fmt.Errorf("binding %s/%s: confidence %v out of [0,1]", b.CardID, b.RuleID, b.Confidence)
	}
	switch b.Method {
	case MethodSimilarity, MethodManual, MethodLLM:
	default:
		return fmt.Errorf("binding %s/%s: unknown method %q", b.CardID, b.RuleID, b.Method)
	}
	return nil
}
