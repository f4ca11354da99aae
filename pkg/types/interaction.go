package types

import (
	"errors"
	"fmt"
)

// InteractionKind enumerates the known relationships between two rules.
type InteractionKind string

const (
	InteractionSynergy     InteractionKind = "synergy"
	InteractionCounter     InteractionKind = "counter"
	InteractionCombo       InteractionKind = "combo"
	InteractionReplacement InteractionKind = "replacement"
	InteractionAmplifies   InteractionKind = "amplifies"
)

// ValidInteractionKind reports whether k is one of the fixed enumeration values.
func ValidInteractionKind(k InteractionKind) bool {
	switch k {
	case InteractionSynergy, InteractionCounter, InteractionCombo,
		InteractionReplacement, InteractionAmplifies:
		return true
	}
	return false
}

// RuleInteraction is a curated relationship between two distinct rules.
// The interaction index is keyed by the unordered pair (RuleA, RuleB).
type RuleInteraction struct {
	RuleA       string          `json:"rule_a" yaml:"rule_a"`           // First rule ID
	RuleB       string          `json:"rule_b" yaml:"rule_b"`           // Second rule ID, must differ from RuleA
	Kind        InteractionKind `json:"kind" yaml:"kind"`               // One of the fixed interaction kinds
	Description string          `json:"description" yaml:"description"` // Free-text explanation
	Strength    float64         `json:"strength" yaml:"strength"`       // In [0,1]
}

// Validate checks interaction invariants.
func (i *RuleInteraction) Validate() error {
	if i == nil {
		return errors.New("interaction is nil")
	}
	if i.RuleA == "" || i.RuleB == "" {
		return errors.New("interaction requires two rule IDs")
	}
	if i.RuleA == i.RuleB {
		return fmt.Errorf("interaction %s: rules must be distinct", i.RuleA)
	}
	if !ValidInteractionKind(i.Kind) {
		return fmt.Errorf("interaction %s/%s: unknown kind %q", i.RuleA, i.RuleB, i.Kind)
	}
	if i.Strength < 0 || i.Strength > 1 {
		return fmt.Errorf("interaction %s/%s: strength %v out of [0,1]", i.RuleA, i.RuleB, i.Strength)
	}
	return nil
}

// InteractionResult is one detected interaction between two cards, annotated
// with the matched rules on each side and their confidences.
type InteractionResult struct {
	Interaction RuleInteraction `json:"interaction"`

	// MatchedRuleA is the rule matched on the first card, MatchedRuleB on
	// the second. These may be swapped relative to the stored interaction's
	// normalized pair order.
	MatchedRuleA string `json:"matched_rule_a"`
	MatchedRuleB string `json:"matched_rule_b"`

	ConfidenceA float64 `json:"confidence_a"` // Match confidence on the first card
	ConfidenceB float64 `json:"confidence_b"` // Match confidence on the second card

	// Score orders results: strength * min(ConfidenceA, ConfidenceB), so the
	// most certain and strongest interactions surface first.
	Score float64 `json:"score"`
}
