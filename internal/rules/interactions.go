package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// Detector reports known rule interactions between two cards by composing
// the matcher's output with the catalog's interaction index.
type Detector struct {
	matcher *Matcher
	catalog *Provider
}

// NewDetector creates an interaction detector.
func NewDetector(matcher *Matcher, catalog *Provider) *Detector {
	return &Detector{matcher: matcher, catalog: catalog}
}

// FindInteractions matches both cards against the catalog independently,
// then looks up every (ruleA, ruleB) cross-product pair in the interaction
// index by unordered key.
//
// Identical IDs are a contract violation: rule interactions require distinct
// rules and self-interaction is not meaningful here. Either card lacking a
// body embedding fails with storage.ErrNoEmbedding. An empty result is
// success: it means no known interaction, not a failure.
//
// Results are sorted by strength * min(confidenceA, confidenceB) descending
// so the most certain and strongest interactions surface first; the
// secondary key is the matched rule pair, which makes the ordering (and
// therefore the result content for swapped arguments) deterministic.
func (d *Detector) FindInteractions(ctx context.Context, cardIDA, cardIDB string) ([]types.InteractionResult, error) {
	if cardIDA == "" || cardIDB == "" {
		return nil, fmt.Errorf("%w: two card IDs are required", storage.ErrInvalidArgument)
	}
	if cardIDA == cardIDB {
		return nil, fmt.Errorf("%w: self-interaction request for card %s", storage.ErrInvalidArgument, cardIDA)
	}

	bindingsA, err := d.matcher.MatchRules(ctx, cardIDA)
	if err != nil {
		return nil, err
	}
	bindingsB, err := d.matcher.MatchRules(ctx, cardIDB)
	if err != nil {
		return nil, err
	}

	catalog := d.catalog.Snapshot()

	var results []types.InteractionResult
	for _, ba := range bindingsA {
		for _, bb := range bindingsB {
			interaction, ok := catalog.Interaction(ba.RuleID, bb.RuleID)
			if !ok {
				continue
			}
			score := interaction.Strength * min(ba.Confidence, bb.Confidence)
			results = append(results, types.InteractionResult{
				Interaction:  interaction,
				MatchedRuleA: ba.RuleID,
				MatchedRuleB: bb.RuleID,
				ConfidenceA:  ba.Confidence,
				ConfidenceB:  bb.Confidence,
				Score:        score,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ki := NewPairKey(results[i].MatchedRuleA, results[i].MatchedRuleB)
		kj := NewPairKey(results[j].MatchedRuleA, results[j].MatchedRuleB)
		if ki.Lo != kj.Lo {
			return ki.Lo < kj.Lo
		}
		return ki.Hi < kj.Hi
	})

	return results, nil
}
