package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// DefaultMatchFloor is the similarity a rule must exceed to count as a
// match. It is a policy value tuned from spot-checked corpora, not a derived
// constant. Override it via configuration where needed.
const DefaultMatchFloor = 0.70

// Matcher classifies a card against the full rule catalog by embedding
// similarity. Matching is a pure function of the card, the catalog
// snapshot, and the floor; results may be cached externally but the cache
// is never a source of truth.
type Matcher struct {
	cards   storage.CardStore
	catalog *Provider
	floor   float64
}

// NewMatcher creates a matcher with the given matching floor. A floor
// outside (0,1] falls back to DefaultMatchFloor.
func NewMatcher(cards storage.CardStore, catalog *Provider, floor float64) *Matcher {
	if floor <= 0 || floor > 1 {
		floor = DefaultMatchFloor
	}
	return &Matcher{cards: cards, catalog: catalog, floor: floor}
}

// MatchRules classifies the card with the given ID against every rule in
// the current catalog snapshot.
//
// A card without a body embedding returns storage.ErrNoEmbedding: callers
// must be able to distinguish "not yet embedded" from "embedded, matches
// nothing", so this is never collapsed into an empty success.
func (m *Matcher) MatchRules(ctx context.Context, cardID string) ([]types.RuleBinding, error) {
	if cardID == "" {
		return nil, fmt.Errorf("%w: card ID is required", storage.ErrInvalidArgument)
	}

	card, err := m.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("rules: match %s: %w", cardID, err)
	}
	return m.MatchCard(ctx, card)
}

// MatchCard classifies an already-loaded card. The similarity scan is
// O(rules); the catalog stays small enough (tens to low hundreds) that a
// full scan per card is cheap.
func (m *Matcher) MatchCard(_ context.Context, card *types.Card) ([]types.RuleBinding, error) {
	if card == nil {
		return nil, fmt.Errorf("%w: card is required", storage.ErrInvalidArgument)
	}
	if !card.HasBodyEmbedding() {
		return nil, fmt.Errorf("card %s has no body embedding: %w", card.ID, storage.ErrNoEmbedding)
	}

	catalog := m.catalog.Snapshot()

	var bindings []types.RuleBinding
	for i := range catalog.Rules() {
		rule := &catalog.Rules()[i]
		if !rule.HasEmbedding() {
			continue
		}

		sim := storage.CosineSimilarity(card.BodyEmbedding, rule.Embedding)
		if sim <= m.floor {
			continue
		}

		params, unparameterized := extractParams(catalog, rule, card.OracleText)
		bindings = append(bindings, types.RuleBinding{
			CardID: card.ID,
			RuleID: rule.ID,
			// Confidence is the raw cosine similarity, clamped only for
			// floating-point spill past 1.0. No further boosting.
			Confidence:      clampUnit(sim),
			Method:          types.MethodSimilarity,
			Params:          params,
			Unparameterized: unparameterized,
		})
	}

	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Confidence != bindings[j].Confidence {
			return bindings[i].Confidence > bindings[j].Confidence
		}
		return bindings[i].RuleID < bindings[j].RuleID
	})

	return bindings, nil
}

// Floor returns the configured matching floor.
func (m *Matcher) Floor() float64 {
	return m.floor
}

// extractParams fills the rule's declared parameter schema from the card's
// oracle text using the catalog's precompiled capture patterns. A required
// parameter that cannot be extracted flags the binding as unparameterized
// instead of discarding it: classification is about mechanic family, not
// exact parameter fidelity.
func extractParams(catalog *Catalog, rule *types.Rule, oracleText string) (map[string]string, bool) {
	if len(rule.Params) == 0 {
		return nil, false
	}

	params := make(map[string]string, len(rule.Params))
	unparameterized := false
	for _, spec := range rule.Params {
		re := catalog.paramPatterns[rule.ID][spec.Name]
		if re == nil {
			if spec.Required {
				unparameterized = true
			}
			continue
		}
		m := re.FindStringSubmatch(oracleText)
		if len(m) < 2 || m[1] == "" {
			if spec.Required {
				unparameterized = true
			}
			continue
		}
		params[spec.Name] = m[1]
	}
	if len(params) == 0 {
		params = nil
	}
	return params, unparameterized
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
