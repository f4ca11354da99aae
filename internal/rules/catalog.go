// Package rules implements the rule catalog, entity rule matching, and
// interaction detection.
//
// The catalog is a static, slowly-changing set of rule templates with
// precomputed embeddings, organized into an acyclic category taxonomy, plus
// a lookup index of known interactions between rule pairs. It is loaded once
// at startup and treated as immutable for the process lifetime; reload
// publishes a fully-built replacement snapshot atomically rather than
// mutating rules in place.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// PairKey is the unordered key of a rule pair in the interaction index.
type PairKey struct {
	Lo, Hi string
}

// NewPairKey normalizes two rule IDs into an unordered key.
func NewPairKey(a, b string) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// Catalog is one immutable snapshot of the rule library. It is never
// mutated after construction, so concurrent readers need no locking.
type Catalog struct {
	rules        []types.Rule
	byID         map[string]*types.Rule
	byName       map[string]*types.Rule
	categories   map[string]types.RuleCategory
	interactions map[PairKey]types.RuleInteraction

	// paramPatterns holds the compiled capture patterns per rule, validated
	// at build time so matching never hits a compile error.
	paramPatterns map[string]map[string]*regexp.Regexp
}

// BuildCatalog validates and assembles a snapshot from its raw parts.
// It enforces the catalog invariants: unique rule IDs and names, every rule
// in exactly one existing category, an acyclic category hierarchy, and
// interactions referencing two distinct existing rules with a strength in
// [0,1].
func BuildCatalog(ruleList []types.Rule, categories []types.RuleCategory, interactions []types.RuleInteraction) (*Catalog, error) {
	c := &Catalog{
		rules:         make([]types.Rule, len(ruleList)),
		byID:          make(map[string]*types.Rule, len(ruleList)),
		byName:        make(map[string]*types.Rule, len(ruleList)),
		categories:    make(map[string]types.RuleCategory, len(categories)),
		interactions:  make(map[PairKey]types.RuleInteraction, len(interactions)),
		paramPatterns: make(map[string]map[string]*regexp.Regexp, len(ruleList)),
	}
	copy(c.rules, ruleList)

	for _, cat := range categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("catalog: category with empty name")
		}
		if _, dup := c.categories[cat.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate category %q", cat.Name)
		}
		c.categories[cat.Name] = cat
	}
	if err := checkAcyclic(c.categories); err != nil {
		return nil, err
	}

	for i := range c.rules {
		r := &c.rules[i]
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate rule ID %q", r.ID)
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate rule name %q", r.Name)
		}
		if _, ok := c.categories[r.Category]; !ok {
			return nil, fmt.Errorf("catalog: rule %s references unknown category %q", r.ID, r.Category)
		}
		c.byID[r.ID] = r
		c.byName[r.Name] = r

		patterns := make(map[string]*regexp.Regexp, len(r.Params))
		for _, p := range r.Params {
			re, err := regexp.Compile(`(?i)` + p.Pattern)
			if err != nil {
				return nil, fmt.Errorf("catalog: rule %s param %q: invalid pattern: %w", r.ID, p.Name, err)
			}
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("catalog: rule %s param %q: pattern has no capture group", r.ID, p.Name)
			}
			patterns[p.Name] = re
		}
		c.paramPatterns[r.ID] = patterns
	}

	for _, in := range interactions {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if _, ok := c.byID[in.RuleA]; !ok {
			return nil, fmt.Errorf("catalog: interaction references unknown rule %q", in.RuleA)
		}
		if _, ok := c.byID[in.RuleB]; !ok {
			return nil, fmt.Errorf("catalog: interaction references unknown rule %q", in.RuleB)
		}
		key := NewPairKey(in.RuleA, in.RuleB)
		if _, dup := c.interactions[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate interaction for pair %s/%s", key.Lo, key.Hi)
		}
		c.interactions[key] = in
	}

	return c, nil
}

// checkAcyclic walks every category's parent chain with a visited set.
func checkAcyclic(categories map[string]types.RuleCategory) error {
	for name := range categories {
		seen := map[string]bool{}
		cur := name
		for cur != "" {
			if seen[cur] {
				return fmt.Errorf("catalog: category hierarchy cycle through %q", cur)
			}
			seen[cur] = true
			cat, ok := categories[cur]
			if !ok {
				return fmt.Errorf("catalog: category %q references unknown parent", cur)
			}
			cur = cat.Parent
		}
	}
	return nil
}

// Rules returns the catalog's rules. Callers must not mutate the slice.
func (c *Catalog) Rules() []types.Rule {
	return c.rules
}

// RuleByID looks up a rule by identifier.
func (c *Catalog) RuleByID(id string) (*types.Rule, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// RuleByName looks up a rule by its unique machine-readable name.
func (c *Catalog) RuleByName(name string) (*types.Rule, bool) {
	r, ok := c.byName[name]
	return r, ok
}

// Interaction looks up the interaction for an unordered rule pair.
func (c *Catalog) Interaction(a, b string) (types.RuleInteraction, bool) {
	in, ok := c.interactions[NewPairKey(a, b)]
	return in, ok
}

// Categories returns the catalog's categories. Order is not defined.
func (c *Catalog) Categories() []types.RuleCategory {
	out := make([]types.RuleCategory, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	return out
}

// Interactions returns the catalog's interactions. Order is not defined.
func (c *Catalog) Interactions() []types.RuleInteraction {
	out := make([]types.RuleInteraction, 0, len(c.interactions))
	for _, in := range c.interactions {
		out = append(out, in)
	}
	return out
}

// Counts returns the number of rules, categories, and interactions.
func (c *Catalog) Counts() (ruleCount, categoryCount, interactionCount int) {
	return len(c.rules), len(c.categories), len(c.interactions)
}

// Provider hands out the current catalog snapshot and swaps in replacements
// atomically. Readers always see either the old snapshot or the new one,
// never a partially-built catalog.
type Provider struct {
	current atomic.Pointer[Catalog]
}

// NewProvider creates a provider holding the given initial snapshot.
func NewProvider(initial *Catalog) *Provider {
	p := &Provider{}
	p.current.Store(initial)
	return p
}

// Snapshot returns the current immutable catalog.
func (p *Provider) Snapshot() *Catalog {
	return p.current.Load()
}

// Swap atomically publishes a fully-built replacement snapshot.
func (p *Provider) Swap(next *Catalog) {
	p.current.Store(next)
}

// ReloadFromStore rebuilds the catalog from the rule store and publishes it.
// The old snapshot stays visible until the replacement is complete.
func (p *Provider) ReloadFromStore(ctx context.Context, store storage.RuleStore) error {
	ruleList, err := store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("rules: reload: list rules: %w", err)
	}
	categories, err := store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("rules: reload: list categories: %w", err)
	}
	interactions, err := store.ListInteractions(ctx)
	if err != nil {
		return fmt.Errorf("rules: reload: list interactions: %w", err)
	}

	catalog, err := BuildCatalog(ruleList, categories, interactions)
	if err != nil {
		return fmt.Errorf("rules: reload: %w", err)
	}
	p.Swap(catalog)
	return nil
}
