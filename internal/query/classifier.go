package query

import "strings"

// maxExactWords bounds how long a query can be and still plausibly be a bare
// card name. Card names in this corpus rarely exceed four words.
const maxExactWords = 4

// connectiveWords mark natural-language phrasing. A normalized query
// containing any of these is never treated as an exact-name lookup.
var connectiveWords = map[string]bool{
	"that": true, "which": true, "who": true, "with": true, "without": true,
	"like": true, "and": true, "or": true, "but": true, "not": true,
	"all": true, "any": true, "the": true, "a": true, "an": true,
	"cards": true, "card": true, "creatures": true, "spells": true,
	"find": true, "show": true, "search": true, "me": true,
	"of": true, "for": true, "how": true, "what": true, "than": true,
	"less": true, "more": true, "most": true, "best": true,
}

// Classify inspects a raw query string and produces a retrieval plan.
//
// Precedence is fixed and documented: a StructuredPlan is chosen whenever at
// least one filter predicate is recognized, even if positive text remains;
// otherwise an ExactPlan is chosen when the normalized query is short and
// free of connective words and comparison operators; otherwise a
// SemanticPlan. Classify is pure: identical inputs always yield identical
// plans.
func Classify(raw string) Plan {
	trimmed := strings.TrimSpace(raw)
	folded := strings.Join(strings.Fields(strings.ToLower(trimmed)), " ")

	preds, leftover := extractPredicates(folded)
	if len(preds) > 0 {
		return StructuredPlan{PositiveText: leftover, Predicates: preds}
	}

	if looksLikeName(folded) {
		return ExactPlan{Name: folded}
	}

	return SemanticPlan{Text: trimmed}
}

// looksLikeName reports whether a normalized query plausibly names a single
// card: short, no connective words, no comparison operators or digits.
func looksLikeName(folded string) bool {
	if folded == "" {
		return false
	}
	if strings.ContainsAny(folded, "<>=:?0123456789") {
		return false
	}
	words := strings.Fields(folded)
	if len(words) > maxExactWords {
		return false
	}
	for _, w := range words {
		if connectiveWords[w] {
			return false
		}
	}
	return true
}
