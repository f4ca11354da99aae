package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/deckhaven/cardex/internal/storage"
)

// colorAlt and keywordAlt are the recognized filter vocabularies. Keywords
// list multi-word abilities first so the alternation prefers the longest
// match.
const (
	colorAlt   = `white|blue|black|red|green|colorless`
	keywordAlt = `first strike|double strike|flying|trample|haste|deathtouch|lifelink|vigilance|menace|reach|hexproof|flash|defender|indestructible`
)

// predicatePattern pairs a compiled matcher with a predicate constructor.
// The constructor receives the submatches and returns the predicates it
// builds; ok=false means the fragment is malformed (e.g. an unrepresentable
// number) and must be folded back into the positive text rather than raising.
type predicatePattern struct {
	re    *regexp.Regexp
	build func(m []string) (preds []storage.Predicate, ok bool)
}

// numericBuilder returns a constructor for a single mana-value predicate.
func numericBuilder(op storage.PredicateOp) func(m []string) ([]storage.Predicate, bool) {
	return func(m []string) ([]storage.Predicate, bool) {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, false
		}
		return []storage.Predicate{{Field: storage.FieldManaValue, Op: op, Number: n}}, true
	}
}

// setBuilder returns a constructor for a single set-membership predicate.
func setBuilder(field storage.PredicateField, op storage.PredicateOp) func(m []string) ([]storage.Predicate, bool) {
	return func(m []string) ([]storage.Predicate, bool) {
		return []storage.Predicate{{Field: field, Op: op, Value: strings.ToLower(m[1])}}, true
	}
}

// patternTable is the ordered grammar of recognizable filter vocabulary.
// Longest/most-specific patterns come first; extraction walks the table in
// order and removes each matched span from the working text. The ordering is
// part of the classifier contract and must stay stable.
var patternTable = []predicatePattern{
	// Numeric mana-value comparisons. An optional unit ("mana", "cost",
	// "cmc") and an optional "costs"/"costing" prefix are consumed with the
	// comparison so they don't pollute the positive text.
	{
		re:    regexp.MustCompile(`\b(?:costs?\s+|costing\s+|mana value\s+)?more than\s+(\d+)(?:\s+(?:mana|cmc|cost))?\b`),
		build: numericBuilder(storage.OpGt),
	},
	{
		re:    regexp.MustCompile(`\b(?:costs?\s+|costing\s+|mana value\s+)?at least\s+(\d+)(?:\s+(?:mana|cmc|cost))?\b`),
		build: numericBuilder(storage.OpGe),
	},
	{
		re:    regexp.MustCompile(`\b(?:costs?\s+|costing\s+|mana value\s+)?less than\s+(\d+)(?:\s+(?:mana|cmc|cost))?\b`),
		build: numericBuilder(storage.OpLt),
	},
	{
		re:    regexp.MustCompile(`\b(?:costs?\s+|costing\s+|mana value\s+)?exactly\s+(\d+)(?:\s+(?:mana|cmc|cost))?\b`),
		build: numericBuilder(storage.OpEq),
	},
	{
		re:    regexp.MustCompile(`\b(\d+)\s+or\s+less(?:\s+(?:mana|cmc|cost))?\b`),
		build: numericBuilder(storage.OpLe),
	},
	{
		re:    regexp.MustCompile(`\b(\d+)\s+or\s+more(?:\s+(?:mana|cmc|cost))?\b`),
		build: numericBuilder(storage.OpGe),
	},

	// Color phrases. Exclusion consumes a leading "but" so "zombies but not
	// black" leaves just "zombies" behind.
	{
		re:    regexp.MustCompile(`\b(?:but\s+)?(?:not|without)\s+(` + colorAlt + `)\b`),
		build: setBuilder(storage.FieldColor, storage.OpExclude),
	},
	{
		re:    regexp.MustCompile(`\bonly\s+(` + colorAlt + `)\b`),
		build: setBuilder(storage.FieldColor, storage.OpOnly),
	},
	{
		re: regexp.MustCompile(`\b(` + colorAlt + `)\s+and\s+(` + colorAlt + `)\b`),
		build: func(m []string) ([]storage.Predicate, bool) {
			return []storage.Predicate{
				{Field: storage.FieldColor, Op: storage.OpInclude, Value: strings.ToLower(m[1])},
				{Field: storage.FieldColor, Op: storage.OpInclude, Value: strings.ToLower(m[2])},
			}, true
		},
	},

	// Keyword abilities. Colors were consumed above, so "without X" here can
	// only see keywords.
	{
		re:    regexp.MustCompile(`\b(?:but\s+)?without\s+(` + keywordAlt + `)\b`),
		build: setBuilder(storage.FieldKeyword, storage.OpExclude),
	},
	{
		re:    regexp.MustCompile(`\bwith\s+(` + keywordAlt + `)\b`),
		build: setBuilder(storage.FieldKeyword, storage.OpInclude),
	},
}

// extractPredicates runs the pattern table over the case-folded query and
// returns the recognized predicates plus the leftover text. Malformed
// fragments are skipped and therefore stay in the leftover text, degrading
// to a best-effort semantic search instead of failing.
func extractPredicates(folded string) ([]storage.Predicate, string) {
	working := folded
	var preds []storage.Predicate

	for _, p := range patternTable {
		// Scan left to right; on a malformed fragment resume after it so a
		// failing span can't match forever.
		searchFrom := 0
		for searchFrom < len(working) {
			loc := p.re.FindStringSubmatchIndex(working[searchFrom:])
			if loc == nil {
				break
			}
			start, end := searchFrom+loc[0], searchFrom+loc[1]

			m := make([]string, 0, len(loc)/2)
			for i := 0; i < len(loc); i += 2 {
				if loc[i] < 0 {
					m = append(m, "")
					continue
				}
				m = append(m, working[searchFrom+loc[i]:searchFrom+loc[i+1]])
			}

			built, ok := p.build(m)
			if !ok {
				searchFrom = end
				continue
			}

			preds = append(preds, built...)
			working = working[:start] + " " + working[end:]
			// Re-scan from the start of the spliced text: removal may have
			// joined two halves of another occurrence of this pattern.
			searchFrom = 0
		}
	}

	return preds, cleanLeftover(working)
}

// danglingWords are connectives that carry no search meaning once the
// predicates around them have been stripped.
var danglingWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"and": true, "or": true, "but": true,
	"that": true, "which": true, "are": true, "is": true,
	"with": true, "cards": true, "card": true,
}

// cleanLeftover collapses whitespace and trims dangling connectives from both
// ends of the post-extraction text.
func cleanLeftover(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && danglingWords[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 && danglingWords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
