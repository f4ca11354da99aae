package postgres

import (
	"fmt"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/deckhaven/cardex/internal/storage"
)

// predicateSQL translates predicates into a conjunctive WHERE fragment with
// positional parameters starting at startIdx. The translation must agree
// with Predicate.MatchesCard, which is the reference semantics: set-valued
// columns are stored folded by UpsertCard and predicate values arrive
// lowercased, so plain set membership here matches MatchesCard's case
// folding. Unknown field/op combinations translate to FALSE, matching
// MatchesCard returning false rather than erroring.
func predicateSQL(preds []storage.Predicate, startIdx int) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func(arg any) string {
		args = append(args, arg)
		return fmt.Sprintf("$%d", startIdx+len(args)-1)
	}

	for _, p := range preds {
		switch p.Field {
		case storage.FieldManaValue:
			op, ok := numericOpSQL(p.Op)
			if !ok {
				clauses = append(clauses, "FALSE")
				continue
			}
			clauses = append(clauses, fmt.Sprintf("mana_value %s %s", op, next(p.Number)))

		case storage.FieldColor:
			switch p.Op {
			case storage.OpInclude:
				clauses = append(clauses, fmt.Sprintf("%s = ANY(colors)", next(p.Value)))
			case storage.OpExclude:
				clauses = append(clauses, fmt.Sprintf("NOT (%s = ANY(colors))", next(p.Value)))
			case storage.OpOnly:
				ph := next(p.Value)
				clauses = append(clauses, fmt.Sprintf("(%s = ANY(colors) AND colors <@ ARRAY[%s]::text[])", ph, ph))
			default:
				clauses = append(clauses, "FALSE")
			}

		case storage.FieldKeyword:
			switch p.Op {
			case storage.OpInclude:
				clauses = append(clauses, fmt.Sprintf("%s = ANY(keywords)", next(p.Value)))
			case storage.OpExclude:
				clauses = append(clauses, fmt.Sprintf("NOT (%s = ANY(keywords))", next(p.Value)))
			default:
				clauses = append(clauses, "FALSE")
			}

		case storage.FieldType:
			switch p.Op {
			case storage.OpInclude:
				clauses = append(clauses, fmt.Sprintf("type_line ILIKE '%%' || %s || '%%'", next(p.Value)))
			case storage.OpExclude:
				clauses = append(clauses, fmt.Sprintf("type_line NOT ILIKE '%%' || %s || '%%'", next(p.Value)))
			default:
				clauses = append(clauses, "FALSE")
			}

		case storage.FieldTag:
			switch p.Op {
			case storage.OpInclude:
				clauses = append(clauses, fmt.Sprintf("tags @> to_jsonb(%s::text)", next(p.Value)))
			case storage.OpExclude:
				clauses = append(clauses, fmt.Sprintf("NOT (tags @> to_jsonb(%s::text))", next(p.Value)))
			default:
				clauses = append(clauses, "FALSE")
			}

		default:
			clauses = append(clauses, "FALSE")
		}
	}

	return strings.Join(clauses, " AND "), args
}

func numericOpSQL(op storage.PredicateOp) (string, bool) {
	switch op {
	case storage.OpGt:
		return ">", true
	case storage.OpGe:
		return ">=", true
	case storage.OpLt:
		return "<", true
	case storage.OpLe:
		return "<=", true
	case storage.OpEq:
		return "=", true
	}
	return "", false
}

// vectorParam converts an embedding to a pgvector parameter, with empty
// vectors mapping to NULL.
func vectorParam(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec)
}
