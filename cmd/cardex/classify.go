package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deckhaven/cardex/internal/query"
	"github.com/deckhaven/cardex/internal/storage"
)

// classifyCmd exposes the query classifier directly, which is handy when
// tuning predicate extraction patterns.
func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <query>",
		Short: "Show how a query would be classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := query.Classify(strings.Join(args, " "))

			switch p := plan.(type) {
			case query.ExactPlan:
				cmd.Printf("mode: exact\nname: %s\n", p.Name)
			case query.SemanticPlan:
				cmd.Printf("mode: semantic\ntext: %s\n", p.Text)
			case query.StructuredPlan:
				cmd.Println("mode: structured")
				if p.PositiveText != "" {
					cmd.Printf("text: %s\n", p.PositiveText)
				}
				for _, pred := range p.Predicates {
					cmd.Printf("filter: %s\n", formatPredicate(pred))
				}
			}
			return nil
		},
	}
}

func formatPredicate(p storage.Predicate) string {
	operand := p.Value
	if operand == "" {
		operand = strconv.FormatFloat(p.Number, 'f', -1, 64)
	}
	return string(p.Field) + " " + string(p.Op) + " " + operand
}
