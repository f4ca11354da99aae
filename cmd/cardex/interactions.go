package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

func interactionsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "interactions <card-id-a> <card-id-b>",
		Short: "Detect rule interactions between two cards",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.detector.FindInteractions(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				cmd.Println("no interactions found")
				return nil
			}
			for _, r := range results {
				cmd.Printf("%.3f  %-10s %s + %s\n", r.Score, r.Interaction.Kind,
					r.MatchedRuleA, r.MatchedRuleB)
				if r.Interaction.Description != "" {
					cmd.Printf("       %s\n", r.Interaction.Description)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}
