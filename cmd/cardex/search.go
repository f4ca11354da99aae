package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deckhaven/cardex/internal/storage"
)

func searchCmd() *cobra.Command {
	var (
		limit     int
		offset    int
		threshold float64
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the card catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			opts := storage.SearchOptions{Limit: limit, Offset: offset, Threshold: threshold}
			if !cmd.Flags().Changed("threshold") {
				opts.Threshold = app.cfg.Search.DefaultThreshold
			}

			result, err := app.search.Search(ctx, strings.Join(args, " "), opts)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			cmd.Printf("mode: %s\n", result.Mode)
			if result.Degraded {
				cmd.Println("note: embedding gateway unavailable, filters only")
			}
			for _, rc := range result.Cards {
				cmd.Printf("%.3f  %-40s %s\n", rc.Score, rc.Card.Name, rc.Card.TypeLine)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum boosted score")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}
