package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/deckhaven/cardex/internal/engine"
	"github.com/deckhaven/cardex/internal/rules"
	"github.com/deckhaven/cardex/pkg/types"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the rule catalog",
	}
	cmd.AddCommand(rulesLoadCmd())
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesReindexCmd())
	return cmd
}

// rulesLoadCmd seeds the stored catalog from a YAML file, computing rule
// template embeddings along the way so the matcher can use them.
func rulesLoadCmd() *cobra.Command {
	var skipEmbed bool

	cmd := &cobra.Command{
		Use:   "load <seed.yaml>",
		Short: "Load a rule catalog seed into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			seeder, ok := app.backend.(catalogSeeder)
			if !ok {
				return fmt.Errorf("storage engine %q cannot seed catalogs", app.cfg.Storage.Engine)
			}

			cat, err := rules.LoadSeedFile(args[0])
			if err != nil {
				return err
			}

			ruleList := append([]types.Rule(nil), cat.Rules()...)
			if !skipEmbed {
				for i := range ruleList {
					r := &ruleList[i]
					text := r.Template + "\n" + r.Category
					vec, err := app.gateway.Embed(ctx, text)
					if err != nil {
						return fmt.Errorf("embed rule %s: %w", r.ID, err)
					}
					r.Embedding = vec
				}
			}

			if err := seeder.SeedCatalog(ctx, ruleList, cat.Categories(), cat.Interactions()); err != nil {
				return err
			}

			// Rebuild so the embedded copies replace the seed snapshot.
			rebuilt, err := rules.BuildCatalog(ruleList, cat.Categories(), cat.Interactions())
			if err != nil {
				return err
			}
			app.catalog.Swap(rebuilt)

			nRules, nCategories, nInteractions := rebuilt.Counts()
			cmd.Printf("loaded %d rules, %d categories, %d interactions\n",
				nRules, nCategories, nInteractions)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipEmbed, "skip-embed", false, "keep existing rule embeddings")
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the active rule catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			snapshot := app.catalog.Snapshot()
			for _, r := range snapshot.Rules() {
				embedded := " "
				if len(r.Embedding) > 0 {
					embedded = "*"
				}
				cmd.Printf("%s %-40s %-20s conf=%.2f\n", embedded, r.ID, r.Category, r.BaseConfidence)
			}
			nRules, nCategories, nInteractions := snapshot.Counts()
			cmd.Printf("\n%d rules, %d categories, %d interactions (* = embedded)\n",
				nRules, nCategories, nInteractions)
			return nil
		},
	}
}

// rulesReindexCmd recomputes the card-rule binding cache across the corpus.
func rulesReindexCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Recompute cached rule bindings for all cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if workers <= 0 {
				workers = app.cfg.Search.BatchWorkers
			}
			classifier := engine.NewBatchClassifier(
				app.backend, app.backend, app.matcher, workers, log.Default())

			report, err := classifier.Run(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("processed %d cards (%d failed), %d bindings in %s\n",
				report.Processed, report.Failed, report.Bindings, report.Elapsed)
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (0 = configured default)")
	return cmd
}
