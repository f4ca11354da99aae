package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deckhaven/cardex/pkg/types"
)

func importCmd() *cobra.Command {
	var skipEmbed bool

	cmd := &cobra.Command{
		Use:   "import <cards.json>",
		Short: "Import cards from a JSON file",
		Long: "Import reads a JSON array of card records, computes their " +
			"embeddings, and upserts them into the store. Pass --skip-embed " +
			"to import metadata without contacting the embedding gateway.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var cards []types.Card
			if err := json.Unmarshal(data, &cards); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			imported, failed := 0, 0
			for i := range cards {
				card := &cards[i]
				if err := card.Validate(); err != nil {
					cmd.PrintErrf("skip: %v\n", err)
					failed++
					continue
				}
				if !skipEmbed {
					if err := embedCard(ctx, app, card); err != nil {
						cmd.PrintErrf("skip %s: embed: %v\n", card.ID, err)
						failed++
						continue
					}
				}
				if err := app.backend.UpsertCard(ctx, card); err != nil {
					cmd.PrintErrf("skip %s: %v\n", card.ID, err)
					failed++
					continue
				}
				imported++
			}

			cmd.Printf("imported %d cards (%d failed)\n", imported, failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipEmbed, "skip-embed", false, "skip embedding computation")
	return cmd
}

// embedCard fills both card vectors. The full vector covers name, type line,
// and oracle text so semantic search sees the whole card; the body vector
// covers oracle text only so rule matching is name-invariant.
func embedCard(ctx context.Context, app *app, card *types.Card) error {
	full := strings.TrimSpace(card.Name + "\n" + card.TypeLine + "\n" + card.OracleText)
	vec, err := app.gateway.Embed(ctx, full)
	if err != nil {
		return err
	}
	card.FullEmbedding = vec

	body := strings.TrimSpace(card.OracleText)
	if body == "" {
		card.BodyEmbedding = nil
		return nil
	}
	vec, err = app.gateway.Embed(ctx, body)
	if err != nil {
		return err
	}
	card.BodyEmbedding = vec
	return nil
}
