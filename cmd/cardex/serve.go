package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deckhaven/cardex/internal/rules"
	"github.com/deckhaven/cardex/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if path := app.cfg.Catalog.RulesPath; path != "" {
		watcher := rules.NewSeedWatcher(path, app.catalog)
		if err := watcher.Start(); err != nil {
			log.Printf("catalog watcher disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	ingestor := rules.NewIngestor(app.catalog)
	hub := server.NewActivityHub()
	handlers := server.NewHandlers(
		app.search,
		app.matcher,
		app.detector,
		ingestor,
		app.catalog,
		app.backend,
		hub,
		app.cfg.Search.DefaultThreshold,
	)

	srv := server.New(app.cfg, handlers, hub)
	addr, err := srv.Start(ctx)
	if err != nil {
		return err
	}
	log.Printf("cardex listening on %s (engine=%s, mode=%s)",
		addr, app.cfg.Storage.Engine, app.cfg.Security.SecurityMode)

	<-ctx.Done()
	log.Println("shutting down")
	return nil
}
