package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/deckhaven/cardex/internal/config"
	"github.com/deckhaven/cardex/internal/embedding"
	"github.com/deckhaven/cardex/internal/engine"
	"github.com/deckhaven/cardex/internal/rules"
	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/internal/storage/postgres"
	"github.com/deckhaven/cardex/internal/storage/sqlite"
	"github.com/deckhaven/cardex/pkg/types"
)

// catalogSeeder is satisfied by both concrete stores. Seeding stays off the
// Backend interface because only the CLI writes the catalog.
type catalogSeeder interface {
	SeedCatalog(ctx context.Context, ruleList []types.Rule, categories []types.RuleCategory, interactions []types.RuleInteraction) error
}

// app is the wired dependency graph shared by the subcommands.
type app struct {
	cfg      *config.Config
	backend  storage.Backend
	gateway  embedding.Gateway
	catalog  *rules.Provider
	matcher  *rules.Matcher
	detector *rules.Detector
	search   *engine.SearchService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	gateway, err := buildGateway(cfg)
	if err != nil {
		backend.Close()
		return nil, err
	}

	catalog, err := loadCatalog(ctx, cfg, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	matcher := rules.NewMatcher(backend, catalog, cfg.Search.MatchFloor)

	return &app{
		cfg:      cfg,
		backend:  backend,
		gateway:  gateway,
		catalog:  catalog,
		matcher:  matcher,
		detector: rules.NewDetector(matcher, catalog),
		search:   engine.NewSearchService(backend, backend, gateway, log.Default()),
	}, nil
}

func (a *app) Close() error {
	return a.backend.Close()
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.DSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.New(filepath.Join(cfg.Storage.DataPath, "cardex.db"))
	}
}

func buildGateway(cfg *config.Config) (embedding.Gateway, error) {
	client := embedding.NewOllamaClient(
		cfg.Embedding.OllamaURL,
		cfg.Embedding.Model,
		time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
	)
	retrying := embedding.NewRetrying(client, uint64(cfg.Embedding.MaxRetries), 250*time.Millisecond)
	cached, err := embedding.NewCached(retrying, cfg.Embedding.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// loadCatalog builds the rule catalog provider, preferring the YAML seed
// when one is configured and falling back to the stored catalog otherwise.
// An empty store yields an empty catalog, which is fine for pure search.
func loadCatalog(ctx context.Context, cfg *config.Config, backend storage.Backend) (*rules.Provider, error) {
	if cfg.Catalog.RulesPath != "" {
		cat, err := rules.LoadSeedFile(cfg.Catalog.RulesPath)
		if err != nil {
			return nil, err
		}
		return rules.NewProvider(cat), nil
	}

	empty, err := rules.BuildCatalog(nil, nil, nil)
	if err != nil {
		return nil, err
	}
	provider := rules.NewProvider(empty)
	if err := provider.ReloadFromStore(ctx, backend); err != nil {
		log.Printf("catalog: load from store: %v (starting with empty catalog)", err)
	}
	return provider, nil
}
