package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/deckhaven/cardex/internal/rules"
	"github.com/deckhaven/cardex/internal/storage"
)

// DefaultBatchWorkers bounds concurrent rule matching during a batch run.
// Matching is CPU-light but each card refreshes its cached bindings through
// the store, so the pool mostly bounds store write concurrency.
const DefaultBatchWorkers = 4

// BatchReport summarizes one batch classification run.
type BatchReport struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Bindings  int           `json:"bindings"`
	Elapsed   time.Duration `json:"elapsed"`
}

// BatchClassifier re-runs rule matching over every embedded card and
// refreshes the binding cache. Run after a catalog reload or an embedding
// model change, when cached bindings are stale wholesale.
type BatchClassifier struct {
	cards    storage.CardStore
	bindings storage.BindingStore
	matcher  *rules.Matcher
	workers  int
	logger   *log.Logger
}

// NewBatchClassifier creates a batch classifier. workers < 1 falls back to
// DefaultBatchWorkers; logger may be nil.
func NewBatchClassifier(cards storage.CardStore, bindings storage.BindingStore, matcher *rules.Matcher, workers int, logger *log.Logger) *BatchClassifier {
	if workers < 1 {
		workers = DefaultBatchWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BatchClassifier{
		cards:    cards,
		bindings: bindings,
		matcher:  matcher,
		workers:  workers,
		logger:   logger,
	}
}

// Run matches every card that has a body embedding and replaces its cached
// bindings. Per-card failures are counted and logged, not fatal; the run
// itself fails only when the card listing fails, the pool cannot start, or
// the context is cancelled.
func (b *BatchClassifier) Run(ctx context.Context) (*BatchReport, error) {
	start := time.Now()

	ids, err := b.cards.ListCardIDs(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("batch: list cards: %w", err)
	}

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return nil, fmt.Errorf("batch: start worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report BatchReport
	)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			break
		}

		id := id
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			bindings, err := b.matcher.MatchRules(ctx, id)
			if err == nil {
				err = b.bindings.ReplaceBindings(ctx, id, bindings)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				b.logger.Printf("batch: card %s: %v", id, err)
				return
			}
			report.Processed++
			report.Bindings += len(bindings)
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("batch: submit card %s: %w", id, submitErr)
		}
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	report.Elapsed = time.Since(start)
	return &report, nil
}
