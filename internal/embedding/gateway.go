// Package embedding wraps the external embedding function behind a small
// gateway interface with caching, bounded retry, and circuit-breaker
// protection. Embedding generation is typically the dominant latency
// contributor per request, so every call is cancellable and bounded by a
// timeout.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding backend failed or timed out.
// Callers treat it like a transient upstream failure: idempotent operations
// may retry with backoff, and structured searches degrade to predicate-only
// results instead of failing outright.
var ErrUnavailable = errors.New("embedding service unavailable")

// Gateway generates a vector embedding for a piece of text.
// Implementations must honor context cancellation: if the caller's request
// is cancelled, in-flight calls are abandoned, not awaited.
type Gateway interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the embedding model identifier, used to tag stored
	// vectors so mixed-model corpora are detectable.
	Model() string
}
