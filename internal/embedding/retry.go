package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryingGateway retries transient failures of an inner gateway a small
// bounded number of times with exponential backoff. Embedding is an
// idempotent read, so retrying is always safe. Only ErrUnavailable is
// retried; contract violations and cancellations surface immediately.
type RetryingGateway struct {
	inner       Gateway
	maxRetries  uint64
	baseBackoff time.Duration
}

// NewRetrying wraps inner with bounded retry. Zero values default to
// 2 retries starting at 100ms backoff.
func NewRetrying(inner Gateway, maxRetries uint64, baseBackoff time.Duration) *RetryingGateway {
	if maxRetries == 0 {
		maxRetries = 2
	}
	if baseBackoff == 0 {
		baseBackoff = 100 * time.Millisecond
	}
	return &RetryingGateway{inner: inner, maxRetries: maxRetries, baseBackoff: baseBackoff}
}

// Embed delegates to the inner gateway, retrying ErrUnavailable with
// exponential backoff until the retry budget is exhausted.
func (g *RetryingGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	backoff := retry.WithMaxRetries(g.maxRetries, retry.NewExponential(g.baseBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var embedErr error
		vec, embedErr = g.inner.Embed(ctx, text)
		if embedErr == nil {
			return nil
		}
		if errors.Is(embedErr, ErrUnavailable) {
			return retry.RetryableError(embedErr)
		}
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// Model returns the inner gateway's model identifier.
func (g *RetryingGateway) Model() string {
	return g.inner.Model()
}

var _ Gateway = (*RetryingGateway)(nil)
