package embedding

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingGateway returns a deterministic vector per text and counts calls.
type countingGateway struct {
	mu    sync.Mutex
	calls map[string]int
	fail  error // when set, every call fails with this error
}

func newCountingGateway() *countingGateway {
	return &countingGateway{calls: map[string]int{}}
}

func (g *countingGateway) Embed(_ context.Context, text string) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[text]++
	if g.fail != nil {
		return nil, g.fail
	}
	return []float32{float32(len(text)), 0.5, -0.5}, nil
}

func (g *countingGateway) Model() string { return "test-model" }

func (g *countingGateway) callCount(text string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[text]
}

func TestCachedGateway_Memoizes(t *testing.T) {
	inner := newCountingGateway()
	cached, err := NewCached(inner, 16)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "zombie horde")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := cached.Embed(ctx, "zombie horde")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, 1, inner.callCount("zombie horde"))
	assert.Equal(t, "test-model", cached.Model())
}

func TestCachedGateway_ErrorsNotCached(t *testing.T) {
	inner := newCountingGateway()
	inner.fail = ErrUnavailable
	cached, err := NewCached(inner, 16)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "q")
	require.ErrorIs(t, err, ErrUnavailable)

	inner.fail = nil
	_, err = cached.Embed(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount("q"))
}

func TestRequestCache_PerRequestMemoization(t *testing.T) {
	inner := newCountingGateway()

	req1 := WithRequestCache(inner)
	ctx := context.Background()
	_, err := req1.Embed(ctx, "q")
	require.NoError(t, err)
	_, err = req1.Embed(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.callCount("q"))

	// A new request starts cold.
	req2 := WithRequestCache(inner)
	_, err = req2.Embed(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount("q"))
}

// flakyGateway fails a fixed number of times before succeeding.
type flakyGateway struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	terminal  error
	retriable bool
}

func (g *flakyGateway) Embed(_ context.Context, _ string) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts++
	if g.attempts <= g.failures {
		if g.retriable {
			return nil, fmt.Errorf("dial tcp: %w", ErrUnavailable)
		}
		return nil, g.terminal
	}
	return []float32{1, 2, 3}, nil
}

func (g *flakyGateway) Model() string { return "flaky" }

func TestRetryingGateway_RecoversFromTransientFailure(t *testing.T) {
	flaky := &flakyGateway{failures: 2, retriable: true}
	g := NewRetrying(flaky, 3, time.Millisecond)

	vec, err := g.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, 3, flaky.attempts)
}

func TestRetryingGateway_ExhaustsBudget(t *testing.T) {
	flaky := &flakyGateway{failures: 100, retriable: true}
	g := NewRetrying(flaky, 2, time.Millisecond)

	_, err := g.Embed(context.Background(), "q")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, flaky.attempts) // initial try + 2 retries
}

func TestRetryingGateway_NonRetriableSurfacesImmediately(t *testing.T) {
	flaky := &flakyGateway{failures: 100, terminal: context.Canceled}
	g := NewRetrying(flaky, 5, time.Millisecond)

	_, err := g.Embed(context.Background(), "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, flaky.attempts)
}
