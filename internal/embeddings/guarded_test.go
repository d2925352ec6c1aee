package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/cache"
)

type countingCapability struct {
	calls  int
	score  float64
	err    error
	intent *IntentResult
}

func (c *countingCapability) Similarity(ctx context.Context, a, b string) (float64, error) {
	c.calls++
	return c.score, c.err
}

func (c *countingCapability) AnalyzeIntent(ctx context.Context, a, b string) (*IntentResult, error) {
	c.calls++
	return c.intent, c.err
}

func (c *countingCapability) HealthCheck(ctx context.Context) error {
	c.calls++
	return c.err
}

func newSimCache() *cache.SimilarityCache {
	return cache.NewSimilarityCache(cache.NewMemoryStore(100, time.Minute))
}

func TestGuardedSimilarityCachesResults(t *testing.T) {
	inner := &countingCapability{score: 0.7}
	guarded := NewGuardedCapability(inner, newSimCache())
	ctx := context.Background()

	score, err := guarded.Similarity(ctx, "alpha", "beta")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, score, 1e-9)
	assert.Equal(t, 1, inner.calls)

	// Second call is served from cache, backend untouched.
	score, err = guarded.Similarity(ctx, "alpha", "beta")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, score, 1e-9)
	assert.Equal(t, 1, inner.calls)

	// Symmetric pair hits the same entry.
	_, err = guarded.Similarity(ctx, "beta", "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestGuardedDoesNotRetryInputErrors(t *testing.T) {
	inner := &countingCapability{err: errors.New("text too long")}
	guarded := NewGuardedCapability(inner, nil)

	_, err := guarded.Similarity(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.False(t, IsUnavailable(err))
}

func TestGuardedRetriesUnavailability(t *testing.T) {
	inner := &countingCapability{err: ErrUnavailable}
	guarded := NewGuardedCapability(inner, nil)

	_, err := guarded.Similarity(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 2, inner.calls)
}

func TestGuardedOpenCircuitReportsUnavailable(t *testing.T) {
	inner := &countingCapability{err: ErrUnavailable}
	guarded := NewGuardedCapability(inner, nil)
	ctx := context.Background()

	// Drive the breaker open with repeated failures.
	for i := 0; i < 10; i++ {
		_, _ = guarded.Similarity(ctx, "a", "b")
	}
	before := inner.calls

	_, err := guarded.Similarity(ctx, "a", "b")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, before, inner.calls)
}

func TestGuardedAnalyzeIntentPassesThrough(t *testing.T) {
	inner := &countingCapability{intent: &IntentResult{Preserved: true, Confidence: 0.9}}
	guarded := NewGuardedCapability(inner, newSimCache())

	result, err := guarded.AnalyzeIntent(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.True(t, result.Preserved)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
}
