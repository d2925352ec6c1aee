package embeddings

import (
	"context"

	"docsync/internal/cache"
	"docsync/internal/circuitbreaker"
	"docsync/internal/retry"
)

// GuardedCapability wraps a Capability with a similarity cache, bounded
// retries, and a circuit breaker. When the circuit is open, calls return
// ErrUnavailable immediately instead of waiting on timeouts.
type GuardedCapability struct {
	inner    Capability
	breaker  *circuitbreaker.CircuitBreaker
	retrier  *retry.Retrier
	simCache *cache.SimilarityCache
}

// NewGuardedCapability builds the standard wrapper stack. simCache may be
// nil to disable caching.
func NewGuardedCapability(inner Capability, simCache *cache.SimilarityCache) *GuardedCapability {
	return &GuardedCapability{
		inner:    inner,
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retrier:  retry.New(retry.WithAttempts(2)),
		simCache: simCache,
	}
}

// Similarity serves from cache when possible, otherwise calls the backend
// under retry and circuit protection.
func (g *GuardedCapability) Similarity(ctx context.Context, textA, textB string) (float64, error) {
	if g.simCache != nil {
		if score, ok := g.simCache.Get(ctx, textA, textB); ok {
			return score, nil
		}
	}

	var score float64
	err := g.execute(ctx, func(ctx context.Context) error {
		var innerErr error
		score, innerErr = g.inner.Similarity(ctx, textA, textB)
		return innerErr
	})
	if err != nil {
		return 0, err
	}

	if g.simCache != nil {
		g.simCache.Set(ctx, textA, textB, score)
	}
	return score, nil
}

// AnalyzeIntent calls the backend under retry and circuit protection.
// Intent results are not cached: they feed critical escalation decisions.
func (g *GuardedCapability) AnalyzeIntent(ctx context.Context, textA, textB string) (*IntentResult, error) {
	var result *IntentResult
	err := g.execute(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = g.inner.AnalyzeIntent(ctx, textA, textB)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// HealthCheck bypasses the cache but respects the circuit.
func (g *GuardedCapability) HealthCheck(ctx context.Context) error {
	return g.execute(ctx, g.inner.HealthCheck)
}

func (g *GuardedCapability) execute(ctx context.Context, op func(context.Context) error) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.retrier.Do(ctx, func(ctx context.Context) error {
			innerErr := op(ctx)
			if innerErr != nil && !IsUnavailable(innerErr) {
				// Input errors are not worth a retry or a breaker trip.
				return &retry.PermanentError{Err: innerErr}
			}
			return innerErr
		})
	})
	if err == circuitbreaker.ErrCircuitOpen {
		return ErrUnavailable
	}
	return err
}
