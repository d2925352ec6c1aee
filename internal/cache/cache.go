// Package cache provides the shared read-mostly caches used during
// detection: reference-existence lookups and pairwise similarity scores.
// Cache entries are advisory only; the identity-field comparison path never
// consults them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Store is a string key-value store with a fixed TTL. Backends are the
// in-process LRU and redis; both treat errors and expiry as misses.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	Close() error
}

// ExistenceCache caches document-existence lookups.
type ExistenceCache struct {
	store Store
}

// NewExistenceCache wraps a store with existence typing.
func NewExistenceCache(store Store) *ExistenceCache {
	return &ExistenceCache{store: store}
}

// Get returns (exists, found).
func (c *ExistenceCache) Get(ctx context.Context, documentID string) (exists, found bool) {
	raw, ok := c.store.Get(ctx, "exists:"+documentID)
	if !ok {
		return false, false
	}
	return raw == "1", true
}

// Set records an existence result.
func (c *ExistenceCache) Set(ctx context.Context, documentID string, exists bool) {
	val := "0"
	if exists {
		val = "1"
	}
	c.store.Set(ctx, "exists:"+documentID, val)
}

// SimilarityCache caches pairwise similarity scores keyed by the content
// pair's digest, so re-detection of unchanged documents skips the capability
// call entirely.
type SimilarityCache struct {
	store Store
}

// NewSimilarityCache wraps a store with similarity typing.
func NewSimilarityCache(store Store) *SimilarityCache {
	return &SimilarityCache{store: store}
}

// Get returns the cached similarity for the text pair.
func (c *SimilarityCache) Get(ctx context.Context, textA, textB string) (float64, bool) {
	raw, ok := c.store.Get(ctx, pairKey(textA, textB))
	if !ok {
		return 0, false
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

// Set records a similarity score for the text pair.
func (c *SimilarityCache) Set(ctx context.Context, textA, textB string, score float64) {
	c.store.Set(ctx, pairKey(textA, textB), strconv.FormatFloat(score, 'f', -1, 64))
}

// pairKey is symmetric in its arguments: similarity(a,b) == similarity(b,a).
func pairKey(textA, textB string) string {
	ha := sha256.Sum256([]byte(textA))
	hb := sha256.Sum256([]byte(textB))
	a, b := hex.EncodeToString(ha[:8]), hex.EncodeToString(hb[:8])
	if a > b {
		a, b = b, a
	}
	return "sim:" + a + ":" + b
}
