// Package embeddings defines the external semantic capability the engine
// consumes: pairwise similarity scoring and optional intent analysis. The
// capability is allowed to be unavailable; callers must treat ErrUnavailable
// as "skip semantic analysis", never as a pipeline failure.
package embeddings

import (
	"context"
	"errors"
)

// ErrUnavailable marks the semantic capability as currently unreachable.
// It is an explicit result, not an exception path: the semantic analyzer
// degrades gracefully when it sees this error.
var ErrUnavailable = errors.New("semantic capability unavailable")

// IntentResult is the outcome of natural-language intent analysis between
// two versions of the same text.
type IntentResult struct {
	Preserved  bool    `json:"preserved"`
	Confidence float64 `json:"confidence"`
	// Contradiction is an explicit signal that the two texts assert
	// opposite conclusions. It escalates the conflict regardless of
	// embedding similarity.
	Contradiction bool `json:"contradiction"`
}

// Capability is the semantic analysis interface.
type Capability interface {
	// Similarity scores meaning preservation between two texts in [0,1].
	Similarity(ctx context.Context, textA, textB string) (float64, error)

	// AnalyzeIntent judges whether the edit preserved the author's
	// intent. Implementations without a language backend return
	// ErrUnavailable.
	AnalyzeIntent(ctx context.Context, textA, textB string) (*IntentResult, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// IsUnavailable reports whether the error means the capability (not the
// input) was the problem.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
