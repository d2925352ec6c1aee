package analysis

import (
	"context"
	"time"

	"docsync/internal/config"
	"docsync/internal/embeddings"
	"docsync/internal/logging"
	"docsync/internal/types"
)

// SemanticAnalyzer refines a content analysis using the external embedding
// and intent capability. It is the only analyzer permitted to be
// unavailable: any timeout or backend failure yields the base analysis with
// the skipped flag set, never an error.
type SemanticAnalyzer struct {
	capability embeddings.Capability
	cfg        config.DetectionConfig
	timeout    time.Duration
	logger     logging.Logger
}

// NewSemanticAnalyzer creates a semantic analyzer. capability may be nil,
// in which case every call reports skipped.
func NewSemanticAnalyzer(capability embeddings.Capability, cfg config.DetectionConfig, logger logging.Logger) *SemanticAnalyzer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	timeout := time.Duration(cfg.SemanticTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SemanticAnalyzer{
		capability: capability,
		cfg:        cfg,
		timeout:    timeout,
		logger:     logger.WithComponent("semantic-analyzer"),
	}
}

// Refine re-scores the content analysis with embedding similarity and, when
// the texts meaningfully diverge, an intent check. A contradiction signal
// escalates to critical regardless of similarity. The second return value
// reports whether semantic analysis was skipped.
func (a *SemanticAnalyzer) Refine(ctx context.Context, canonical, mirror *types.DocumentSnapshot, base types.ContentAnalysis) (types.ContentAnalysis, bool) {
	if a.capability == nil {
		return base, true
	}
	if base.Severity == types.SeverityNone && base.Significance == types.SignificanceFormatting {
		// Formatting-only changes carry no meaning to analyze.
		return base, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	similarity, err := a.capability.Similarity(ctx, canonical.Content, mirror.Content)
	if err != nil {
		if embeddings.IsUnavailable(err) || ctx.Err() != nil {
			a.logger.WarnContext(ctx, "semantic similarity unavailable, skipping",
				"document_id", canonical.DocumentID, "error", err.Error())
			return base, true
		}
		a.logger.ErrorContext(ctx, "semantic similarity failed",
			"document_id", canonical.DocumentID, "error", err.Error())
		return base, true
	}

	refined := base
	refined.Similarity = similarity
	refined.Severity = SeverityForSimilarity(similarity, &a.cfg)
	if refined.Severity == types.SeverityNone {
		refined.Significance = types.SignificanceMinorEdit
		return refined, false
	}

	// Only divergent content is worth an intent call.
	if similarity < a.cfg.SimilarityLow {
		intent, intentErr := a.capability.AnalyzeIntent(ctx, canonical.Content, mirror.Content)
		if intentErr != nil {
			// Similarity already succeeded; keep its refinement and report
			// the intent half as skipped through the preservation score.
			a.logger.WarnContext(ctx, "intent analysis unavailable",
				"document_id", canonical.DocumentID, "error", intentErr.Error())
			return refined, false
		}
		score := intent.Confidence
		if !intent.Preserved {
			score = 1 - intent.Confidence
		}
		refined.IntentPreservation = &score
		if intent.Contradiction {
			refined.Significance = types.SignificanceContradictory
			refined.Severity = types.SeverityCritical
			return refined, false
		}
		if !intent.Preserved {
			refined.Significance = types.SignificanceSubstantive
		}
	}
	return refined, false
}
