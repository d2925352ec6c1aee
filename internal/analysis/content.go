// Package analysis implements the per-document conflict analyzers (content,
// metadata, structural, semantic) and the severity classifier that folds
// their outputs into a single ordinal severity and conflict type.
package analysis

import (
	"docsync/internal/config"
	"docsync/internal/diff"
	"docsync/internal/types"
)

// AnalyzeContent derives the content-dimension analysis from a raw diff.
// It is pure and never fails; the semantic analyzer may later refine the
// similarity, significance, and severity it produces.
func AnalyzeContent(d *diff.Result, cfg *config.DetectionConfig) types.ContentAnalysis {
	ca := types.ContentAnalysis{
		Similarity:   d.Similarity,
		AddedSpans:   d.AddedSpans,
		RemovedSpans: d.RemovedSpans,
	}

	if d.Identical || d.WhitespaceOnly {
		ca.Similarity = 1.0
		if d.WhitespaceOnly && !d.Identical {
			ca.Similarity = 0.99
		}
		ca.Significance = types.SignificanceFormatting
		ca.Severity = types.SeverityNone
		return ca
	}

	// Same lines in a different order: spans cancel out but content differs.
	if len(d.AddedSpans) == 0 && len(d.RemovedSpans) == 0 {
		ca.Significance = types.SignificanceReorganization
		ca.Severity = types.SeverityLow
		return ca
	}

	ca.Severity = SeverityForSimilarity(d.Similarity, cfg)
	switch {
	case d.Similarity >= cfg.SimilarityLow:
		ca.Significance = types.SignificanceMinorEdit
	default:
		ca.Significance = types.SignificanceSubstantive
	}
	return ca
}

// SeverityForSimilarity maps a similarity score onto the configured
// content-severity bands. Contradiction escalation is the semantic
// analyzer's job, not this function's.
func SeverityForSimilarity(similarity float64, cfg *config.DetectionConfig) types.Severity {
	switch {
	case similarity > cfg.SimilarityNone:
		return types.SeverityNone
	case similarity >= cfg.SimilarityLow:
		return types.SeverityLow
	case similarity >= cfg.SimilarityMedium:
		return types.SeverityMedium
	default:
		return types.SeverityHigh
	}
}
