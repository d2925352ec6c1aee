package analysis

import (
	"time"

	"github.com/google/uuid"

	"docsync/internal/types"
)

// Dimension weights for the aggregate score. Content dominates because
// content loss is the failure mode the engine exists to prevent.
const (
	ContentWeight    = 0.5
	MetadataWeight   = 0.3
	StructuralWeight = 0.2
)

// Breakpoints mapping the weighted sum (0..10) back onto the severity
// ordinals. Fixed constants: the mapping is part of the engine's contract,
// not something re-derived per call.
const (
	// BreakpointLow is the smallest nonzero weighted sum a single low-severity
	// dimension can produce (structural low: 1 x 0.2).
	BreakpointLow = 0.2
	// BreakpointMedium is reached by a medium content finding alone (2 x 0.5).
	BreakpointMedium = 1.0
	// BreakpointHigh is reached by a high content finding alone (5 x 0.5).
	BreakpointHigh = 2.5
	// BreakpointCritical is reached by a critical content finding alone (10 x 0.5).
	BreakpointCritical = 5.0
)

// Classify aggregates the three analyzer outputs into one ordinal severity
// and a conflict type. Total and deterministic: every combination of the
// five ordinals across the three dimensions yields exactly one result.
// An identity-field diff forces critical regardless of the weighted sum.
func Classify(a *types.Analysis) (types.Severity, types.ConflictType) {
	sum := a.Content.Severity.Weight()*ContentWeight +
		a.Metadata.Severity.Weight()*MetadataWeight +
		a.Structural.Severity.Weight()*StructuralWeight

	severity := severityForSum(sum)
	if a.Metadata.HasIdentityDiff() {
		severity = types.SeverityCritical
	}
	return severity, conflictType(a)
}

func severityForSum(sum float64) types.Severity {
	switch {
	case sum >= BreakpointCritical:
		return types.SeverityCritical
	case sum >= BreakpointHigh:
		return types.SeverityHigh
	case sum >= BreakpointMedium:
		return types.SeverityMedium
	case sum >= BreakpointLow:
		return types.SeverityLow
	default:
		return types.SeverityNone
	}
}

// conflictType tags whichever dimensions contributed nonzero weight, mixed
// when more than one did.
func conflictType(a *types.Analysis) types.ConflictType {
	var contributors []types.ConflictType
	if a.Content.Severity != types.SeverityNone {
		contributors = append(contributors, types.ConflictTypeContent)
	}
	if a.Metadata.Severity != types.SeverityNone {
		contributors = append(contributors, types.ConflictTypeMetadata)
	}
	if a.Structural.Severity != types.SeverityNone {
		contributors = append(contributors, types.ConflictTypeStructural)
	}

	switch len(contributors) {
	case 0:
		return types.ConflictTypeContent
	case 1:
		return contributors[0]
	default:
		return types.ConflictTypeMixed
	}
}

// Confidence scores how much of the analysis actually ran. Degraded
// analyzers and a skipped semantic pass lower it; it never reaches zero.
func Confidence(a *types.Analysis) float64 {
	confidence := 0.95
	if a.Metadata.Degraded {
		confidence -= 0.15
	}
	if a.Structural.Degraded {
		confidence -= 0.15
	}
	if a.SemanticSkipped {
		confidence -= 0.10
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	return confidence
}

// BuildRecord assembles a ConflictRecord from a completed analysis, or nil
// when the aggregate severity is none: no-conflict documents never produce
// records.
func BuildRecord(documentID string, a *types.Analysis, canonical, mirror *types.DocumentSnapshot) *types.ConflictRecord {
	severity, ctype := Classify(a)
	if severity == types.SeverityNone {
		return nil
	}
	return &types.ConflictRecord{
		ConflictID: uuid.New().String(),
		DocumentID: documentID,
		DetectedAt: time.Now().UTC(),
		Type:       ctype,
		Severity:   severity,
		Analysis:   *a,
		Canonical:  *canonical,
		Mirror:     *mirror,
		Confidence: Confidence(a),
	}
}
