// Package resolution chooses and applies resolution strategies. The selector
// maps (severity, conflict type, configuration) to a strategy; the executor
// applies it under a per-document lock with backup, verification, and a
// both-or-neither commit.
package resolution

import (
	"fmt"

	"docsync/internal/config"
	"docsync/internal/errors"
	"docsync/internal/types"
)

// Selector maps conflict records to resolution strategies. The hard rules
// (never auto-resolve high or critical, never auto-resolve identity diffs)
// are enforced here and cannot be configured away.
type Selector struct {
	cfg config.DetectionConfig
}

// NewSelector creates a selector bound to one pass's configuration.
func NewSelector(cfg config.DetectionConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Select picks a strategy for the record. Exhaustive over the severity
// ordinals: every record gets exactly one strategy.
func (s *Selector) Select(record *types.ConflictRecord) types.ResolutionStrategy {
	if record.Analysis.Metadata.HasIdentityDiff() {
		return manualMerge("identity field diverged, likely corruption rather than an edit")
	}

	switch record.Severity {
	case types.SeverityNone:
		// Filtered upstream: no record is created at severity none. Skip is
		// the safe answer if one arrives anyway.
		return types.ResolutionStrategy{Kind: types.StrategySkip, Rationale: "no divergence"}

	case types.SeverityLow:
		if !s.cfg.AutoResolveLowSeverity {
			return deferStrategy("auto-resolution disabled for low severity")
		}
		return s.selectLow(record)

	case types.SeverityMedium:
		if s.cfg.AutoResolveMedium && !hasCriticalFieldDiff(record) {
			return types.ResolutionStrategy{
				Kind:      types.StrategySemanticMerge,
				Rationale: "medium severity with auto-resolution configured",
			}
		}
		return manualMerge("medium severity requires review under current configuration")

	case types.SeverityHigh, types.SeverityCritical:
		return manualMerge(fmt.Sprintf("%s severity is never auto-resolved", record.Severity))

	default:
		return manualMerge(fmt.Sprintf("unknown severity %q", record.Severity))
	}
}

func (s *Selector) selectLow(record *types.ConflictRecord) types.ResolutionStrategy {
	switch record.Type {
	case types.ConflictTypeContent, types.ConflictTypeMixed:
		if record.Analysis.Content.Similarity >= s.cfg.MergeConfidenceThreshold {
			return types.ResolutionStrategy{
				Kind:      types.StrategySemanticMerge,
				Rationale: "similar content, merging both sides' edits",
			}
		}
	case types.ConflictTypeMetadata:
		// Free-field divergence (tags and the like) merges as a union.
		return types.ResolutionStrategy{
			Kind:      types.StrategySemanticMerge,
			Rationale: "free-field metadata divergence, merging as union",
		}
	case types.ConflictTypeStructural:
	}

	kind := types.StrategyPreferCanonical
	if s.cfg.PreferredSide == types.OriginMirror {
		kind = types.StrategyPreferMirror
	}
	return types.ResolutionStrategy{
		Kind:      kind,
		Rationale: fmt.Sprintf("low severity, preferring the %s side", s.cfg.PreferredSide),
	}
}

// Permitted validates a caller-supplied strategy against the record's tier.
// At high and critical severity only non-mutating strategies or a manual
// merge carrying resolved content are allowed, regardless of configuration.
func (s *Selector) Permitted(record *types.ConflictRecord, strategy *types.ResolutionStrategy) error {
	if !strategy.Kind.Valid() {
		return errors.StrategyNotPermitted(record.ConflictID,
			fmt.Sprintf("unknown strategy kind %q", strategy.Kind))
	}

	guarded := record.Severity.AtLeast(types.SeverityHigh) ||
		record.Analysis.Metadata.HasIdentityDiff()
	if !guarded {
		return nil
	}

	switch strategy.Kind {
	case types.StrategyManualMerge:
		if strategy.ManualContent == "" {
			return errors.StrategyNotPermitted(record.ConflictID,
				"manual merge requires resolved content at this severity")
		}
		return nil
	case types.StrategyDefer, types.StrategySkip:
		return nil
	case types.StrategyPreferCanonical, types.StrategyPreferMirror,
		types.StrategySemanticMerge, types.StrategyBranch:
		return errors.StrategyNotPermitted(record.ConflictID,
			fmt.Sprintf("severity %s forbids auto-resolution via %s", record.Severity, strategy.Kind))
	default:
		return errors.StrategyNotPermitted(record.ConflictID,
			fmt.Sprintf("unknown strategy kind %q", strategy.Kind))
	}
}

func hasCriticalFieldDiff(record *types.ConflictRecord) bool {
	for _, fd := range record.Analysis.Metadata.FieldDiffs {
		if fd.Severity == types.SeverityCritical {
			return true
		}
	}
	return false
}

func manualMerge(rationale string) types.ResolutionStrategy {
	return types.ResolutionStrategy{
		Kind:                     types.StrategyManualMerge,
		UserInterventionRequired: true,
		Rationale:                rationale,
	}
}

func deferStrategy(rationale string) types.ResolutionStrategy {
	return types.ResolutionStrategy{
		Kind:                     types.StrategyDefer,
		UserInterventionRequired: true,
		Rationale:                rationale,
	}
}
