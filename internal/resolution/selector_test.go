package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/config"
	"docsync/internal/errors"
	"docsync/internal/types"
)

func record(severity types.Severity, ctype types.ConflictType) *types.ConflictRecord {
	return &types.ConflictRecord{
		ConflictID: "c-1",
		DocumentID: "doc-1",
		Severity:   severity,
		Type:       ctype,
		Analysis: types.Analysis{
			Content: types.ContentAnalysis{Similarity: 0.9},
		},
	}
}

func TestSelectorHighAndCriticalAlwaysManual(t *testing.T) {
	// Auto-resolution is enabled as aggressively as configuration allows;
	// the hard rule must still win.
	cfg := config.DefaultDetectionConfig()
	cfg.AutoResolveLowSeverity = true
	cfg.AutoResolveMedium = true
	selector := NewSelector(cfg)

	for _, severity := range []types.Severity{types.SeverityHigh, types.SeverityCritical} {
		for _, ctype := range []types.ConflictType{
			types.ConflictTypeContent, types.ConflictTypeMetadata,
			types.ConflictTypeStructural, types.ConflictTypeMixed,
		} {
			strategy := selector.Select(record(severity, ctype))
			assert.Equal(t, types.StrategyManualMerge, strategy.Kind,
				"severity=%s type=%s", severity, ctype)
			assert.True(t, strategy.UserInterventionRequired)
		}
	}
}

func TestSelectorIdentityDiffAlwaysManual(t *testing.T) {
	cfg := config.DefaultDetectionConfig()
	cfg.AutoResolveLowSeverity = true
	selector := NewSelector(cfg)

	r := record(types.SeverityLow, types.ConflictTypeMetadata)
	r.Analysis.Metadata.FieldDiffs = []types.FieldDiff{{
		Name: "id", Class: types.FieldClassIdentity, Severity: types.SeverityCritical,
	}}

	strategy := selector.Select(r)
	assert.Equal(t, types.StrategyManualMerge, strategy.Kind)
	assert.True(t, strategy.UserInterventionRequired)
}

func TestSelectorLowContentMergesWhenSimilar(t *testing.T) {
	cfg := config.DefaultDetectionConfig()
	selector := NewSelector(cfg)

	r := record(types.SeverityLow, types.ConflictTypeContent)
	r.Analysis.Content.Similarity = 0.9
	assert.Equal(t, types.StrategySemanticMerge, selector.Select(r).Kind)

	r.Analysis.Content.Similarity = 0.5
	assert.Equal(t, types.StrategyPreferCanonical, selector.Select(r).Kind)
}

func TestSelectorLowPrefersConfiguredSide(t *testing.T) {
	cfg := config.DefaultDetectionConfig()
	cfg.PreferredSide = types.OriginMirror
	selector := NewSelector(cfg)

	r := record(types.SeverityLow, types.ConflictTypeContent)
	r.Analysis.Content.Similarity = 0.5
	assert.Equal(t, types.StrategyPreferMirror, selector.Select(r).Kind)
}

func TestSelectorLowMetadataMergesAsUnion(t *testing.T) {
	selector := NewSelector(config.DefaultDetectionConfig())
	strategy := selector.Select(record(types.SeverityLow, types.ConflictTypeMetadata))
	assert.Equal(t, types.StrategySemanticMerge, strategy.Kind)
	assert.False(t, strategy.UserInterventionRequired)
}

func TestSelectorLowAutoResolutionDisabledDefers(t *testing.T) {
	cfg := config.DefaultDetectionConfig()
	cfg.AutoResolveLowSeverity = false
	selector := NewSelector(cfg)

	strategy := selector.Select(record(types.SeverityLow, types.ConflictTypeContent))
	assert.Equal(t, types.StrategyDefer, strategy.Kind)
	assert.True(t, strategy.UserInterventionRequired)
}

func TestSelectorMedium(t *testing.T) {
	cfg := config.DefaultDetectionConfig()
	selector := NewSelector(cfg)

	// auto_resolve_medium defaults to false.
	strategy := selector.Select(record(types.SeverityMedium, types.ConflictTypeContent))
	assert.Equal(t, types.StrategyManualMerge, strategy.Kind)

	cfg.AutoResolveMedium = true
	selector = NewSelector(cfg)
	strategy = selector.Select(record(types.SeverityMedium, types.ConflictTypeContent))
	assert.Equal(t, types.StrategySemanticMerge, strategy.Kind)

	// A critical field diff blocks the configured auto-resolution.
	r := record(types.SeverityMedium, types.ConflictTypeMixed)
	r.Analysis.Metadata.FieldDiffs = []types.FieldDiff{{
		Name: "status", Class: types.FieldClassGoverned, Severity: types.SeverityCritical,
	}}
	strategy = selector.Select(r)
	assert.Equal(t, types.StrategyManualMerge, strategy.Kind)
}

func TestPermittedGuardsHighSeverity(t *testing.T) {
	selector := NewSelector(config.DefaultDetectionConfig())
	r := record(types.SeverityHigh, types.ConflictTypeContent)

	for _, kind := range []types.StrategyKind{
		types.StrategyPreferCanonical, types.StrategyPreferMirror,
		types.StrategySemanticMerge, types.StrategyBranch,
	} {
		err := selector.Permitted(r, &types.ResolutionStrategy{Kind: kind})
		require.Error(t, err, "kind=%s", kind)
		assert.True(t, errors.Is(err, errors.KindStrategyNotPermitted))
	}

	// Manual merge without resolved content is still pending input.
	err := selector.Permitted(r, &types.ResolutionStrategy{Kind: types.StrategyManualMerge})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindStrategyNotPermitted))

	assert.NoError(t, selector.Permitted(r, &types.ResolutionStrategy{
		Kind: types.StrategyManualMerge, ManualContent: "resolved text",
	}))
	assert.NoError(t, selector.Permitted(r, &types.ResolutionStrategy{Kind: types.StrategyDefer}))
	assert.NoError(t, selector.Permitted(r, &types.ResolutionStrategy{Kind: types.StrategySkip}))
}

func TestPermittedAllowsAutoAtLowerTiers(t *testing.T) {
	selector := NewSelector(config.DefaultDetectionConfig())
	r := record(types.SeverityMedium, types.ConflictTypeContent)
	assert.NoError(t, selector.Permitted(r, &types.ResolutionStrategy{Kind: types.StrategySemanticMerge}))
	assert.NoError(t, selector.Permitted(r, &types.ResolutionStrategy{Kind: types.StrategyPreferMirror}))
}

func TestPermittedRejectsUnknownKind(t *testing.T) {
	selector := NewSelector(config.DefaultDetectionConfig())
	err := selector.Permitted(record(types.SeverityLow, types.ConflictTypeContent),
		&types.ResolutionStrategy{Kind: types.StrategyKind("bogus")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindStrategyNotPermitted))
}
