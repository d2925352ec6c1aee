package analysis

import (
	"sort"

	"docsync/internal/config"
	"docsync/internal/diff"
	"docsync/internal/types"
)

// MetadataAnalyzer compares structured fields under the configured
// {identity, governed, free} classification table. It never calls out and
// never fails: malformed input is reported through the degraded flag.
type MetadataAnalyzer struct {
	cfg config.DetectionConfig
}

// NewMetadataAnalyzer creates a metadata analyzer bound to one pass's
// configuration.
func NewMetadataAnalyzer(cfg config.DetectionConfig) *MetadataAnalyzer {
	return &MetadataAnalyzer{cfg: cfg}
}

// Analyze classifies every diverged field. Identity-field comparisons read
// the snapshots directly rather than any cache, so an identity mismatch is
// always observed from fresh data.
func (a *MetadataAnalyzer) Analyze(canonical, mirror *types.DocumentSnapshot, d *diff.Result) types.MetadataAnalysis {
	ma := types.MetadataAnalysis{Severity: types.SeverityNone}

	for _, fc := range d.FieldChanges {
		class := a.cfg.ClassOf(fc.Name)
		fd := types.FieldDiff{
			Name:      fc.Name,
			Canonical: fc.Canonical,
			Mirror:    fc.Mirror,
			Class:     class,
			Severity:  a.fieldSeverity(class),
		}
		ma.FieldDiffs = append(ma.FieldDiffs, fd)
		ma.Severity = types.MaxSeverity(ma.Severity, fd.Severity)
	}

	// An identity field absent from both sides means the input is malformed.
	// Report and continue rather than aborting the pipeline.
	for name, class := range a.cfg.FieldClasses {
		if class != types.FieldClassIdentity {
			continue
		}
		_, inCanonical := canonical.FieldValue(name)
		_, inMirror := mirror.FieldValue(name)
		if !inCanonical && !inMirror {
			ma.MissingFields = append(ma.MissingFields, name)
			ma.Degraded = true
		}
	}
	sort.Strings(ma.MissingFields)

	return ma
}

func (a *MetadataAnalyzer) fieldSeverity(class types.FieldClass) types.Severity {
	switch class {
	case types.FieldClassIdentity:
		// Unconditional: an identity mismatch means corruption, not an edit.
		return types.SeverityCritical
	case types.FieldClassGoverned:
		if a.cfg.GovernedFieldSeverity.Valid() {
			return a.cfg.GovernedFieldSeverity
		}
		return types.SeverityMedium
	case types.FieldClassFree:
		return types.SeverityLow
	default:
		return types.SeverityLow
	}
}
