// Package types defines the core data model for the sync conflict engine:
// document snapshots, analyzer outputs, conflict records, and resolution
// strategies/outcomes.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Origin identifies which side of the sync a snapshot was captured from.
type Origin string

const (
	OriginCanonical Origin = "canonical"
	OriginMirror    Origin = "mirror"
)

// Valid returns true if the origin is a known value.
func (o Origin) Valid() bool {
	return o == OriginCanonical || o == OriginMirror
}

// Severity is the ordinal classification of how risky a conflict is to
// auto-resolve: none < low < medium < high < critical.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight maps a severity to its numeric aggregation weight
// (none=0, low=1, medium=2, high=5, critical=10).
func (s Severity) Weight() float64 {
	switch s {
	case SeverityNone:
		return 0
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 5
	case SeverityCritical:
		return 10
	default:
		return 0
	}
}

// Rank returns the ordinal position (0..4) for range queries and ordering.
func (s Severity) Rank() int {
	switch s {
	case SeverityNone:
		return 0
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return -1
	}
}

// Valid returns true if the severity is one of the five ordinals.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// AtLeast returns true if s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// MaxSeverity returns the most severe of the given severities.
func MaxSeverity(severities ...Severity) Severity {
	maxSev := SeverityNone
	for _, s := range severities {
		if s.Rank() > maxSev.Rank() {
			maxSev = s
		}
	}
	return maxSev
}

// AllSeverities lists the five ordinals in ascending order.
func AllSeverities() []Severity {
	return []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// ConflictType tags which dimension of a document diverged.
type ConflictType string

const (
	ConflictTypeContent    ConflictType = "content"
	ConflictTypeMetadata   ConflictType = "metadata"
	ConflictTypeStructural ConflictType = "structural"
	ConflictTypeMixed      ConflictType = "mixed"
)

// ChangeSignificance classifies how meaningful a content change is:
// formatting < minor_edit < reorganization < substantive < contradictory.
type ChangeSignificance string

const (
	SignificanceFormatting     ChangeSignificance = "formatting"
	SignificanceMinorEdit      ChangeSignificance = "minor_edit"
	SignificanceReorganization ChangeSignificance = "reorganization"
	SignificanceSubstantive    ChangeSignificance = "substantive"
	SignificanceContradictory  ChangeSignificance = "contradictory"
)

// FieldClass is the policy classification of a structured field.
type FieldClass string

const (
	FieldClassIdentity FieldClass = "identity"
	FieldClassGoverned FieldClass = "governed"
	FieldClassFree     FieldClass = "free"
)

// Field is a single typed structured field. Fields are kept as an ordered
// slice because field order is part of the document's identity on disk.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// DocumentSnapshot is an immutable capture of one side's version of a
// document at sync time. Snapshots are never mutated; a new pair supersedes
// them on the next pass.
type DocumentSnapshot struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Content     string    `json:"content"`
	Fields      []Field   `json:"structured_fields"`
	Outbound    []string  `json:"outbound_references"`
	Fingerprint string    `json:"content_fingerprint"`
	CapturedAt  time.Time `json:"captured_at"`
	Origin      Origin    `json:"origin"`
}

// FieldValue looks up a structured field by name.
func (ds *DocumentSnapshot) FieldValue(name string) (any, bool) {
	for i := range ds.Fields {
		if ds.Fields[i].Name == name {
			return ds.Fields[i].Value, true
		}
	}
	return nil, false
}

// FieldNames returns the ordered field names of the snapshot.
func (ds *DocumentSnapshot) FieldNames() []string {
	names := make([]string, 0, len(ds.Fields))
	for i := range ds.Fields {
		names = append(names, ds.Fields[i].Name)
	}
	return names
}

// Validate checks the snapshot invariants.
func (ds *DocumentSnapshot) Validate() error {
	if strings.TrimSpace(ds.DocumentID) == "" {
		return errors.New("snapshot document_id cannot be empty")
	}
	if !ds.Origin.Valid() {
		return fmt.Errorf("invalid snapshot origin: %q", ds.Origin)
	}
	if ds.CapturedAt.IsZero() {
		return errors.New("snapshot captured_at cannot be zero")
	}
	return nil
}

// Span is a contiguous text range taken from one snapshot's content.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// IsWhitespace reports whether the span carries no non-whitespace content.
func (sp Span) IsWhitespace() bool {
	return strings.TrimSpace(sp.Text) == ""
}

// ContentAnalysis is the content-dimension analyzer output.
type ContentAnalysis struct {
	Similarity        float64            `json:"similarity"`
	Significance      ChangeSignificance `json:"change_significance"`
	AddedSpans        []Span             `json:"added_spans,omitempty"`
	RemovedSpans      []Span             `json:"removed_spans,omitempty"`
	IntentPreservation *float64          `json:"intent_preservation_score,omitempty"`
	Severity          Severity           `json:"severity"`
}

// FieldDiff is one structured-field divergence between the two snapshots.
type FieldDiff struct {
	Name      string     `json:"field_name"`
	Canonical any        `json:"canonical_value"`
	Mirror    any        `json:"mirror_value"`
	Class     FieldClass `json:"class"`
	Severity  Severity   `json:"field_severity"`
}

// MetadataAnalysis is the metadata-dimension analyzer output.
type MetadataAnalysis struct {
	FieldDiffs    []FieldDiff `json:"field_diffs"`
	MissingFields []string    `json:"missing_fields,omitempty"`
	Degraded      bool        `json:"degraded"`
	Severity      Severity    `json:"severity"`
}

// HasIdentityDiff reports whether any identity-bearing field diverged.
// Identity diffs force critical severity and forbid auto-resolution.
func (ma *MetadataAnalysis) HasIdentityDiff() bool {
	for i := range ma.FieldDiffs {
		if ma.FieldDiffs[i].Class == FieldClassIdentity {
			return true
		}
	}
	return false
}

// StructuralAnalysis is the relationship-graph analyzer output.
type StructuralAnalysis struct {
	AddedReferences   []string `json:"added_references,omitempty"`
	RemovedReferences []string `json:"removed_references,omitempty"`
	BrokenReferences  []string `json:"broken_references,omitempty"`
	UnknownReferences []string `json:"unknown_references,omitempty"`
	PathChanged       bool     `json:"path_or_organization_changed"`
	Degraded          bool     `json:"degraded"`
	Severity          Severity `json:"severity"`
}

// Analysis bundles the three analyzer outputs for one conflict.
type Analysis struct {
	Content         ContentAnalysis    `json:"content"`
	Metadata        MetadataAnalysis   `json:"metadata"`
	Structural      StructuralAnalysis `json:"structural"`
	SemanticSkipped bool               `json:"semantic_analysis_skipped"`
}

// StrategyKind enumerates the closed set of resolution strategies. The set is
// deliberately a closed tagged variant so that the selector's hard rules can
// be enforced by exhaustive switches.
type StrategyKind string

const (
	StrategyPreferCanonical StrategyKind = "prefer_canonical"
	StrategyPreferMirror    StrategyKind = "prefer_mirror"
	StrategySemanticMerge   StrategyKind = "semantic_merge"
	StrategyManualMerge     StrategyKind = "manual_merge"
	StrategyBranch          StrategyKind = "branch"
	StrategyDefer           StrategyKind = "defer"
	StrategySkip            StrategyKind = "skip"
)

// Valid returns true if the kind is a member of the closed strategy set.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyPreferCanonical, StrategyPreferMirror, StrategySemanticMerge,
		StrategyManualMerge, StrategyBranch, StrategyDefer, StrategySkip:
		return true
	default:
		return false
	}
}

// AutoResolving reports whether the strategy mutates without human input.
func (k StrategyKind) AutoResolving() bool {
	switch k {
	case StrategyPreferCanonical, StrategyPreferMirror, StrategySemanticMerge, StrategyBranch:
		return true
	case StrategyManualMerge, StrategyDefer, StrategySkip:
		return false
	default:
		return false
	}
}

// ResolutionStrategy is a chosen strategy plus its variant payload.
type ResolutionStrategy struct {
	Kind StrategyKind `json:"kind"`

	// ManualContent carries the human-resolved content for ManualMerge.
	// Empty means the merge is still pending input.
	ManualContent string `json:"manual_content,omitempty"`

	// BranchDocumentID is the sibling document id for Branch.
	BranchDocumentID string `json:"branch_document_id,omitempty"`

	UserInterventionRequired bool   `json:"user_intervention_required"`
	Rationale                string `json:"rationale,omitempty"`
}

// ResolutionOutcome is the immutable record of an applied resolution.
type ResolutionOutcome struct {
	StrategyApplied  StrategyKind `json:"strategy_applied"`
	Effectiveness    float64      `json:"effectiveness"`
	ResultSnapshotID string       `json:"resulting_snapshot_id,omitempty"`
	BackupReference  string       `json:"backup_reference"`
	RequiresFollowUp bool         `json:"requires_follow_up"`
	DiscardedSpans   []Span       `json:"discarded_spans,omitempty"`
	AppliedAt        time.Time    `json:"applied_at"`
}

// ConflictRecord represents one detected divergence between exactly two
// snapshots of the same logical document.
//
// Lifecycle: created by the severity classifier, mutated once by the
// strategy selector (ChosenStrategy), mutated once by the executor
// (Outcome), then immutable and archived in the ledger.
type ConflictRecord struct {
	ConflictID string       `json:"conflict_id"`
	DocumentID string       `json:"document_id"`
	DetectedAt time.Time    `json:"detected_at"`
	Type       ConflictType `json:"conflict_type"`
	Severity   Severity     `json:"severity"`
	Analysis   Analysis     `json:"analysis"`

	Canonical DocumentSnapshot `json:"canonical_snapshot"`
	Mirror    DocumentSnapshot `json:"mirror_snapshot"`

	ChosenStrategy *ResolutionStrategy `json:"chosen_strategy,omitempty"`
	Outcome        *ResolutionOutcome  `json:"resolution_outcome,omitempty"`
	Confidence     float64             `json:"confidence"`

	// SupersedesID links a correction record to the record it corrects.
	SupersedesID string `json:"supersedes_id,omitempty"`
}

// Resolved reports whether a resolution outcome has been recorded.
func (cr *ConflictRecord) Resolved() bool {
	return cr.Outcome != nil
}

// Validate checks record invariants before the ledger accepts it.
func (cr *ConflictRecord) Validate() error {
	if strings.TrimSpace(cr.ConflictID) == "" {
		return errors.New("conflict_id cannot be empty")
	}
	if strings.TrimSpace(cr.DocumentID) == "" {
		return errors.New("document_id cannot be empty")
	}
	if !cr.Severity.Valid() {
		return fmt.Errorf("invalid severity: %q", cr.Severity)
	}
	if cr.Severity == SeverityNone {
		return errors.New("a conflict record must carry severity above none")
	}
	if cr.Confidence < 0 || cr.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", cr.Confidence)
	}
	return nil
}

// DetectionDepth controls how much analysis a detection pass performs.
type DetectionDepth string

const (
	// DepthQuick skips structural and semantic analysis.
	DepthQuick DetectionDepth = "quick"
	// DepthStandard runs all analyzers, sampling semantic analysis.
	DepthStandard DetectionDepth = "standard"
	// DepthDeep forces semantic analysis on every document.
	DepthDeep DetectionDepth = "deep"
)

// Valid returns true for a known detection depth.
func (d DetectionDepth) Valid() bool {
	return d == DepthQuick || d == DepthStandard || d == DepthDeep
}

// DetectionReport summarizes one detection pass.
type DetectionReport struct {
	TotalAnalyzed  int              `json:"total_analyzed"`
	Conflicts      []ConflictRecord `json:"conflicts"`
	Degraded       int              `json:"degraded_documents"`
	ProcessingTime string           `json:"processing_time"`
	StartedAt      time.Time        `json:"started_at"`
	Depth          DetectionDepth   `json:"depth"`
}
