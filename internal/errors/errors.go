// Package errors provides the standardized error taxonomy for the sync
// conflict engine. Every failure carries a stable kind string suitable for
// programmatic branching, plus the conflict/document id it relates to.
package errors

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error kind string.
type Kind string

const (
	// KindIncomparableSnapshots is fatal: two snapshots of different
	// documents were passed together. Caller error.
	KindIncomparableSnapshots Kind = "INCOMPARABLE_SNAPSHOTS"

	// KindAnalysisDegraded is recoverable: an analyzer ran with partial
	// data. Recorded on the conflict record; the pipeline continues.
	KindAnalysisDegraded Kind = "ANALYSIS_DEGRADED"

	// KindCapabilityUnavailable marks an external capability failure.
	// Recoverable only for the semantic analyzer; fatal for store reads.
	KindCapabilityUnavailable Kind = "EXTERNAL_CAPABILITY_UNAVAILABLE"

	// KindAlreadyResolved is a caller error on resolve: the record
	// already carries a resolution outcome.
	KindAlreadyResolved Kind = "ALREADY_RESOLVED"

	// KindStrategyNotPermitted is a caller error on resolve: the
	// severity tier forbids the requested strategy.
	KindStrategyNotPermitted Kind = "STRATEGY_NOT_PERMITTED"

	// KindVerificationFailed is the executor's safety check rejecting a
	// computed merge. The record stays unresolved.
	KindVerificationFailed Kind = "VERIFICATION_FAILED"

	// KindPersistenceFailure means a ledger or canonical-store write
	// failed; the whole resolution transaction aborts.
	KindPersistenceFailure Kind = "PERSISTENCE_FAILURE"

	// KindNotFound covers lookups of unknown conflict or document ids.
	KindNotFound Kind = "NOT_FOUND"

	// KindInvalidInput covers malformed parameters and configuration.
	KindInvalidInput Kind = "INVALID_INPUT"
)

// EngineError is the unified error type across the engine.
type EngineError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	ConflictID string `json:"conflict_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Err        error  `json:"-"`
}

// Error implements the error interface. Internal causes are appended, never
// substituted, so the stable kind stays user visible.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// New creates an EngineError with the given kind and message.
func New(kind Kind, message string) *EngineError {
	return &EngineError{Kind: kind, Message: message}
}

// Wrap creates an EngineError around an underlying cause.
func Wrap(kind Kind, message string, err error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Err: err}
}

// WithConflict attaches the conflict id to the error.
func (e *EngineError) WithConflict(conflictID string) *EngineError {
	e.ConflictID = conflictID
	return e
}

// WithDocument attaches the document id to the error.
func (e *EngineError) WithDocument(documentID string) *EngineError {
	e.DocumentID = documentID
	return e
}

// KindOf extracts the error kind, or empty string for non-engine errors.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsCallerError reports whether the error is the caller's fault rather than
// an engine or collaborator failure.
func IsCallerError(err error) bool {
	switch KindOf(err) {
	case KindIncomparableSnapshots, KindAlreadyResolved, KindStrategyNotPermitted, KindInvalidInput:
		return true
	default:
		return false
	}
}

// IsRecoverable reports whether the detection pipeline may continue past the
// error for other documents.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindAnalysisDegraded, KindCapabilityUnavailable:
		return true
	default:
		return false
	}
}

// Convenience constructors for the common cases.

// IncomparableSnapshots reports two snapshots of different documents.
func IncomparableSnapshots(canonicalID, mirrorID string) *EngineError {
	return &EngineError{
		Kind:    KindIncomparableSnapshots,
		Message: fmt.Sprintf("snapshots belong to different documents: %q vs %q", canonicalID, mirrorID),
	}
}

// AlreadyResolved reports a second resolution attempt on one conflict.
func AlreadyResolved(conflictID string) *EngineError {
	return &EngineError{
		Kind:       KindAlreadyResolved,
		Message:    "conflict already carries a resolution outcome",
		ConflictID: conflictID,
	}
}

// StrategyNotPermitted reports a strategy forbidden at the record's tier.
func StrategyNotPermitted(conflictID, reason string) *EngineError {
	return &EngineError{
		Kind:       KindStrategyNotPermitted,
		Message:    reason,
		ConflictID: conflictID,
	}
}

// VerificationFailed reports the executor's safety check rejecting a merge.
func VerificationFailed(conflictID, reason string) *EngineError {
	return &EngineError{
		Kind:       KindVerificationFailed,
		Message:    reason,
		ConflictID: conflictID,
	}
}

// PersistenceFailure wraps a failed ledger or store write.
func PersistenceFailure(message string, err error) *EngineError {
	return &EngineError{Kind: KindPersistenceFailure, Message: message, Err: err}
}

// NotFound reports an unknown conflict id.
func NotFound(conflictID string) *EngineError {
	return &EngineError{
		Kind:       KindNotFound,
		Message:    "conflict not found",
		ConflictID: conflictID,
	}
}
