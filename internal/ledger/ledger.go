// Package ledger persists conflict records, pre-resolution backups, and
// resolution outcomes. It is the system of record for what happened: records
// are append-only and become immutable once an outcome is set, with
// corrections modeled as new records referencing the prior one.
package ledger

import (
	"context"

	"docsync/internal/types"
)

// Ledger is the append-only conflict history store.
type Ledger interface {
	// Record appends a new conflict record. The conflict id must be unique.
	Record(ctx context.Context, record *types.ConflictRecord) error

	// Get returns the record for the given conflict id.
	Get(ctx context.Context, conflictID string) (*types.ConflictRecord, error)

	// ListByDocument returns every record for the document, newest first.
	ListByDocument(ctx context.Context, documentID string) ([]types.ConflictRecord, error)

	// ListBySeverityRange returns unresolved records whose severity falls in
	// [min, max], newest first.
	ListBySeverityRange(ctx context.Context, min, max types.Severity) ([]types.ConflictRecord, error)

	// SetStrategy records the chosen strategy. Fails once an outcome exists.
	SetStrategy(ctx context.Context, conflictID string, strategy *types.ResolutionStrategy) error

	// SaveBackup durably stores the pre-resolution snapshot and returns a
	// backup reference.
	SaveBackup(ctx context.Context, conflictID string, snap *types.DocumentSnapshot) (string, error)

	// GetBackup returns the snapshot stored under the backup reference.
	GetBackup(ctx context.Context, backupRef string) (*types.DocumentSnapshot, error)

	// RecordOutcome appends the resolution outcome, sealing the record.
	// Fails with AlreadyResolved if an outcome is already set.
	RecordOutcome(ctx context.Context, conflictID string, outcome *types.ResolutionOutcome) error

	Close() error
}

// severitiesInRange expands an inclusive ordinal range into its members.
func severitiesInRange(min, max types.Severity) []string {
	var out []string
	for _, s := range types.AllSeverities() {
		if s.Rank() >= min.Rank() && s.Rank() <= max.Rank() {
			out = append(out, string(s))
		}
	}
	return out
}
