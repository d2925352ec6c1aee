package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"docsync/internal/errors"
	"docsync/internal/types"
)

// MemoryLedger is an in-memory Ledger for tests and the demo command. Fault
// injection hooks let tests exercise the executor's both-or-neither commit.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*types.ConflictRecord
	backups map[string]*types.DocumentSnapshot

	recordErr  error
	outcomeErr error
	backupErr  error
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*types.ConflictRecord),
		backups: make(map[string]*types.DocumentSnapshot),
	}
}

func (l *MemoryLedger) Record(ctx context.Context, record *types.ConflictRecord) error {
	if err := record.Validate(); err != nil {
		return errors.Wrap(errors.KindInvalidInput, "invalid conflict record", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	if _, exists := l.records[record.ConflictID]; exists {
		return errors.PersistenceFailure("duplicate conflict id: "+record.ConflictID, nil)
	}
	clone := *record
	l.records[record.ConflictID] = &clone
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, conflictID string) (*types.ConflictRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[conflictID]
	if !ok {
		return nil, errors.NotFound(conflictID)
	}
	clone := *record
	return &clone, nil
}

func (l *MemoryLedger) ListByDocument(ctx context.Context, documentID string) ([]types.ConflictRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.ConflictRecord
	for _, record := range l.records {
		if record.DocumentID == documentID {
			out = append(out, *record)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (l *MemoryLedger) ListBySeverityRange(ctx context.Context, min, max types.Severity) ([]types.ConflictRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.ConflictRecord
	for _, record := range l.records {
		if record.Resolved() {
			continue
		}
		rank := record.Severity.Rank()
		if rank >= min.Rank() && rank <= max.Rank() {
			out = append(out, *record)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (l *MemoryLedger) SetStrategy(ctx context.Context, conflictID string, strategy *types.ResolutionStrategy) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[conflictID]
	if !ok {
		return errors.NotFound(conflictID)
	}
	if record.Resolved() {
		return errors.AlreadyResolved(conflictID)
	}
	record.ChosenStrategy = strategy
	return nil
}

func (l *MemoryLedger) SaveBackup(ctx context.Context, conflictID string, snap *types.DocumentSnapshot) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backupErr != nil {
		return "", l.backupErr
	}
	backupID := uuid.New().String()
	clone := *snap
	l.backups[backupID] = &clone
	return backupID, nil
}

func (l *MemoryLedger) GetBackup(ctx context.Context, backupRef string) (*types.DocumentSnapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap, ok := l.backups[backupRef]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "backup not found: "+backupRef)
	}
	clone := *snap
	return &clone, nil
}

func (l *MemoryLedger) RecordOutcome(ctx context.Context, conflictID string, outcome *types.ResolutionOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.outcomeErr != nil {
		return l.outcomeErr
	}
	record, ok := l.records[conflictID]
	if !ok {
		return errors.NotFound(conflictID)
	}
	if record.Resolved() {
		return errors.AlreadyResolved(conflictID)
	}
	record.Outcome = outcome
	return nil
}

func (l *MemoryLedger) Close() error { return nil }

// FailRecords makes Record fail with err; nil restores normal operation.
func (l *MemoryLedger) FailRecords(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordErr = err
}

// FailOutcomes makes RecordOutcome fail with err; nil restores normal
// operation.
func (l *MemoryLedger) FailOutcomes(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomeErr = err
}

// FailBackups makes SaveBackup fail with err; nil restores normal operation.
func (l *MemoryLedger) FailBackups(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backupErr = err
}

func sortNewestFirst(records []types.ConflictRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].DetectedAt.Equal(records[j].DetectedAt) {
			return records[i].ConflictID < records[j].ConflictID
		}
		return records[i].DetectedAt.After(records[j].DetectedAt)
	})
}
