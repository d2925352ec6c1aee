package resolution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docsync/internal/config"
	"docsync/internal/diff"
	"docsync/internal/errors"
	"docsync/internal/ledger"
	"docsync/internal/logging"
	"docsync/internal/snapshot"
	"docsync/internal/store"
	"docsync/internal/types"
)

// State is the executor's per-record state machine position.
type State string

const (
	StateSelected  State = "selected"
	StateBackingUp State = "backing_up"
	StateApplying  State = "applying"
	StateVerifying State = "verifying"
	StateCommitted State = "committed"
	StateFailed    State = "failed"
)

// AuditRecorder receives every state transition for the audit trail.
type AuditRecorder interface {
	Transition(ctx context.Context, conflictID, documentID string, from, to State, detail string)
}

// DocumentLocks serializes resolution execution per document id. Every
// executor that mutates the same canonical store must share one instance;
// otherwise two resolutions of the same document can interleave their
// backup, write, and commit steps.
type DocumentLocks struct {
	locks sync.Map // document_id -> *sync.Mutex
}

// NewDocumentLocks creates an empty lock table.
func NewDocumentLocks() *DocumentLocks {
	return &DocumentLocks{}
}

func (d *DocumentLocks) lock(documentID string) *sync.Mutex {
	lock, _ := d.locks.LoadOrStore(documentID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Executor applies a chosen strategy to a conflict record. One resolution
// per document at a time; once the machine leaves Selected it runs to
// Committed or Failed without honoring cancellation, so a backup is never
// left behind without an outcome.
type Executor struct {
	ledger    ledger.Ledger
	canonical store.CanonicalStore
	selector  *Selector
	cfg       config.DetectionConfig
	audit     AuditRecorder
	logger    logging.Logger
	locks     *DocumentLocks
}

// NewExecutor creates an executor. audit may be nil. locks may be nil for a
// private table; callers that construct executors per call must pass a
// shared table so per-document serialization survives across them.
func NewExecutor(led ledger.Ledger, canonical store.CanonicalStore, cfg config.DetectionConfig, audit AuditRecorder, logger logging.Logger, locks *DocumentLocks) *Executor {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if locks == nil {
		locks = NewDocumentLocks()
	}
	return &Executor{
		ledger:    led,
		canonical: canonical,
		selector:  NewSelector(cfg),
		cfg:       cfg,
		audit:     audit,
		logger:    logger.WithComponent("resolution-executor"),
		locks:     locks,
	}
}

// applied carries the in-memory result of the Applying stage.
type applied struct {
	content          string
	fields           []types.Field
	writeDocumentID  string // empty when the strategy mutates nothing
	effectiveness    float64
	discarded        []types.Span
	requiresFollowUp bool
	sealsRecord      bool
}

// Execute runs the resolution state machine for one record.
func (e *Executor) Execute(ctx context.Context, record *types.ConflictRecord, strategy types.ResolutionStrategy, createBackup bool) (*types.ResolutionOutcome, error) {
	lock := e.documentLock(record.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	// Selected: validate before any side effect. Cancellation is still
	// honored here; past this point the machine runs to completion.
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.KindInvalidInput, "resolution cancelled before start", err)
	}
	current, err := e.ledger.Get(ctx, record.ConflictID)
	if err != nil {
		return nil, err
	}
	if current.Resolved() {
		return nil, errors.AlreadyResolved(record.ConflictID)
	}
	if err := e.selector.Permitted(current, &strategy); err != nil {
		return nil, err
	}
	if err := e.ledger.SetStrategy(ctx, record.ConflictID, &strategy); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	state := StateSelected

	// Backing-up: durable backup before any mutation. Failure here aborts
	// with nothing to roll back.
	state = e.transition(ctx, current, state, StateBackingUp, string(strategy.Kind))
	var backupRef string
	if createBackup {
		backupRef, err = e.ledger.SaveBackup(ctx, current.ConflictID, &current.Canonical)
		if err != nil {
			e.transition(ctx, current, state, StateFailed, "backup failed")
			return nil, errors.PersistenceFailure("failed to back up pre-resolution snapshot", err).
				WithConflict(current.ConflictID)
		}
	}

	// Applying: compute the result in memory only.
	state = e.transition(ctx, current, state, StateApplying, "")
	result, err := e.apply(current, &strategy)
	if err != nil {
		e.transition(ctx, current, state, StateFailed, err.Error())
		return nil, err
	}

	// Defer records the decision without sealing the record, so it stays
	// resolvable later.
	if !result.sealsRecord {
		e.transition(ctx, current, state, StateCommitted, "decision recorded, record remains open")
		return &types.ResolutionOutcome{
			StrategyApplied:  strategy.Kind,
			Effectiveness:    result.effectiveness,
			RequiresFollowUp: result.requiresFollowUp,
			AppliedAt:        time.Now().UTC(),
		}, nil
	}

	// Verifying: re-diff the produced result against both inputs and refuse
	// to commit a merge that silently dropped content.
	state = e.transition(ctx, current, state, StateVerifying, "")
	resultSnap := e.resultSnapshot(current, result)
	if strategy.Kind == types.StrategySemanticMerge {
		if err := e.verifyNoSilentLoss(resultSnap, current, result.discarded); err != nil {
			e.transition(ctx, current, state, StateFailed, err.Error())
			return nil, err
		}
	}

	// Commit: canonical store write plus ledger outcome, both or neither.
	// The Committed transition is emitted only once both are durable, so a
	// failed commit never leaves a Committed entry in the audit trail.
	outcome := &types.ResolutionOutcome{
		StrategyApplied:  strategy.Kind,
		Effectiveness:    result.effectiveness,
		BackupReference:  backupRef,
		RequiresFollowUp: result.requiresFollowUp,
		DiscardedSpans:   result.discarded,
		AppliedAt:        time.Now().UTC(),
	}

	wrote := false
	if result.writeDocumentID != "" {
		snapID, writeErr := e.canonical.Write(ctx, result.writeDocumentID, result.content, result.fields)
		if writeErr != nil {
			e.transition(ctx, current, state, StateFailed, "canonical write failed")
			return nil, errors.PersistenceFailure("failed to write resolved snapshot", writeErr).
				WithConflict(current.ConflictID).WithDocument(result.writeDocumentID)
		}
		wrote = result.writeDocumentID == current.DocumentID
		outcome.ResultSnapshotID = snapID
	} else {
		outcome.ResultSnapshotID = current.Canonical.ID
	}

	if err := e.ledger.RecordOutcome(ctx, current.ConflictID, outcome); err != nil {
		// Undo the store write so neither side reflects the attempt.
		if wrote {
			e.restoreBackup(ctx, current, backupRef)
		}
		e.transition(ctx, current, state, StateFailed, "ledger outcome write failed")
		return nil, errors.PersistenceFailure("failed to record resolution outcome", err).
			WithConflict(current.ConflictID)
	}
	e.transition(ctx, current, state, StateCommitted, "")

	e.logger.InfoContext(ctx, "resolution committed",
		"conflict_id", current.ConflictID,
		"document_id", current.DocumentID,
		"strategy", string(strategy.Kind),
		"effectiveness", outcome.Effectiveness)
	return outcome, nil
}

func (e *Executor) apply(record *types.ConflictRecord, strategy *types.ResolutionStrategy) (*applied, error) {
	switch strategy.Kind {
	case types.StrategyPreferCanonical:
		// Canonical already holds this content; nothing to write.
		return &applied{effectiveness: 1, sealsRecord: true}, nil

	case types.StrategyPreferMirror:
		return &applied{
			content:         record.Mirror.Content,
			fields:          record.Mirror.Fields,
			writeDocumentID: record.DocumentID,
			effectiveness:   1,
			sealsRecord:     true,
		}, nil

	case types.StrategySemanticMerge:
		merged := SemanticMerge(&record.Canonical, &record.Mirror, &record.Analysis)
		return &applied{
			content:          merged.Content,
			fields:           merged.Fields,
			writeDocumentID:  record.DocumentID,
			effectiveness:    merged.Effectiveness,
			discarded:        merged.Discarded,
			requiresFollowUp: len(merged.Discarded) > 0,
			sealsRecord:      true,
		}, nil

	case types.StrategyManualMerge:
		if strategy.ManualContent == "" {
			return nil, errors.StrategyNotPermitted(record.ConflictID,
				"manual merge is pending input, no resolved content supplied")
		}
		return &applied{
			content:         strategy.ManualContent,
			fields:          record.Canonical.Fields,
			writeDocumentID: record.DocumentID,
			effectiveness:   1,
			sealsRecord:     true,
		}, nil

	case types.StrategyBranch:
		branchID := strategy.BranchDocumentID
		if branchID == "" {
			branchID = record.DocumentID + "-branch-" + uuid.New().String()[:8]
		}
		return &applied{
			content:          record.Mirror.Content,
			fields:           record.Mirror.Fields,
			writeDocumentID:  branchID,
			effectiveness:    1,
			requiresFollowUp: true,
			sealsRecord:      true,
		}, nil

	case types.StrategySkip:
		return &applied{effectiveness: 0, sealsRecord: true}, nil

	case types.StrategyDefer:
		return &applied{effectiveness: 0, requiresFollowUp: true, sealsRecord: false}, nil

	default:
		return nil, errors.StrategyNotPermitted(record.ConflictID,
			fmt.Sprintf("unknown strategy kind %q", strategy.Kind))
	}
}

func (e *Executor) resultSnapshot(record *types.ConflictRecord, result *applied) *types.DocumentSnapshot {
	content := result.content
	if result.writeDocumentID == "" {
		content = record.Canonical.Content
	}
	return &types.DocumentSnapshot{
		ID:          uuid.New().String(),
		DocumentID:  record.DocumentID,
		Content:     content,
		Fields:      result.fields,
		Outbound:    snapshot.ExtractReferences(content),
		Fingerprint: snapshot.Fingerprint(content),
		CapturedAt:  time.Now().UTC(),
		Origin:      types.OriginCanonical,
	}
}

// verifyNoSilentLoss re-runs the differencer between the merge result and
// each input: any input span missing from the result must appear in the
// discarded log.
func (e *Executor) verifyNoSilentLoss(result *types.DocumentSnapshot, record *types.ConflictRecord, discarded []types.Span) error {
	logged := make(map[string]bool, len(discarded))
	for _, span := range discarded {
		logged[span.Text] = true
	}

	for _, input := range []*types.DocumentSnapshot{&record.Canonical, &record.Mirror} {
		d, err := diff.Compare(input, result)
		if err != nil {
			return errors.VerificationFailed(record.ConflictID, "result diff failed: "+err.Error())
		}
		// Spans of the input missing from the result.
		for _, span := range d.RemovedSpans {
			if span.IsWhitespace() || logged[span.Text] {
				continue
			}
			return errors.VerificationFailed(record.ConflictID,
				fmt.Sprintf("merge dropped a span from the %s snapshot without recording it", input.Origin))
		}
	}
	return nil
}

func (e *Executor) restoreBackup(ctx context.Context, record *types.ConflictRecord, backupRef string) {
	if backupRef == "" {
		// No backup was requested; restore from the record's own snapshot.
		if _, err := e.canonical.Write(ctx, record.DocumentID, record.Canonical.Content, record.Canonical.Fields); err != nil {
			e.logger.ErrorContext(ctx, "failed to restore canonical content after aborted commit",
				"conflict_id", record.ConflictID, "document_id", record.DocumentID, "error", err.Error())
		}
		return
	}
	backup, err := e.ledger.GetBackup(ctx, backupRef)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to load backup during rollback",
			"conflict_id", record.ConflictID, "backup_reference", backupRef, "error", err.Error())
		return
	}
	if _, err := e.canonical.Write(ctx, record.DocumentID, backup.Content, backup.Fields); err != nil {
		e.logger.ErrorContext(ctx, "failed to restore backup after aborted commit",
			"conflict_id", record.ConflictID, "document_id", record.DocumentID, "error", err.Error())
	}
}

func (e *Executor) transition(ctx context.Context, record *types.ConflictRecord, from, to State, detail string) State {
	e.logger.DebugContext(ctx, "resolution state transition",
		"conflict_id", record.ConflictID, "from", string(from), "to", string(to))
	if e.audit != nil {
		e.audit.Transition(ctx, record.ConflictID, record.DocumentID, from, to, detail)
	}
	return to
}

func (e *Executor) documentLock(documentID string) *sync.Mutex {
	return e.locks.lock(documentID)
}
