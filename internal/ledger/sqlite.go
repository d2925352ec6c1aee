package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"docsync/internal/errors"
	"docsync/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conflicts (
	conflict_id   TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	detected_at   TIMESTAMP NOT NULL,
	conflict_type TEXT NOT NULL,
	severity      TEXT NOT NULL,
	severity_rank INTEGER NOT NULL,
	confidence    REAL NOT NULL,
	supersedes_id TEXT,
	resolved      INTEGER NOT NULL DEFAULT 0,
	record        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conflicts_document ON conflicts(document_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_conflicts_severity ON conflicts(severity_rank);

CREATE TABLE IF NOT EXISTS backups (
	backup_id   TEXT PRIMARY KEY,
	conflict_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	snapshot    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backups_conflict ON backups(conflict_id);
`

// SQLiteLedger is the default single-file ledger backend.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (and if needed creates) the ledger database at path.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.PersistenceFailure("failed to open ledger database", err)
	}
	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.PersistenceFailure("failed to initialize ledger schema", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Record(ctx context.Context, record *types.ConflictRecord) error {
	if err := record.Validate(); err != nil {
		return errors.Wrap(errors.KindInvalidInput, "invalid conflict record", err)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.PersistenceFailure("failed to encode conflict record", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO conflicts (conflict_id, document_id, detected_at, conflict_type,
			severity, severity_rank, confidence, supersedes_id, resolved, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ConflictID, record.DocumentID, record.DetectedAt, string(record.Type),
		string(record.Severity), record.Severity.Rank(), record.Confidence,
		record.SupersedesID, boolToInt(record.Resolved()), string(payload))
	if err != nil {
		return errors.PersistenceFailure("failed to record conflict", err).WithConflict(record.ConflictID)
	}
	return nil
}

func (l *SQLiteLedger) Get(ctx context.Context, conflictID string) (*types.ConflictRecord, error) {
	var payload string
	err := l.db.QueryRowContext(ctx,
		`SELECT record FROM conflicts WHERE conflict_id = ?`, conflictID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(conflictID)
	}
	if err != nil {
		return nil, errors.PersistenceFailure("failed to load conflict", err).WithConflict(conflictID)
	}
	return decodeRecord(payload, conflictID)
}

func (l *SQLiteLedger) ListByDocument(ctx context.Context, documentID string) ([]types.ConflictRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT record FROM conflicts
		WHERE document_id = ?
		ORDER BY detected_at DESC`, documentID)
	if err != nil {
		return nil, errors.PersistenceFailure("failed to list conflicts by document", err).WithDocument(documentID)
	}
	return collectRecords(rows)
}

func (l *SQLiteLedger) ListBySeverityRange(ctx context.Context, min, max types.Severity) ([]types.ConflictRecord, error) {
	severities := severitiesInRange(min, max)
	if len(severities) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(severities)), ",")
	args := make([]any, 0, len(severities))
	for _, s := range severities {
		args = append(args, s)
	}

	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT record FROM conflicts
		WHERE resolved = 0 AND severity IN (%s)
		ORDER BY detected_at DESC`, placeholders), args...)
	if err != nil {
		return nil, errors.PersistenceFailure("failed to list conflicts by severity", err)
	}
	return collectRecords(rows)
}

func (l *SQLiteLedger) SetStrategy(ctx context.Context, conflictID string, strategy *types.ResolutionStrategy) error {
	return l.mutateRecord(ctx, conflictID, func(record *types.ConflictRecord) error {
		record.ChosenStrategy = strategy
		return nil
	})
}

func (l *SQLiteLedger) SaveBackup(ctx context.Context, conflictID string, snap *types.DocumentSnapshot) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", errors.PersistenceFailure("failed to encode backup snapshot", err)
	}
	backupID := uuid.New().String()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO backups (backup_id, conflict_id, document_id, created_at, snapshot)
		VALUES (?, ?, ?, ?, ?)`,
		backupID, conflictID, snap.DocumentID, time.Now().UTC(), string(payload))
	if err != nil {
		return "", errors.PersistenceFailure("failed to save backup", err).WithConflict(conflictID)
	}
	return backupID, nil
}

func (l *SQLiteLedger) GetBackup(ctx context.Context, backupRef string) (*types.DocumentSnapshot, error) {
	var payload string
	err := l.db.QueryRowContext(ctx,
		`SELECT snapshot FROM backups WHERE backup_id = ?`, backupRef).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.KindNotFound, "backup not found: "+backupRef)
	}
	if err != nil {
		return nil, errors.PersistenceFailure("failed to load backup", err)
	}
	var snap types.DocumentSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, errors.PersistenceFailure("failed to decode backup snapshot", err)
	}
	return &snap, nil
}

func (l *SQLiteLedger) RecordOutcome(ctx context.Context, conflictID string, outcome *types.ResolutionOutcome) error {
	return l.mutateRecord(ctx, conflictID, func(record *types.ConflictRecord) error {
		record.Outcome = outcome
		return nil
	})
}

// mutateRecord applies the one permitted mutation to an unresolved record.
// The resolved guard in the UPDATE enforces immutability after outcome.
func (l *SQLiteLedger) mutateRecord(ctx context.Context, conflictID string, mutate func(*types.ConflictRecord) error) error {
	record, err := l.Get(ctx, conflictID)
	if err != nil {
		return err
	}
	if record.Resolved() {
		return errors.AlreadyResolved(conflictID)
	}
	if err := mutate(record); err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.PersistenceFailure("failed to encode conflict record", err)
	}
	result, err := l.db.ExecContext(ctx, `
		UPDATE conflicts SET record = ?, resolved = ?
		WHERE conflict_id = ? AND resolved = 0`,
		string(payload), boolToInt(record.Resolved()), conflictID)
	if err != nil {
		return errors.PersistenceFailure("failed to update conflict", err).WithConflict(conflictID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.PersistenceFailure("failed to confirm conflict update", err).WithConflict(conflictID)
	}
	if affected == 0 {
		return errors.AlreadyResolved(conflictID)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func decodeRecord(payload, conflictID string) (*types.ConflictRecord, error) {
	var record types.ConflictRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, errors.PersistenceFailure("failed to decode conflict record", err).WithConflict(conflictID)
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]types.ConflictRecord, error) {
	defer func() { _ = rows.Close() }()

	var records []types.ConflictRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.PersistenceFailure("failed to scan conflict row", err)
		}
		record, err := decodeRecord(payload, "")
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceFailure("failed to iterate conflict rows", err)
	}
	return records, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
