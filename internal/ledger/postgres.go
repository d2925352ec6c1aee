package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"docsync/internal/errors"
	"docsync/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS conflicts (
	conflict_id   TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	detected_at   TIMESTAMPTZ NOT NULL,
	conflict_type TEXT NOT NULL,
	severity      TEXT NOT NULL,
	severity_rank INTEGER NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	supersedes_id TEXT,
	resolved      BOOLEAN NOT NULL DEFAULT FALSE,
	record        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conflicts_document ON conflicts(document_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_conflicts_severity ON conflicts(severity_rank);

CREATE TABLE IF NOT EXISTS backups (
	backup_id   TEXT PRIMARY KEY,
	conflict_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	snapshot    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backups_conflict ON backups(conflict_id);
`

// PostgresLedger is the shared-database ledger backend for deployments where
// several engine instances append to one history.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger connects to PostgreSQL and ensures the schema exists.
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.PersistenceFailure("failed to open ledger database", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.PersistenceFailure("failed to reach ledger database", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, errors.PersistenceFailure("failed to initialize ledger schema", err)
	}
	return &PostgresLedger{db: db}, nil
}

func (l *PostgresLedger) Record(ctx context.Context, record *types.ConflictRecord) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ConflictID, record.DocumentID, record.DetectedAt, string(record.Type),
		string(record.Severity), record.Severity.Rank(), record.Confidence,
		record.SupersedesID, record.Resolved(), payload)
	if err != nil {
		return errors.PersistenceFailure("failed to record conflict", err).WithConflict(record.ConflictID)
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, conflictID string) (*types.ConflictRecord, error) {
	var payload []byte
	err := l.db.QueryRowContext(ctx,
		`SELECT record FROM conflicts WHERE conflict_id = $1`, conflictID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(conflictID)
	}
	if err != nil {
		return nil, errors.PersistenceFailure("failed to load conflict", err).WithConflict(conflictID)
	}
	return decodeRecord(string(payload), conflictID)
}

func (l *PostgresLedger) ListByDocument(ctx context.Context, documentID string) ([]types.ConflictRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT record FROM conflicts
		WHERE document_id = $1
		ORDER BY detected_at DESC`, documentID)
	if err != nil {
		return nil, errors.PersistenceFailure("failed to list conflicts by document", err).WithDocument(documentID)
	}
	return collectRecords(rows)
}

func (l *PostgresLedger) ListBySeverityRange(ctx context.Context, min, max types.Severity) ([]types.ConflictRecord, error) {
	severities := severitiesInRange(min, max)
	if len(severities) == 0 {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT record FROM conflicts
		WHERE resolved = FALSE AND severity = ANY($1)
		ORDER BY detected_at DESC`, pq.Array(severities))
	if err != nil {
		return nil, errors.PersistenceFailure("failed to list conflicts by severity", err)
	}
	return collectRecords(rows)
}

func (l *PostgresLedger) SetStrategy(ctx context.Context, conflictID string, strategy *types.ResolutionStrategy) error {
	return l.mutateRecord(ctx, conflictID, func(record *types.ConflictRecord) {
		record.ChosenStrategy = strategy
	})
}

func (l *PostgresLedger) SaveBackup(ctx context.Context, conflictID string, snap *types.DocumentSnapshot) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", errors.PersistenceFailure("failed to encode backup snapshot", err)
	}
	backupID := uuid.New().String()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO backups (backup_id, conflict_id, document_id, created_at, snapshot)
		VALUES ($1, $2, $3, $4, $5)`,
		backupID, conflictID, snap.DocumentID, time.Now().UTC(), payload)
	if err != nil {
		return "", errors.PersistenceFailure("failed to save backup", err).WithConflict(conflictID)
	}
	return backupID, nil
}

func (l *PostgresLedger) GetBackup(ctx context.Context, backupRef string) (*types.DocumentSnapshot, error) {
	var payload []byte
	err := l.db.QueryRowContext(ctx,
		`SELECT snapshot FROM backups WHERE backup_id = $1`, backupRef).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.KindNotFound, "backup not found: "+backupRef)
	}
	if err != nil {
		return nil, errors.PersistenceFailure("failed to load backup", err)
	}
	var snap types.DocumentSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, errors.PersistenceFailure("failed to decode backup snapshot", err)
	}
	return &snap, nil
}

func (l *PostgresLedger) RecordOutcome(ctx context.Context, conflictID string, outcome *types.ResolutionOutcome) error {
	return l.mutateRecord(ctx, conflictID, func(record *types.ConflictRecord) {
		record.Outcome = outcome
	})
}

func (l *PostgresLedger) mutateRecord(ctx context.Context, conflictID string, mutate func(*types.ConflictRecord)) error {
	record, err := l.Get(ctx, conflictID)
	if err != nil {
		return err
	}
	if record.Resolved() {
		return errors.AlreadyResolved(conflictID)
	}
	mutate(record)

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.PersistenceFailure("failed to encode conflict record", err)
	}
	result, err := l.db.ExecContext(ctx, `
		UPDATE conflicts SET record = $1, resolved = $2
		WHERE conflict_id = $3 AND resolved = FALSE`,
		payload, record.Resolved(), conflictID)
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

func (l *PostgresLedger) Close() error {
	return l.db.Close()
}
