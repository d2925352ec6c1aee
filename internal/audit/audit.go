// Package audit writes a JSONL trail of resolution state transitions, one
// file per day. The ledger records what was decided; the audit trail records
// how each resolution moved through the executor's state machine.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"docsync/internal/logging"
	"docsync/internal/resolution"
)

// Event is one audit log entry.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	TraceID    string    `json:"trace_id,omitempty"`
	ConflictID string    `json:"conflict_id"`
	DocumentID string    `json:"document_id"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Detail     string    `json:"detail,omitempty"`
}

// Trail is a file-backed audit logger. Writes are serialized and flushed
// per event; an audit line must hit disk before the resolution proceeds.
type Trail struct {
	mu      sync.Mutex
	baseDir string
	file    *os.File
	day     string
	logger  logging.Logger
}

// NewTrail creates the audit directory if needed and opens today's file.
func NewTrail(baseDir string, logger logging.Logger) (*Trail, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	t := &Trail{baseDir: baseDir, logger: logger.WithComponent("audit")}
	if err := t.rotate(time.Now().UTC()); err != nil {
		return nil, err
	}
	return t, nil
}

// Transition records one executor state transition.
func (t *Trail) Transition(ctx context.Context, conflictID, documentID string, from, to resolution.State, detail string) {
	event := Event{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		TraceID:    logging.TraceID(ctx),
		ConflictID: conflictID,
		DocumentID: documentID,
		FromState:  string(from),
		ToState:    string(to),
		Detail:     detail,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.rotate(event.Timestamp); err != nil {
		t.logger.Error("failed to rotate audit file", "error", err.Error())
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		t.logger.Error("failed to encode audit event", "error", err.Error())
		return
	}
	if _, err := t.file.Write(append(line, '\n')); err != nil {
		t.logger.Error("failed to write audit event", "error", err.Error())
		return
	}
	if err := t.file.Sync(); err != nil {
		t.logger.Error("failed to sync audit file", "error", err.Error())
	}
}

// rotate opens the file for the event's day. Caller holds the lock except
// during construction.
func (t *Trail) rotate(now time.Time) error {
	day := now.Format("2006-01-02")
	if t.file != nil && day == t.day {
		return nil
	}
	if t.file != nil {
		_ = t.file.Close()
	}

	path := filepath.Join(t.baseDir, "resolutions-"+day+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) // #nosec G304 -- path built from config dir
	if err != nil {
		return fmt.Errorf("failed to open audit file %s: %w", path, err)
	}
	t.file = file
	t.day = day
	return nil
}

// Close flushes and closes the current audit file.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
