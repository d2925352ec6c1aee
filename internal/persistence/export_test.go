package persistence

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/ledger"
	"docsync/internal/types"
)

func seedRecord(t *testing.T, led ledger.Ledger, documentID string, severity types.Severity) *types.ConflictRecord {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	record := &types.ConflictRecord{
		ConflictID: uuid.New().String(),
		DocumentID: documentID,
		DetectedAt: now,
		Type:       types.ConflictTypeContent,
		Severity:   severity,
		Canonical: types.DocumentSnapshot{
			ID: uuid.New().String(), DocumentID: documentID, Content: "canonical",
			CapturedAt: now, Origin: types.OriginCanonical,
		},
		Mirror: types.DocumentSnapshot{
			ID: uuid.New().String(), DocumentID: documentID, Content: "mirror",
			CapturedAt: now, Origin: types.OriginMirror,
		},
		Confidence: 0.9,
	}
	require.NoError(t, led.Record(context.Background(), record))
	return record
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	gz, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gz.Close()

	entries := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[header.Name] = data
	}
	return entries
}

func TestExportArchivesRecordsInRange(t *testing.T) {
	led := ledger.NewMemoryLedger()
	low := seedRecord(t, led, "doc-1", types.SeverityLow)
	high := seedRecord(t, led, "doc-2", types.SeverityHigh)
	_ = low

	dir := t.TempDir()
	exporter := NewExporter(led, dir)
	metadata, err := exporter.Export(context.Background(), types.SeverityMedium, types.SeverityCritical)
	require.NoError(t, err)

	assert.Equal(t, "1.0", metadata.Version)
	assert.Equal(t, 1, metadata.RecordCount)
	assert.Equal(t, "medium", metadata.MinSeverity)
	assert.Equal(t, "critical", metadata.MaxSeverity)
	assert.Positive(t, metadata.Size)

	archives, err := filepath.Glob(filepath.Join(dir, "ledger_*.tar.gz"))
	require.NoError(t, err)
	require.Len(t, archives, 1)

	entries := readArchive(t, archives[0])
	require.Contains(t, entries, "metadata.json")
	require.Contains(t, entries, "conflicts/"+high.ConflictID+".json")
	assert.Len(t, entries, 2)

	var stored types.ConflictRecord
	require.NoError(t, json.Unmarshal(entries["conflicts/"+high.ConflictID+".json"], &stored))
	assert.Equal(t, high.ConflictID, stored.ConflictID)
	assert.Equal(t, types.SeverityHigh, stored.Severity)
	assert.Equal(t, "canonical", stored.Canonical.Content)

	var meta ExportMetadata
	require.NoError(t, json.Unmarshal(entries["metadata.json"], &meta))
	assert.Equal(t, 1, meta.RecordCount)
}

func TestExportEmptyRange(t *testing.T) {
	led := ledger.NewMemoryLedger()
	seedRecord(t, led, "doc-1", types.SeverityLow)

	exporter := NewExporter(led, t.TempDir())
	metadata, err := exporter.Export(context.Background(), types.SeverityCritical, types.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 0, metadata.RecordCount)
}
