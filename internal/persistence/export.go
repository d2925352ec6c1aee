// Package persistence provides export of the conflict ledger history to
// compressed archives for offline review and retention.
package persistence

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docsync/internal/ledger"
	"docsync/internal/types"
)

// ExportMetadata describes one exported archive.
type ExportMetadata struct {
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	RecordCount int       `json:"record_count"`
	Size        int64     `json:"size"`
	MinSeverity string    `json:"min_severity"`
	MaxSeverity string    `json:"max_severity"`
}

const exportVersion = "1.0"

// Exporter writes ledger history to tar.gz archives, one JSON file per
// conflict record plus a metadata entry.
type Exporter struct {
	ledger    ledger.Ledger
	exportDir string
}

// NewExporter creates an exporter writing archives under exportDir.
func NewExporter(led ledger.Ledger, exportDir string) *Exporter {
	return &Exporter{ledger: led, exportDir: exportDir}
}

// Export archives every unresolved record in the severity range.
func (e *Exporter) Export(ctx context.Context, min, max types.Severity) (*ExportMetadata, error) {
	if err := os.MkdirAll(e.exportDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	records, err := e.ledger.ListBySeverityRange(ctx, min, max)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger records: %w", err)
	}

	metadata := &ExportMetadata{
		Version:     exportVersion,
		CreatedAt:   time.Now().UTC(),
		RecordCount: len(records),
		MinSeverity: string(min),
		MaxSeverity: string(max),
	}

	path := filepath.Join(e.exportDir,
		fmt.Sprintf("ledger_%s.tar.gz", metadata.CreatedAt.Format("20060102_150405")))
	if err := e.writeArchive(path, records, metadata); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat export archive: %w", err)
	}
	metadata.Size = info.Size()
	return metadata, nil
}

func (e *Exporter) writeArchive(path string, records []types.ConflictRecord, metadata *ExportMetadata) (err error) {
	file, err := os.Create(path) // #nosec G304 -- path built from configured export dir
	if err != nil {
		return fmt.Errorf("failed to create export archive: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gzipWriter := gzip.NewWriter(file)
	defer func() {
		if closeErr := gzipWriter.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	tarWriter := tar.NewWriter(gzipWriter)
	defer func() {
		if closeErr := tarWriter.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := writeTarJSON(tarWriter, "metadata.json", metadata); err != nil {
		return err
	}
	for i := range records {
		name := fmt.Sprintf("conflicts/%s.json", records[i].ConflictID)
		if err := writeTarJSON(tarWriter, name, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeTarJSON(tw *tar.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	header := &tar.Header{
		Name:    name,
		Mode:    0o640,
		Size:    int64(len(data)),
		ModTime: time.Now().UTC(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
