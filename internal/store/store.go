// Package store defines the document store collaborators the engine reads
// snapshots from and commits resolutions to, plus in-memory implementations
// used by tests and the demo command.
package store

import (
	"context"

	"docsync/internal/types"
)

// CanonicalStore is the engine's own document store. Writes are assumed
// atomic per document.
type CanonicalStore interface {
	// Read captures a snapshot of the current canonical version.
	Read(ctx context.Context, documentID string) (*types.DocumentSnapshot, error)

	// Write replaces the document's content and fields, returning the id of
	// the snapshot the new version corresponds to.
	Write(ctx context.Context, documentID, content string, fields []types.Field) (string, error)

	// Exists answers existence for a batch of document ids in one call.
	Exists(ctx context.Context, documentIDs []string) (map[string]bool, error)
}

// MirrorStore is the externally-edited side. It may be stale or unavailable;
// the engine only ever reads snapshots from it.
type MirrorStore interface {
	Read(ctx context.Context, documentID string) (*types.DocumentSnapshot, error)
}

// PendingLister enumerates documents with pending divergence. Stores that
// cannot enumerate return every known document.
type PendingLister interface {
	PendingDocuments(ctx context.Context) ([]string, error)
}
