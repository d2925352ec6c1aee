package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerr "docsync/internal/errors"
	"docsync/internal/types"
)

func TestMemoryStoreReadCapturesSnapshot(t *testing.T) {
	s := NewMemoryStore(types.OriginCanonical)
	s.Put("doc-1", "Body with a [link](other.md).\n", []types.Field{
		{Name: "title", Value: "Doc"},
		{Name: "tags", Value: []string{"a"}},
	})

	snap, err := s.Read(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", snap.DocumentID)
	assert.Equal(t, types.OriginCanonical, snap.Origin)
	assert.Equal(t, []string{"other"}, snap.Outbound)
	assert.NotEmpty(t, snap.Fingerprint)

	title, ok := snap.FieldValue("title")
	require.True(t, ok)
	assert.Equal(t, "Doc", title)
}

func TestMemoryStoreReadNotFound(t *testing.T) {
	s := NewMemoryStore(types.OriginMirror)
	_, err := s.Read(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, engerr.Is(err, engerr.KindNotFound))
}

func TestMemoryStoreWriteReplacesDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(types.OriginCanonical)
	s.Put("doc-1", "old", nil)

	snapID, err := s.Write(ctx, "doc-1", "new", []types.Field{{Name: "status", Value: "final"}})
	require.NoError(t, err)
	assert.NotEmpty(t, snapID)

	snap, err := s.Read(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "new", snap.Content)
	status, ok := snap.FieldValue("status")
	require.True(t, ok)
	assert.Equal(t, "final", status)
}

func TestMemoryStoreExists(t *testing.T) {
	s := NewMemoryStore(types.OriginCanonical)
	s.Put("doc-1", "x", nil)

	results, err := s.Exists(context.Background(), []string{"doc-1", "doc-2"})
	require.NoError(t, err)
	assert.True(t, results["doc-1"])
	assert.False(t, results["doc-2"])
}

func TestMemoryStorePendingDocumentsSorted(t *testing.T) {
	s := NewMemoryStore(types.OriginCanonical)
	s.Put("zeta", "x", nil)
	s.Put("alpha", "x", nil)
	s.Put("mid", "x", nil)

	ids, err := s.PendingDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

func TestMemoryStoreFaultInjection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(types.OriginCanonical)
	s.Put("doc-1", "x", nil)

	boom := errors.New("boom")
	s.FailReads(boom)
	_, err := s.Read(ctx, "doc-1")
	require.ErrorIs(t, err, boom)
	_, err = s.Exists(ctx, []string{"doc-1"})
	require.ErrorIs(t, err, boom)
	s.FailReads(nil)

	s.FailWrites(boom)
	_, err = s.Write(ctx, "doc-1", "y", nil)
	require.ErrorIs(t, err, boom)
	s.FailWrites(nil)

	_, err = s.Read(ctx, "doc-1")
	require.NoError(t, err)
}
