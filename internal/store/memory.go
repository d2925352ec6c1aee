package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"docsync/internal/errors"
	"docsync/internal/snapshot"
	"docsync/internal/types"
)

type memoryDocument struct {
	content   string
	fields    []types.Field
	updatedAt time.Time
}

// MemoryStore is an in-memory document store implementing both the canonical
// and mirror interfaces. Fault injection hooks let tests exercise the
// executor's transactional guarantees.
type MemoryStore struct {
	mu     sync.RWMutex
	origin types.Origin
	docs   map[string]*memoryDocument

	writeErr error
	readErr  error
}

// NewMemoryStore creates an empty store producing snapshots with the given
// origin.
func NewMemoryStore(origin types.Origin) *MemoryStore {
	return &MemoryStore{origin: origin, docs: make(map[string]*memoryDocument)}
}

// Put seeds or replaces a document without going through Write's snapshot
// bookkeeping.
func (s *MemoryStore) Put(documentID, content string, fields []types.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[documentID] = &memoryDocument{
		content:   content,
		fields:    cloneFields(fields),
		updatedAt: time.Now().UTC(),
	}
}

// Read captures a snapshot of the stored document.
func (s *MemoryStore) Read(ctx context.Context, documentID string) (*types.DocumentSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.readErr != nil {
		return nil, s.readErr
	}
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "document not found").WithDocument(documentID)
	}

	raw := &snapshot.RawDocument{
		DocumentID: documentID,
		Content:    doc.content,
		Fields:     fieldMap(doc.fields),
		FieldOrder: fieldOrder(doc.fields),
		CapturedAt: doc.updatedAt,
	}
	return snapshot.Capture(raw, s.origin)
}

// Write replaces the document, returning the new version's snapshot id.
func (s *MemoryStore) Write(ctx context.Context, documentID, content string, fields []types.Field) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return "", s.writeErr
	}
	s.docs[documentID] = &memoryDocument{
		content:   content,
		fields:    cloneFields(fields),
		updatedAt: time.Now().UTC(),
	}

	raw := &snapshot.RawDocument{
		DocumentID: documentID,
		Content:    content,
		Fields:     fieldMap(fields),
		FieldOrder: fieldOrder(fields),
		CapturedAt: s.docs[documentID].updatedAt,
	}
	snap, err := snapshot.Capture(raw, s.origin)
	if err != nil {
		return "", err
	}
	return snap.ID, nil
}

// Exists answers existence for the batch from the in-memory map.
func (s *MemoryStore) Exists(ctx context.Context, documentIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.readErr != nil {
		return nil, s.readErr
	}
	results := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		_, ok := s.docs[id]
		results[id] = ok
	}
	return results, nil
}

// PendingDocuments lists every stored document id, sorted.
func (s *MemoryStore) PendingDocuments(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// FailWrites makes subsequent writes fail with err; nil restores normal
// operation.
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// FailReads makes subsequent reads fail with err; nil restores normal
// operation.
func (s *MemoryStore) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func cloneFields(fields []types.Field) []types.Field {
	out := make([]types.Field, len(fields))
	copy(out, fields)
	return out
}

func fieldMap(fields []types.Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Name] = f.Value
	}
	return m
}

func fieldOrder(fields []types.Field) []string {
	order := make([]string, 0, len(fields))
	for _, f := range fields {
		order = append(order, f.Name)
	}
	return order
}
