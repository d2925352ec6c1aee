package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process LRU store with TTL expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
}

type memoryEntry struct {
	key       string
	value     string
	element   *list.Element
	createdAt time.Time
}

// NewMemoryStore creates an LRU store bounded to maxSize entries.
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the value for key if present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if time.Since(entry.createdAt) > s.ttl {
		s.remove(entry)
		return "", false
	}

	s.lruList.MoveToFront(entry.element)
	return entry.value, true
}

// Set stores a value, evicting the least recently used entry when full.
func (s *MemoryStore) Set(_ context.Context, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		entry.value = value
		entry.createdAt = time.Now()
		s.lruList.MoveToFront(entry.element)
		return
	}

	for len(s.entries) >= s.maxSize {
		oldest := s.lruList.Back()
		if oldest == nil {
			break
		}
		s.remove(oldest.Value.(*memoryEntry))
	}

	entry := &memoryEntry{key: key, value: value, createdAt: time.Now()}
	entry.element = s.lruList.PushFront(entry)
	s.entries[key] = entry
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error { return nil }

// Len returns the current entry count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) remove(entry *memoryEntry) {
	s.lruList.Remove(entry.element)
	delete(s.entries, entry.key)
}
