package storage

import (
	"maps"
	"sync"
)

// Index maps item ids to their directory name under the storage root.
//
// The index is a cache: the desc.json files remain the source of truth and
// a missing or stale entry is repaired by scanning.
type Index interface {
	Lookup(id string) (dir string, ok bool, err error)
	Put(id, dir string) error
	Remove(id string) error
	// Reset replaces every entry.
	Reset(entries map[string]string) error
	Close() error
}

// MemoryIndex is an Index rebuilt on first use in every process.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]string)}
}

func (m *MemoryIndex) Lookup(id string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dir, ok := m.entries[id]
	return dir, ok, nil
}

func (m *MemoryIndex) Put(id, dir string) error {
	m.mu.Lock()
	m.entries[id] = dir
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Remove(id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Reset(entries map[string]string) error {
	m.mu.Lock()
	m.entries = maps.Clone(entries)
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Close() error { return nil }
