package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Operator backed by a map.
// Used for testing and development. Thread-safe via RWMutex.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory operator.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Exists reports whether the path exists.
func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	if path == "" {
		return false, ErrEmptyPath
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok, nil
}

// Read returns the content at path, or ErrNotFound.
func (m *Memory) Read(_ context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to prevent external modification.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write replaces the content at path atomically.
func (m *Memory) Write(_ context.Context, path string, data []byte) error {
	if path == "" {
		return ErrEmptyPath
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.mu.Lock()
	m.objects[path] = stored
	m.mu.Unlock()
	return nil
}

// CreateDir is a no-op for the flat in-memory keyspace.
func (m *Memory) CreateDir(_ context.Context, _ string) error {
	return nil
}

// List returns all paths under prefix, sorted ascending.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for path := range m.objects {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
