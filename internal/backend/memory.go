package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"dupview/internal/dv"
)

// MemoryBackend holds archive files in memory. It is safe for concurrent
// use and mostly useful in tests.
type MemoryBackend struct {
	name  string
	files map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{
		name:  name,
		files: make(map[string][]byte),
	}
}

// Put stores data under name, replacing any previous content.
func (m *MemoryBackend) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
}

// Remove deletes name if present.
func (m *MemoryBackend) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
}

func (m *MemoryBackend) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Keys(m.files)), nil
}

func (m *MemoryBackend) Open(_ context.Context, name string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryBackend) Location() string {
	return "memory://" + m.name
}

var _ dv.Backend = (*MemoryBackend)(nil)
