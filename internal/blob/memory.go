package blob

import (
	"context"
	"sync"
)

// Memory keeps blobs in process.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, data []byte) (string, error) {
	ref := newRef()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[ref]
	if !ok {
		return nil, notFound(ref)
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Exists(_ context.Context, ref string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[ref]
	return ok, nil
}

// Delete is idempotent.
func (m *Memory) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, ref)
	return nil
}

// Len returns the number of stored blobs, orphans included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
