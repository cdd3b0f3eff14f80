package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("test not found")

// Provider supplies immutable test definitions to the session engine.
type Provider interface {
	GetTest(ctx context.Context, id string) (Test, error)
	ListTests(ctx context.Context) ([]Summary, error)
}

// Store is a Provider that also accepts definitions (seeding, authoring).
type Store interface {
	Provider
	PutTest(ctx context.Context, t Test) error
}

type memoryStore struct {
	mu    sync.RWMutex
	tests map[string]Test
}

func NewInMemoryStore() Store {
	return &memoryStore{tests: map[string]Test{}}
}

func (m *memoryStore) PutTest(_ context.Context, t Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	return nil
}

func (m *memoryStore) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, ErrNotFound
	}
	return t, nil
}

func (m *memoryStore) ListTests(_ context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.tests))
	for _, t := range m.tests {
		out = append(out, t.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
