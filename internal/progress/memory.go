package progress

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps snapshots in a map. Used in tests and single-process
// offline mode.
type MemoryStore struct {
	mu       sync.Mutex
	snaps    map[string]Snapshot
	watchers map[string][]chan Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps:    map[string]Snapshot{},
		watchers: map[string][]chan Snapshot{},
	}
}

func memKey(userID, testID string) string { return fmt.Sprintf("%s|%s", userID, testID) }

func (m *MemoryStore) Load(_ context.Context, userID, testID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[memKey(userID, testID)]
	if !ok {
		return Snapshot{}, ErrAbsent
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, userID, testID string, snap Snapshot) error {
	k := memKey(userID, testID)
	m.mu.Lock()
	m.snaps[k] = snap.Clone()
	chans := append([]chan Snapshot(nil), m.watchers[k]...)
	m.mu.Unlock()

	for _, ch := range chans {
		// Coalesce: drop the stale pending value so the observer always sees
		// the latest write.
		select {
		case ch <- snap.Clone():
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap.Clone():
			default:
			}
		}
	}
	return nil
}

func (m *MemoryStore) Watch(ctx context.Context, userID, testID string) (<-chan Snapshot, func(), error) {
	k := memKey(userID, testID)
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	m.watchers[k] = append(m.watchers[k], ch)
	m.mu.Unlock()

	stop := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[k]
		for i, c := range ws {
			if c == ch {
				m.watchers[k] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ch, stop, nil
}
