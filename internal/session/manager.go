package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/exam-forge/examforge-engine/internal/catalog"
	"github.com/exam-forge/examforge-engine/internal/progress"
	"github.com/exam-forge/examforge-engine/internal/result"
)

// Manager is the registry of live engines, one per (user, test). It owns
// engine construction and teardown; handlers hold only the returned handle.
// Duplicate starts for one key are coalesced onto a single load, but the
// load's I/O runs outside the registry lock so one slow store call cannot
// stall unrelated sessions.
type Manager struct {
	provider catalog.Provider
	store    progress.Store
	sink     result.Sink
	opts     []Option

	mu       sync.Mutex
	live     map[string]*Engine
	starting map[string]*startCall
}

// startCall is one in-flight load; latecomers for the same key wait on done
// instead of racing a second engine onto the same snapshot.
type startCall struct {
	done chan struct{}
	eng  *Engine
	err  error
}

func NewManager(provider catalog.Provider, store progress.Store, sink result.Sink, opts ...Option) *Manager {
	return &Manager{
		provider: provider,
		store:    store,
		sink:     sink,
		opts:     opts,
		live:     map[string]*Engine{},
		starting: map[string]*startCall{},
	}
}

func sessionKey(userID, testID string) string { return fmt.Sprintf("%s|%s", userID, testID) }

// StartOrResume returns the live engine for the key, or loads one: resuming
// the stored snapshot when a non-completed one exists, starting fresh
// otherwise. A completed engine left in the registry is replaced by a new
// attempt. The second return reports whether prior progress was picked up.
func (m *Manager) StartOrResume(ctx context.Context, userID, testID string) (*Engine, bool, error) {
	k := sessionKey(userID, testID)

	m.mu.Lock()
	if eng, ok := m.live[k]; ok && eng.State() != StateCompleted {
		m.mu.Unlock()
		return eng, true, nil
	}
	if call, ok := m.starting[k]; ok {
		m.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		if call.err != nil {
			return nil, false, call.err
		}
		return call.eng, true, nil
	}
	call := &startCall{done: make(chan struct{})}
	m.starting[k] = call
	m.mu.Unlock()

	eng := NewEngine(m.provider, m.store, m.sink, m.opts...)
	resumed, err := eng.Load(ctx, testID, userID)

	m.mu.Lock()
	delete(m.starting, k)
	if err == nil {
		m.live[k] = eng
	}
	m.mu.Unlock()

	call.eng, call.err = eng, err
	close(call.done)

	if err != nil {
		return nil, false, err
	}
	return eng, resumed, nil
}

// Get returns the live engine for the key, if any.
func (m *Manager) Get(userID, testID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eng, ok := m.live[sessionKey(userID, testID)]
	return eng, ok
}

// Close tears down and evicts the engine for the key. No-op when absent.
func (m *Manager) Close(userID, testID string) error {
	k := sessionKey(userID, testID)
	m.mu.Lock()
	eng, ok := m.live[k]
	delete(m.live, k)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return eng.Close()
}

// Shutdown closes every live engine. Used on process exit so in-flight
// sessions flush their snapshots.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.live))
	for _, e := range m.live {
		engines = append(engines, e)
	}
	m.live = map[string]*Engine{}
	m.mu.Unlock()

	for _, e := range engines {
		_ = e.Close()
	}
}
