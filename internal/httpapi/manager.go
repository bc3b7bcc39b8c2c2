package httpapi

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/register"
)

// Manager owns one register session per terminal. Sessions are created on
// first use and live until CloseAll.
type Manager struct {
	factory func() *register.Session
	lg      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
}

// managedSession pairs a session with its one-time priming. Priming runs
// outside the manager lock so a slow platform call on one terminal cannot
// stall the others.
type managedSession struct {
	sess  *register.Session
	prime sync.Once
}

// NewManager creates a Manager that builds sessions with factory.
func NewManager(factory func() *register.Session, lg *zap.Logger) *Manager {
	return &Manager{
		factory:  factory,
		lg:       lg,
		sessions: make(map[string]*managedSession),
	}
}

// Get returns the session for the terminal, creating and priming it on first
// use. A failed initial context fetch is logged; the session starts anyway
// and the terminal can refresh later.
func (m *Manager) Get(ctx context.Context, terminalID string) *register.Session {
	m.mu.Lock()
	e, ok := m.sessions[terminalID]
	if !ok {
		e = &managedSession{sess: m.factory()}
		m.sessions[terminalID] = e
	}
	m.mu.Unlock()

	e.prime.Do(func() {
		if err := e.sess.Refresh(ctx); err != nil {
			m.lg.Warn("initial order context fetch failed",
				zap.String("terminal_id", terminalID),
				zap.Error(err))
		}
	})
	return e.sess
}

// CloseAll tears down every session, stopping their pollers.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.sessions {
		e.sess.Close()
		delete(m.sessions, id)
	}
}
