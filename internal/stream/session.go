package stream

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// StartSessionFunc brings one outcome's live session up: subscribe on the
// wire, fetch the REST snapshot into rec, and pump updates until the
// returned stop function is called.
type StartSessionFunc func(outcomeID string, rec *Reconciler) (stop func(), err error)

// session is the live state for one watched outcome. The reconciler is
// owned exclusively by its session; subscribers share it read-only through
// Book copies.
type session struct {
	rec  *Reconciler
	refs int
	stop func()
}

// SessionManager owns one live session per watched outcome, reference
// counted across watchers: the first watcher starts the session (wire
// subscribe + snapshot), the last one to release tears it down.
type SessionManager struct {
	logger *zap.Logger
	start  StartSessionFunc

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSessionManager creates a manager that starts sessions with start.
func NewSessionManager(start StartSessionFunc, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		logger:   logger,
		start:    start,
		sessions: make(map[string]*session),
	}
}

// Acquire returns the outcome's reconciler, starting a session if none is
// live, plus a release function. Release is idempotent per call site: call
// it exactly once when the watcher unsubscribes.
func (m *SessionManager) Acquire(outcomeID string) (*Reconciler, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[outcomeID]
	if !ok {
		rec := NewReconciler(outcomeID, 0, m.logger)
		stop, err := m.start(outcomeID, rec)
		if err != nil {
			return nil, nil, fmt.Errorf("start session for %s: %w", outcomeID, err)
		}
		s = &session{rec: rec, stop: stop}
		m.sessions[outcomeID] = s
		m.logger.Debug("session started", zap.String("outcome", outcomeID))
	}
	s.refs++

	var once sync.Once
	release := func() {
		once.Do(func() { m.release(outcomeID) })
	}
	return s.rec, release, nil
}

func (m *SessionManager) release(outcomeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[outcomeID]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	delete(m.sessions, outcomeID)
	s.stop()
	m.logger.Debug("session stopped", zap.String("outcome", outcomeID))
}

// Active returns the number of live sessions.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll tears down every live session regardless of reference counts.
// Used at shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.stop()
		delete(m.sessions, id)
	}
}
