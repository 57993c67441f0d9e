package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

// DefaultIdleTTL is how long a session may stay silent before eviction.
const DefaultIdleTTL = 30 * time.Minute

// SessionManager owns every live session. Callers only ever receive copies.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session

	idleTTL time.Duration
	now     func() time.Time
	onEvict func(id string)
	onClose func(id string)
	logger  *logging.Logger
}

var _ domain.SessionRepository = (*SessionManager)(nil)

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithIdleTTL sets the idle eviction threshold. Zero disables eviction.
func WithIdleTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		m.idleTTL = ttl
	}
}

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// WithEvictHandler is called, outside the lock, for every evicted session.
func WithEvictHandler(fn func(id string)) SessionOption {
	return func(m *SessionManager) {
		m.onEvict = fn
	}
}

// WithCloseHandler is called, outside the lock, whenever a session is destroyed.
func WithCloseHandler(fn func(id string)) SessionOption {
	return func(m *SessionManager) {
		m.onClose = fn
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *logging.Logger) SessionOption {
	return func(m *SessionManager) {
		m.logger = logger
	}
}

// NewSessionManager creates an empty session manager.
func NewSessionManager(opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		sessions: make(map[string]*domain.Session),
		idleTTL:  DefaultIdleTTL,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open admits a connection authenticated with claims and returns its new session.
func (m *SessionManager) Open(ctx context.Context, claims domain.TokenClaims) domain.Session {
	now := m.now()
	session := &domain.Session{
		ID:             uuid.NewString(),
		Authenticated:  true,
		Subject:        claims.Subject,
		CreatedAt:      now,
		LastActiveAt:   now,
		TokenExpiresAt: claims.ExpiresAt,
		Status:         domain.SessionReady,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("session opened", logging.Fields{"session_id": session.ID, "subject": claims.Subject})
	return *session
}

// Reauthenticate refreshes the token of an existing session, keeping its ID.
func (m *SessionManager) Reauthenticate(ctx context.Context, id string, claims domain.TokenClaims) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.NewSessionNotFoundError(id)
	}
	session.Authenticated = true
	session.Subject = claims.Subject
	session.TokenExpiresAt = claims.ExpiresAt
	session.LastActiveAt = m.now()
	return *session, nil
}

// Deauthenticate marks a session as needing a fresh token.
func (m *SessionManager) Deauthenticate(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		session.Authenticated = false
	}
}

// GetSession retrieves a copy of a session by its ID.
func (m *SessionManager) GetSession(ctx context.Context, id string) (domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.NewSessionNotFoundError(id)
	}
	return *session, nil
}

// ListSessions returns copies of all live sessions.
func (m *SessionManager) ListSessions(ctx context.Context) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, *session)
	}
	return out, nil
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Touch records activity on a session.
func (m *SessionManager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		session.LastActiveAt = m.now()
	}
}

// BeginLoad marks the session as loading an emulator context.
func (m *SessionManager) BeginLoad(ctx context.Context, id, emulatorType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return domain.NewSessionNotFoundError(id)
	}
	session.Status = domain.SessionLoading
	session.EmulatorType = emulatorType
	return nil
}

// CompleteLoad returns the session to ready. A failed load clears the emulator type.
func (m *SessionManager) CompleteLoad(ctx context.Context, id string, loadErr error) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.NewSessionNotFoundError(id)
	}
	if loadErr != nil {
		session.EmulatorType = ""
	}
	session.Status = domain.SessionReady
	return *session, nil
}

// Close destroys a session.
func (m *SessionManager) Close(ctx context.Context, id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		session.Status = domain.SessionClosed
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info("session closed", logging.Fields{"session_id": id})
		if m.onClose != nil {
			m.onClose(id)
		}
	}
}

// Sweep evicts sessions idle for longer than the idle TTL and returns their IDs.
func (m *SessionManager) Sweep() []string {
	if m.idleTTL <= 0 {
		return nil
	}
	cutoff := m.now().Add(-m.idleTTL)

	var evicted []string
	m.mu.Lock()
	for id, session := range m.sessions {
		if session.LastActiveAt.Before(cutoff) {
			session.Status = domain.SessionClosed
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	for _, id := range evicted {
		m.logger.Info("session evicted", logging.Fields{"session_id": id})
		if m.onEvict != nil {
			m.onEvict(id)
		}
		if m.onClose != nil {
			m.onClose(id)
		}
	}
	return evicted
}

// RunSweeper sweeps every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
