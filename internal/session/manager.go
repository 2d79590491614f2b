package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Manager keeps sessions in memory. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults Defaults
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a manager whose sessions expire after ttl without
// access. A zero ttl disables expiry.
func NewManager(defaults Defaults, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		defaults: defaults,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new session with the default selections. Its trajectories
// are not computed yet.
func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := newSession(uuid.New().String(), m.defaults, m.now())
	m.sessions[s.ID] = s
	slog.Debug("Session created", "session_id", s.ID, "function", s.Function)
	return s.clone()
}

// Get returns a copy of the session and marks it as accessed.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || m.expired(s) {
		return nil, false
	}
	s.LastAccess = m.now()
	return s.clone(), true
}

// GetOrCreate returns the session for id, or a new one when id is unknown
// or expired. created reports which happened.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	return m.Create(), true
}

// Update applies fn to the stored session under the manager's lock. fn must
// not block; long computations belong in Compute.
func (m *Manager) Update(id string, fn func(*Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || m.expired(s) {
		return ErrNotFound
	}
	if err := fn(s); err != nil {
		return err
	}
	s.LastAccess = m.now()
	return nil
}

// Compute applies sel to a copy of the session, recomputes the trajectories
// outside the lock and stores the result. Concurrent submissions for the
// same session are resolved in favour of the last one to finish.
func (m *Manager) Compute(ctx context.Context, id string, sel *Selection) (*Session, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if sel != nil {
		if err := sel.Apply(s); err != nil {
			return nil, err
		}
	}
	if err := Recompute(ctx, s); err != nil {
		return nil, err
	}

	err := m.Update(id, func(stored *Session) error {
		*stored = *s.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("Session recomputed", "session_id", id, "function", s.Function, "optimizers", len(s.Trajectories))
	return s, nil
}

// Delete removes a session. It reports whether the session existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Evict removes every expired session and returns how many were removed.
func (m *Manager) Evict() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		slog.Debug("Evicted expired sessions", "count", n)
	}
	return n
}

// Len returns the number of stored sessions, expired ones included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run evicts expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
		}
	}
}

func (m *Manager) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.LastAccess) > m.ttl
}
