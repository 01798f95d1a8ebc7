package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrSessionExists = errors.New("session already open")
	ErrNoSession     = errors.New("no such session")
)

type entry struct {
	mu sync.Mutex
	s  *Session
}

// Manager holds independent sessions, for example a live one and one per
// replay being analysed. Each session sits behind its own lock so work on
// one never waits on another.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*entry)}
}

// Open creates a session under name.
func (m *Manager) Open(name string, deps Dependencies) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[name]; ok {
		return fmt.Errorf("open %q: %w", name, ErrSessionExists)
	}
	m.sessions[name] = &entry{s: New(name, deps)}
	return nil
}

// With runs fn with exclusive access to the named session.
func (m *Manager) With(name string, fn func(*Session) error) error {
	m.mu.RLock()
	e, ok := m.sessions[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %q: %w", name, ErrNoSession)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.s)
}

// Close finishes the named session at now and forgets it.
func (m *Manager) Close(name string, now time.Time) error {
	m.mu.Lock()
	e, ok := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q: %w", name, ErrNoSession)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.Close(now)
	return nil
}

// CloseAll closes every session. A zero time closes each one at its own
// last observed time.
func (m *Manager) CloseAll(now time.Time) {
	for _, name := range m.Names() {
		_ = m.Close(name, now)
	}
}

// Names returns the open session names in order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
