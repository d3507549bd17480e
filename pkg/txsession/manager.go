// Package txsession tracks open transactions as expirable sessions.
// Sessions that outlive their TTL are force-terminated, which discards
// their write-set and leaves the committed store untouched.
package txsession

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/libertyarow/neo4j/pkg/storage"
)

// Session pairs a transaction with its expiry deadline.
type Session struct {
	ID      string
	Tx      *storage.Transaction
	Expires time.Time

	mu sync.Mutex
}

// Manager tracks sessions and their lifecycle operations.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	engine  *storage.Engine
	ttl     time.Duration
	nowFunc func() time.Time
	idFunc  func() string
}

// NewManager creates a manager over the engine. A non-positive ttl falls
// back to 30 seconds.
func NewManager(engine *storage.Engine, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Manager{
		sessions: make(map[string]*Session),
		engine:   engine,
		ttl:      ttl,
		nowFunc:  time.Now,
		idFunc:   uuid.NewString,
	}
}

// Open begins a transaction and registers it as a session.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := m.engine.Begin()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:      m.idFunc(),
		Tx:      tx,
		Expires: m.nowFunc().Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session, nil
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	return session, ok
}

// Touch extends a session's deadline after use.
func (m *Manager) Touch(session *Session) {
	if session == nil {
		return
	}
	session.mu.Lock()
	session.Expires = m.nowFunc().Add(m.ttl)
	session.mu.Unlock()
}

// Commit commits the session's transaction and removes the session.
func (m *Manager) Commit(session *Session) error {
	if session == nil {
		return storage.ErrTransactionClosed
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	defer m.remove(session.ID)
	return session.Tx.Commit()
}

// Rollback rolls the session's transaction back and removes the session.
func (m *Manager) Rollback(session *Session) error {
	if session == nil {
		return storage.ErrTransactionClosed
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	defer m.remove(session.ID)
	return session.Tx.Rollback()
}

// ExpireNow terminates every session past its deadline and returns how
// many were terminated. Safe to race with in-flight session use.
func (m *Manager) ExpireNow() int {
	now := m.nowFunc()

	m.mu.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		session.mu.Lock()
		overdue := now.After(session.Expires)
		session.mu.Unlock()
		if overdue {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		session.Tx.Terminate()
		logrus.WithFields(logrus.Fields{
			"session": session.ID,
			"tx":      session.Tx.ID,
		}).Info("expired transaction session terminated")
	}
	return len(expired)
}

// Close terminates every remaining session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Tx.Terminate()
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
