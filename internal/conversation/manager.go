package conversation

import (
	"context"
	"sync"

	"zerocode-chat/internal/oracle"
	"zerocode-chat/internal/store"
)

// Manager owns one explicitly constructed Session per owner (an authenticated user).
type Manager struct {
	ctx     context.Context
	baseKey string
	store   store.Store
	oracle  oracle.Oracle
	opts    []Option
	archive Archiver

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(ctx context.Context, baseKey string, st store.Store, o oracle.Oracle, archive Archiver, opts ...Option) *Manager {
	return &Manager{
		ctx:      ctx,
		baseKey:  baseKey,
		store:    st,
		oracle:   o,
		opts:     opts,
		archive:  archive,
		sessions: make(map[string]*Session),
	}
}

// Get returns the owner's session, hydrating it from the store on first use.
func (m *Manager) Get(owner string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[owner]; ok {
		return s
	}
	opts := m.opts
	if m.archive != nil {
		opts = append(append([]Option(nil), m.opts...), WithArchiver(owner, m.archive))
	}
	s := New(m.ctx, store.Key(m.baseKey, owner), m.store, m.oracle, opts...)
	m.sessions[owner] = s
	return s
}

// Release closes the owner's in-memory session. Its persisted log is kept,
// so the next Get hydrates it again. The session is closed before it leaves the map.
func (m *Manager) Release(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[owner]; ok {
		s.Close()
		delete(m.sessions, owner)
	}
}

func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
