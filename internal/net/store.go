package net

// SessionStore is the game loop's view of connected sessions.
// Game-loop access only; the Server keeps its own locked set for shutdown.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (st *SessionStore) Add(s *Session) { st.sessions[s.ID] = s }

func (st *SessionStore) Remove(id uint64) { delete(st.sessions, id) }

func (st *SessionStore) Get(id uint64) *Session { return st.sessions[id] }

func (st *SessionStore) Count() int { return len(st.sessions) }

// ForEach visits every session. fn must not add or remove sessions.
func (st *SessionStore) ForEach(fn func(*Session)) {
	for _, s := range st.sessions {
		fn(s)
	}
}
