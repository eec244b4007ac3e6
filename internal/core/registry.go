package core

import "sync"

// Registry maps live sessions to identities and back. It is owned by the
// server process, constructed at startup and torn down with it; nothing is
// persisted, so after a restart all previous sessions are simply gone.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	byIdentity map[int64]map[string]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		byIdentity: make(map[int64]map[string]*Session),
	}
}

// Register adds a session under its owning identity.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	if _, ok := r.byIdentity[s.IdentityID]; !ok {
		r.byIdentity[s.IdentityID] = make(map[string]*Session)
	}
	r.byIdentity[s.IdentityID][s.ID] = s
}

// Unregister removes a session. Returns the removed session, or nil if the
// id was unknown.
func (r *Registry) Unregister(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(r.sessions, sessionID)
	if set, ok := r.byIdentity[s.IdentityID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byIdentity, s.IdentityID)
		}
	}
	return s
}

// SessionsFor returns a snapshot of the identity's live sessions.
func (r *Registry) SessionsFor(identityID int64) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byIdentity[identityID]
	sessions := make([]*Session, 0, len(set))
	for _, s := range set {
		sessions = append(sessions, s)
	}
	return sessions
}

// SessionCount returns the number of live sessions for the identity.
func (r *Registry) SessionCount(identityID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identityID])
}

// IdentityFor resolves a session id to its owning identity.
func (r *Registry) IdentityFor(sessionID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, false
	}
	return s.IdentityID, true
}

// Sessions returns a snapshot of all live sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// OnlineIdentities returns the ids of identities with at least one session.
func (r *Registry) OnlineIdentities() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.byIdentity))
	for id := range r.byIdentity {
		ids = append(ids, id)
	}
	return ids
}
