package realtime

import "sync"

const unknownUser = "unknown"

// SessionRegistry tracks connected sessions for observability. It is safe for
// concurrent use and is not persisted.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string
	metrics  *Metrics
}

func NewSessionRegistry(metrics *Metrics) *SessionRegistry {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &SessionRegistry{sessions: map[string]string{}, metrics: metrics}
}

func (r *SessionRegistry) OnConnect(sessionID, userID string) {
	r.mu.Lock()
	r.sessions[sessionID] = userID
	r.metrics.sessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
}

// OnDisconnect removes the session and returns its user, or "unknown".
func (r *SessionRegistry) OnDisconnect(sessionID string) string {
	r.mu.Lock()
	userID, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.metrics.sessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	if !ok {
		return unknownUser
	}
	return userID
}

func (r *SessionRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// UserSessions counts the sessions of a single user.
func (r *SessionRegistry) UserSessions(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, u := range r.sessions {
		if u == userID {
			n++
		}
	}
	return n
}

// Clear drops every session. Called at shutdown.
func (r *SessionRegistry) Clear() {
	r.mu.Lock()
	r.sessions = map[string]string{}
	r.metrics.sessions.Set(0)
	r.mu.Unlock()
}
