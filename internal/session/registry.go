package session

import (
	"errors"
	"sync"

	"github.com/soyeahso/liverelay/internal/logging"
)

// ErrSessionLimit is returned when the registry is at capacity.
var ErrSessionLimit = errors.New("session limit reached")

// Registry tracks live sessions and enforces the concurrency cap.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Manager
	max      int
	log      *logging.Logger
}

// NewRegistry creates a registry. A max of zero or less means unbounded.
func NewRegistry(max int, log *logging.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Manager),
		max:      max,
		log:      log.Sub("registry"),
	}
}

// Add registers a session, rejecting it when the cap is reached.
func (r *Registry) Add(m *Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.sessions) >= r.max {
		return ErrSessionLimit
	}
	r.sessions[m.ID()] = m
	r.log.Debug().Str("sessionId", m.ID()).Int("active", len(r.sessions)).Msg("session registered")
	return nil
}

// Remove drops a session by ID. Safe to call for IDs already removed.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.log.Debug().Str("sessionId", id).Int("active", len(r.sessions)).Msg("session removed")
}

// Get returns the session with the given ID, if registered.
func (r *Registry) Get(id string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessions[id]
	return m, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll requests termination of every session and waits for each to
// finish. Used during server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.sessions))
	for _, m := range r.sessions {
		managers = append(managers, m)
	}
	r.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
	for _, m := range managers {
		<-m.Done()
	}
}
