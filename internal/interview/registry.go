package interview

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// HooksFunc builds the hooks for a new session.
type HooksFunc func(sessionID string) Hooks

// Registry holds live sessions by id. A session is evicted once it has been
// ANALYZED for the retention period.
type Registry struct {
	deps   Deps
	hooks  HooksFunc
	retain time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. hooks may be nil. A negative retain
// keeps analyzed sessions until Remove is called.
func NewRegistry(deps Deps, hooks HooksFunc, retain time.Duration) *Registry {
	return &Registry{deps: deps, hooks: hooks, retain: retain, sessions: make(map[string]*Session)}
}

// Create opens a new CONFIGURING session for userID.
func (r *Registry) Create(userID string) *Session {
	id := uuid.NewString()
	var h Hooks
	if r.hooks != nil {
		h = r.hooks(id)
	}
	onState := h.OnState
	h.OnState = func(st State) {
		if onState != nil {
			onState(st)
		}
		if st == StateAnalyzed {
			r.evictLater(id)
		}
	}
	s := NewSession(id, userID, r.deps, h)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) evictLater(id string) {
	if r.retain < 0 {
		return
	}
	time.AfterFunc(r.retain, func() { r.Remove(id) })
}

// Get returns the session or ErrNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
