// Package registry is the owned state container for active sessions and
// pending leg-to-session correlations. Control-plane events arrive on
// independent goroutines, so all maps are guarded here rather than in
// the callers.
package registry

import (
	"sync"

	"github.com/ClareAI/astra-call-bridge/internal/domain"
)

// Registry holds every active session keyed by bridge id, plus the
// pending map correlating a not-yet-Up originated leg with its owning
// session. A pending entry exists only between origination and the leg
// becoming ready or its session terminating.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	pending  map[string]string // leg id -> bridge id
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*domain.Session),
		pending:  make(map[string]string),
	}
}

// Create stores a session under its bridge id.
func (r *Registry) Create(s *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.BridgeID()] = s
}

// Get returns the session for a bridge id.
func (r *Registry) Get(bridgeID string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[bridgeID]
	return s, ok
}

// Remove deletes a session and any pending entries still pointing at it.
// Only the teardown coordinator calls this.
func (r *Registry) Remove(bridgeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, bridgeID)
	for legID, owner := range r.pending {
		if owner == bridgeID {
			delete(r.pending, legID)
		}
	}
}

// List returns a snapshot of all active sessions.
func (r *Registry) List() []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// FindByLeg returns the session owning legID, if any.
func (r *Registry) FindByLeg(legID string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Owns(legID) {
			return s, true
		}
	}
	return nil, false
}

// AddPending records a newly originated leg awaiting readiness.
func (r *Registry) AddPending(legID, bridgeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[legID] = bridgeID
}

// PendingBridge returns the bridge id a pending leg belongs to, without
// consuming the entry.
func (r *Registry) PendingBridge(legID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bridgeID, ok := r.pending[legID]
	return bridgeID, ok
}

// DropPending removes a pending entry once the leg is ready or gone.
func (r *Registry) DropPending(legID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, legID)
}
